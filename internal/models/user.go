// internal/models/user.go
package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        string         `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
	Username  string         `json:"username" gorm:"size:64;uniqueIndex;not null"`
	Email     string         `json:"email"`
	Password  string         `json:"-" gorm:"not null"`
	Rating    int            `json:"rating" gorm:"not null;default:1000"`
}
