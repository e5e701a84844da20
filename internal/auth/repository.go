// internal/auth/repository.go
package auth

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"quiz-battle/internal/models"
	"quiz-battle/pkg/logger"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).Where("username = ?", username).First(&user)
	if result.Error != nil {
		logger.Debug("user lookup failed", zap.String("username", username), zap.Error(result.Error))
		return nil, result.Error
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}
