// internal/testutil/testutil.go

// Package testutil provides shared fixtures for package tests: an in-memory
// SQLite database with every table migrated, and generated quiz content.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quiz-battle/internal/models"
)

// TestDB opens a private in-memory database for t.
func TestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the shared-cache database alive and serialises
	// writers, which SQLite needs anyway.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.BattleLogEntry{},
		&models.Match{},
	))
	return db
}

// Quiz returns a valid question list whose correct answer is always index 1.
func Quiz() []models.QuizQuestion {
	questions := make([]models.QuizQuestion, models.QuizLength)
	for i := range questions {
		questions[i] = models.QuizQuestion{
			ID:          fmt.Sprintf("q%d", i+1),
			Question:    fmt.Sprintf("Question %d?", i+1),
			Choices:     []string{"A", "B", "C", "D"},
			AnswerIndex: 1,
		}
	}
	return questions
}

// BattleRoom returns an unsaved room in battle with the given turn and hit points.
func BattleRoom(turn models.Side, action models.Action, hostHP, guestHP int) *models.Room {
	room := &models.Room{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now(),
		HostID:        "host-user",
		GuestID:       "guest-user",
		HostTopic:     "Volcanoes",
		GuestTopic:    "Ancient Rome",
		FinalTopic:    "Pompeii and Vesuvius",
		Status:        models.StatusBattle,
		Lecture:       "Vesuvius erupted in 79 AD.",
		CurrentTurn:   turn,
		CurrentAction: action,
		HostHP:        hostHP,
		GuestHP:       guestHP,
	}
	room.SetQuestions(Quiz())
	return room
}

// SaveRoom inserts room directly, bypassing the store.
func SaveRoom(t *testing.T, db *gorm.DB, room *models.Room) *models.Room {
	t.Helper()
	require.NoError(t, db.Create(room).Error)
	return room
}

// WaitingRoom returns an unsaved room open for a guest.
func WaitingRoom(hostID string) *models.Room {
	return &models.Room{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now(),
		HostID:        hostID,
		HostTopic:     "Volcanoes",
		Status:        models.StatusWaiting,
		CurrentTurn:   models.SideHost,
		CurrentAction: models.ActionAttack,
		HostHP:        models.MaxHP,
		GuestHP:       models.MaxHP,
	}
}

// GeneratingRoom returns an unsaved room waiting on content at the given attempt.
func GeneratingRoom(guestID string, attempt int) *models.Room {
	room := WaitingRoom("host-user")
	room.GuestID = guestID
	room.GuestTopic = "Ancient Rome"
	if guestID == models.AIPlayerID {
		room.GuestTopic = room.HostTopic
	}
	room.Status = models.StatusGenerating
	room.RetryCount = attempt
	return room
}

// ErroredRoom returns an unsaved room whose generation failed at attempt.
func ErroredRoom(attempt int) *models.Room {
	room := GeneratingRoom("guest-user", attempt)
	room.Status = models.StatusError
	room.Error = "Failed to generate lecture and quiz"
	return room
}

// LectureRoom returns an unsaved room with generated content, ready to start.
func LectureRoom(guestID string) *models.Room {
	room := GeneratingRoom(guestID, 0)
	room.Status = models.StatusLecture
	room.FinalTopic = "Pompeii and Vesuvius"
	room.Lecture = "Vesuvius erupted in 79 AD."
	room.SetQuestions(Quiz())
	return room
}
