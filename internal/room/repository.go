// internal/room/repository.go
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"quiz-battle/internal/models"
	"quiz-battle/pkg/logger"
)

// Repository is the gorm-backed Store.
type Repository struct {
	db   *gorm.DB
	feed ChangeFeed
}

func NewRepository(db *gorm.DB, feed ChangeFeed) *Repository {
	return &Repository{db: db, feed: feed}
}

func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		logger.Error("create room", zap.Error(err))
		return err
	}
	logger.Info("room created", zap.String("room_id", room.ID), zap.String("host_id", room.HostID))
	r.publish(ctx, room)
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *Repository) Update(ctx context.Context, id string, fn func(room *models.Room, tx Tx) error) (*models.Room, error) {
	var updated models.Room

	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var room models.Room
		err := db.Where("id = ?", id).First(&room).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		version := room.Version
		if err := fn(&room, &gormTx{db: db, roomID: id}); err != nil {
			return err
		}

		room.ID = id
		room.Version = version + 1
		room.UpdatedAt = time.Now()

		result := db.Model(&models.Room{}).
			Where("id = ? AND version = ?", id, version).
			Updates(room.Columns())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}

		updated = room
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.publish(ctx, &updated)
	return &updated, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Where("room_id = ?", id).Delete(&models.BattleLogEntry{}).Error; err != nil {
			return err
		}
		result := db.Where("id = ?", id).Delete(&models.Room{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("room deleted", zap.String("room_id", id))
	return nil
}

func (r *Repository) ListByStatus(ctx context.Context, status models.Status, limit int) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at desc").
		Limit(limit).
		Find(&rooms).Error
	if err != nil {
		logger.Error("list rooms", zap.String("status", string(status)), zap.Error(err))
		return nil, err
	}
	return rooms, nil
}

func (r *Repository) BattleLog(ctx context.Context, id string, limit int) ([]models.BattleLogEntry, error) {
	var entries []models.BattleLogEntry
	err := r.db.WithContext(ctx).
		Where("room_id = ?", id).
		Order("timestamp desc").
		Order("id desc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Matches lists finished matches, newest first. An empty userID lists all.
func (r *Repository) Matches(ctx context.Context, userID string, limit int) ([]models.Match, error) {
	query := r.db.WithContext(ctx).Model(&models.Match{})
	if userID != "" {
		query = query.Where("winner_id = ? OR loser_id = ?", userID, userID)
	}

	var matches []models.Match
	err := query.Order("date desc").Limit(limit).Find(&matches).Error
	return matches, err
}

func (r *Repository) Subscribe(ctx context.Context, id string) (<-chan *models.Room, error) {
	raw, err := r.feed.Subscribe(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("subscribe to room %s: %w", id, err)
	}

	out := make(chan *models.Room)
	go func() {
		defer close(out)
		for payload := range raw {
			var room models.Room
			if err := json.Unmarshal(payload, &room); err != nil {
				logger.Warn("dropping malformed room snapshot", zap.String("room_id", id), zap.Error(err))
				continue
			}
			select {
			case out <- &room:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// publish is best-effort: the commit already happened and subscribers
// re-read on reconnect.
func (r *Repository) publish(ctx context.Context, room *models.Room) {
	payload, err := json.Marshal(room)
	if err != nil {
		logger.Error("marshal room snapshot", zap.String("room_id", room.ID), zap.Error(err))
		return
	}
	if err := r.feed.Publish(ctx, room.ID, payload); err != nil {
		logger.Warn("publish room change", zap.String("room_id", room.ID), zap.Error(err))
	}
}

type gormTx struct {
	db     *gorm.DB
	roomID string
}

func (t *gormTx) AppendBattleLog(entry *models.BattleLogEntry) error {
	entry.RoomID = t.roomID
	return t.db.Create(entry).Error
}

func (t *gormTx) RecordMatch(match *models.Match) error {
	match.RoomID = t.roomID
	return t.db.Create(match).Error
}
