// internal/room/store.go
package room

import (
	"context"
	"errors"

	"quiz-battle/internal/models"
)

var (
	ErrNotFound = errors.New("room not found")
	// ErrConflict means another writer committed between read and write.
	ErrConflict = errors.New("room was modified concurrently")
	// ErrNoop aborts an update without writing anything.
	ErrNoop = errors.New("room update skipped")
)

// Tx is handed to update functions so child records commit together with
// the room itself.
type Tx interface {
	AppendBattleLog(entry *models.BattleLogEntry) error
	RecordMatch(match *models.Match) error
}

// Store is the single source of truth for rooms.
type Store interface {
	Create(ctx context.Context, room *models.Room) error
	Get(ctx context.Context, id string) (*models.Room, error)
	// Update reads the room, runs fn on it and writes it back in one
	// transaction, failing with ErrConflict if the row changed meanwhile.
	// fn returning ErrNoop rolls back and Update returns ErrNoop.
	Update(ctx context.Context, id string, fn func(room *models.Room, tx Tx) error) (*models.Room, error)
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]models.Room, error)
	BattleLog(ctx context.Context, id string, limit int) ([]models.BattleLogEntry, error)
	Matches(ctx context.Context, userID string, limit int) ([]models.Match, error)
	// Subscribe streams a snapshot of the room after every committed change
	// until ctx is cancelled.
	Subscribe(ctx context.Context, id string) (<-chan *models.Room, error)
}

// ChangeFeed fans committed room snapshots out to subscribers, possibly in
// other processes.
type ChangeFeed interface {
	Publish(ctx context.Context, roomID string, payload []byte) error
	Subscribe(ctx context.Context, roomID string) (<-chan []byte, error)
}
