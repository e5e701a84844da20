// internal/room/service.go
package room

import (
	"context"
	"errors"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-battle/internal/apperr"
	"quiz-battle/internal/game"
	"quiz-battle/internal/models"
	"quiz-battle/pkg/logger"
)

const (
	lobbySize      = 20
	battleLogLimit = 100
)

// Trigger starts content generation for a room that entered generating.
type Trigger interface {
	Enqueue(roomID string)
}

type Service struct {
	store   Store
	trigger Trigger
	// coin picks who opens a battle against a human guest.
	coin func() models.Side
}

func NewService(store Store, trigger Trigger) *Service {
	return &Service{
		store:   store,
		trigger: trigger,
		coin: func() models.Side {
			if rand.Intn(2) == 0 {
				return models.SideHost
			}
			return models.SideGuest
		},
	}
}

func (s *Service) CreateRoom(ctx context.Context, hostID, hostTopic string) (string, error) {
	if hostID == "" {
		return "", apperr.New(apperr.Unauthenticated, "User must be signed in.")
	}
	topic, err := cleanTopic(hostTopic)
	if err != nil {
		return "", err
	}

	room := &models.Room{ID: uuid.NewString()}
	game.Apply(game.Waiting{Host: game.Player{ID: hostID, Topic: topic}}, room)

	if err := s.store.Create(ctx, room); err != nil {
		return "", apperr.Wrap(err, apperr.Internal, "create room")
	}
	return room.ID, nil
}

func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.store.Get(ctx, roomID)
	if err != nil {
		return nil, storeError(err)
	}
	return room, nil
}

// ListLobby returns the newest rooms still waiting for a guest.
func (s *Service) ListLobby(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.store.ListByStatus(ctx, models.StatusWaiting, lobbySize)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "list rooms")
	}
	return rooms, nil
}

func (s *Service) JoinRoom(ctx context.Context, roomID, guestID, guestTopic string) error {
	if guestID == "" {
		return apperr.New(apperr.Unauthenticated, "User must be signed in.")
	}
	topic, err := cleanTopic(guestTopic)
	if err != nil {
		return err
	}
	return s.join(ctx, roomID, func(w game.Waiting) (game.Player, error) {
		if w.Host.ID == guestID {
			return game.Player{}, apperr.New(apperr.InvalidArgument, "The host cannot join their own room.")
		}
		return game.Player{ID: guestID, Topic: topic}, nil
	})
}

// JoinAI seats the automated opponent, which plays the host's own topic.
func (s *Service) JoinAI(ctx context.Context, roomID, callerID string) error {
	return s.join(ctx, roomID, func(w game.Waiting) (game.Player, error) {
		if w.Host.ID != callerID {
			return game.Player{}, apperr.New(apperr.PermissionDenied, "Only the host can call in the AI opponent.")
		}
		return game.Player{ID: models.AIPlayerID, Topic: w.Host.Topic}, nil
	})
}

func (s *Service) join(ctx context.Context, roomID string, guest func(game.Waiting) (game.Player, error)) error {
	_, err := s.store.Update(ctx, roomID, func(room *models.Room, _ Tx) error {
		st, err := game.Decode(room)
		if err != nil {
			return err
		}
		w, ok := st.(game.Waiting)
		if !ok {
			return apperr.New(apperr.FailedPrecondition, "Room is no longer open.")
		}
		g, err := guest(w)
		if err != nil {
			return err
		}
		game.Apply(game.Generating{Host: w.Host, Guest: g, Attempt: 0}, room)
		return nil
	})
	if err != nil {
		return storeError(err)
	}

	logger.Info("guest joined, generating content", zap.String("room_id", roomID))
	s.trigger.Enqueue(roomID)
	return nil
}

// StartBattle opens the battle. The AI opponent never moves first; against a
// human the opening side is random.
func (s *Service) StartBattle(ctx context.Context, roomID, callerID string) (*models.Room, error) {
	room, err := s.store.Update(ctx, roomID, func(room *models.Room, _ Tx) error {
		st, err := game.Decode(room)
		if err != nil {
			return err
		}
		if room.HostID != callerID {
			return apperr.New(apperr.PermissionDenied, "Only the host can start the battle.")
		}
		l, ok := st.(game.Lecture)
		if !ok {
			return apperr.Newf(apperr.FailedPrecondition, "Room is %s, not ready for battle.", room.Status)
		}

		first := models.SideHost
		if !l.Guest.IsAI() {
			first = s.coin()
		}
		game.Apply(game.Start(l, first), room)
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	logger.Info("battle started",
		zap.String("room_id", roomID),
		zap.String("first_turn", string(room.CurrentTurn)),
	)
	return room, nil
}

// RetryGenerate re-enters generating after a failed attempt. expected, when
// non-nil, must be the attempt number this retry would become; it rejects
// duplicate submissions of the same retry.
func (s *Service) RetryGenerate(ctx context.Context, roomID string, expected *int) error {
	_, err := s.store.Update(ctx, roomID, func(room *models.Room, _ Tx) error {
		st, err := game.Decode(room)
		if err != nil {
			return err
		}
		e, ok := st.(game.Errored)
		if !ok {
			return apperr.Newf(apperr.FailedPrecondition, "Room is %s, nothing to retry.", room.Status)
		}
		if !e.CanRetry() {
			return apperr.Newf(apperr.FailedPrecondition, "Generation was already retried %d times.", models.MaxRetries)
		}
		next := e.Attempt + 1
		if expected != nil && *expected != next {
			return apperr.Newf(apperr.FailedPrecondition, "Retry %d is not the next attempt (%d).", *expected, next)
		}
		game.Apply(game.Generating{Host: e.Host, Guest: e.Guest, Attempt: next}, room)
		return nil
	})
	if err != nil {
		return storeError(err)
	}

	logger.Info("retrying generation", zap.String("room_id", roomID))
	s.trigger.Enqueue(roomID)
	return nil
}

func (s *Service) DeleteRoom(ctx context.Context, roomID, callerID string) error {
	room, err := s.store.Get(ctx, roomID)
	if err != nil {
		return storeError(err)
	}
	if room.HostID != callerID {
		return apperr.New(apperr.PermissionDenied, "Only the host can delete the room.")
	}
	if err := s.store.Delete(ctx, roomID); err != nil {
		return storeError(err)
	}
	return nil
}

// BattleLog returns resolved answers, newest first.
func (s *Service) BattleLog(ctx context.Context, roomID string) ([]models.BattleLogEntry, error) {
	if _, err := s.store.Get(ctx, roomID); err != nil {
		return nil, storeError(err)
	}
	entries, err := s.store.BattleLog(ctx, roomID, battleLogLimit)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "read battle log")
	}
	return entries, nil
}

func cleanTopic(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", apperr.New(apperr.InvalidArgument, "Topic is required.")
	}
	if len([]rune(topic)) > models.MaxTopicLength {
		return "", apperr.Newf(apperr.InvalidArgument, "Topic must be at most %d characters.", models.MaxTopicLength)
	}
	return topic, nil
}

// storeError maps store failures onto caller-facing kinds. Errors that are
// already classified pass through.
func storeError(err error) error {
	var appErr *apperr.Error
	var invalid *game.InvalidStateError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, ErrNotFound):
		return apperr.New(apperr.NotFound, "Room not found.")
	case errors.Is(err, ErrConflict):
		return apperr.New(apperr.FailedPrecondition, "Room changed while updating, try again.")
	case errors.As(err, &invalid):
		return apperr.Wrap(err, apperr.Internal, "corrupt room")
	default:
		return apperr.Wrap(err, apperr.Internal, "room store")
	}
}
