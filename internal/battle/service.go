// internal/battle/service.go
package battle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"quiz-battle/internal/apperr"
	"quiz-battle/internal/auth"
	"quiz-battle/internal/game"
	"quiz-battle/internal/models"
	"quiz-battle/internal/room"
	"quiz-battle/pkg/cache"
	"quiz-battle/pkg/logger"
)

const (
	maxAttempts      = 5
	recentMatchLimit = 20
	myMatchLimit     = 10
	leaderboardLimit = 10
)

// Leaderboard counts wins across finished battles.
type Leaderboard interface {
	RecordWin(ctx context.Context, userID string) error
	TopWinners(ctx context.Context, limit int) ([]cache.Score, error)
}

type Service struct {
	store       room.Store
	leaderboard Leaderboard
	apiKey      string
	now         func() time.Time
}

func NewService(store room.Store, leaderboard Leaderboard, apiKey string) *Service {
	return &Service{
		store:       store,
		leaderboard: leaderboard,
		apiKey:      apiKey,
		now:         time.Now,
	}
}

// SubmitRequest is one answer from the player whose turn it is. The index
// fields are pointers so a missing value can be told apart from zero.
type SubmitRequest struct {
	CallerID      string
	APIKey        string
	RoomID        string
	QuestionIndex *int
	AnswerIndex   *int
}

type Result struct {
	IsCorrect bool           `json:"isCorrect"`
	Damage    int            `json:"damage"`
	NewHP     models.HPDTO   `json:"newHp"`
	Winner    *models.Winner `json:"winner"`
}

// SubmitAnswer resolves one answer against the room and commits the new
// battle state together with its log entry.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitRequest) (*Result, error) {
	if req.CallerID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "User must be signed in to call this function.")
	}
	if err := auth.CheckAPIKey(s.apiKey, req.APIKey); err != nil {
		return nil, err
	}
	if req.RoomID == "" || req.QuestionIndex == nil || req.AnswerIndex == nil {
		return nil, apperr.New(apperr.InvalidArgument, "Missing required fields: roomId, questionIndex, or answerIndex.")
	}

	var (
		res    game.Resolution
		winner string
		err    error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, winner, err = s.resolve(ctx, req)
		if !errors.Is(err, room.ErrConflict) {
			break
		}
		logger.Debug("answer lost a write race, retrying",
			zap.String("room_id", req.RoomID),
			zap.Int("attempt", attempt),
		)
	}
	if errors.Is(err, room.ErrConflict) {
		return nil, apperr.Wrap(err, apperr.Internal, "room kept changing while resolving the answer")
	}
	if err != nil {
		return nil, submitError(err)
	}

	if winner != "" {
		s.creditWin(ctx, req.RoomID, winner)
	}

	result := &Result{
		IsCorrect: res.IsCorrect,
		Damage:    res.Damage,
		NewHP:     models.HPDTO{Host: res.HP.Host, Guest: res.HP.Guest},
	}
	if res.Winner != "" {
		w := res.Winner
		result.Winner = &w
	}
	return result, nil
}

// resolve runs one read-resolve-write cycle. It returns the winning player's
// id when the answer ended the battle.
func (s *Service) resolve(ctx context.Context, req SubmitRequest) (game.Resolution, string, error) {
	var (
		res      game.Resolution
		winnerID string
	)

	_, err := s.store.Update(ctx, req.RoomID, func(r *models.Room, tx room.Tx) error {
		if r.Status != models.StatusBattle {
			return apperr.New(apperr.FailedPrecondition, "Room is not in battle mode")
		}
		st, err := game.Decode(r)
		if err != nil {
			return err
		}
		b := st.(game.Battle)

		now := s.now()
		var next game.State
		res, next, err = game.Resolve(b, *req.QuestionIndex, *req.AnswerIndex, now)
		if errors.Is(err, game.ErrInvalidQuestion) {
			return apperr.New(apperr.InvalidArgument, "Invalid question index")
		}
		if err != nil {
			return err
		}
		game.Apply(next, r)

		if err := tx.AppendBattleLog(&models.BattleLogEntry{
			UserID:        req.CallerID,
			QuestionIndex: *req.QuestionIndex,
			AnswerIndex:   *req.AnswerIndex,
			IsCorrect:     res.IsCorrect,
			IsAttacker:    res.IsAttacker,
			Damage:        res.Damage,
			Timestamp:     now,
		}); err != nil {
			return err
		}

		winnerID = ""
		if res.Winner == models.WinnerHost || res.Winner == models.WinnerGuest {
			side := models.Side(res.Winner)
			winnerID = b.PlayerOf(side)
			return tx.RecordMatch(&models.Match{
				WinnerID:   winnerID,
				LoserID:    b.PlayerOf(side.Opponent()),
				FinalTopic: b.Content.Topic,
				Date:       now,
			})
		}
		return nil
	})
	return res, winnerID, err
}

func (s *Service) creditWin(ctx context.Context, roomID, userID string) {
	if userID == models.AIPlayerID {
		return
	}
	if err := s.leaderboard.RecordWin(ctx, userID); err != nil {
		logger.Warn("leaderboard update failed",
			zap.String("room_id", roomID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}
	logger.Info("battle finished", zap.String("room_id", roomID), zap.String("winner_id", userID))
}

func (s *Service) RecentMatches(ctx context.Context) ([]models.Match, error) {
	matches, err := s.store.Matches(ctx, "", recentMatchLimit)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "list matches")
	}
	return matches, nil
}

func (s *Service) MyMatches(ctx context.Context, userID string) ([]models.Match, error) {
	if userID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "User must be signed in.")
	}
	matches, err := s.store.Matches(ctx, userID, myMatchLimit)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "list matches")
	}
	return matches, nil
}

func (s *Service) Leaderboard(ctx context.Context) ([]cache.Score, error) {
	scores, err := s.leaderboard.TopWinners(ctx, leaderboardLimit)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "read leaderboard")
	}
	return scores, nil
}

func submitError(err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, room.ErrNotFound):
		return apperr.New(apperr.NotFound, "Room not found.")
	default:
		return apperr.Wrap(err, apperr.Internal, "resolve answer")
	}
}
