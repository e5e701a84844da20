// internal/generation/pipeline.go
package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-battle/internal/game"
	"quiz-battle/internal/models"
	"quiz-battle/internal/room"
	"quiz-battle/pkg/logger"
)

// FailureMessage is stored on a room whose generation attempt failed.
const FailureMessage = "Failed to generate lecture and quiz"

const (
	defaultWorkers = 2
	defaultTimeout = 60 * time.Second
	queueSize      = 64
	recoveryLimit  = 100
)

type Options struct {
	Workers int
	// Timeout bounds every provider call.
	Timeout time.Duration
}

// Pipeline turns rooms in generating into rooms with a lecture, or into
// errored rooms. Work arrives through Enqueue and is drained by Run.
type Pipeline struct {
	store    room.Store
	provider Provider
	workers  int
	timeout  time.Duration

	queue    chan string
	done     chan struct{}
	inflight sync.Map
}

func NewPipeline(store room.Store, provider Provider, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Pipeline{
		store:    store,
		provider: provider,
		workers:  opts.Workers,
		timeout:  opts.Timeout,
		queue:    make(chan string, queueSize),
		done:     make(chan struct{}),
	}
}

// Enqueue schedules roomID for processing without blocking the caller.
func (p *Pipeline) Enqueue(roomID string) {
	select {
	case p.queue <- roomID:
		return
	case <-p.done:
		logger.Warn("pipeline stopped, dropping generation request", zap.String("room_id", roomID))
		return
	default:
	}

	logger.Warn("generation queue full, deferring", zap.String("room_id", roomID))
	go func() {
		select {
		case p.queue <- roomID:
		case <-p.done:
		}
	}()
}

// Run re-enqueues rooms left in generating by a previous process, then
// processes the queue until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.done)

	if err := p.recover(ctx); err != nil {
		logger.Error("recover generating rooms", zap.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			logger.Debug("generation worker started", zap.Int("worker", worker))
			for {
				select {
				case <-ctx.Done():
					return nil
				case roomID := <-p.queue:
					if err := p.Process(ctx, roomID); err != nil {
						logger.Error("generation failed",
							zap.Int("worker", worker),
							zap.String("room_id", roomID),
							zap.Error(err),
						)
					}
				}
			}
		})
	}
	return g.Wait()
}

func (p *Pipeline) recover(ctx context.Context) error {
	rooms, err := p.store.ListByStatus(ctx, models.StatusGenerating, recoveryLimit)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		p.Enqueue(r.ID)
	}
	if len(rooms) > 0 {
		logger.Info("re-enqueued generating rooms", zap.Int("count", len(rooms)))
	}
	return nil
}

// Process generates content for roomID if it is still generating. Rooms in
// any other status are left untouched, so repeated calls are harmless. The
// result is committed only if the room is still at the attempt that was read.
func (p *Pipeline) Process(ctx context.Context, roomID string) error {
	if _, busy := p.inflight.LoadOrStore(roomID, struct{}{}); busy {
		logger.Debug("generation already running", zap.String("room_id", roomID))
		return nil
	}
	attempt := -1
	defer func() {
		p.inflight.Delete(roomID)
		if attempt >= 0 {
			p.requeueIfRetried(ctx, roomID, attempt)
		}
	}()

	r, err := p.store.Get(ctx, roomID)
	if errors.Is(err, room.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if r.Status != models.StatusGenerating {
		return nil
	}
	st, err := game.Decode(r)
	if err != nil {
		return err
	}
	gen := st.(game.Generating)
	if gen.Host.Topic == "" || gen.Guest.Topic == "" {
		return nil
	}
	attempt = gen.Attempt

	logger.Info("generating content",
		zap.String("room_id", roomID),
		zap.Int("attempt", gen.Attempt),
	)

	next := p.generate(ctx, gen)

	_, err = p.store.Update(ctx, roomID, func(r *models.Room, _ room.Tx) error {
		if r.Status != models.StatusGenerating || r.RetryCount != gen.Attempt {
			return room.ErrNoop
		}
		game.Apply(next, r)
		return nil
	})
	switch {
	case errors.Is(err, room.ErrNoop), errors.Is(err, room.ErrNotFound), errors.Is(err, room.ErrConflict):
		logger.Info("room changed during generation, discarding result", zap.String("room_id", roomID))
		return nil
	case err != nil:
		return err
	}

	logger.Info("generation finished",
		zap.String("room_id", roomID),
		zap.String("status", string(next.Status())),
	)
	return nil
}

// requeueIfRetried catches a retry that committed while roomID was still
// marked in flight, whose own Enqueue was skipped.
func (p *Pipeline) requeueIfRetried(ctx context.Context, roomID string, attempt int) {
	r, err := p.store.Get(ctx, roomID)
	if err != nil {
		return
	}
	if r.Status == models.StatusGenerating && r.RetryCount > attempt {
		logger.Info("room retried during generation, re-enqueueing",
			zap.String("room_id", roomID),
			zap.Int("attempt", r.RetryCount),
		)
		p.Enqueue(roomID)
	}
}

func (p *Pipeline) generate(ctx context.Context, gen game.Generating) game.State {
	combineCtx, cancel := context.WithTimeout(ctx, p.timeout)
	topic := CombineTopics(combineCtx, p.provider, gen.Host.Topic, gen.Guest.Topic)
	cancel()

	genCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	data, err := GenerateLectureAndQuiz(genCtx, p.provider, topic)
	if err != nil {
		logger.Warn("lecture generation failed", zap.String("topic", topic), zap.Error(err))
		return game.Errored{
			Host:    gen.Host,
			Guest:   gen.Guest,
			Message: FailureMessage,
			Attempt: gen.Attempt,
		}
	}

	return game.Lecture{
		Host:  gen.Host,
		Guest: gen.Guest,
		Content: game.Content{
			Topic:   topic,
			Lecture: data.Lecture,
			Quiz:    data.QuizList,
		},
		Attempt: gen.Attempt,
	}
}

// Ping makes one plain-text round trip to the provider.
func (p *Pipeline) Ping(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.provider.GenerateText(ctx, prompt)
}
