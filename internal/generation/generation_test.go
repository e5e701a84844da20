package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"quiz-battle/internal/models"
	"quiz-battle/internal/room"
	"quiz-battle/internal/testutil"
	"quiz-battle/pkg/ai"
	"quiz-battle/pkg/cache"
)

type fakeProvider struct {
	mu sync.Mutex

	combined   string
	combineErr error
	lecture    string
	lectureErr error
	// wait makes JSON generation block until its context ends.
	wait bool
	// onJSON runs before the JSON answer is returned.
	onJSON func()

	textCalls int
	jsonCalls int
}

func (f *fakeProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	return f.combined, f.combineErr
}

func (f *fakeProvider) GenerateJSON(ctx context.Context, prompt string, schema *ai.Schema) (string, error) {
	f.mu.Lock()
	f.jsonCalls++
	wait, hook := f.wait, f.onJSON
	f.mu.Unlock()

	if wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if hook != nil {
		hook()
	}
	return f.lecture, f.lectureErr
}

func (f *fakeProvider) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.textCalls, f.jsonCalls
}

type rawQ struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex *int     `json:"answerIndex,omitempty"`
}

func questions(n int) []rawQ {
	out := make([]rawQ, n)
	for i := range out {
		answer := i % models.ChoiceCount
		out[i] = rawQ{
			ID:          fmt.Sprintf("q%d", i+1),
			Question:    fmt.Sprintf("Question %d?", i+1),
			Choices:     []string{"A", "B", "C", "D"},
			AnswerIndex: &answer,
		}
	}
	return out
}

func lectureJSON(t *testing.T, qs []rawQ) string {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"topic":    "Pompeii",
		"lecture":  "Vesuvius erupted in 79 AD.",
		"quizList": qs,
	})
	require.NoError(t, err)
	return string(b)
}

func TestParseLecture(t *testing.T) {
	valid := lectureJSON(t, questions(models.QuizLength))
	data, err := ParseLecture(valid)
	require.NoError(t, err)
	assert.Equal(t, "Pompeii", data.Topic)
	assert.Len(t, data.QuizList, models.QuizLength)
	assert.Equal(t, 2, data.QuizList[2].AnswerIndex)

	mutate := func(fn func(qs []rawQ) []rawQ) string {
		return lectureJSON(t, fn(questions(models.QuizLength)))
	}

	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: "  "},
		{name: "not json", text: "Here is your quiz!"},
		{name: "twelve questions", text: lectureJSON(t, questions(12))},
		{name: "sixteen questions", text: lectureJSON(t, questions(16))},
		{name: "three choices", text: mutate(func(qs []rawQ) []rawQ { qs[3].Choices = qs[3].Choices[:3]; return qs })},
		{name: "empty choice", text: mutate(func(qs []rawQ) []rawQ { qs[3].Choices[1] = " "; return qs })},
		{name: "answer index too high", text: mutate(func(qs []rawQ) []rawQ { four := 4; qs[0].AnswerIndex = &four; return qs })},
		{name: "negative answer index", text: mutate(func(qs []rawQ) []rawQ { neg := -1; qs[0].AnswerIndex = &neg; return qs })},
		{name: "missing answer index", text: mutate(func(qs []rawQ) []rawQ { qs[5].AnswerIndex = nil; return qs })},
		{name: "duplicate id", text: mutate(func(qs []rawQ) []rawQ { qs[1].ID = qs[0].ID; return qs })},
		{name: "missing question text", text: mutate(func(qs []rawQ) []rawQ { qs[7].Question = ""; return qs })},
		{name: "missing lecture", text: `{"topic":"x","lecture":"","quizList":[]}`},
		{name: "missing topic", text: `{"lecture":"x","quizList":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLecture(tt.text)
			var validation *ValidationError
			assert.True(t, errors.As(err, &validation), "got %v", err)
		})
	}
}

func TestCombineTopics(t *testing.T) {
	ctx := context.Background()

	got := CombineTopics(ctx, &fakeProvider{combined: "  Volcanoes of the Roman world \n"}, "Volcanoes", "Ancient Rome")
	assert.Equal(t, "Volcanoes of the Roman world", got)

	got = CombineTopics(ctx, &fakeProvider{combineErr: errors.New("quota")}, "Volcanoes", "Ancient Rome")
	assert.Equal(t, "Volcanoes and Ancient Rome", got)

	got = CombineTopics(ctx, &fakeProvider{combined: "   "}, "Volcanoes", "Ancient Rome")
	assert.Equal(t, "Volcanoes and Ancient Rome", got)
}

type fixture struct {
	db       *gorm.DB
	repo     *room.Repository
	provider *fakeProvider
	pipeline *Pipeline
}

func newFixture(t *testing.T, provider *fakeProvider) *fixture {
	t.Helper()
	db := testutil.TestDB(t)
	repo := room.NewRepository(db, cache.NewMemoryCache())
	return &fixture{
		db:       db,
		repo:     repo,
		provider: provider,
		pipeline: NewPipeline(repo, provider, Options{Workers: 1, Timeout: 50 * time.Millisecond}),
	}
}

func TestProcess_Success(t *testing.T) {
	f := newFixture(t, &fakeProvider{combined: "Volcanoes of Rome"})
	f.provider.lecture = lectureJSON(t, questions(models.QuizLength))
	ctx := context.Background()
	r := testutil.SaveRoom(t, f.db, testutil.GeneratingRoom("guest-user", 1))

	require.NoError(t, f.pipeline.Process(ctx, r.ID))

	stored, err := f.repo.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLecture, stored.Status)
	assert.Equal(t, "Volcanoes of Rome", stored.FinalTopic)
	assert.Equal(t, "Vesuvius erupted in 79 AD.", stored.Lecture)
	assert.Len(t, stored.Questions(), models.QuizLength)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Empty(t, stored.Error)
}

func TestProcess_TwelveQuestionsErrorsRoom(t *testing.T) {
	f := newFixture(t, &fakeProvider{combined: "Volcanoes of Rome"})
	f.provider.lecture = lectureJSON(t, questions(12))
	ctx := context.Background()
	r := testutil.SaveRoom(t, f.db, testutil.GeneratingRoom("guest-user", 0))

	require.NoError(t, f.pipeline.Process(ctx, r.ID))

	stored, err := f.repo.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, stored.Status)
	assert.Equal(t, FailureMessage, stored.Error)
	assert.Empty(t, stored.Lecture)
	assert.Empty(t, stored.FinalTopic)
	assert.Empty(t, stored.Questions())
	assert.Equal(t, 0, stored.RetryCount)
}

func TestProcess_ProviderTimeout(t *testing.T) {
	f := newFixture(t, &fakeProvider{combineErr: errors.New("down"), wait: true})
	ctx := context.Background()
	r := testutil.SaveRoom(t, f.db, testutil.GeneratingRoom("guest-user", 0))

	require.NoError(t, f.pipeline.Process(ctx, r.ID))

	stored, err := f.repo.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, stored.Status)
	assert.Equal(t, FailureMessage, stored.Error)
}

func TestProcess_IgnoresRoomsPastGenerating(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	ctx := context.Background()

	for _, r := range []*models.Room{
		testutil.LectureRoom("guest-user"),
		testutil.ErroredRoom(1),
		testutil.WaitingRoom("host-user"),
		testutil.BattleRoom(models.SideHost, models.ActionAttack, 10, 10),
	} {
		testutil.SaveRoom(t, f.db, r)

		require.NoError(t, f.pipeline.Process(ctx, r.ID))
		require.NoError(t, f.pipeline.Process(ctx, r.ID))

		stored, err := f.repo.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.Status, stored.Status)
		assert.Equal(t, 0, stored.Version)
	}

	textCalls, jsonCalls := f.provider.calls()
	assert.Zero(t, textCalls)
	assert.Zero(t, jsonCalls)

	assert.NoError(t, f.pipeline.Process(ctx, "missing"))
}

func TestProcess_SecondRunIsNoop(t *testing.T) {
	f := newFixture(t, &fakeProvider{combined: "Volcanoes"})
	f.provider.lecture = lectureJSON(t, questions(models.QuizLength))
	ctx := context.Background()
	r := testutil.SaveRoom(t, f.db, testutil.GeneratingRoom("guest-user", 0))

	require.NoError(t, f.pipeline.Process(ctx, r.ID))
	first, err := f.repo.Get(ctx, r.ID)
	require.NoError(t, err)

	require.NoError(t, f.pipeline.Process(ctx, r.ID))
	second, err := f.repo.Get(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	_, jsonCalls := f.provider.calls()
	assert.Equal(t, 1, jsonCalls)
}

func TestProcess_DiscardsResultWhenAttemptChanged(t *testing.T) {
	f := newFixture(t, &fakeProvider{combined: "Volcanoes"})
	f.provider.lecture = lectureJSON(t, questions(models.QuizLength))
	ctx := context.Background()
	r := testutil.SaveRoom(t, f.db, testutil.GeneratingRoom("guest-user", 0))

	f.provider.onJSON = func() {
		_, err := f.repo.Update(ctx, r.ID, func(row *models.Room, _ room.Tx) error {
			row.RetryCount = 1
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, f.pipeline.Process(ctx, r.ID))

	stored, err := f.repo.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, stored.Status)
	assert.Empty(t, stored.Lecture)
	assert.Equal(t, 1, stored.RetryCount)
	require.Len(t, f.pipeline.queue, 1)
	assert.Equal(t, r.ID, <-f.pipeline.queue)
}

// afterUpdateStore runs a hook once, right after the first committed update.
type afterUpdateStore struct {
	room.Store
	hook func()
}

func (s *afterUpdateStore) Update(ctx context.Context, id string, fn func(*models.Room, room.Tx) error) (*models.Room, error) {
	updated, err := s.Store.Update(ctx, id, fn)
	if err == nil && s.hook != nil {
		hook := s.hook
		s.hook = nil
		hook()
	}
	return updated, err
}

func TestProcess_RequeuesRetryCommittedWhileInFlight(t *testing.T) {
	f := newFixture(t, &fakeProvider{combined: "Volcanoes"})
	f.provider.lecture = lectureJSON(t, questions(12))
	ctx := context.Background()
	r := testutil.SaveRoom(t, f.db, testutil.GeneratingRoom("guest-user", 0))

	store := &afterUpdateStore{Store: f.repo}
	pipeline := NewPipeline(store, f.provider, Options{Workers: 1, Timeout: 50 * time.Millisecond})
	rooms := room.NewService(f.repo, pipeline)

	store.hook = func() {
		f.provider.mu.Lock()
		f.provider.lecture = lectureJSON(t, questions(models.QuizLength))
		f.provider.mu.Unlock()

		// The retry lands before the failed attempt is released, so the
		// worker that picks it up finds the room still in flight.
		require.NoError(t, rooms.RetryGenerate(ctx, r.ID, nil))
		require.Equal(t, r.ID, <-pipeline.queue)
		require.NoError(t, pipeline.Process(ctx, r.ID))
	}

	require.NoError(t, pipeline.Process(ctx, r.ID))

	stored, err := f.repo.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	require.Len(t, pipeline.queue, 1)
	require.NoError(t, pipeline.Process(ctx, <-pipeline.queue))

	stored, err = f.repo.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLecture, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Len(t, stored.Questions(), models.QuizLength)
}

func TestPipeline_RunProcessesQueueAndRecovers(t *testing.T) {
	f := newFixture(t, &fakeProvider{combined: "Volcanoes"})
	f.provider.lecture = lectureJSON(t, questions(models.QuizLength))
	left := testutil.SaveRoom(t, f.db, testutil.GeneratingRoom("guest-user", 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.pipeline.Run(ctx) }()

	queued := testutil.SaveRoom(t, f.db, testutil.GeneratingRoom(models.AIPlayerID, 0))
	f.pipeline.Enqueue(queued.ID)

	for _, id := range []string{left.ID, queued.ID} {
		id := id
		require.Eventually(t, func() bool {
			stored, err := f.repo.Get(context.Background(), id)
			return err == nil && stored.Status == models.StatusLecture
		}, 2*time.Second, 10*time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}

	// Enqueue after shutdown must not block.
	f.pipeline.Enqueue(queued.ID)
}

func TestHandler_Generate(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	r := testutil.SaveRoom(t, f.db, testutil.GeneratingRoom("guest-user", 0))

	router := mux.NewRouter()
	router.HandleFunc("/internal/rooms/{roomId}/generate", NewHandler(f.pipeline, f.repo).Generate).Methods("POST")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/rooms/"+r.ID+"/generate", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, f.pipeline.queue, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/rooms/missing/generate", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Ping(t *testing.T) {
	f := newFixture(t, &fakeProvider{combined: "Hi there"})
	h := NewHandler(f.pipeline, f.repo)

	rec := httptest.NewRecorder()
	h.Ping(rec, httptest.NewRequest(http.MethodGet, "/internal/ai/ping?prompt=hello", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"Hi there"}`, rec.Body.String())

	unconfigured := NewPipeline(f.repo, ai.NewClient(ai.Config{}), Options{})
	rec = httptest.NewRecorder()
	NewHandler(unconfigured, f.repo).Ping(rec, httptest.NewRequest(http.MethodGet, "/internal/ai/ping", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"internal error"`)
}
