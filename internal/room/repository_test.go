package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-battle/internal/models"
	"quiz-battle/internal/testutil"
	"quiz-battle/pkg/cache"
)

func newTestRepository(t *testing.T) (*Repository, *cache.MemoryCache) {
	t.Helper()
	feed := cache.NewMemoryCache()
	return NewRepository(testutil.TestDB(t), feed), feed
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	room := testutil.LectureRoom("guest-user")
	require.NoError(t, repo.Create(ctx, room))

	got, err := repo.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLecture, got.Status)
	assert.Equal(t, "guest-user", got.GuestID)
	assert.Len(t, got.Questions(), models.QuizLength)
	assert.Equal(t, testutil.Quiz(), got.Questions())
}

func TestRepository_GetMissing(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_UpdateCommitsAndPublishes(t *testing.T) {
	repo, feed := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	room := testutil.BattleRoom(models.SideHost, models.ActionAttack, 10, 10)
	require.NoError(t, repo.Create(ctx, room))

	snapshots, err := feed.Subscribe(ctx, room.ID)
	require.NoError(t, err)

	updated, err := repo.Update(ctx, room.ID, func(r *models.Room, tx Tx) error {
		r.GuestHP = 8
		r.CurrentTurn = models.SideGuest
		r.CurrentAction = models.ActionDefend
		return tx.AppendBattleLog(&models.BattleLogEntry{
			UserID:    "host-user",
			IsCorrect: true,
			Damage:    2,
			Timestamp: time.Now(),
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 8, updated.GuestHP)
	assert.Equal(t, 1, updated.Version)

	stored, err := repo.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, stored.GuestHP)
	assert.Equal(t, models.SideGuest, stored.CurrentTurn)
	assert.Equal(t, 1, stored.Version)

	entries, err := repo.BattleLog(ctx, room.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, room.ID, entries[0].RoomID)

	select {
	case payload := <-snapshots:
		assert.Contains(t, string(payload), `"guestHp":8`)
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestRepository_UpdateRollsBackOnError(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	room := testutil.BattleRoom(models.SideHost, models.ActionAttack, 10, 10)
	require.NoError(t, repo.Create(ctx, room))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, room.ID, func(r *models.Room, tx Tx) error {
		r.GuestHP = 0
		require.NoError(t, tx.AppendBattleLog(&models.BattleLogEntry{UserID: "host-user", Timestamp: time.Now()}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := repo.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.GuestHP)
	assert.Equal(t, 0, stored.Version)

	entries, err := repo.BattleLog(ctx, room.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRepository_UpdateDetectsStaleVersion(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	room := testutil.BattleRoom(models.SideHost, models.ActionAttack, 10, 10)
	require.NoError(t, repo.Create(ctx, room))

	_, err := repo.Update(ctx, room.ID, func(r *models.Room, tx Tx) error {
		// Another writer commits between our read and our write.
		db := tx.(*gormTx).db
		require.NoError(t, db.Model(&models.Room{}).Where("id = ?", room.ID).Update("version", r.Version+1).Error)

		r.GuestHP = 8
		return tx.AppendBattleLog(&models.BattleLogEntry{UserID: "host-user", IsCorrect: true, IsAttacker: true, Damage: 2, Timestamp: time.Now()})
	})
	assert.ErrorIs(t, err, ErrConflict)

	stored, err := repo.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.GuestHP)
	assert.Equal(t, 0, stored.Version)

	entries, err := repo.BattleLog(ctx, room.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRepository_UpdateNoop(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	room := testutil.WaitingRoom("host-user")
	require.NoError(t, repo.Create(ctx, room))

	_, err := repo.Update(ctx, room.ID, func(r *models.Room, _ Tx) error {
		return ErrNoop
	})
	assert.ErrorIs(t, err, ErrNoop)
}

func TestRepository_UpdateMissing(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.Update(context.Background(), "missing", func(*models.Room, Tx) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_DeleteRemovesBattleLog(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	room := testutil.BattleRoom(models.SideHost, models.ActionAttack, 10, 10)
	require.NoError(t, repo.Create(ctx, room))
	_, err := repo.Update(ctx, room.ID, func(r *models.Room, tx Tx) error {
		return tx.AppendBattleLog(&models.BattleLogEntry{UserID: "host-user", Timestamp: time.Now()})
	})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, room.ID))

	_, err = repo.Get(ctx, room.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	entries, err := repo.BattleLog(ctx, room.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, repo.Delete(ctx, room.ID), ErrNotFound)
}

func TestRepository_ListByStatus(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	older := testutil.WaitingRoom("a")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := testutil.WaitingRoom("b")
	started := testutil.LectureRoom("guest-user")
	for _, r := range []*models.Room{older, newer, started} {
		require.NoError(t, repo.Create(ctx, r))
	}

	rooms, err := repo.ListByStatus(ctx, models.StatusWaiting, 10)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, newer.ID, rooms[0].ID)
	assert.Equal(t, older.ID, rooms[1].ID)

	rooms, err = repo.ListByStatus(ctx, models.StatusWaiting, 1)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestRepository_BattleLogNewestFirst(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	room := testutil.BattleRoom(models.SideHost, models.ActionAttack, 10, 10)
	require.NoError(t, repo.Create(ctx, room))

	base := time.Now()
	for i := 0; i < 3; i++ {
		i := i
		_, err := repo.Update(ctx, room.ID, func(r *models.Room, tx Tx) error {
			return tx.AppendBattleLog(&models.BattleLogEntry{
				UserID:        "host-user",
				QuestionIndex: i,
				Timestamp:     base.Add(time.Duration(i) * time.Second),
			})
		})
		require.NoError(t, err)
	}

	entries, err := repo.BattleLog(ctx, room.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 2, entries[0].QuestionIndex)
	assert.Equal(t, 0, entries[2].QuestionIndex)
}

func TestRepository_Matches(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	room := testutil.BattleRoom(models.SideHost, models.ActionAttack, 10, 10)
	require.NoError(t, repo.Create(ctx, room))

	_, err := repo.Update(ctx, room.ID, func(r *models.Room, tx Tx) error {
		if err := tx.RecordMatch(&models.Match{WinnerID: "alice", LoserID: "bob", Date: time.Now().Add(-time.Minute)}); err != nil {
			return err
		}
		return tx.RecordMatch(&models.Match{WinnerID: "carol", LoserID: "dave", Date: time.Now()})
	})
	require.NoError(t, err)

	all, err := repo.Matches(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "carol", all[0].WinnerID)
	assert.Equal(t, room.ID, all[0].RoomID)

	mine, err := repo.Matches(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "alice", mine[0].WinnerID)
}

func TestRepository_Subscribe(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	room := testutil.WaitingRoom("host-user")
	require.NoError(t, repo.Create(ctx, room))

	updates, err := repo.Subscribe(ctx, room.ID)
	require.NoError(t, err)

	_, err = repo.Update(ctx, room.ID, func(r *models.Room, _ Tx) error {
		r.HostTopic = "Glaciers"
		return nil
	})
	require.NoError(t, err)

	select {
	case got := <-updates:
		assert.Equal(t, room.ID, got.ID)
		assert.Equal(t, "Glaciers", got.HostTopic)
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}
