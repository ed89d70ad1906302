package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-service/internal/model"
)

func loadedCache(t *testing.T, rows ...model.Task) *taskCache {
	t.Helper()
	c := newTaskCache()
	require.True(t, c.replace(rows, c.generation(), time.Now()))
	return c
}

func ids(rows []model.Task) []uuid.UUID {
	out := make([]uuid.UUID, len(rows))
	for i := range rows {
		out[i] = rows[i].ID
	}
	return out
}

func TestTaskCache_RollbackRestoresRemovedRowInPlace(t *testing.T) {
	a := seedTask(model.TaskStatusUnassigned, supervisorID)
	b := seedTask(model.TaskStatusUnassigned, supervisorID)
	c := seedTask(model.TaskStatusUnassigned, supervisorID)
	cache := loadedCache(t, a, b, c)

	cmd := &command{removes: []uuid.UUID{b.ID}}
	require.NoError(t, cache.begin(cmd))
	assert.Equal(t, []uuid.UUID{a.ID, c.ID}, ids(cache.list()))

	cache.rollback(cmd)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID}, ids(cache.list()))
}

func TestTaskCache_RollbackDropsInsertedRows(t *testing.T) {
	a := seedTask(model.TaskStatusUnassigned, supervisorID)
	cache := loadedCache(t, a)

	fresh := seedTask(model.TaskStatusUnassigned, supervisorID)
	cmd := &command{upserts: []model.Task{fresh}}
	require.NoError(t, cache.begin(cmd))

	rows := cache.list()
	require.Len(t, rows, 2)
	assert.Equal(t, fresh.ID, rows[0].ID)
	assert.True(t, rows[0].Optimistic)

	cache.rollback(cmd)
	assert.Equal(t, []uuid.UUID{a.ID}, ids(cache.list()))
}

func TestTaskCache_CommitPromotesTemporaryRow(t *testing.T) {
	cache := loadedCache(t)
	temp := seedTask(model.TaskStatusUnassigned, supervisorID)
	cmd := &command{upserts: []model.Task{temp}}
	require.NoError(t, cache.begin(cmd))

	server := temp.Clone()
	server.ID = uuid.New()
	cache.commit(cmd, []model.Task{server})

	rows := cache.list()
	require.Len(t, rows, 1)
	assert.Equal(t, server.ID, rows[0].ID)
	assert.False(t, rows[0].Optimistic)
}

func TestTaskCache_CommitDropsTemporaryRowAlreadyFetched(t *testing.T) {
	cache := loadedCache(t)
	temp := seedTask(model.TaskStatusUnassigned, supervisorID)
	cmd := &command{upserts: []model.Task{temp}}
	require.NoError(t, cache.begin(cmd))

	server := temp.Clone()
	server.ID = uuid.New()
	require.True(t, cache.replace([]model.Task{server}, cache.generation(), time.Now()))
	require.Len(t, cache.list(), 2)

	cache.commit(cmd, []model.Task{server})
	assert.Equal(t, []uuid.UUID{server.ID}, ids(cache.list()))
}

func TestTaskCache_ReplaceRejectedAfterCommit(t *testing.T) {
	a := seedTask(model.TaskStatusAssigned, supervisorID, assignedTo(techID))
	cache := loadedCache(t, a)
	gen := cache.generation()

	next := a.Clone()
	next.Status = model.TaskStatusInProgress
	cmd := &command{upserts: []model.Task{next}}
	require.NoError(t, cache.begin(cmd))
	cache.commit(cmd, []model.Task{next})

	assert.False(t, cache.replace([]model.Task{a}, gen, time.Now()))
	row, ok := cache.get(a.ID)
	require.True(t, ok)
	assert.Equal(t, model.TaskStatusInProgress, row.Status)
}

func TestTaskCache_NotificationNumberReservation(t *testing.T) {
	held := seedTask(model.TaskStatusUnassigned, supervisorID, withNotificationNum("4100000001"))
	cache := loadedCache(t, held)

	first := &command{upserts: []model.Task{seedTask(model.TaskStatusUnassigned, supervisorID)}, reserve: []string{"4100000002"}}
	require.NoError(t, cache.begin(first))

	second := &command{upserts: []model.Task{seedTask(model.TaskStatusUnassigned, supervisorID)}, reserve: []string{"4100000002"}}
	err := cache.begin(second)
	assert.True(t, errors.Is(err, ErrConflict))

	taken := &command{upserts: []model.Task{seedTask(model.TaskStatusUnassigned, supervisorID)}, reserve: []string{"4100000001"}}
	assert.ErrorIs(t, cache.begin(taken), ErrConflict)

	// The row that holds the number may keep it.
	own := held.Clone()
	own.Title = "renamed"
	assert.NoError(t, cache.begin(&command{upserts: []model.Task{own}, reserve: []string{"4100000001"}}))

	cache.rollback(first)
	assert.NoError(t, cache.begin(second))
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	locks := newKeyedMutex()
	unlock := locks.Lock("a", "b")

	acquired := make(chan struct{})
	released := make(chan struct{})
	go func() {
		release := locks.Lock("b")
		close(acquired)
		release()
		close(released)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first is held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
	<-released

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
