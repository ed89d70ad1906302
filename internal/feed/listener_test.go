package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-service/internal/model"
)

type fakeRefresher struct {
	invalidations atomic.Int32
	staleChecks   atomic.Int32
	failFirst     atomic.Int32
}

func (f *fakeRefresher) Invalidate(ctx context.Context) error {
	f.invalidations.Add(1)
	if f.failFirst.Load() > 0 {
		f.failFirst.Add(-1)
		return errors.New("fetch failed")
	}
	return nil
}

func (f *fakeRefresher) RefreshIfStale(ctx context.Context) error {
	f.staleChecks.Add(1)
	return nil
}

type fakeSource struct {
	mu     sync.Mutex
	calls  int
	events chan Event
}

// Listen replays events on the first call, then reports a dropped
// connection; later calls block until ctx is done.
func (f *fakeSource) Listen(ctx context.Context, subscribed func(), handle func(Event)) error {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()

	if !first {
		<-ctx.Done()
		return ctx.Err()
	}
	subscribed()
	for ev := range f.events {
		handle(ev)
	}
	return errors.New("connection lost")
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// flakySource fails each call in turn; a true entry subscribes before the
// connection drops. Calls past the plan block until ctx is done.
type flakySource struct {
	mu    sync.Mutex
	plan  []bool
	calls int
}

func (f *flakySource) Listen(ctx context.Context, subscribed func(), handle func(Event)) error {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	if i >= len(f.plan) {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.plan[i] {
		subscribed()
	}
	return errors.New("connection lost")
}

func (f *flakySource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func TestListener_Backoff(t *testing.T) {
	l := NewListener(&fakeRefresher{}, nil, nil, DefaultConfig(), zerolog.Nop())

	assert.Equal(t, time.Second, l.backoff(1))
	assert.Equal(t, 2*time.Second, l.backoff(2))
	assert.Equal(t, 4*time.Second, l.backoff(3))
	assert.Equal(t, 16*time.Second, l.backoff(5))
	assert.Equal(t, 30*time.Second, l.backoff(6))
	assert.Equal(t, 30*time.Second, l.backoff(20))
}

func TestListener_RefreshRetries(t *testing.T) {
	refresher := &fakeRefresher{}
	refresher.failFirst.Store(2)
	l := NewListener(refresher, nil, nil, DefaultConfig(), zerolog.Nop())

	var delays []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	l.refresh(context.Background(), "test", refresher.Invalidate)
	assert.Equal(t, int32(3), refresher.invalidations.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestListener_RefreshGivesUpAfterMaxRetries(t *testing.T) {
	refresher := &fakeRefresher{}
	refresher.failFirst.Store(100)
	l := NewListener(refresher, nil, nil, DefaultConfig(), zerolog.Nop())
	l.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	l.refresh(context.Background(), "test", refresher.Invalidate)
	assert.Equal(t, int32(4), refresher.invalidations.Load())
}

func TestListener_Run(t *testing.T) {
	refresher := &fakeRefresher{}
	source := &fakeSource{events: make(chan Event, 4)}
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe(uuid.New())

	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	l := NewListener(refresher, source, hub, cfg, zerolog.Nop())
	l.sleep = noSleep

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return refresher.invalidations.Load() >= 1 }, time.Second, 5*time.Millisecond)

	source.events <- Event{Type: EventInsert, New: &Row{ID: uuid.New(), CreatorID: uuid.New(), Status: model.TaskStatusUnassigned}}
	require.Eventually(t, func() bool { return refresher.invalidations.Load() >= 2 }, time.Second, 5*time.Millisecond)

	msg := <-sub.C()
	assert.Equal(t, MessageChanged, msg.Event)

	l.Focus()
	require.Eventually(t, func() bool { return refresher.staleChecks.Load() == 1 }, time.Second, 5*time.Millisecond)

	close(source.events)
	require.Eventually(t, func() bool { return source.callCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListener_PushBackoffResetsAfterSubscribe(t *testing.T) {
	source := &flakySource{plan: []bool{false, false, true, false}}
	l := NewListener(&fakeRefresher{}, source, nil, DefaultConfig(), zerolog.Nop())

	var mu sync.Mutex
	var delays []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.pushLoop(ctx) }()

	require.Eventually(t, func() bool { return source.callCount() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, time.Second, 2 * time.Second}, delays)
}
