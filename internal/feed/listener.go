package feed

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Refresher is the cache the listener keeps fresh.
type Refresher interface {
	Invalidate(ctx context.Context) error
	RefreshIfStale(ctx context.Context) error
}

// Source delivers change events until ctx is done or the subscription
// breaks.
type Source interface {
	// Listen calls subscribed once the subscription is live, then handle
	// for every event.
	Listen(ctx context.Context, subscribed func(), handle func(Event)) error
}

type Config struct {
	PollInterval   time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  30 * time.Second,
	}
}

// Listener keeps the task cache eventually consistent. It refetches on a
// fixed interval, on every pushed change event and, when the data is stale,
// on Focus. Pushed events are also fanned out to the hub.
type Listener struct {
	refresher Refresher
	source    Source
	hub       *Hub
	cfg       Config
	log       zerolog.Logger

	changed chan struct{}
	focused chan struct{}
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewListener(refresher Refresher, source Source, hub *Hub, cfg Config, log zerolog.Logger) *Listener {
	return &Listener{
		refresher: refresher,
		source:    source,
		hub:       hub,
		cfg:       cfg,
		log:       log.With().Str("component", "feed_listener").Logger(),
		changed:   make(chan struct{}, 1),
		focused:   make(chan struct{}, 1),
		sleep:     sleepCtx,
	}
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.pollLoop(ctx)
	})
	if l.source != nil {
		g.Go(func() error {
			return l.pushLoop(ctx)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Focus asks for a refetch if the cache is older than its freshness window.
func (l *Listener) Focus() {
	select {
	case l.focused <- struct{}{}:
	default:
	}
}

// Notify records that the backing store changed. Bursts collapse into a
// single refetch.
func (l *Listener) Notify() {
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

func (l *Listener) pollLoop(ctx context.Context) error {
	l.refresh(ctx, "initial", l.refresher.Invalidate)

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.refresh(ctx, "interval", l.refresher.Invalidate)
		case <-l.changed:
			l.refresh(ctx, "push", l.refresher.Invalidate)
		case <-l.focused:
			l.refresh(ctx, "focus", l.refresher.RefreshIfStale)
		}
	}
}

// refresh retries fn with exponential backoff. A refresh that still fails
// is logged and left to the next trigger.
func (l *Listener) refresh(ctx context.Context, trigger string, fn func(context.Context) error) {
	var err error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if sleepErr := l.sleep(ctx, l.backoff(attempt)); sleepErr != nil {
				return
			}
		}
		if err = fn(ctx); err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		l.log.Debug().Err(err).Str("trigger", trigger).Int("attempt", attempt+1).Msg("task refresh failed")
	}
	l.log.Warn().Err(err).Str("trigger", trigger).Msg("task refresh failed after retries")
}

// backoff returns base * 2^(attempt-1), capped at the max delay.
func (l *Listener) backoff(attempt int) time.Duration {
	delay := l.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= l.cfg.RetryMaxDelay {
			return l.cfg.RetryMaxDelay
		}
	}
	if delay > l.cfg.RetryMaxDelay {
		return l.cfg.RetryMaxDelay
	}
	return delay
}

// pushLoop keeps a subscription open, resubscribing with backoff when it
// drops. Events missed while disconnected are covered by a refetch after
// every resubscribe.
func (l *Listener) pushLoop(ctx context.Context) error {
	failures := 0
	for {
		err := l.source.Listen(ctx, func() { failures = 0 }, l.handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		delay := l.backoff(failures)
		l.log.Warn().Err(err).Dur("retry_in", delay).Msg("change feed subscription lost")
		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
		l.Notify()
	}
}

func (l *Listener) handle(ev Event) {
	l.log.Debug().
		Str("type", string(ev.Type)).
		Str("task", ev.TaskID().String()).
		Msg("change event received")
	if l.hub != nil {
		l.hub.Publish(ev)
	}
	l.Notify()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
