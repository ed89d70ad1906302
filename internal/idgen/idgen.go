package idgen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

const (
	TaskIDLength       = 15
	DefaultMaxAttempts = 5
	DefaultTimeout     = 10 * time.Second
)

var (
	ErrExhausted            = errors.New("could not allocate a unique task id")
	ErrNotificationNumTaken = errors.New("notification number is already used by another task")
)

// Checker answers existence questions against the backing store.
type Checker interface {
	TaskIDExists(ctx context.Context, taskID string) (bool, error)
	NotificationNumExists(ctx context.Context, num string, excludeID *uuid.UUID) (bool, error)
}

type Coordinator struct {
	checker     Checker
	maxAttempts int
	timeout     time.Duration
	random      io.Reader
}

type Option func(*Coordinator)

func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithRandom(r io.Reader) Option {
	return func(c *Coordinator) {
		c.random = r
	}
}

func NewCoordinator(checker Checker, opts ...Option) *Coordinator {
	c := &Coordinator{
		checker:     checker,
		maxAttempts: DefaultMaxAttempts,
		timeout:     DefaultTimeout,
		random:      rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewTaskID draws random 15-digit ids until one is not present in the store.
// The check is not atomic with the later insert; the unique index on
// tasks.task_id has the final word.
func (c *Coordinator) NewTaskID(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		candidate, err := Generate(c.random)
		if err != nil {
			return "", err
		}

		exists, err := c.taskIDExists(ctx, candidate)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		if !exists {
			return candidate, nil
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w after %d attempts: %w", ErrExhausted, c.maxAttempts, lastErr)
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, c.maxAttempts)
}

func (c *Coordinator) taskIDExists(ctx context.Context, candidate string) (bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.checker.TaskIDExists(attemptCtx, candidate)
}

// EnsureNotificationNumAvailable fails with ErrNotificationNumTaken when any
// task other than excludeID already carries num.
func (c *Coordinator) EnsureNotificationNumAvailable(ctx context.Context, num string, excludeID *uuid.UUID) error {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	exists, err := c.checker.NotificationNumExists(checkCtx, num, excludeID)
	if err != nil {
		return fmt.Errorf("check notification number: %w", err)
	}
	if exists {
		return ErrNotificationNumTaken
	}
	return nil
}

// Generate returns a random 15-digit numeric string without a leading zero.
// Bytes that would skew the digit distribution are discarded.
func Generate(r io.Reader) (string, error) {
	out := make([]byte, 0, TaskIDLength)
	buf := make([]byte, TaskIDLength)
	for len(out) < TaskIDLength {
		chunk := buf[:TaskIDLength-len(out)]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range chunk {
			if len(out) == 0 {
				if b >= 252 {
					continue
				}
				out = append(out, '1'+b%9)
				continue
			}
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
		}
	}
	return string(out), nil
}
