package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"task-service/internal/idgen"
	"task-service/internal/model"
)

// TaskRepository is the row store behind the cache.
type TaskRepository interface {
	idgen.Checker
	List(ctx context.Context) ([]model.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error)
	Create(ctx context.Context, task *model.Task) error
	CreateBatch(ctx context.Context, tasks []*model.Task) error
	Update(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
	ExistingNotificationNums(ctx context.Context, nums []string) ([]string, error)
	FindByPhotoURL(ctx context.Context, url string) (*model.Task, error)
}

type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	List(ctx context.Context) ([]model.Profile, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error
}

type AuditRepository interface {
	Record(ctx context.Context, entry *model.TaskAudit) error
	ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]model.TaskAudit, error)
}

// BlobStore holds task photos.
type BlobStore interface {
	Upload(ctx context.Context, path, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, paths ...string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	PathFromURL(url string) (string, bool)
}

type Timeouts struct {
	Check  time.Duration
	Insert time.Duration
	Write  time.Duration
	Fetch  time.Duration
}

type StoreConfig struct {
	Timeouts        Timeouts
	StaleTime       time.Duration
	UndoWindow      time.Duration
	SignedURLTTL    time.Duration
	BulkConcurrency int
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Timeouts: Timeouts{
			Check:  10 * time.Second,
			Insert: 15 * time.Second,
			Write:  15 * time.Second,
			Fetch:  10 * time.Second,
		},
		StaleTime:       10 * time.Second,
		UndoWindow:      5 * time.Second,
		SignedURLTTL:    time.Hour,
		BulkConcurrency: 4,
	}
}

// Outcome is the result of a mutation that may legitimately do nothing.
type Outcome struct {
	Task    *model.Task `json:"task,omitempty"`
	Changed bool        `json:"changed"`
	Notice  string      `json:"notice,omitempty"`
}

type tombstone struct {
	task      model.Task
	deletedBy uuid.UUID
	at        time.Time
}

// maxStaleRefetch bounds how often one invalidation refetches when commits
// keep landing while the list is in flight.
const maxStaleRefetch = 3

// TaskStore owns the shared task cache and performs every task mutation as
// snapshot, optimistic apply, remote write, then commit or rollback.
type TaskStore struct {
	tasks    TaskRepository
	profiles ProfileRepository
	audits   AuditRepository
	blobs    BlobStore
	ids      *idgen.Coordinator
	cfg      StoreConfig
	log      zerolog.Logger

	cache  *taskCache
	locks  *keyedMutex
	flight singleflight.Group
	now    func() time.Time

	tombMu     sync.Mutex
	tombstones map[uuid.UUID]tombstone
}

func NewTaskStore(
	tasks TaskRepository,
	profiles ProfileRepository,
	audits AuditRepository,
	blobs BlobStore,
	ids *idgen.Coordinator,
	cfg StoreConfig,
	log zerolog.Logger,
) *TaskStore {
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 1
	}
	return &TaskStore{
		tasks:      tasks,
		profiles:   profiles,
		audits:     audits,
		blobs:      blobs,
		ids:        ids,
		cfg:        cfg,
		log:        log.With().Str("component", "task_store").Logger(),
		cache:      newTaskCache(),
		locks:      newKeyedMutex(),
		now:        time.Now,
		tombstones: make(map[uuid.UUID]tombstone),
	}
}

// List returns the cached collection, loading it on first use.
func (s *TaskStore) List(ctx context.Context, principal model.Principal) ([]model.Task, error) {
	if loaded, _ := s.cache.state(); !loaded {
		if err := s.Invalidate(ctx); err != nil {
			return nil, err
		}
	}
	return s.cache.list(), nil
}

func (s *TaskStore) Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Task, error) {
	task, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskStore) History(ctx context.Context, principal model.Principal, id uuid.UUID) ([]model.TaskAudit, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Fetch)
	defer cancel()
	entries, err := s.audits.ListByTaskID(fetchCtx, id)
	if err != nil {
		return nil, remoteError("load task history", err)
	}
	return entries, nil
}

// Invalidate refetches the full collection. Concurrent callers share one
// fetch, and the fetch outlives any single caller's cancellation.
func (s *TaskStore) Invalidate(ctx context.Context) error {
	ch := s.flight.DoChan("tasks", func() (interface{}, error) {
		return nil, s.refetch(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshIfStale refetches only when the last fetch is older than the
// freshness window.
func (s *TaskStore) RefreshIfStale(ctx context.Context) error {
	if loaded, at := s.cache.state(); loaded && s.now().Sub(at) < s.cfg.StaleTime {
		return nil
	}
	return s.Invalidate(ctx)
}

func (s *TaskStore) refetch(ctx context.Context) error {
	for attempt := 0; attempt < maxStaleRefetch; attempt++ {
		gen := s.cache.generation()
		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Fetch)
		rows, err := s.tasks.List(fetchCtx)
		cancel()
		if err != nil {
			return remoteError("load tasks", err)
		}
		if s.cache.replace(rows, gen, s.now()) {
			return nil
		}
	}
	s.log.Debug().Msg("task list kept changing during refetch")
	return nil
}

func (s *TaskStore) invalidateAfterWrite() {
	go func() {
		if err := s.Invalidate(context.Background()); err != nil {
			s.log.Warn().Err(err).Msg("refetch after write failed")
		}
	}()
}

// current returns the freshest known row for id. Rows still waiting for
// their insert to be confirmed cannot be mutated.
func (s *TaskStore) current(ctx context.Context, id uuid.UUID) (model.Task, error) {
	if task, ok := s.cache.get(id); ok {
		if task.Optimistic {
			return model.Task{}, newError(ErrConflict, "task is still being saved")
		}
		return task, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Fetch)
	defer cancel()
	task, err := s.tasks.GetByID(fetchCtx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Task{}, newError(ErrNotFound, "task not found")
		}
		return model.Task{}, remoteError("load task", err)
	}
	return *task, nil
}

// execute runs cmd through the optimistic sequence. remote receives a
// context bounded by timeout and returns the persisted rows in the order of
// cmd.upserts.
func (s *TaskStore) execute(ctx context.Context, cmd *command, timeout time.Duration, op string, remote func(ctx context.Context) ([]model.Task, error)) ([]model.Task, error) {
	if err := s.cache.begin(cmd); err != nil {
		return nil, err
	}

	remoteCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := remote(remoteCtx)
	if err != nil {
		s.cache.rollback(cmd)
		s.log.Warn().Err(err).Str("op", op).Msg("remote write failed, optimistic update rolled back")
		return nil, remoteError(op, err)
	}

	s.cache.commit(cmd, rows)
	s.invalidateAfterWrite()
	return rows, nil
}

func (s *TaskStore) loadProfile(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Fetch)
	defer cancel()
	profile, err := s.profiles.GetByID(fetchCtx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid("assignee does not exist")
		}
		return nil, remoteError("load profile", err)
	}
	return profile, nil
}

func (s *TaskStore) checkNotificationNum(ctx context.Context, num string, excludeID *uuid.UUID) error {
	err := s.ids.EnsureNotificationNumAvailable(ctx, num, excludeID)
	if errors.Is(err, idgen.ErrNotificationNumTaken) {
		return notificationNumTaken(num)
	}
	return remoteError("check notification number", err)
}
