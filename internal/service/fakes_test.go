package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"task-service/internal/model"
	"task-service/internal/repository"
)

type fakeTaskRepo struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]model.Task
	clock time.Time

	createErr error
	updateErr error
	deleteErr error
	listErr   error
	findErr   error

	// updateStarted is signalled when Update is entered; Update then waits
	// on updateGate when it is non-nil.
	updateStarted chan struct{}
	updateGate    chan struct{}
	blockCreate   bool

	creates int
	updates int
	lists   int
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{
		rows:  make(map[uuid.UUID]model.Task),
		clock: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeTaskRepo) seed(tasks ...model.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tasks {
		f.rows[t.ID] = t.Clone()
	}
}

func (f *fakeTaskRepo) row(id uuid.UUID) (model.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	return t.Clone(), ok
}

func (f *fakeTaskRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeTaskRepo) List(ctx context.Context) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Task, 0, len(f.rows))
	for _, t := range f.rows {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := t.Clone()
	return &c, nil
}

func (f *fakeTaskRepo) Create(ctx context.Context, task *model.Task) error {
	if f.blockCreate {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if err := f.checkUnique(*task); err != nil {
		return err
	}
	f.insert(task)
	return nil
}

func (f *fakeTaskRepo) CreateBatch(ctx context.Context, tasks []*model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, t := range tasks {
		if err := f.checkUnique(*t); err != nil {
			return err
		}
	}
	for _, t := range tasks {
		f.insert(t)
	}
	return nil
}

func (f *fakeTaskRepo) insert(task *model.Task) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	f.clock = f.clock.Add(time.Second)
	if task.CreatedAt.IsZero() {
		task.CreatedAt = f.clock
	}
	task.UpdatedAt = f.clock
	f.creates++
	f.rows[task.ID] = task.Clone()
}

func (f *fakeTaskRepo) checkUnique(task model.Task) error {
	for _, existing := range f.rows {
		if existing.ID == task.ID {
			continue
		}
		if existing.TaskID == task.TaskID {
			return duplicate(repository.ConstraintTaskID)
		}
		if task.NotificationNum != nil && existing.NotificationNum != nil && *existing.NotificationNum == *task.NotificationNum {
			return duplicate(repository.ConstraintNotificationNum)
		}
	}
	return nil
}

func duplicate(constraint string) error {
	return &repository.DuplicateError{
		Constraint: constraint,
		Err:        &pgconn.PgError{Code: "23505", ConstraintName: constraint},
	}
}

func (f *fakeTaskRepo) Update(ctx context.Context, task *model.Task) error {
	if f.updateStarted != nil {
		f.updateStarted <- struct{}{}
	}
	if f.updateGate != nil {
		select {
		case <-f.updateGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	existing, ok := f.rows[task.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if err := f.checkUnique(*task); err != nil {
		return err
	}
	f.clock = f.clock.Add(time.Second)
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = f.clock
	f.updates++
	f.rows[task.ID] = task.Clone()
	return nil
}

func (f *fakeTaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.rows[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeTaskRepo) TaskIDExists(ctx context.Context, taskID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.TaskID == taskID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTaskRepo) NotificationNumExists(ctx context.Context, num string, excludeID *uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if excludeID != nil && t.ID == *excludeID {
			continue
		}
		if t.NotificationNum != nil && *t.NotificationNum == num {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTaskRepo) ExistingNotificationNums(ctx context.Context, nums []string) ([]string, error) {
	var out []string
	for _, num := range nums {
		exists, _ := f.NotificationNumExists(ctx, num, nil)
		if exists {
			out = append(out, num)
		}
	}
	return out, nil
}

func (f *fakeTaskRepo) FindByPhotoURL(ctx context.Context, url string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, t := range f.rows {
		for _, u := range t.PhotoURLs() {
			if u == url {
				c := t.Clone()
				return &c, nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeTaskRepo) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]model.Profile
}

func newFakeProfiles(profiles ...model.Profile) *fakeProfiles {
	f := &fakeProfiles{profiles: make(map[uuid.UUID]model.Profile)}
	for _, p := range profiles {
		f.profiles[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (f *fakeProfiles) List(ctx context.Context) ([]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Profile, 0, len(f.profiles))
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProfiles) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Role = role
	f.profiles[id] = p
	return nil
}

type fakeAudits struct {
	mu      sync.Mutex
	entries []model.TaskAudit
}

func (f *fakeAudits) Record(ctx context.Context, entry *model.TaskAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAudits) ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]model.TaskAudit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TaskAudit
	for _, e := range f.entries {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAudits) actions() []model.AuditAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.AuditAction, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

const fakeBlobBase = "https://storage.test/object/public/task-photos/"

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleteErr error
	deleted   []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (f *fakeBlobs) Upload(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = data
	return fakeBlobBase + path, nil
}

func (f *fakeBlobs) Delete(ctx context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, p := range paths {
		delete(f.objects, p)
		f.deleted = append(f.deleted, p)
	}
	return nil
}

func (f *fakeBlobs) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return fakeBlobBase + path + "?token=signed", nil
}

func (f *fakeBlobs) PathFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, fakeBlobBase) {
		return "", false
	}
	return strings.TrimPrefix(url, fakeBlobBase), true
}

var errBackendDown = errors.New("connection reset by peer")
