package service

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"task-service/internal/idgen"
	"task-service/internal/model"
)

var (
	adminID      = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	managerID    = uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	supervisorID = uuid.MustParse("00000000-0000-0000-0000-0000000000c1")
	techID       = uuid.MustParse("00000000-0000-0000-0000-0000000000d1")
	tech2ID      = uuid.MustParse("00000000-0000-0000-0000-0000000000d2")

	admin      = model.Principal{UserID: adminID, Role: model.RoleAdmin}
	manager    = model.Principal{UserID: managerID, Role: model.RoleManager}
	supervisor = model.Principal{UserID: supervisorID, Role: model.RoleSupervisor}
	tech       = model.Principal{UserID: techID, Role: model.RoleTechnician}
)

func teamProfiles() *fakeProfiles {
	return newFakeProfiles(
		model.Profile{ID: adminID, FirstName: "Ada", LastName: "Admin", Role: model.RoleAdmin},
		model.Profile{ID: managerID, FirstName: "Max", LastName: "Manager", Role: model.RoleManager},
		model.Profile{ID: supervisorID, FirstName: "Sue", LastName: "Visor", Role: model.RoleSupervisor},
		model.Profile{ID: techID, FirstName: "Tom", LastName: "Tech", Role: model.RoleTechnician},
		model.Profile{ID: tech2ID, FirstName: "Tia", LastName: "Tech", Role: model.RoleTechnician},
	)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *TaskStore
	tasks    *fakeTaskRepo
	profiles *fakeProfiles
	audits   *fakeAudits
	blobs    *fakeBlobs
	clock    *testClock
}

func newFixture(t *testing.T, tweak ...func(*StoreConfig)) *fixture {
	t.Helper()
	f := &fixture{
		tasks:    newFakeTaskRepo(),
		profiles: teamProfiles(),
		audits:   &fakeAudits{},
		blobs:    newFakeBlobs(),
		clock:    &testClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
	}
	cfg := DefaultStoreConfig()
	for _, fn := range tweak {
		fn(&cfg)
	}
	ids := idgen.NewCoordinator(f.tasks, idgen.WithTimeout(cfg.Timeouts.Check))
	f.store = NewTaskStore(f.tasks, f.profiles, f.audits, f.blobs, ids, cfg, zerolog.Nop())
	f.store.now = f.clock.Now
	return f
}

var seq atomic.Int64

func seedTask(status model.TaskStatus, creator uuid.UUID, opts ...func(*model.Task)) model.Task {
	n := seq.Add(1)
	task := model.Task{
		ID:              uuid.New(),
		TaskID:          fmt.Sprintf("9%014d", n),
		Title:           fmt.Sprintf("Task %d", n),
		EquipmentNumber: "EQ-100",
		Priority:        model.TaskPriorityMedium,
		Status:          status,
		CreatorID:       creator,
		PhotoBeforeURLs: pq.StringArray{},
		PhotoAfterURLs:  pq.StringArray{},
		CreatedAt:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute),
	}
	for _, opt := range opts {
		opt(&task)
	}
	return task
}

func assignedTo(id uuid.UUID) func(*model.Task) {
	return func(t *model.Task) {
		assignee := id
		by := supervisorID
		t.AssigneeID = &assignee
		t.AssignedByID = &by
	}
}

func withEvidence(t *model.Task) {
	num := fmt.Sprintf("41%08d", seq.Add(1))
	permit := fakeBlobBase + t.TaskID + "/permit/p.jpg"
	t.NotificationNum = &num
	t.PhotoBeforeURLs = pq.StringArray{fakeBlobBase + t.TaskID + "/before/b.jpg"}
	t.PhotoAfterURLs = pq.StringArray{fakeBlobBase + t.TaskID + "/after/a.jpg"}
	t.PhotoPermitURL = &permit
}

func withNotificationNum(num string) func(*model.Task) {
	return func(t *model.Task) {
		t.NotificationNum = &num
	}
}

func strPtr(s string) *string {
	return &s
}
