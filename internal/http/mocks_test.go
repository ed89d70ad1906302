package http

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"task-service/internal/model"
	"task-service/internal/service"
)

type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) List(ctx context.Context, p model.Principal) ([]model.Task, error) {
	args := m.Called(ctx, p)
	tasks, _ := args.Get(0).([]model.Task)
	return tasks, args.Error(1)
}

func (m *MockTaskService) Get(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Task, error) {
	args := m.Called(ctx, p, id)
	task, _ := args.Get(0).(*model.Task)
	return task, args.Error(1)
}

func (m *MockTaskService) History(ctx context.Context, p model.Principal, id uuid.UUID) ([]model.TaskAudit, error) {
	args := m.Called(ctx, p, id)
	history, _ := args.Get(0).([]model.TaskAudit)
	return history, args.Error(1)
}

func (m *MockTaskService) AddTask(ctx context.Context, p model.Principal, input service.CreateTaskInput) (*model.Task, error) {
	args := m.Called(ctx, p, input)
	task, _ := args.Get(0).(*model.Task)
	return task, args.Error(1)
}

func (m *MockTaskService) AddTasksBulk(ctx context.Context, p model.Principal, inputs []service.CreateTaskInput) ([]model.Task, error) {
	args := m.Called(ctx, p, inputs)
	tasks, _ := args.Get(0).([]model.Task)
	return tasks, args.Error(1)
}

func (m *MockTaskService) UpdateTask(ctx context.Context, p model.Principal, id uuid.UUID, input service.UpdateTaskInput) (*service.Outcome, error) {
	args := m.Called(ctx, p, id, input)
	outcome, _ := args.Get(0).(*service.Outcome)
	return outcome, args.Error(1)
}

func (m *MockTaskService) ChangeTaskStatus(ctx context.Context, p model.Principal, id uuid.UUID, target model.TaskStatus, confirmed bool) (*model.Task, error) {
	args := m.Called(ctx, p, id, target, confirmed)
	task, _ := args.Get(0).(*model.Task)
	return task, args.Error(1)
}

func (m *MockTaskService) AssignTask(ctx context.Context, p model.Principal, id uuid.UUID, assigneeID *uuid.UUID) (*service.Outcome, error) {
	args := m.Called(ctx, p, id, assigneeID)
	outcome, _ := args.Get(0).(*service.Outcome)
	return outcome, args.Error(1)
}

func (m *MockTaskService) DeleteTask(ctx context.Context, p model.Principal, id uuid.UUID) (*service.Outcome, error) {
	args := m.Called(ctx, p, id)
	outcome, _ := args.Get(0).(*service.Outcome)
	return outcome, args.Error(1)
}

func (m *MockTaskService) RestoreTask(ctx context.Context, p model.Principal, snapshot model.Task) (*model.Task, error) {
	args := m.Called(ctx, p, snapshot)
	task, _ := args.Get(0).(*model.Task)
	return task, args.Error(1)
}

func (m *MockTaskService) UploadTaskPhoto(ctx context.Context, p model.Principal, id uuid.UUID, category model.PhotoCategory, upload service.PhotoUpload) (*model.Task, error) {
	args := m.Called(ctx, p, id, category, upload)
	task, _ := args.Get(0).(*model.Task)
	return task, args.Error(1)
}

func (m *MockTaskService) DeleteTaskPhoto(ctx context.Context, p model.Principal, url string) (*service.Outcome, error) {
	args := m.Called(ctx, p, url)
	outcome, _ := args.Get(0).(*service.Outcome)
	return outcome, args.Error(1)
}

func (m *MockTaskService) SignedPhotoURL(ctx context.Context, p model.Principal, url string) (string, error) {
	args := m.Called(ctx, p, url)
	return args.String(0), args.Error(1)
}

func (m *MockTaskService) BulkChangeStatus(ctx context.Context, p model.Principal, ids []uuid.UUID, target model.TaskStatus) (*service.BulkResult, error) {
	args := m.Called(ctx, p, ids, target)
	result, _ := args.Get(0).(*service.BulkResult)
	return result, args.Error(1)
}

func (m *MockTaskService) BulkAssign(ctx context.Context, p model.Principal, ids []uuid.UUID, assigneeID *uuid.UUID) (*service.BulkResult, error) {
	args := m.Called(ctx, p, ids, assigneeID)
	result, _ := args.Get(0).(*service.BulkResult)
	return result, args.Error(1)
}

func (m *MockTaskService) BulkDelete(ctx context.Context, p model.Principal, ids []uuid.UUID) (*service.BulkResult, error) {
	args := m.Called(ctx, p, ids)
	result, _ := args.Get(0).(*service.BulkResult)
	return result, args.Error(1)
}

type MockDashboardService struct {
	mock.Mock
}

func (m *MockDashboardService) Summary(ctx context.Context, p model.Principal) (*service.Dashboard, error) {
	args := m.Called(ctx, p)
	d, _ := args.Get(0).(*service.Dashboard)
	return d, args.Error(1)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) ListProfiles(ctx context.Context, p model.Principal) ([]model.Profile, error) {
	args := m.Called(ctx, p)
	profiles, _ := args.Get(0).([]model.Profile)
	return profiles, args.Error(1)
}

func (m *MockUserService) ChangeRole(ctx context.Context, p model.Principal, id uuid.UUID, role model.Role) (*model.Profile, error) {
	args := m.Called(ctx, p, id, role)
	profile, _ := args.Get(0).(*model.Profile)
	return profile, args.Error(1)
}

func (m *MockUserService) CreateUser(ctx context.Context, p model.Principal, input service.NewUser) (uuid.UUID, error) {
	args := m.Called(ctx, p, input)
	id, _ := args.Get(0).(uuid.UUID)
	return id, args.Error(1)
}

func (m *MockUserService) ListEmails(ctx context.Context, p model.Principal, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	args := m.Called(ctx, p, ids)
	emails, _ := args.Get(0).(map[uuid.UUID]string)
	return emails, args.Error(1)
}

type countingFocuser struct {
	calls chan struct{}
}

func (f *countingFocuser) Focus() {
	select {
	case f.calls <- struct{}{}:
	default:
	}
}
