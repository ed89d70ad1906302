package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"task-service/internal/apperror"
	"task-service/internal/feed"
	"task-service/internal/http/middleware"
	"task-service/internal/model"
	"task-service/internal/service"
)

type TaskService interface {
	List(ctx context.Context, principal model.Principal) ([]model.Task, error)
	Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Task, error)
	History(ctx context.Context, principal model.Principal, id uuid.UUID) ([]model.TaskAudit, error)
	AddTask(ctx context.Context, principal model.Principal, input service.CreateTaskInput) (*model.Task, error)
	AddTasksBulk(ctx context.Context, principal model.Principal, inputs []service.CreateTaskInput) ([]model.Task, error)
	UpdateTask(ctx context.Context, principal model.Principal, id uuid.UUID, input service.UpdateTaskInput) (*service.Outcome, error)
	ChangeTaskStatus(ctx context.Context, principal model.Principal, id uuid.UUID, target model.TaskStatus, confirmed bool) (*model.Task, error)
	AssignTask(ctx context.Context, principal model.Principal, id uuid.UUID, assigneeID *uuid.UUID) (*service.Outcome, error)
	DeleteTask(ctx context.Context, principal model.Principal, id uuid.UUID) (*service.Outcome, error)
	RestoreTask(ctx context.Context, principal model.Principal, snapshot model.Task) (*model.Task, error)
	UploadTaskPhoto(ctx context.Context, principal model.Principal, id uuid.UUID, category model.PhotoCategory, upload service.PhotoUpload) (*model.Task, error)
	DeleteTaskPhoto(ctx context.Context, principal model.Principal, url string) (*service.Outcome, error)
	SignedPhotoURL(ctx context.Context, principal model.Principal, url string) (string, error)
	BulkChangeStatus(ctx context.Context, principal model.Principal, ids []uuid.UUID, target model.TaskStatus) (*service.BulkResult, error)
	BulkAssign(ctx context.Context, principal model.Principal, ids []uuid.UUID, assigneeID *uuid.UUID) (*service.BulkResult, error)
	BulkDelete(ctx context.Context, principal model.Principal, ids []uuid.UUID) (*service.BulkResult, error)
}

type DashboardService interface {
	Summary(ctx context.Context, principal model.Principal) (*service.Dashboard, error)
}

type UserService interface {
	ListProfiles(ctx context.Context, principal model.Principal) ([]model.Profile, error)
	ChangeRole(ctx context.Context, principal model.Principal, id uuid.UUID, role model.Role) (*model.Profile, error)
	CreateUser(ctx context.Context, principal model.Principal, input service.NewUser) (uuid.UUID, error)
	ListEmails(ctx context.Context, principal model.Principal, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// Focuser is told when a client starts watching the feed.
type Focuser interface {
	Focus()
}

type Handler struct {
	tasks     TaskService
	dashboard DashboardService
	users     UserService
	hub       *feed.Hub
	focus     Focuser
	log       zerolog.Logger

	heartbeat time.Duration
}

func NewHandler(
	tasks TaskService,
	dashboard DashboardService,
	users UserService,
	hub *feed.Hub,
	focus Focuser,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		tasks:     tasks,
		dashboard: dashboard,
		users:     users,
		hub:       hub,
		focus:     focus,
		log:       log,
		heartbeat: 25 * time.Second,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := r.Group("/")
	protected.Use(authMiddleware)

	tasks := protected.Group("/tasks")
	{
		tasks.GET("", h.listTasks)
		tasks.POST("", h.createTask)
		tasks.POST("/bulk", h.createTasksBulk)
		tasks.POST("/bulk/status", h.bulkChangeStatus)
		tasks.POST("/bulk/assign", h.bulkAssign)
		tasks.POST("/bulk/delete", h.bulkDelete)
		tasks.POST("/restore", h.restoreTask)
		tasks.GET("/:id", h.getTask)
		tasks.GET("/:id/history", h.getTaskHistory)
		tasks.PATCH("/:id", h.updateTask)
		tasks.PUT("/:id/status", h.changeTaskStatus)
		tasks.PUT("/:id/assignee", h.assignTask)
		tasks.DELETE("/:id", h.deleteTask)
		tasks.POST("/:id/photos/:category", h.uploadTaskPhoto)
	}

	photos := protected.Group("/photos")
	{
		photos.DELETE("", h.deleteTaskPhoto)
		photos.GET("/signed", h.signedPhotoURL)
	}

	protected.GET("/dashboard", h.getDashboard)
	protected.GET("/events", h.streamEvents)

	profiles := protected.Group("/profiles")
	{
		profiles.GET("", h.listProfiles)
		profiles.PUT("/:id/role", h.changeRole)
	}

	users := protected.Group("/users")
	{
		users.POST("", h.createUser)
		users.POST("/emails", h.listEmails)
	}
}

func (h *Handler) principal(c *gin.Context) (model.Principal, bool) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal", "UNAUTHORIZED"))
		return model.Principal{}, false
	}
	return principal, true
}

func (h *Handler) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid "+name, apperror.CodeInvalidInput))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error(), apperror.CodeInvalidInput))
		return false
	}
	return true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.Status(499)
		return
	}
	apiErr := apperror.Normalize(err)
	if apiErr.Status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Str("code", apiErr.Code).Msg("handler error")
	} else {
		h.log.Debug().Err(err).Str("path", c.FullPath()).Str("code", apiErr.Code).Msg("request rejected")
	}
	c.JSON(apiErr.Status, errorResponse(apiErr.Message, apiErr.Code))
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message, code string) gin.H {
	return gin.H{
		"error": message,
		"code":  code,
	}
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errors.New("invalid time format")
}
