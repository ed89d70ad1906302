package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"task-service/internal/apperror"
	"task-service/internal/model"
	"task-service/internal/service"
)

const maxPhotoSize = 10 << 20

type createTaskRequest struct {
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Location        *string           `json:"location"`
	EquipmentNumber string            `json:"equipment_number"`
	NotificationNum *string           `json:"notification_num"`
	TypeOfWork      *model.TypeOfWork `json:"type_of_work"`
	Priority        string            `json:"priority"`
	AssigneeID      *uuid.UUID        `json:"assignee_id"`
	DueDate         *string           `json:"due_date"`
}

func (r createTaskRequest) input() (service.CreateTaskInput, error) {
	in := service.CreateTaskInput{
		Title:           r.Title,
		Description:     r.Description,
		Location:        r.Location,
		EquipmentNumber: r.EquipmentNumber,
		NotificationNum: r.NotificationNum,
		TypeOfWork:      r.TypeOfWork,
		Priority:        model.TaskPriority(strings.ToLower(strings.TrimSpace(r.Priority))),
		AssigneeID:      r.AssigneeID,
	}
	if r.DueDate != nil && strings.TrimSpace(*r.DueDate) != "" {
		due, err := parseTime(*r.DueDate)
		if err != nil {
			return service.CreateTaskInput{}, fmt.Errorf("due_date: %w", err)
		}
		in.DueDate = &due
	}
	return in, nil
}

type updateTaskRequest struct {
	Title           *string                            `json:"title"`
	Description     *string                            `json:"description"`
	Location        service.Nullable[string]           `json:"location"`
	EquipmentNumber *string                            `json:"equipment_number"`
	NotificationNum service.Nullable[string]           `json:"notification_num"`
	TypeOfWork      service.Nullable[model.TypeOfWork] `json:"type_of_work"`
	Priority        *model.TaskPriority                `json:"priority"`
	Status          *model.TaskStatus                  `json:"status"`
	AssigneeID      service.Nullable[uuid.UUID]        `json:"assignee_id"`
	DueDate         service.Nullable[string]           `json:"due_date"`
}

func (r updateTaskRequest) input() (service.UpdateTaskInput, error) {
	in := service.UpdateTaskInput{
		Title:           r.Title,
		Description:     r.Description,
		Location:        r.Location,
		EquipmentNumber: r.EquipmentNumber,
		NotificationNum: r.NotificationNum,
		TypeOfWork:      r.TypeOfWork,
		Priority:        r.Priority,
		Status:          r.Status,
		AssigneeID:      r.AssigneeID,
	}
	if r.DueDate.Set {
		if r.DueDate.Value == nil || strings.TrimSpace(*r.DueDate.Value) == "" {
			in.DueDate = service.Null[time.Time]()
		} else {
			due, err := parseTime(*r.DueDate.Value)
			if err != nil {
				return service.UpdateTaskInput{}, fmt.Errorf("due_date: %w", err)
			}
			in.DueDate = service.Some(due)
		}
	}
	return in, nil
}

func (h *Handler) listTasks(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	tasks, err := h.tasks.List(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	filtered, err := filterTasks(tasks, principal, c.Query("status"), c.Query("assignee_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error(), apperror.CodeInvalidInput))
		return
	}

	c.JSON(http.StatusOK, successResponse(filtered))
}

// filterTasks applies the optional list filters. assignee accepts a user id,
// "me" or "none".
func filterTasks(tasks []model.Task, principal model.Principal, status, assignee string) ([]model.Task, error) {
	status = strings.TrimSpace(status)
	assignee = strings.TrimSpace(assignee)
	if status == "" && assignee == "" {
		return tasks, nil
	}

	var statuses map[model.TaskStatus]bool
	if status != "" {
		statuses = make(map[model.TaskStatus]bool)
		for _, raw := range strings.Split(status, ",") {
			s := model.TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
			if !s.Valid() {
				return nil, fmt.Errorf("invalid status %q", raw)
			}
			statuses[s] = true
		}
	}

	var (
		wantAssignee *uuid.UUID
		unassigned   bool
	)
	switch strings.ToLower(assignee) {
	case "":
	case "me":
		wantAssignee = &principal.UserID
	case "none":
		unassigned = true
	default:
		id, err := uuid.Parse(assignee)
		if err != nil {
			return nil, fmt.Errorf("invalid assignee_id")
		}
		wantAssignee = &id
	}

	out := make([]model.Task, 0, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		if statuses != nil && !statuses[t.Status] {
			continue
		}
		if wantAssignee != nil && !t.IsAssignee(*wantAssignee) {
			continue
		}
		if unassigned && t.HasAssignee() {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (h *Handler) getTask(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	task, err := h.tasks.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(task))
}

func (h *Handler) getTaskHistory(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	history, err := h.tasks.History(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(history))
}

func (h *Handler) createTask(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req createTaskRequest
	if !h.bindJSON(c, &req) {
		return
	}
	input, err := req.input()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error(), apperror.CodeInvalidInput))
		return
	}

	task, err := h.tasks.AddTask(c.Request.Context(), principal, input)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(task))
}

func (h *Handler) createTasksBulk(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req struct {
		Tasks []createTaskRequest `json:"tasks" binding:"required"`
	}
	if !h.bindJSON(c, &req) {
		return
	}
	inputs := make([]service.CreateTaskInput, len(req.Tasks))
	for i, r := range req.Tasks {
		in, err := r.input()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(fmt.Sprintf("row %d: %v", i+1, err), apperror.CodeInvalidInput))
			return
		}
		inputs[i] = in
	}

	tasks, err := h.tasks.AddTasksBulk(c.Request.Context(), principal, inputs)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(tasks))
}

func (h *Handler) updateTask(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req updateTaskRequest
	if !h.bindJSON(c, &req) {
		return
	}
	input, err := req.input()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error(), apperror.CodeInvalidInput))
		return
	}

	outcome, err := h.tasks.UpdateTask(c.Request.Context(), principal, id, input)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(outcome))
}

func (h *Handler) changeTaskStatus(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status    model.TaskStatus `json:"status" binding:"required"`
		Confirmed bool             `json:"confirmed"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	task, err := h.tasks.ChangeTaskStatus(c.Request.Context(), principal, id, req.Status, req.Confirmed)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(task))
}

func (h *Handler) assignTask(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		AssigneeID *uuid.UUID `json:"assignee_id"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	outcome, err := h.tasks.AssignTask(c.Request.Context(), principal, id, req.AssigneeID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(outcome))
}

func (h *Handler) deleteTask(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	outcome, err := h.tasks.DeleteTask(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(outcome))
}

func (h *Handler) restoreTask(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var snapshot model.Task
	if !h.bindJSON(c, &snapshot) {
		return
	}
	if snapshot.ID == uuid.Nil {
		c.JSON(http.StatusBadRequest, errorResponse("snapshot id is required", apperror.CodeInvalidInput))
		return
	}

	task, err := h.tasks.RestoreTask(c.Request.Context(), principal, snapshot)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(task))
}

func (h *Handler) uploadTaskPhoto(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	category := model.PhotoCategory(strings.ToLower(c.Param("category")))
	if !category.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse("category must be before, after or permit", apperror.CodeInvalidInput))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("file is required", apperror.CodeInvalidInput))
		return
	}
	if fileHeader.Size > maxPhotoSize {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse("photo must be at most 10 MB", apperror.CodeInvalidInput))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("could not read file", apperror.CodeInvalidInput))
		return
	}
	defer file.Close()

	task, err := h.tasks.UploadTaskPhoto(c.Request.Context(), principal, id, category, service.PhotoUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(task))
}

func (h *Handler) deleteTaskPhoto(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		c.JSON(http.StatusBadRequest, errorResponse("url is required", apperror.CodeInvalidInput))
		return
	}

	outcome, err := h.tasks.DeleteTaskPhoto(c.Request.Context(), principal, url)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(outcome))
}

func (h *Handler) signedPhotoURL(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		c.JSON(http.StatusBadRequest, errorResponse("url is required", apperror.CodeInvalidInput))
		return
	}

	signed, err := h.tasks.SignedPhotoURL(c.Request.Context(), principal, url)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"url": signed}))
}

type bulkRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1"`
}

func (h *Handler) bulkChangeStatus(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req struct {
		bulkRequest
		Status model.TaskStatus `json:"status" binding:"required"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.tasks.BulkChangeStatus(c.Request.Context(), principal, req.IDs, req.Status)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func (h *Handler) bulkAssign(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req struct {
		bulkRequest
		AssigneeID *uuid.UUID `json:"assignee_id"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.tasks.BulkAssign(c.Request.Context(), principal, req.IDs, req.AssigneeID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func (h *Handler) bulkDelete(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req bulkRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.tasks.BulkDelete(c.Request.Context(), principal, req.IDs)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func (h *Handler) getDashboard(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	summary, err := h.dashboard.Summary(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(summary))
}
