package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"task-service/internal/model"
	"task-service/internal/service"
)

func (h *Handler) listProfiles(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	profiles, err := h.users.ListProfiles(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(profiles))
}

func (h *Handler) changeRole(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Role model.Role `json:"role" binding:"required"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	profile, err := h.users.ChangeRole(c.Request.Context(), principal, id, req.Role)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(profile))
}

func (h *Handler) createUser(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req service.NewUser
	if !h.bindJSON(c, &req) {
		return
	}

	id, err := h.users.CreateUser(c.Request.Context(), principal, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(gin.H{"user_id": id}))
}

func (h *Handler) listEmails(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req struct {
		UserIDs []uuid.UUID `json:"user_ids"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	emails, err := h.users.ListEmails(c.Request.Context(), principal, req.UserIDs)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(emails))
}
