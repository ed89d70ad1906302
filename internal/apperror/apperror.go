// Package apperror turns any error that reaches the API boundary into the
// single user-facing shape the clients render.
package apperror

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"task-service/internal/service"
)

const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeEvidenceMissing      = "EVIDENCE_MISSING"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeTaskIDExhausted      = "TASK_ID_EXHAUSTED"
	CodeTimeout              = "TIMEOUT"
	CodeNetwork              = "NETWORK_ERROR"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeInternal             = "INTERNAL_ERROR"
)

// Postgres error codes the backend surfaces.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInsufficientPriv    = "42501"
	pgQueryCanceled       = "57014"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Normalize maps err onto an APIError. Messages carried by service errors
// are passed through; everything else gets a generic message for its class.
func Normalize(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	msg, hasMsg := service.Message(err)
	pick := func(fallback string) string {
		if hasMsg {
			return msg
		}
		return fallback
	}

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return &APIError{Code: CodeInvalidInput, Message: pick("The request is invalid."), Status: http.StatusBadRequest}
	case errors.Is(err, service.ErrPermissionDenied):
		return &APIError{Code: CodeForbidden, Message: pick("You do not have permission to do that."), Status: http.StatusForbidden}
	case errors.Is(err, service.ErrNotFound):
		return &APIError{Code: CodeNotFound, Message: pick("The task no longer exists."), Status: http.StatusNotFound}
	case errors.Is(err, service.ErrEvidenceMissing):
		return &APIError{Code: CodeEvidenceMissing, Message: pick("Add the notification number and all photos before completing."), Status: http.StatusUnprocessableEntity}
	case errors.Is(err, service.ErrConfirmationRequired):
		return &APIError{Code: CodeConfirmationRequired, Message: pick("This change must be confirmed."), Status: http.StatusPreconditionRequired}
	case errors.Is(err, service.ErrTaskIDExhausted):
		return &APIError{Code: CodeTaskIDExhausted, Message: pick("Could not allocate a task id. Please try again."), Status: http.StatusServiceUnavailable}
	case errors.Is(err, service.ErrConflict):
		return &APIError{Code: CodeConflict, Message: pick("The task conflicts with an existing task."), Status: http.StatusConflict}
	case errors.Is(err, service.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &APIError{Code: CodeTimeout, Message: "The request timed out. Check your connection and try again.", Status: http.StatusGatewayTimeout}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &APIError{Code: CodeConflict, Message: "The task conflicts with an existing task.", Status: http.StatusConflict}
		case pgForeignKeyViolation:
			return &APIError{Code: CodeInvalidInput, Message: "A referenced user or task does not exist.", Status: http.StatusBadRequest}
		case pgInsufficientPriv:
			return &APIError{Code: CodeForbidden, Message: "You do not have permission to do that.", Status: http.StatusForbidden}
		case pgQueryCanceled:
			return &APIError{Code: CodeTimeout, Message: "The request timed out. Check your connection and try again.", Status: http.StatusGatewayTimeout}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &APIError{Code: CodeTimeout, Message: "The request timed out. Check your connection and try again.", Status: http.StatusGatewayTimeout}
		}
		return &APIError{Code: CodeNetwork, Message: "Could not reach the server. Check your connection and try again.", Status: http.StatusBadGateway}
	}

	if errors.Is(err, service.ErrUnavailable) {
		return &APIError{Code: CodeServiceUnavailable, Message: "The service is temporarily unavailable. Please try again.", Status: http.StatusServiceUnavailable}
	}

	return &APIError{Code: CodeInternal, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError}
}
