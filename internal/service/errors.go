package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"task-service/internal/idgen"
	"task-service/internal/policy"
	"task-service/internal/repository"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConflict             = errors.New("conflict")
	ErrTimeout              = errors.New("timeout")
	ErrUnavailable          = errors.New("backend unavailable")
	ErrEvidenceMissing      = errors.New("completion evidence missing")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrTaskIDExhausted      = errors.New("task id allocation exhausted")
)

// Error pairs one of the sentinels above with a message meant for the user.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Message returns the user-facing text carried by err, if any.
func Message(err error) (string, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Message, true
	}
	return "", false
}

func denied(d policy.Decision) error {
	switch d.Code {
	case policy.CodeMissingEvidence:
		return newError(ErrEvidenceMissing, d.Reason)
	case policy.CodeConfirmRequired:
		return newError(ErrConfirmationRequired, d.Reason)
	case policy.CodeInvalidTransition:
		return newError(ErrInvalidInput, d.Reason)
	default:
		return newError(ErrPermissionDenied, d.Reason)
	}
}

func invalid(message string) error {
	return newError(ErrInvalidInput, message)
}

func notificationNumTaken(num string) error {
	return newError(ErrConflict, "notification number "+num+" is already used by another task")
}

// remoteError classifies a failed backend call.
func remoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return wrapError(ErrTimeout, op+" timed out", err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return wrapError(ErrNotFound, op+": record no longer exists", err)
	case errors.Is(err, idgen.ErrNotificationNumTaken):
		return wrapError(ErrConflict, "notification number is already used by another task", err)
	case errors.Is(err, idgen.ErrExhausted):
		return wrapError(ErrTaskIDExhausted, "could not allocate a task id, try again", err)
	case errors.Is(err, repository.ErrDuplicate):
		constraint, _ := repository.DuplicateConstraint(err)
		switch constraint {
		case repository.ConstraintNotificationNum:
			return wrapError(ErrConflict, "notification number is already used by another task", err)
		case repository.ConstraintTaskID:
			return wrapError(ErrConflict, "task id collided with an existing task", err)
		default:
			return wrapError(ErrConflict, "task conflicts with an existing task", err)
		}
	}
	for _, kind := range []error{ErrInvalidInput, ErrPermissionDenied, ErrNotFound, ErrConflict} {
		if errors.Is(err, kind) {
			return wrapError(kind, err.Error(), err)
		}
	}
	return wrapError(ErrUnavailable, op+" failed", err)
}
