package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	ConstraintTaskID          = "tasks_task_id_key"
	ConstraintNotificationNum = "tasks_notification_num_key"

	pgUniqueViolation = "23505"
)

var ErrDuplicate = errors.New("duplicate key")

// DuplicateError reports which unique constraint rejected a write.
type DuplicateError struct {
	Constraint string
	Err        error
}

func (e *DuplicateError) Error() string {
	return "duplicate key violates " + e.Constraint
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

func (e *DuplicateError) Unwrap() error {
	return e.Err
}

// translate maps driver errors onto repository errors. Anything it does not
// recognise is returned unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &DuplicateError{Constraint: pgErr.ConstraintName, Err: err}
	}
	return err
}

// DuplicateConstraint returns the violated constraint name, if err is a
// unique violation.
func DuplicateConstraint(err error) (string, bool) {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.Constraint, true
	}
	return "", false
}
