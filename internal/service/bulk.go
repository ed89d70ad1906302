package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"task-service/internal/model"
)

type BulkItemStatus string

const (
	BulkItemSucceeded BulkItemStatus = "succeeded"
	BulkItemSkipped   BulkItemStatus = "skipped"
	BulkItemFailed    BulkItemStatus = "failed"
)

type BulkItem struct {
	ID      uuid.UUID      `json:"id"`
	Status  BulkItemStatus `json:"status"`
	Message string         `json:"message,omitempty"`
}

// BulkResult tallies a bulk operation. Skipped items were refused by policy
// or validation, or needed no change; failed items hit a backend error.
type BulkResult struct {
	Succeeded int        `json:"succeeded"`
	Skipped   int        `json:"skipped"`
	Failed    int        `json:"failed"`
	Items     []BulkItem `json:"items"`
}

func (s *TaskStore) BulkChangeStatus(ctx context.Context, principal model.Principal, ids []uuid.UUID, target model.TaskStatus) (*BulkResult, error) {
	if !target.Valid() {
		return nil, invalid("unknown status " + string(target))
	}
	return s.bulk(ctx, ids, func(ctx context.Context, id uuid.UUID) (bool, string, error) {
		if _, err := s.ChangeTaskStatus(ctx, principal, id, target, false); err != nil {
			return false, "", err
		}
		return true, "", nil
	})
}

// BulkAssign uses the bulk reassignment rule: tasks that already have an
// assignee are only picked up by an admin, or by a privileged role once
// they are overdue.
func (s *TaskStore) BulkAssign(ctx context.Context, principal model.Principal, ids []uuid.UUID, assigneeID *uuid.UUID) (*BulkResult, error) {
	return s.bulk(ctx, ids, func(ctx context.Context, id uuid.UUID) (bool, string, error) {
		outcome, err := s.assign(ctx, principal, id, assigneeID, true)
		if err != nil {
			return false, "", err
		}
		return outcome.Changed, outcome.Notice, nil
	})
}

func (s *TaskStore) BulkDelete(ctx context.Context, principal model.Principal, ids []uuid.UUID) (*BulkResult, error) {
	return s.bulk(ctx, ids, func(ctx context.Context, id uuid.UUID) (bool, string, error) {
		outcome, err := s.DeleteTask(ctx, principal, id)
		if err != nil {
			return false, "", err
		}
		return true, outcome.Notice, nil
	})
}

func (s *TaskStore) bulk(ctx context.Context, ids []uuid.UUID, op func(ctx context.Context, id uuid.UUID) (bool, string, error)) (*BulkResult, error) {
	if len(ids) == 0 {
		return nil, invalid("no tasks selected")
	}

	items := make([]BulkItem, len(ids))
	var g errgroup.Group
	g.SetLimit(s.cfg.BulkConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			changed, notice, err := op(ctx, id)
			items[i] = bulkItem(id, changed, notice, err)
			return nil
		})
	}
	_ = g.Wait()

	result := &BulkResult{Items: items}
	for _, item := range items {
		switch item.Status {
		case BulkItemSucceeded:
			result.Succeeded++
		case BulkItemSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}
	s.log.Info().
		Int("succeeded", result.Succeeded).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("bulk operation finished")
	return result, nil
}

func bulkItem(id uuid.UUID, changed bool, notice string, err error) BulkItem {
	item := BulkItem{ID: id, Message: notice}
	switch {
	case err == nil && changed:
		item.Status = BulkItemSucceeded
	case err == nil:
		item.Status = BulkItemSkipped
	case isRefusal(err):
		item.Status = BulkItemSkipped
		item.Message = userMessage(err)
	default:
		item.Status = BulkItemFailed
		item.Message = userMessage(err)
	}
	return item
}

func isRefusal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEvidenceMissing) ||
		errors.Is(err, ErrConfirmationRequired) ||
		errors.Is(err, ErrNotFound)
}

func userMessage(err error) string {
	if msg, ok := Message(err); ok {
		return msg
	}
	return err.Error()
}
