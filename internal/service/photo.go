package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"task-service/internal/model"
	"task-service/internal/policy"
)

type PhotoUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// UploadTaskPhoto stores the file under {task_id}/{category}/ and attaches
// its url. Before and after photos accumulate; a new permit photo replaces
// the old one, whose blob is then removed.
func (s *TaskStore) UploadTaskPhoto(ctx context.Context, principal model.Principal, id uuid.UUID, category model.PhotoCategory, upload PhotoUpload) (*model.Task, error) {
	if !category.Valid() {
		return nil, invalid("unknown photo category " + string(category))
	}

	unlock := s.locks.Lock(id.String())
	defer unlock()

	current, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := policy.CanUploadPhoto(principal, &current); !d.Allowed {
		return nil, denied(d)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Write)
	url, err := s.blobs.Upload(uploadCtx, photoPath(current.TaskID, category, upload.Filename), upload.ContentType, upload.Body)
	cancel()
	if err != nil {
		return nil, remoteError("upload photo", err)
	}

	next := current.Clone()
	var replaced string
	switch category {
	case model.PhotoCategoryBefore:
		next.PhotoBeforeURLs = append(next.PhotoBeforeURLs, url)
	case model.PhotoCategoryAfter:
		next.PhotoAfterURLs = append(next.PhotoAfterURLs, url)
	case model.PhotoCategoryPermit:
		if current.PhotoPermitURL != nil {
			replaced = *current.PhotoPermitURL
		}
		next.PhotoPermitURL = &url
	}

	saved, err := s.writeTask(ctx, next, nil, "attach photo")
	if err != nil {
		if cleanupErr := s.removeBlobs(ctx, []string{url}); cleanupErr != nil {
			s.log.Warn().Err(cleanupErr).Str("url", url).Msg("failed to remove orphaned photo")
		}
		return nil, err
	}
	if replaced != "" {
		if err := s.removeBlobs(ctx, []string{replaced}); err != nil {
			s.log.Warn().Err(err).Str("url", replaced).Msg("failed to remove replaced permit photo")
		}
	}

	s.record(ctx, model.AuditActionUpdated, principal.UserID, &current, &saved)
	return &saved, nil
}

// DeleteTaskPhoto detaches url from the task holding it and removes the
// blob. A blob that cannot be removed after the task was updated is
// reported as a notice.
func (s *TaskStore) DeleteTaskPhoto(ctx context.Context, principal model.Principal, url string) (*Outcome, error) {
	if _, ok := s.blobs.PathFromURL(url); !ok {
		return nil, invalid("not a task photo url")
	}

	owner, found, err := s.photoOwner(ctx, url)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{}
	if found {
		saved, err := s.detachPhoto(ctx, principal, owner.ID, url)
		if err != nil {
			return nil, err
		}
		outcome.Task = saved
		outcome.Changed = saved != nil
	} else if !principal.IsPrivileged() {
		return nil, newError(ErrPermissionDenied, "only a supervisor, manager or admin can remove unattached photos")
	}

	if err := s.removeBlobs(ctx, []string{url}); err != nil {
		s.log.Warn().Err(err).Str("url", url).Msg("failed to remove photo")
		if !outcome.Changed {
			return nil, remoteError("delete photo", err)
		}
		outcome.Notice = "photo detached but the file could not be removed"
	}
	return outcome, nil
}

// photoOwner finds the task holding url, falling back to the store when
// the cache has not seen it.
func (s *TaskStore) photoOwner(ctx context.Context, url string) (model.Task, bool, error) {
	if owner, ok := s.cache.findByPhotoURL(url); ok {
		return owner, true, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Fetch)
	defer cancel()
	owner, err := s.tasks.FindByPhotoURL(fetchCtx, url)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Task{}, false, nil
		}
		return model.Task{}, false, remoteError("find photo owner", err)
	}
	return *owner, true, nil
}

func (s *TaskStore) detachPhoto(ctx context.Context, principal model.Principal, id uuid.UUID, url string) (*model.Task, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	current, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := policy.CanUploadPhoto(principal, &current); !d.Allowed {
		return nil, denied(d)
	}

	next := current.Clone()
	next.PhotoBeforeURLs = without(next.PhotoBeforeURLs, url)
	next.PhotoAfterURLs = without(next.PhotoAfterURLs, url)
	if next.PhotoPermitURL != nil && *next.PhotoPermitURL == url {
		next.PhotoPermitURL = nil
	}
	if len(diffTask(current, next)) == 0 {
		return nil, nil
	}

	saved, err := s.writeTask(ctx, next, nil, "detach photo")
	if err != nil {
		return nil, err
	}
	s.record(ctx, model.AuditActionUpdated, principal.UserID, &current, &saved)
	return &saved, nil
}

// SignedPhotoURL returns a time-limited url for a photo in a private bucket.
func (s *TaskStore) SignedPhotoURL(ctx context.Context, principal model.Principal, url string) (string, error) {
	p, ok := s.blobs.PathFromURL(url)
	if !ok {
		return "", invalid("not a task photo url")
	}
	signCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Fetch)
	defer cancel()
	signed, err := s.blobs.SignedURL(signCtx, p, s.cfg.SignedURLTTL)
	if err != nil {
		return "", remoteError("sign photo url", err)
	}
	return signed, nil
}

func (s *TaskStore) removeBlobs(ctx context.Context, urls []string) error {
	paths := make([]string, 0, len(urls))
	for _, u := range urls {
		if p, ok := s.blobs.PathFromURL(u); ok {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeouts.Write)
	defer cancel()
	return s.blobs.Delete(deleteCtx, paths...)
}

func photoPath(taskID string, category model.PhotoCategory, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s/%s/%s%s", taskID, category, uuid.NewString(), ext)
}

func without(urls pq.StringArray, url string) pq.StringArray {
	out := make(pq.StringArray, 0, len(urls))
	for _, u := range urls {
		if u != url {
			out = append(out, u)
		}
	}
	return out
}
