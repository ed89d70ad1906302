package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"task-service/internal/service"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxRetries         = 3
	retryBaseDelay     = 500 * time.Millisecond
	maxErrorBody       = 4 << 10
)

// ResponseError is a non-2xx reply from a backend endpoint. It unwraps to
// the service error kind matching the status code.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

func (e *ResponseError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest, e.StatusCode == http.StatusUnprocessableEntity:
		return service.ErrInvalidInput
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return service.ErrPermissionDenied
	case e.StatusCode == http.StatusNotFound:
		return service.ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return service.ErrConflict
	default:
		return service.ErrUnavailable
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// errorEnvelope covers the error shapes the storage and functions endpoints
// send back.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func readResponseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env errorEnvelope
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &env); err == nil {
		switch {
		case env.Message != "":
			msg = env.Message
		case env.Error != "":
			msg = env.Error
		}
	}
	return &ResponseError{StatusCode: resp.StatusCode, Message: msg}
}

// doWithRetry retries transport failures and 5xx replies. newRequest is
// called per attempt so request bodies can be replayed.
func doWithRetry(ctx context.Context, httpClient *http.Client, newRequest func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * retryBaseDelay
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := newRequest()
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if retryable(resp.StatusCode) && attempt < maxRetries-1 {
			lastErr = readResponseError(resp)
			resp.Body.Close()
			continue
		}
		return resp, nil
	}

	var respErr *ResponseError
	if errors.As(lastErr, &respErr) {
		return nil, respErr
	}
	return nil, fmt.Errorf("failed to execute request after %d attempts: %w", maxRetries, lastErr)
}

func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readResponseError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
