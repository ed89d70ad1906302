package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"task-service/internal/config"
	"task-service/internal/service"
)

const (
	createUserFunction = "create-user-with-role"
	listEmailsFunction = "list-user-emails"
)

// FunctionsClient calls the privileged backend functions that manage
// identity accounts.
type FunctionsClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewFunctionsClient(cfg *config.Config) *FunctionsClient {
	return &FunctionsClient{
		baseURL:    strings.TrimRight(cfg.Backend.FunctionsURL, "/"),
		serviceKey: cfg.Backend.ServiceKey,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

type createUserResponse struct {
	Data struct {
		UserID uuid.UUID `json:"user_id"`
	} `json:"data"`
}

// CreateUser is not retried: the function is not idempotent.
func (c *FunctionsClient) CreateUser(ctx context.Context, input service.NewUser) (uuid.UUID, error) {
	if c.baseURL == "" {
		return uuid.Nil, fmt.Errorf("functions URL is not configured")
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode create user request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+createUserFunction, bytes.NewReader(payload))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to execute request: %w", err)
	}

	var out createUserResponse
	if err := decodeJSON(resp, &out); err != nil {
		return uuid.Nil, err
	}
	if out.Data.UserID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("create user returned no user id")
	}
	return out.Data.UserID, nil
}

type listEmailsResponse struct {
	Data struct {
		Emails map[string]string `json:"emails"`
	} `json:"data"`
}

// ListEmails is a read and is retried on transport failures and 5xx.
func (c *FunctionsClient) ListEmails(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("functions URL is not configured")
	}
	u, err := url.Parse(c.baseURL + "/" + listEmailsFunction)
	if err != nil {
		return nil, fmt.Errorf("invalid functions URL: %w", err)
	}
	q := u.Query()
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	q.Set("ids", strings.Join(raw, ","))
	u.RawQuery = q.Encode()

	resp, err := doWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var out listEmailsResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}

	emails := make(map[uuid.UUID]string, len(out.Data.Emails))
	for key, email := range out.Data.Emails {
		id, err := uuid.Parse(key)
		if err != nil {
			continue
		}
		emails[id] = email
	}
	return emails, nil
}

func (c *FunctionsClient) authorize(req *http.Request) {
	if c.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	}
}
