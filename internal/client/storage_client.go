package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"task-service/internal/config"
)

// StorageClient talks to the object storage REST endpoint for one bucket.
type StorageClient struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client
}

func NewStorageClient(cfg *config.Config) *StorageClient {
	return &StorageClient{
		baseURL:    strings.TrimRight(cfg.Backend.StorageURL, "/"),
		bucket:     cfg.Backend.StorageBucket,
		serviceKey: cfg.Backend.ServiceKey,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

func (c *StorageClient) objectURL(path string) string {
	return c.baseURL + "/object/" + c.bucket + "/" + escapePath(path)
}

func (c *StorageClient) publicPrefix() string {
	return c.baseURL + "/object/public/" + c.bucket + "/"
}

func (c *StorageClient) authorize(req *http.Request) {
	if c.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
		req.Header.Set("apikey", c.serviceKey)
	}
}

// Upload stores body at path and returns its public url. The body is read
// once and replayed on retry.
func (c *StorageClient) Upload(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("storage URL is not configured")
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read upload body: %w", err)
	}
	if contentType == "" {
		contentType = http.DetectContentType(payload)
	}

	resp, err := doWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL(path), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "false")
		return req, nil
	})
	if err != nil {
		return "", err
	}
	if err := decodeJSON(resp, nil); err != nil {
		return "", err
	}
	return c.publicPrefix() + escapePath(path), nil
}

type deleteRequest struct {
	Prefixes []string `json:"prefixes"`
}

// Delete removes objects by path. Missing objects are not an error.
func (c *StorageClient) Delete(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	payload, err := json.Marshal(deleteRequest{Prefixes: paths})
	if err != nil {
		return fmt.Errorf("encode delete request: %w", err)
	}

	resp, err := doWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/object/"+c.bucket, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil
	}
	return decodeJSON(resp, nil)
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignedURL returns a time-limited url for a private object.
func (c *StorageClient) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	payload, err := json.Marshal(signRequest{ExpiresIn: int(ttl / time.Second)})
	if err != nil {
		return "", fmt.Errorf("encode sign request: %w", err)
	}

	resp, err := doWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/object/sign/"+c.bucket+"/"+escapePath(path), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var out signResponse
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("storage returned an empty signed url")
	}
	if strings.HasPrefix(out.SignedURL, "http://") || strings.HasPrefix(out.SignedURL, "https://") {
		return out.SignedURL, nil
	}
	return c.baseURL + "/" + strings.TrimLeft(out.SignedURL, "/"), nil
}

// PathFromURL resolves a public or signed object url of this bucket back to
// its object path.
func (c *StorageClient) PathFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "", false
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", false
	}
	if u.Host != "" && u.Host != base.Host {
		return "", false
	}

	for _, kind := range []string{"public", "sign", "authenticated"} {
		prefix := strings.TrimRight(base.Path, "/") + "/object/" + kind + "/" + c.bucket + "/"
		if strings.HasPrefix(u.Path, prefix) {
			p := strings.TrimPrefix(u.Path, prefix)
			if p == "" {
				return "", false
			}
			return p, true
		}
	}
	return "", false
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
