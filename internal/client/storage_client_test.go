package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-service/internal/config"
	"task-service/internal/service"
)

func newStorage(t *testing.T, handler http.HandlerFunc) (*StorageClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.Config{Backend: config.BackendConfig{
		StorageURL:    srv.URL + "/storage/v1",
		StorageBucket: "task-photos",
		ServiceKey:    "service-key",
	}}
	return NewStorageClient(cfg), srv
}

func TestStorageClient_Upload(t *testing.T) {
	var gotPath, gotType, gotAuth, gotBody string
	c, srv := newStorage(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"Key":"task-photos/123/before/a.jpg"}`))
	})

	url, err := c.Upload(context.Background(), "123/before/a.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "/storage/v1/object/task-photos/123/before/a.jpg", gotPath)
	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "jpeg-bytes", gotBody)
	assert.Equal(t, srv.URL+"/storage/v1/object/public/task-photos/123/before/a.jpg", url)
}

func TestStorageClient_UploadRetriesServerErrors(t *testing.T) {
	var calls int32
	c, _ := newStorage(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "payload", string(body))
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.Upload(context.Background(), "1/after/b.png", "image/png", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestStorageClient_UploadConflict(t *testing.T) {
	c, _ := newStorage(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"Duplicate","message":"The resource already exists"}`))
	})

	_, err := c.Upload(context.Background(), "1/permit/c.jpg", "image/jpeg", strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrConflict)
	assert.Equal(t, "The resource already exists", err.Error())
}

func TestStorageClient_Delete(t *testing.T) {
	var got deleteRequest
	c, _ := newStorage(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/storage/v1/object/task-photos", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	})

	err := c.Delete(context.Background(), "1/before/a.jpg", "1/after/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"1/before/a.jpg", "1/after/b.jpg"}, got.Prefixes)
}

func TestStorageClient_DeleteNothing(t *testing.T) {
	c, _ := newStorage(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	assert.NoError(t, c.Delete(context.Background()))
}

func TestStorageClient_SignedURL(t *testing.T) {
	c, srv := newStorage(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/object/sign/task-photos/1/permit/c.jpg", r.URL.Path)
		var req signRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3600, req.ExpiresIn)
		_, _ = w.Write([]byte(`{"signedURL":"/object/sign/task-photos/1/permit/c.jpg?token=abc"}`))
	})

	url, err := c.SignedURL(context.Background(), "1/permit/c.jpg", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/storage/v1/object/sign/task-photos/1/permit/c.jpg?token=abc", url)
}

func TestStorageClient_PathFromURL(t *testing.T) {
	c, srv := newStorage(t, func(w http.ResponseWriter, r *http.Request) {})

	cases := []struct {
		url  string
		path string
		ok   bool
	}{
		{srv.URL + "/storage/v1/object/public/task-photos/1/before/a.jpg", "1/before/a.jpg", true},
		{srv.URL + "/storage/v1/object/sign/task-photos/1/permit/c.jpg?token=abc", "1/permit/c.jpg", true},
		{srv.URL + "/storage/v1/object/public/other-bucket/1/before/a.jpg", "", false},
		{"https://elsewhere.example.com/storage/v1/object/public/task-photos/1/a.jpg", "", false},
		{srv.URL + "/storage/v1/object/public/task-photos/", "", false},
		{"::not a url", "", false},
	}
	for _, tc := range cases {
		path, ok := c.PathFromURL(tc.url)
		assert.Equal(t, tc.ok, ok, tc.url)
		assert.Equal(t, tc.path, path, tc.url)
	}
}

func TestStorageClient_RespectsContext(t *testing.T) {
	c, _ := newStorage(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Upload(ctx, "1/before/a.jpg", "image/jpeg", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
