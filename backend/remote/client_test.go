package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cookbooksync/backend"
)

type recordedRequest struct {
	Path      string
	Auth      string
	RequestID string
	Body      map[string]json.RawMessage
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		rec := recordedRequest{
			Path:      r.URL.Path,
			Auth:      r.Header.Get("Authorization"),
			RequestID: r.Header.Get("X-Request-ID"),
		}
		_ = json.Unmarshal(data, &rec.Body)
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestPull(t *testing.T) {
	srv, reqs := newServer(t, http.StatusOK, `{"items":[{"id":"cb-1","name":"Desserts"},{"id":"cb-2","name":"Soups"}]}`)
	c := NewClient(srv.URL+"/", time.Second, func(uid string) string { return "tok-" + uid })

	items, err := c.Pull(context.Background(), "cookbooks", "u1")
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if len(items) != 2 || !strings.Contains(string(items[0]), "Desserts") {
		t.Errorf("Pull() = %s", items)
	}

	req := reqs()[0]
	if req.Path != "/sync/cookbooks/pull" {
		t.Errorf("path = %s", req.Path)
	}
	if req.Auth != "Bearer tok-u1" {
		t.Errorf("Authorization = %q", req.Auth)
	}
	if req.RequestID == "" {
		t.Error("X-Request-ID should be set")
	}
	if string(req.Body["uid"]) != `"u1"` {
		t.Errorf("body uid = %s", req.Body["uid"])
	}
}

func TestPullNullItems(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"items":null}`)
	items, err := NewClient(srv.URL, 0, nil).Pull(context.Background(), "recipes", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("Pull() = %v, want empty slice", items)
	}
}

func TestPush(t *testing.T) {
	srv, reqs := newServer(t, http.StatusAccepted, `{"ok":true}`)
	c := NewClient(srv.URL, time.Second, nil)

	items := []map[string]any{{"id": "r-1", "title": "Soup"}}
	if err := c.Push(context.Background(), "recipes", "u1", items); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	req := reqs()[0]
	if req.Path != "/sync/recipes/push" {
		t.Errorf("path = %s", req.Path)
	}
	if req.Auth != "" {
		t.Errorf("no token should send no Authorization header, got %q", req.Auth)
	}
	if !strings.Contains(string(req.Body["items"]), `"r-1"`) {
		t.Errorf("body items = %s", req.Body["items"])
	}
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		status       int
		unauthorized bool
		server       bool
	}{
		{http.StatusUnauthorized, true, false},
		{http.StatusForbidden, true, false},
		{http.StatusInternalServerError, false, true},
		{http.StatusBadRequest, false, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, _ := newServer(t, tt.status, `{"error":"nope"}`)
			err := NewClient(srv.URL, time.Second, nil).Push(context.Background(), "cookbooks", "u1", []any{})

			var be *backend.BackendError
			if !errors.As(err, &be) {
				t.Fatalf("Push() error = %v, want BackendError", err)
			}
			if be.StatusCode != tt.status || be.Entity != "cookbooks" || be.UID != "u1" {
				t.Errorf("BackendError = %+v", be)
			}
			if be.IsUnauthorized() != tt.unauthorized || be.IsServerError() != tt.server {
				t.Errorf("classification wrong for %d", tt.status)
			}
			if !strings.Contains(be.Body, "nope") {
				t.Errorf("Body = %q", be.Body)
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second, nil).Pull(context.Background(), "preferences", "u1")
	var be *backend.BackendError
	if !errors.As(err, &be) || !be.IsNetwork() {
		t.Fatalf("Pull() error = %v, want network BackendError", err)
	}
}

func TestTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL, time.Minute, nil).Pull(ctx, "cookbooks", "u1")
	var be *backend.BackendError
	if !errors.As(err, &be) || !be.IsNetwork() {
		t.Fatalf("Pull() error = %v, want network BackendError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error should wrap context.DeadlineExceeded: %v", err)
	}
}

func TestMalformedResponse(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"items":`)
	_, err := NewClient(srv.URL, time.Second, nil).Pull(context.Background(), "cookbooks", "u1")
	if err == nil {
		t.Fatal("Pull() should fail on malformed JSON")
	}
}
