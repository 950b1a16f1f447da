package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ballotkey.org/internal/credstore"
	"ballotkey.org/internal/ids"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) (*Client, *credstore.Memory) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	store := credstore.NewMemory()
	c, err := New(srv.URL+"/api/", store, append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, store
}

func TestCallSetsHeaders(t *testing.T) {
	var got http.Header
	var gotPath string
	var gotBody map[string]any
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}, WithUserAgent("ballot/test"))

	if err := store.Set(context.Background(), credstore.KeyAuthToken, "tok-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ctx := ids.WithRequestID(context.Background(), "req-9")
	resp, err := c.Call(ctx, http.MethodPost, PathLogin, map[string]string{"email": "a@b.com"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if gotPath != "/api/auth/login" {
		t.Fatalf("path = %q, want /api/auth/login", gotPath)
	}
	checks := map[string]string{
		"Content-Type":  "application/json",
		"Accept":        "application/json",
		"Authorization": "Bearer tok-1",
		"X-Request-Id":  "req-9",
		"User-Agent":    "ballot/test",
	}
	for k, want := range checks {
		if v := got.Get(k); v != want {
			t.Fatalf("header %s = %q, want %q", k, v, want)
		}
	}
	if gotBody["email"] != "a@b.com" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestCallWithoutTokenOmitsAuthorization(t *testing.T) {
	var auth atomic.Value
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing generated request id")
		}
		w.WriteHeader(http.StatusOK)
	})
	if _, err := c.Call(context.Background(), http.MethodGet, PathUser, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v := auth.Load().(string); v != "" {
		t.Fatalf("Authorization = %q, want empty", v)
	}
}

func TestUnauthorizedDeletesStoredToken(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthenticated."}`))
	})
	ctx := context.Background()
	_ = store.Set(ctx, credstore.KeyAuthToken, "stale")
	_ = store.Set(ctx, credstore.KeyBiometricToken, "bio")

	resp, err := c.Call(ctx, http.MethodGet, DefaultVoterStatusPath, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, err := store.Get(ctx, credstore.KeyAuthToken); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("session token still stored: err=%v", err)
	}
	if v, err := store.Get(ctx, credstore.KeyBiometricToken); err != nil || v != "bio" {
		t.Fatalf("biometric token touched: %q, %v", v, err)
	}
}

func TestCallNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(url, credstore.NewMemory(), WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Call(context.Background(), http.MethodGet, PathUser, nil)
	if !IsNetwork(err) {
		t.Fatalf("Call() err = %v, want NetworkError", err)
	}
	var ne *NetworkError
	if !errors.As(err, &ne) || ne.Path != PathUser || ne.Method != http.MethodGet {
		t.Fatalf("NetworkError = %+v", ne)
	}
}

func TestRateLimitWaitHonoursContext(t *testing.T) {
	var hits int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}, WithRateLimit(0.001, 1))

	if _, err := c.Call(context.Background(), http.MethodGet, PathCandidates, nil); err != nil {
		t.Fatalf("first Call: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Call(ctx, http.MethodGet, PathCandidates, nil); !IsNetwork(err) {
		t.Fatalf("throttled Call() err = %v, want NetworkError", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("server hits = %d, want 1", n)
	}
}

func TestNewValidates(t *testing.T) {
	cases := []string{"", "localhost:8000", "ftp://host/api", "http://"}
	for _, raw := range cases {
		if _, err := New(raw, credstore.NewMemory()); !errors.Is(err, ErrInvalidBaseURL) {
			t.Fatalf("New(%q) err = %v, want ErrInvalidBaseURL", raw, err)
		}
	}
	if _, err := New("http://localhost:8000/api", nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New("http://localhost:8000/api", credstore.NewMemory(), WithRateLimit(0, 1)); err == nil {
		t.Fatal("expected error for zero rate")
	}
}
