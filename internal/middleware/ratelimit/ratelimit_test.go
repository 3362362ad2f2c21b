package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_Window(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{Requests: 2, Window: time.Minute, Idle: 5 * time.Minute})
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("a") {
		t.Error("third request should be limited")
	}
	if !l.Allow("b") {
		t.Error("other clients are counted separately")
	}
	if got := l.retryAfter("a"); got != 60 {
		t.Errorf("retryAfter = %d, want 60", got)
	}

	now = now.Add(time.Minute)
	if !l.Allow("a") {
		t.Error("window should have reset")
	}
	if l.Rejected() != 1 {
		t.Errorf("Rejected() = %d, want 1", l.Rejected())
	}

	now = now.Add(6 * time.Minute)
	if n := l.CleanExpired(); n != 2 {
		t.Errorf("CleanExpired() = %d, want 2", n)
	}
	if l.ActiveClients() != 0 {
		t.Errorf("ActiveClients() = %d", l.ActiveClients())
	}
}

func TestLimiter_Middleware(t *testing.T) {
	l := NewLimiter(Config{Requests: 1, Window: time.Hour})
	h := l.Middleware(
		func(*http.Request) string { return "client" },
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
	)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodPost, http.StatusNoContent},
		{http.MethodGet, http.StatusNoContent},
		{http.MethodPost, http.StatusTooManyRequests},
		{http.MethodGet, http.StatusNoContent},
	}
	for i, tt := range tests {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(tt.method, "/transfers", nil))
		if rr.Code != tt.want {
			t.Errorf("request %d (%s): status = %d, want %d", i, tt.method, rr.Code, tt.want)
		}
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
			t.Errorf("request %d: missing Retry-After", i)
		}
	}
}
