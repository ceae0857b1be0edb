package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

type authFunc func(token string) (int64, error)

func (f authFunc) Authenticate(token string) (int64, error) { return f(token) }

var onlyGood = authFunc(func(token string) (int64, error) {
	if token == "good" {
		return 42, nil
	}
	return 0, errors.New("bad token")
})

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantCalled bool
		wantCode   int
	}{
		{"no header", "", false, http.StatusUnauthorized},
		{"wrong scheme", "Basic good", false, http.StatusUnauthorized},
		{"empty token", "Bearer ", false, http.StatusUnauthorized},
		{"invalid token", "Bearer bad", false, http.StatusUnauthorized},
		{"valid token", "Bearer good", true, http.StatusOK},
		{"lower case scheme", "bearer good", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dummy := &dummyHandler{}
			h := BearerAuth(onlyGood)(dummy)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/api/v1/user/info", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			h.ServeHTTP(rec, req)

			if dummy.called != tt.wantCalled {
				t.Errorf("called = %v; want %v", dummy.called, tt.wantCalled)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d; want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCalled {
				if got := GetUserIDFromContext(dummy.ctx); got != 42 {
					t.Errorf("user id = %d; want 42", got)
				}
			}
		})
	}
}

func TestGetUserIDFromContext_Missing(t *testing.T) {
	if got := GetUserIDFromContext(context.Background()); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
