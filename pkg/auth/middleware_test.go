package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func principalEcho(t *testing.T) (http.Handler, *string) {
	t.Helper()
	var seen string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatal("handler reached without a principal in context")
		}
		seen = p
		w.WriteHeader(http.StatusOK)
	})
	return h, &seen
}

func TestMiddleware_HeaderPrincipal(t *testing.T) {
	next, seen := principalEcho(t)
	handler := Middleware(nil, true)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderPrincipal, "alice")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if *seen != "alice" {
		t.Fatalf("expected principal alice, got %s", *seen)
	}
}

func TestMiddleware_MissingCredentials(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached without credentials")
	})
	handler := Middleware(nil, true)(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_HeaderDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("header principal must be ignored when disabled")
	})
	handler := Middleware(nil, false)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderPrincipal, "alice")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// Without a configured validator a Bearer token must not grant access.
func TestMiddleware_BearerWithoutValidator(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached without a validator")
	})
	handler := Middleware(nil, false)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPrincipalFromContext_Empty(t *testing.T) {
	if _, ok := PrincipalFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()); ok {
		t.Fatal("expected no principal in a bare context")
	}
}
