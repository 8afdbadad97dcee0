package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/metrics"
	"venuepos/backend/internal/service"
	"venuepos/backend/internal/store/memory"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
	if got := res.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Idempotency-Key") {
		t.Fatalf("expected Idempotency-Key to be an allowed header, got %q", got)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales/settle", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Name: "admin", PIN: "000000"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"name":"%s","pin":"1"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"name":"admin","pin":"246810","role":"admin"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}

func TestBearerTokenRequired(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	for _, header := range []string{"", "Basic abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("authorization %q: expected 401, got %d", header, res.Code)
		}
	}
}

func TestRouteRolesEnforced(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	waiter := login(t, handler, "Ana", "112358")

	for _, path := range []string{"/api/v1/register/stats", "/api/v1/audit-logs", "/api/v1/staff", "/api/v1/expenses"} {
		rec := doJSON(t, handler, http.MethodGet, path, waiter, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for waiter, got %d", path, rec.Code)
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", waiter, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected waiter to read products, got %d", rec.Code)
	}
}

type brokenCatalogRepo struct {
	*memory.Store
}

func (brokenCatalogRepo) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return nil, errors.New("pq: connection reset by peer at 10.0.0.4")
}

func TestInternalErrorsStayGeneric(t *testing.T) {
	repo := brokenCatalogRepo{Store: memory.NewSeeded()}
	svc := service.New(repo, service.Options{VenueID: "test-venue"})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	handler := New(svc, auth, "*", metrics.New()).Handler()

	token := login(t, handler, "Caja", "135790")
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", token, nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.4") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "internal server error") {
		t.Fatalf("expected generic message, got %s", rec.Body.String())
	}
}

func TestStatusForError(t *testing.T) {
	cases := map[error]int{
		domain.ErrInvalidAmount:           http.StatusBadRequest,
		domain.ErrIncompleteFunding:       http.StatusUnprocessableEntity,
		domain.ErrCourtesyConflict:        http.StatusUnprocessableEntity,
		domain.ErrAccessDenied:            http.StatusForbidden,
		domain.ErrRoleNotPermitted:        http.StatusForbidden,
		domain.ErrAlreadyOpen:             http.StatusConflict,
		domain.ErrNotOpen:                 http.StatusConflict,
		domain.ErrPendingOrderUnavailable: http.StatusConflict,
		domain.ErrPersistenceFailure:      http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusForError(fmt.Errorf("wrapped: %w", err)); got != want {
			t.Fatalf("%v: expected %d, got %d", err, want, got)
		}
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}
