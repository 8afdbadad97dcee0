package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/metrics"
	"venuepos/backend/internal/service"
	"venuepos/backend/internal/store/memory"
)

// newTestAPI wires the real service and auth manager over the seeded
// in-memory store so handler tests run the full request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	m := metrics.New()
	svc := service.New(repo, service.Options{VenueID: "test-venue", Metrics: m})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", m)
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, name string, pin string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Name: name, PIN: pin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp domain.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "test-venue", body["venue"])
}

func TestHandleLoginWrongPIN(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Name: "Caja", PIN: "000000"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterShiftEndToEnd(t *testing.T) {
	handler := newTestAPI(t).Handler()
	cashier := login(t, handler, "Caja", "135790")
	waiter := login(t, handler, "Ana", "112358")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/register/open", cashier, domain.OpenSessionRequest{OpeningAmountCents: 10000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/pending-orders", waiter, map[string]any{
		"code":  "M1",
		"zone":  "Terraza",
		"items": []map[string]any{{"product_id": "prd-cerveza", "unit_price_cents": 2500, "unit_cost_cents": 1000, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[struct {
		Order domain.PendingOrder `json:"order"`
	}](t, rec).Order

	settle := domain.SettleRequest{
		PendingOrderIDs: []string{order.ID},
		Payments:        []domain.Payment{{Method: domain.MethodCash, AmountCents: 6000}},
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/settle", waiter, settle)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/settle", cashier, settle)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[domain.SettleResponse](t, rec)
	assert.Equal(t, int64(5000), first.Sale.TotalCents)
	assert.Equal(t, int64(1000), first.Sale.ChangeCents)
	assert.Equal(t, "Terraza", first.Sale.Zone)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/settle", cashier, settle)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[domain.SettleResponse](t, rec)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Sale.ID, second.Sale.ID)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/register/stats", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[struct {
		Stats domain.SessionStats `json:"stats"`
	}](t, rec).Stats
	assert.Equal(t, int64(5000), stats.CashSalesCents)
	require.Len(t, stats.ZoneStats, 1)
	assert.Equal(t, "Terraza", stats.ZoneStats[0].Zone)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/expenses", cashier, domain.ExpenseCreateRequest{Description: "Hielo", AmountCents: 500})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/register/close", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[domain.SessionReport](t, rec)
	require.NotNil(t, report.Session.FinalCashCalculated)
	assert.Equal(t, int64(14500), *report.Session.FinalCashCalculated)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/register/sessions/"+report.Session.ID, cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	frozen := decode[domain.SessionReport](t, rec)
	assert.Equal(t, domain.SessionStatusClosed, frozen.Session.Status)
	assert.Equal(t, int64(500), frozen.Stats.TotalExpensesCents)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/register/active", cashier, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettleErrorStatuses(t *testing.T) {
	handler := newTestAPI(t).Handler()
	cashier := login(t, handler, "Caja", "135790")
	items := []map[string]any{{"product_id": "prd-agua", "unit_price_cents": 1200, "quantity": 1}}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales/settle", cashier, map[string]any{
		"items":    items,
		"payments": []domain.Payment{{Method: domain.MethodCash, AmountCents: 1200}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/register/open", cashier, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/settle", cashier, map[string]any{
		"items":    items,
		"payments": []domain.Payment{{Method: domain.MethodCash, AmountCents: 1000}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/settle", cashier, map[string]any{
		"items":    items,
		"payments": []domain.Payment{{Method: domain.MethodCash, AmountCents: -5}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/settle", cashier, map[string]any{
		"pending_order_ids": []string{"po-missing"},
		"payments":          []domain.Payment{{Method: domain.MethodCash, AmountCents: 1000}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/register/open", cashier, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCommissionTiersAdminOnly(t *testing.T) {
	handler := newTestAPI(t).Handler()
	admin := login(t, handler, "admin", "246810")
	cashier := login(t, handler, "Caja", "135790")
	doc := domain.CommissionTierDocument{Tiers: []domain.CommissionTier{{MaxUtilityCents: 100000, Rate: 0.03}}}

	rec := doJSON(t, handler, http.MethodPut, "/api/v1/commissions/tiers", cashier, doc)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/commissions/tiers", admin, domain.CommissionTierDocument{Tiers: []domain.CommissionTier{{MaxUtilityCents: 100000, Rate: 1.5}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/commissions/tiers", admin, doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/commissions/tiers", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.CommissionTierDocument](t, rec)
	assert.Equal(t, doc.Tiers, got.Tiers)
}

func TestInventoryAdjustAndAuditLog(t *testing.T) {
	handler := newTestAPI(t).Handler()
	admin := login(t, handler, "admin", "246810")
	cashier := login(t, handler, "Caja", "135790")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/inventory/adjust", cashier, domain.StockAdjustRequest{ProductID: "prd-agua", DeltaQty: 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/inventory/adjust", admin, domain.StockAdjustRequest{ProductID: "prd-nope", DeltaQty: 10})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/inventory/adjust", admin, domain.StockAdjustRequest{ProductID: "prd-agua", DeltaQty: 10, Reason: "restock"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	product := decode[struct {
		Product domain.Product `json:"product"`
	}](t, rec).Product
	assert.Equal(t, 58, product.Stock)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/audit-logs", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stock_adjust")
}

func TestStaffManagement(t *testing.T) {
	handler := newTestAPI(t).Handler()
	admin := login(t, handler, "admin", "246810")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/staff", admin, domain.StaffCreateRequest{Name: "Mozo", PIN: "4321", Role: domain.RoleWaiter, CommissionEnabled: true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "pin_hash")

	login(t, handler, "Mozo", "4321")

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/staff", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mozo")
}

func TestMetricsEndpointCountsSettlements(t *testing.T) {
	handler := newTestAPI(t).Handler()
	cashier := login(t, handler, "Caja", "135790")
	require.Equal(t, http.StatusCreated, doJSON(t, handler, http.MethodPost, "/api/v1/register/open", cashier, nil).Code)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales/settle", cashier, map[string]any{
		"items":    []map[string]any{{"product_id": "prd-agua", "unit_price_cents": 1200, "quantity": 1}},
		"payments": []domain.Payment{{Method: domain.MethodQR, AmountCents: 1200}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `venuepos_settlements_total{kind="monetary"} 1`), body)
}
