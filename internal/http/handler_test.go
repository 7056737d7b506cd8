package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/go_fashionary/internal/bulk"
	"github.com/fjod/go_fashionary/internal/courier"
	"github.com/fjod/go_fashionary/internal/domain"
	"github.com/fjod/go_fashionary/internal/journal"
	"github.com/fjod/go_fashionary/internal/logger"
	"github.com/fjod/go_fashionary/internal/repository"
	"github.com/fjod/go_fashionary/internal/scan"
	"github.com/fjod/go_fashionary/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	repo    *repository.MemoryRepository
	journal *journal.MemoryJournal
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Discard()

	repo := repository.NewMemoryRepository()
	_, err := repository.Seed(context.Background(), repo, repository.SampleOrders(time.Now()))
	require.NoError(t, err)

	orders := validation.NewService(repo, nil, log)
	registry := scan.NewRegistry(orders, scan.RegistryOptions{
		Controller: scan.Options{Cooldown: time.Minute},
	}, log)
	t.Cleanup(registry.Close)

	j := journal.NewMemoryJournal()
	actions := bulk.NewOrderActions(repo, repo, courier.NewMockClient("steadfast", 100, 10), orders, bulk.Breakers{}, log)
	dispatcher := bulk.NewDispatcher(actions, j, log)

	h := NewRouter(RouterConfig{RequestTimeout: 5 * time.Second},
		NewOrdersHandler(orders, 5*time.Second, 1<<20, log),
		NewScanHandler(registry, dispatcher, j, 5*time.Second, 1<<20, log),
		log,
	)
	return &testServer{handler: h, repo: repo, journal: j}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Operator", "rahim")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) newSession(t *testing.T) SessionResponseDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/scan/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode[SessionResponseDTO](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestOrdersEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/orders?status=confirmed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]OrderResponseDTO](t, rec)
	require.Len(t, list, 2)
	for _, o := range list {
		assert.Equal(t, "confirmed", o.Status)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/orders?limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]OrderResponseDTO](t, rec), 3)

	rec = s.do(t, http.MethodGet, "/api/v1/orders?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/orders?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/orders/ORD-1003", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[OrderResponseDTO](t, rec)
	assert.Equal(t, "Farhana Akter", order.CustomerName)
	assert.Equal(t, "Packed", order.StatusLabel)
	assert.Len(t, order.Items, 2)

	rec = s.do(t, http.MethodGet, "/api/v1/orders/ORD-404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "order_not_found", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/orders/statuses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	statuses := decode[[]StatusDTO](t, rec)
	require.Len(t, statuses, 8)
	assert.Equal(t, StatusDTO{Value: "pending", Label: "Pending"}, statuses[0])
	assert.True(t, statuses[5].Final)
}

func TestValidateEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/orders/validate", ValidateRequestDTO{Code: "ORD-1001"})
	require.Equal(t, http.StatusOK, rec.Code)
	ok := decode[ValidateResponseDTO](t, rec)
	assert.Equal(t, "ok", ok.Result)
	require.NotNil(t, ok.Order)
	assert.Equal(t, "ORD-1001", ok.Order.ID)

	rec = s.do(t, http.MethodPost, "/api/v1/orders/validate", ValidateRequestDTO{Code: "ORD-1006"})
	require.Equal(t, http.StatusOK, rec.Code)
	rejected := decode[ValidateResponseDTO](t, rec)
	assert.Equal(t, "rejected", rejected.Result)
	assert.Equal(t, "Order ORD-1006 is already delivered.", rejected.Reason)
	assert.Nil(t, rejected.Order)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/validate", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanFlow(t *testing.T) {
	s := newTestServer(t)
	sess := s.newSession(t)
	assert.Equal(t, "rahim", sess.Operator)
	assert.Empty(t, sess.Items)
	assert.Equal(t, scan.StatusIdle, sess.Signal.Status)
	base := "/api/v1/scan/sessions/" + sess.ID

	rec := s.do(t, http.MethodPost, base+"/scans", ScanRequestDTO{Code: "ORD-1001"})
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode[SessionResponseDTO](t, rec)
	assert.Equal(t, scan.StatusSuccess, got.Signal.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "confirmed", got.Items[0].CurrentStatus)

	rec = s.do(t, http.MethodPost, base+"/scans", ScanRequestDTO{Code: "ORD-1001"})
	require.Equal(t, http.StatusConflict, rec.Code)
	got = decode[SessionResponseDTO](t, rec)
	assert.Equal(t, scan.StatusDuplicate, got.Signal.Status)
	assert.Len(t, got.Items, 1)

	rec = s.do(t, http.MethodPost, base+"/scans", ScanRequestDTO{Code: "ORD-1007"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	got = decode[SessionResponseDTO](t, rec)
	assert.Equal(t, scan.StatusError, got.Signal.Status)
	assert.Equal(t, "Order ORD-1007 is already cancelled.", got.Signal.Message)

	rec = s.do(t, http.MethodPost, base+"/scans", ScanRequestDTO{Code: "  "})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scan.StatusError, decode[SessionResponseDTO](t, rec).Signal.Status)

	rec = s.do(t, http.MethodPost, base+"/scans", ScanRequestDTO{Code: "ORD-1003"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// blank input right after a success is still not a new scan
	rec = s.do(t, http.MethodPost, base+"/scans", ScanRequestDTO{Code: ""})
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[SessionResponseDTO](t, rec)
	assert.Equal(t, scan.StatusSuccess, got.Signal.Status)
	assert.Len(t, got.Items, 2)

	rec = s.do(t, http.MethodPost, base+"/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[SessionResponseDTO](t, rec)
	assert.Len(t, got.Items, 1)
	assert.True(t, got.CanRedo)

	rec = s.do(t, http.MethodPost, base+"/redo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[SessionResponseDTO](t, rec)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "ORD-1003", got.Items[0].ID)

	rec = s.do(t, http.MethodDelete, base+"/items/ORD-1001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[SessionResponseDTO](t, rec)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "ORD-1003", got.Items[0].ID)

	rec = s.do(t, http.MethodPost, base+"/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[SessionResponseDTO](t, rec)
	assert.Empty(t, got.Items)
	assert.True(t, got.CanUndo)

	rec = s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decode[SessionResponseDTO](t, rec).Entries)

	rec = s.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", decode[ErrorResponse](t, rec).Code)
}

func TestBulkMarkStatus(t *testing.T) {
	s := newTestServer(t)
	sess := s.newSession(t)
	base := "/api/v1/scan/sessions/" + sess.ID

	for _, code := range []string{"ORD-1001", "ORD-1004"} {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, base+"/scans", ScanRequestDTO{Code: code}).Code)
	}

	rec := s.do(t, http.MethodPost, base+"/bulk", BulkRequestDTO{Action: "mark-status", Status: "packed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[BulkResponseDTO](t, rec)
	assert.Equal(t, []string{"ORD-1004", "ORD-1001"}, res.OrderIDs)
	assert.Equal(t, "packed", res.Status)
	assert.Empty(t, res.Session.Items)

	o, err := s.repo.GetOrder(context.Background(), "ORD-1004")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPacked, o.Status)

	rec = s.do(t, http.MethodGet, "/api/v1/dispatches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]journal.Entry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, res.DispatchID, entries[0].DispatchID)
	assert.Equal(t, "rahim", entries[0].Operator)

	rec = s.do(t, http.MethodGet, "/api/v1/dispatches/"+res.DispatchID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/dispatches/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkEmptyAndInvalid(t *testing.T) {
	s := newTestServer(t)
	sess := s.newSession(t)
	base := "/api/v1/scan/sessions/" + sess.ID

	rec := s.do(t, http.MethodPost, base+"/bulk", BulkRequestDTO{Action: "export-csv"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "empty_bulk_action", decode[ErrorResponse](t, rec).Code)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, base+"/scans", ScanRequestDTO{Code: "ORD-1001"}).Code)

	rec = s.do(t, http.MethodPost, base+"/bulk", BulkRequestDTO{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, base+"/bulk", BulkRequestDTO{Action: "refund"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_action", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, base+"/bulk", BulkRequestDTO{Action: "mark-status", Status: "lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkFailureKeepsScannedOrders(t *testing.T) {
	s := newTestServer(t)
	sess := s.newSession(t)
	base := "/api/v1/scan/sessions/" + sess.ID

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, base+"/scans", ScanRequestDTO{Code: "ORD-1001"}).Code)
	// cancelled behind the operator's back, after the scan
	require.NoError(t, s.repo.UpdateStatuses(context.Background(), []string{"ORD-1001"}, domain.OrderStatusCancelled, "admin"))

	rec := s.do(t, http.MethodPost, base+"/bulk", BulkRequestDTO{Action: "mark-status", Status: "packed"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "illegal_transition", resp.Code)
	assert.NotEmpty(t, resp.Details)

	rec = s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[SessionResponseDTO](t, rec).Items, 1)
}

func TestBulkDownload(t *testing.T) {
	s := newTestServer(t)
	sess := s.newSession(t)
	base := "/api/v1/scan/sessions/" + sess.ID

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, base+"/scans", ScanRequestDTO{Code: "ORD-1003"}).Code)

	rec := s.do(t, http.MethodPost, base+"/bulk?download=1", BulkRequestDTO{Action: "export-csv"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename=\"orders-")
	assert.NotEmpty(t, rec.Header().Get("X-Dispatch-ID"))
	assert.Contains(t, rec.Body.String(), "ORD-1003,Farhana Akter")
}

func TestBulkSendToCourier(t *testing.T) {
	s := newTestServer(t)
	sess := s.newSession(t)
	base := "/api/v1/scan/sessions/" + sess.ID

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, base+"/scans", ScanRequestDTO{Code: "ORD-1003"}).Code)

	rec := s.do(t, http.MethodPost, base+"/bulk", BulkRequestDTO{Action: "send-to-courier"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[BulkResponseDTO](t, rec)
	require.Len(t, res.Consignments, 1)
	assert.Equal(t, "steadfast", res.Consignments[0].Courier)

	rec = s.do(t, http.MethodGet, "/api/v1/orders/ORD-1003", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shipped", decode[OrderResponseDTO](t, rec).Status)
}

// --- handler level tests with chi route contexts ---

type failingQueries struct{ err error }

func (f failingQueries) GetOrder(context.Context, string) (*domain.Order, error) { return nil, f.err }
func (f failingQueries) ListOrders(context.Context, repository.Filter) ([]*domain.Order, error) {
	return nil, f.err
}
func (f failingQueries) Statuses() []domain.OrderStatus { return domain.Statuses() }
func (f failingQueries) ValidateScannedOrder(context.Context, string) (domain.ValidationOutcome, error) {
	return domain.ValidationOutcome{}, f.err
}

func withOrderID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("order_id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestGetOrder_InternalErrorIsNotLeaked(t *testing.T) {
	handler := NewOrdersHandler(failingQueries{err: errors.New("pq: password authentication failed")}, time.Second, 1<<20, logger.Discard())
	rec := httptest.NewRecorder()
	handler.GetOrder(rec, withOrderID(httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-1", nil), "ORD-1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "internal_error", resp.Code)
	assert.NotContains(t, resp.Error, "password")
}

func TestGetOrder_MissingID(t *testing.T) {
	handler := NewOrdersHandler(failingQueries{}, time.Second, 1<<20, logger.Discard())
	rec := httptest.NewRecorder()
	handler.GetOrder(rec, withOrderID(httptest.NewRequest(http.MethodGet, "/api/v1/orders/", nil), ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidate_BodyTooLarge(t *testing.T) {
	handler := NewOrdersHandler(failingQueries{}, time.Second, 16, logger.Discard())
	body := `{"code":"` + strings.Repeat("X", 64) + `"}`
	rec := httptest.NewRecorder()
	handler.Validate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders/validate", strings.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{scan.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
		{scan.ErrBlankScan, http.StatusBadRequest, "blank_scan"},
		{bulk.ErrEmptyBulkAction, http.StatusUnprocessableEntity, "empty_bulk_action"},
		{errors.Join(bulk.ErrBulkActionFailed, errors.New("boom")), http.StatusBadGateway, "bulk_action_failed"},
		{errors.Join(bulk.ErrBulkActionFailed, context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		status, code := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestMockAuthMiddleware_DefaultOperator(t *testing.T) {
	var got string
	h := MockAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = getOperator(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "warehouse", got)
}
