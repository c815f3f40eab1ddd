package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rijalghodi/qlaris-sub000/domain"
	"github.com/rijalghodi/qlaris-sub000/internal/checkout"
)

type catalogMock struct {
	m        sync.RWMutex
	snapshot *domain.CatalogSnapshot
	err      error
}

func (c *catalogMock) Snapshot(context.Context) (*domain.CatalogSnapshot, error) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.snapshot, nil
}

type creatorMock struct {
	m   sync.RWMutex
	err error
}

func (c *creatorMock) CreateTransaction(_ context.Context, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	return &domain.Transaction{
		ID:             "tx-1",
		InvoiceNumber:  "INV-0001",
		TotalAmount:    26000,
		ReceivedAmount: req.ReceivedAmount,
		ChangeAmount:   req.ReceivedAmount - 26000,
		Status:         "PAID",
		CreatedAt:      time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}, nil
}

type testServer struct {
	handler http.Handler
	catalog *catalogMock
	creator *creatorMock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	stock := 2
	ts := &testServer{
		catalog: &catalogMock{snapshot: &domain.CatalogSnapshot{
			Products: []domain.ProductSnapshot{
				{ID: "kopi", Name: "Kopi Susu", Price: 18000, CategoryID: "drinks", BarcodeValue: "899001", IsActive: true},
				{ID: "teh", Name: "Es Teh", Price: 8000, CategoryID: "drinks", Unit: "Cup", IsActive: true},
				{ID: "nasi", Name: "Nasi Goreng", Price: 27000, CategoryID: "food", EnableStock: true, StockQty: &stock, IsActive: true},
			},
			Categories: []domain.Category{{ID: "drinks", Name: "Minuman"}, {ID: "food", Name: "Makanan"}},
		}},
		creator: &creatorMock{},
	}
	registry := checkout.NewRegistry(func(id string) *checkout.Controller {
		return checkout.NewController(id, ts.catalog, ts.creator, nil)
	}, 0, 0, nil)
	t.Cleanup(func() { registry.Close() })

	ts.handler = NewRouter(NewTerminalHandler(registry, nil), zap.NewNop(), 5*time.Second)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, "/api/v1/terminals/till-1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDEchoed(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestCatalogAndFilter(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	catalog := decode[CatalogResponseDTO](t, rec)
	assert.Len(t, catalog.Products, 3)
	assert.Nil(t, catalog.SelectedCategory)
	assert.Equal(t, "Rp18.000", catalog.Products[0].PriceFormatted)
	assert.Equal(t, "Pcs", catalog.Products[0].Unit)

	rec = ts.do(t, http.MethodPut, "/catalog/filter", map[string]any{"category_id": "drinks", "search": "teh"})
	require.Equal(t, http.StatusOK, rec.Code)
	catalog = decode[CatalogResponseDTO](t, rec)
	require.Len(t, catalog.Products, 1)
	assert.Equal(t, "teh", catalog.Products[0].ID)
	require.NotNil(t, catalog.SelectedCategory)
	assert.Equal(t, "drinks", *catalog.SelectedCategory)
}

func TestCatalogUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.err = domain.ErrCatalogUnavailable

	rec := ts.do(t, http.MethodGet, "/catalog", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "catalog_unavailable", decode[ErrorResponse](t, rec).Code)
}

func TestOrderItems(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/order/items", map[string]any{"product_id": "kopi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/order/items", map[string]any{"barcode": "899001"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/order/items", map[string]any{"product_id": "teh", "quantity": 3})
	require.Equal(t, http.StatusCreated, rec.Code)

	order := decode[OrderResponseDTO](t, rec)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, int64(60000), order.Total)
	assert.Equal(t, "Rp60.000", order.TotalFormatted)
	assert.Equal(t, 5, order.ItemCount)
	assert.Equal(t, "BROWSING", order.State)

	rec = ts.do(t, http.MethodPut, "/order/items/teh", map[string]any{"quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(44000), decode[OrderResponseDTO](t, rec).Total)

	rec = ts.do(t, http.MethodDelete, "/order/items/kopi", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[OrderResponseDTO](t, rec).Items, 1)

	rec = ts.do(t, http.MethodDelete, "/order", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[OrderResponseDTO](t, rec).Items)

	rec = ts.do(t, http.MethodGet, "/order", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderItems_Errors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/order/items", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/order/items", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/order/items", map[string]any{"product_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/order/items", map[string]any{"product_id": "kopi", "quantity": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_quantity", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPut, "/order/items/kopi", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdjustmentFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/adjustment", map[string]any{"product_id": "nasi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	adj := decode[AdjustmentResponseDTO](t, rec)
	assert.Equal(t, 1, adj.Staged)
	assert.False(t, adj.InCart)

	rec = ts.do(t, http.MethodPost, "/adjustment/increment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/adjustment/increment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	adj = decode[AdjustmentResponseDTO](t, rec)
	assert.Equal(t, 2, adj.Staged, "stock of 2 caps the staged quantity")
	assert.False(t, adj.CanIncrement)

	rec = ts.do(t, http.MethodPut, "/adjustment/quantity", map[string]any{"quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/adjustment/decrement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/adjustment/increment", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/adjustment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Rp27.000", decode[AdjustmentResponseDTO](t, rec).SubtotalFormatted)

	rec = ts.do(t, http.MethodPost, "/adjustment/commit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[OrderResponseDTO](t, rec)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 1, order.Items[0].Quantity)

	rec = ts.do(t, http.MethodPost, "/adjustment", map[string]any{"product_id": "nasi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/adjustment/remove", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[OrderResponseDTO](t, rec).Items)

	rec = ts.do(t, http.MethodPost, "/adjustment", map[string]any{"product_id": "teh"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/adjustment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[OrderResponseDTO](t, rec).Items)

	rec = ts.do(t, http.MethodPost, "/adjustment/commit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do(t, http.MethodGet, "/adjustment", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPaymentFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/payment", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "empty order cannot be paid")
	assert.Equal(t, "empty_order", decode[ErrorResponse](t, rec).Code)

	ts.do(t, http.MethodPost, "/order/items", map[string]any{"product_id": "kopi"})
	ts.do(t, http.MethodPost, "/order/items", map[string]any{"product_id": "teh"})

	rec = ts.do(t, http.MethodPost, "/payment", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	pay := decode[PaymentResponseDTO](t, rec)
	assert.Equal(t, int64(26000), pay.Total)
	assert.True(t, pay.IsInputEmpty)
	assert.Nil(t, pay.Received)
	amounts := make([]int64, 0, len(pay.Suggestions))
	for _, s := range pay.Suggestions {
		amounts = append(amounts, s.Amount)
	}
	assert.Equal(t, []int64{26000, 50000, 100000}, amounts)

	rec = ts.do(t, http.MethodPost, "/order/items", map[string]any{"product_id": "kopi"})
	assert.Equal(t, http.StatusConflict, rec.Code, "order is frozen while paying")

	rec = ts.do(t, http.MethodPut, "/payment/received", map[string]any{"amount": 20000})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[PaymentResponseDTO](t, rec).Insufficient)

	rec = ts.do(t, http.MethodPost, "/payment/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_amount", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPut, "/payment/received", map[string]any{"amount": -5})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPut, "/payment/received", map[string]any{"amount": 50000})
	require.Equal(t, http.StatusOK, rec.Code)
	pay = decode[PaymentResponseDTO](t, rec)
	assert.Equal(t, int64(24000), pay.Change)
	assert.Equal(t, "Rp24.000", pay.ChangeFormatted)

	rec = ts.do(t, http.MethodGet, "/payment", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/payment/submit", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	receipt := decode[ReceiptResponseDTO](t, rec)
	assert.Equal(t, "INV-0001", receipt.InvoiceNumber)
	assert.Equal(t, int64(24000), receipt.ChangeAmount)
	assert.Equal(t, "Rp50.000", receipt.ReceivedAmountFormatted)

	rec = ts.do(t, http.MethodGet, "/order", nil)
	order := decode[OrderResponseDTO](t, rec)
	assert.Empty(t, order.Items)
	assert.Equal(t, "SETTLED", order.State)

	rec = ts.do(t, http.MethodGet, "/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tx-1", decode[ReceiptResponseDTO](t, rec).TransactionID)

	rec = ts.do(t, http.MethodPost, "/receipt/new-order", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BROWSING", decode[OrderResponseDTO](t, rec).State)
}

func TestPayment_ClearReceivedWithNull(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/order/items", map[string]any{"product_id": "teh"})
	ts.do(t, http.MethodPost, "/payment", nil)
	ts.do(t, http.MethodPut, "/payment/received", map[string]any{"amount": 10000})

	rec := ts.do(t, http.MethodPut, "/payment/received", `{"amount": null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	pay := decode[PaymentResponseDTO](t, rec)
	assert.Nil(t, pay.Received)
	assert.True(t, pay.IsInputEmpty)

	rec = ts.do(t, http.MethodPut, "/payment/received", nil)
	require.Equal(t, http.StatusOK, rec.Code, "an empty body also clears")
}

func TestPayment_CommitFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.creator.err = errors.New("connection reset")
	ts.do(t, http.MethodPost, "/order/items", map[string]any{"product_id": "teh"})
	ts.do(t, http.MethodPost, "/payment", nil)

	rec := ts.do(t, http.MethodPost, "/payment/submit", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "transaction_commit_failed", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/order", nil)
	order := decode[OrderResponseDTO](t, rec)
	assert.Len(t, order.Items, 1)
	assert.Equal(t, "PAYMENT_OPEN", order.State)

	rec = ts.do(t, http.MethodDelete, "/payment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BROWSING", decode[OrderResponseDTO](t, rec).State)
}

func TestReceipt_NoneYet(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/receipt", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTerminalsAreIsolated(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/order/items", map[string]any{"product_id": "teh"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/terminals/till-2/order", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[OrderResponseDTO](t, rec).Items)
}

// handoverRegistry hands out a retired controller on the first lookup and
// its replacement afterwards, as happens when the cleanup loop evicts a
// terminal between a handler's lookup and its call.
type handoverRegistry struct {
	m     sync.Mutex
	stale *checkout.Controller
	fresh *checkout.Controller
	gets  int
}

func (r *handoverRegistry) Get(string) *checkout.Controller {
	r.m.Lock()
	defer r.m.Unlock()
	r.gets++
	if r.gets == 1 {
		return r.stale
	}
	return r.fresh
}

func TestAddItem_EvictedDuringRequest(t *testing.T) {
	ts := newTestServer(t)
	reg := &handoverRegistry{
		stale: checkout.NewController("till-1", ts.catalog, ts.creator, nil),
		fresh: checkout.NewController("till-1", ts.catalog, ts.creator, nil),
	}
	require.True(t, reg.stale.Retire())
	ts.handler = NewRouter(NewTerminalHandler(reg, nil), zap.NewNop(), 5*time.Second)

	rec := ts.do(t, http.MethodPost, "/order/items", map[string]any{"product_id": "kopi", "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[OrderResponseDTO](t, rec).ItemCount)

	assert.Equal(t, 2, reg.fresh.Order().ItemCount)
	assert.Zero(t, reg.stale.Order().ItemCount)
	assert.Equal(t, 2, reg.gets)
}
