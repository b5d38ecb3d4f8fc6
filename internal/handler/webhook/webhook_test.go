package webhook_test

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/handler/webhook"
	"github.com/dukerupert/vellum/internal/payment"
	"github.com/dukerupert/vellum/internal/service"
	"github.com/dukerupert/vellum/internal/shipping"
)

const (
	testKey  = "merchant-key"
	testSalt = "merchant-salt"
)

// orderStore is a minimal in-memory OrderStore for webhook tests.
type orderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
	items  map[uuid.UUID][]domain.OrderItem
	byTxn  map[string]uuid.UUID
}

func newOrderStore() *orderStore {
	return &orderStore{
		orders: make(map[uuid.UUID]*domain.Order),
		items:  make(map[uuid.UUID][]domain.OrderItem),
		byTxn:  make(map[string]uuid.UUID),
	}
}

func (s *orderStore) CreatePending(_ context.Context, order *domain.Order, items []domain.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *order
	cp.Status = domain.OrderPendingPayment
	s.orders[cp.ID] = &cp
	s.byTxn[cp.TxnID] = cp.ID
	s.items[cp.ID] = items
	return nil
}

func (s *orderStore) Get(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *orderStore) GetByTxnID(_ context.Context, txnID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byTxn[txnID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *s.orders[id]
	return &cp, nil
}

func (s *orderStore) ListItems(_ context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[orderID], nil
}

func (s *orderStore) ConfirmPayment(_ context.Context, id uuid.UUID, details domain.ContactDetails, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status != domain.OrderPendingPayment {
		return domain.ErrInvalidTransition
	}
	o.Status = domain.OrderProcessing
	o.FullName = details.FullName
	o.PaymentID = paymentID
	return nil
}

func (s *orderStore) MarkShipped(_ context.Context, id uuid.UUID, carrierOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status == domain.OrderShipped {
		if o.CarrierOrderID == carrierOrderID {
			return nil
		}
		return domain.ErrCarrierMismatch
	}
	if o.Status != domain.OrderProcessing {
		return domain.ErrInvalidTransition
	}
	o.Status = domain.OrderShipped
	o.CarrierOrderID = carrierOrderID
	return nil
}

func (s *orderStore) MarkDelivered(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status != domain.OrderShipped {
		return domain.ErrInvalidTransition
	}
	o.Status = domain.OrderDelivered
	return nil
}

func (s *orderStore) Cancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status.Terminal() || o.Status == domain.OrderShipped {
		return domain.ErrInvalidTransition
	}
	o.Status = domain.OrderCancelled
	return nil
}

func (s *orderStore) CancelPending(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if o.Status == domain.OrderPendingPayment {
		o.Status = domain.OrderCancelled
		return true, nil
	}
	return false, nil
}

func (s *orderStore) DeleteStalePending(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func seedPendingOrder(t *testing.T, store *orderStore) *domain.Order {
	t.Helper()
	order := &domain.Order{
		ID:         uuid.New(),
		TxnID:      "abcdef0123456789abcdef0123456789",
		TotalPaise: 50000,
	}
	require.NoError(t, store.CreatePending(context.Background(), order, nil))
	return order
}

func signedForm(order *domain.Order, status string) url.Values {
	form := url.Values{}
	form.Set("txnid", order.TxnID)
	form.Set("amount", payment.FormatAmount(order.TotalPaise))
	form.Set("productinfo", "Vellum Books order (2 items)")
	form.Set("firstname", "Asha Rao")
	form.Set("email", "asha@example.com")
	form.Set("status", status)
	form.Set("mihpayid", "403993715531")
	form.Set("udf1", order.ID.String())
	form.Set("udf5", "Bengaluru|Karnataka|560001|9876543210|standard|0")

	parts := []string{testSalt, form.Get("status"), "", "", "", "", "",
		form.Get("udf5"), form.Get("udf4"), form.Get("udf3"),
		form.Get("udf2"), form.Get("udf1"),
		form.Get("email"), form.Get("firstname"), form.Get("productinfo"),
		form.Get("amount"), form.Get("txnid"), testKey}
	sum := sha512.Sum512([]byte(strings.Join(parts, "|")))
	form.Set("hash", hex.EncodeToString(sum[:]))
	return form
}

func newPaymentHandler(store *orderStore) *webhook.PaymentHandler {
	checkout := service.NewCheckoutService(service.CheckoutConfig{
		Orders:  store,
		Gateway: payment.NewClient(testKey, testSalt, "https://pay.example.com/_payment"),
		BaseURL: "https://shop.example.com",
	})
	return webhook.NewPaymentHandler(checkout, "https://shop.example.com")
}

func postForm(h http.HandlerFunc, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestPaymentWebhook_SuccessRedirectsToOrder(t *testing.T) {
	store := newOrderStore()
	order := seedPendingOrder(t, store)
	h := newPaymentHandler(store)

	rec := postForm(h.Handle, signedForm(order, "success"))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://shop.example.com/orders/"+order.ID.String(),
		rec.Header().Get("Location"))

	stored, err := store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, stored.Status)
}

func TestPaymentWebhook_ReplayStillRedirects(t *testing.T) {
	store := newOrderStore()
	order := seedPendingOrder(t, store)
	h := newPaymentHandler(store)

	form := signedForm(order, "success")
	first := postForm(h.Handle, form)
	require.Equal(t, http.StatusSeeOther, first.Code)

	second := postForm(h.Handle, form)
	assert.Equal(t, http.StatusSeeOther, second.Code, "replays must not error back to the gateway")
}

func TestPaymentWebhook_BadSignatureRejected(t *testing.T) {
	store := newOrderStore()
	order := seedPendingOrder(t, store)
	h := newPaymentHandler(store)

	form := signedForm(order, "success")
	form.Set("amount", "1.00")

	rec := postForm(h.Handle, form)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	stored, err := store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPendingPayment, stored.Status)
}

func TestPaymentWebhook_FailureRedirectsToCheckout(t *testing.T) {
	store := newOrderStore()
	order := seedPendingOrder(t, store)
	h := newPaymentHandler(store)

	rec := postForm(h.Handle, signedForm(order, "failure"))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "payment=failed")
}

func shippedOrder(t *testing.T, store *orderStore) *domain.Order {
	t.Helper()
	order := seedPendingOrder(t, store)
	require.NoError(t, store.ConfirmPayment(context.Background(), order.ID, domain.ContactDetails{}, "p"))
	require.NoError(t, store.MarkShipped(context.Background(), order.ID, "SR-77"))
	return order
}

func postCarrier(h http.HandlerFunc, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/carrier", strings.NewReader(body))
	if token != "" {
		req.Header.Set("X-Webhook-Token", token)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestCarrierWebhook_DeliveredAdvancesOrder(t *testing.T) {
	store := newOrderStore()
	order := shippedOrder(t, store)
	f := service.NewFulfiller(store, &shipping.MockProvider{}, "110001", nil)
	h := webhook.NewCarrierHandler(f, "hook-token")

	body := `{"order_id":"` + order.ID.String() + `","sr_order_id":"SR-77","current_status":"delivered"}`
	rec := postCarrier(h.Handle, "hook-token", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	stored, err := store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderDelivered, stored.Status)
}

func TestCarrierWebhook_ReplayAcknowledged(t *testing.T) {
	store := newOrderStore()
	order := shippedOrder(t, store)
	f := service.NewFulfiller(store, &shipping.MockProvider{}, "110001", nil)
	h := webhook.NewCarrierHandler(f, "hook-token")

	body := `{"order_id":"` + order.ID.String() + `","sr_order_id":"SR-77","current_status":"delivered"}`
	require.Equal(t, http.StatusOK, postCarrier(h.Handle, "hook-token", body).Code)

	// Duplicate delivery lands on a terminal order; still 200.
	assert.Equal(t, http.StatusOK, postCarrier(h.Handle, "hook-token", body).Code)
}

func TestCarrierWebhook_BadTokenRejected(t *testing.T) {
	store := newOrderStore()
	order := shippedOrder(t, store)
	f := service.NewFulfiller(store, &shipping.MockProvider{}, "110001", nil)
	h := webhook.NewCarrierHandler(f, "hook-token")

	body := `{"order_id":"` + order.ID.String() + `","sr_order_id":"SR-77","current_status":"delivered"}`
	assert.Equal(t, http.StatusUnauthorized, postCarrier(h.Handle, "wrong", body).Code)
	assert.Equal(t, http.StatusUnauthorized, postCarrier(h.Handle, "", body).Code)

	stored, err := store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderShipped, stored.Status)
}

func TestCarrierWebhook_MalformedBodyRejected(t *testing.T) {
	f := service.NewFulfiller(newOrderStore(), &shipping.MockProvider{}, "110001", nil)
	h := webhook.NewCarrierHandler(f, "hook-token")

	assert.Equal(t, http.StatusBadRequest, postCarrier(h.Handle, "hook-token", "{not json").Code)
}
