package service_test

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/email"
	"github.com/dukerupert/vellum/internal/notify"
	"github.com/dukerupert/vellum/internal/payment"
	"github.com/dukerupert/vellum/internal/pricing"
	"github.com/dukerupert/vellum/internal/service"
	"github.com/dukerupert/vellum/internal/shipping"
	"github.com/dukerupert/vellum/internal/sms"
)

const (
	testKey  = "merchant-key"
	testSalt = "merchant-salt"
)

type checkoutFixture struct {
	svc      *service.CheckoutService
	orders   *memOrders
	sessions *memSessions
	carrier  *shipping.MockProvider
	mailer   *email.MockSender
	wa       *sms.MockSender
	session  *domain.Session
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	orders := newMemOrders()
	sessions := newMemSessions()
	carrier := &shipping.MockProvider{
		CreateOrderFunc: func(_ context.Context, _ shipping.OrderParams) (*shipping.CarrierOrder, error) {
			return &shipping.CarrierOrder{OrderID: "SR-1001", ShipmentID: "SH-1001", Status: "NEW"}, nil
		},
	}
	mailer := &email.MockSender{}
	wa := &sms.MockSender{}

	sess := &domain.Session{
		ID:            uuid.New(),
		Token:         "tok-1",
		VerifiedPhone: "+919876543210",
	}
	sessions.seed(sess)

	svc := service.NewCheckoutService(service.CheckoutConfig{
		Orders:   orders,
		Sessions: sessions,
		Gateway:  payment.NewClient(testKey, testSalt, "https://pay.example.com/_payment"),
		Carrier:  carrier,
		Fallback: shipping.NewFlatRateProvider(shipping.DefaultFlatRates()),
		Fulfiller: service.NewFulfiller(orders, carrier, "110001", nil),
		Notifier: notify.New(notify.Config{
			Email:         mailer,
			WhatsApp:      wa,
			StoreName:     "Vellum Books",
			OperatorEmail: "ops@vellum.local",
		}),
		Policy:        pricing.DefaultPolicy(),
		BaseURL:       "https://shop.example.com",
		PickupPincode: "110001",
		StoreName:     "Vellum Books",
	})

	return &checkoutFixture{
		svc: svc, orders: orders, sessions: sessions,
		carrier: carrier, mailer: mailer, wa: wa, session: sess,
	}
}

func (f *checkoutFixture) fillCart(t *testing.T, items ...domain.CartItem) {
	t.Helper()
	for _, it := range items {
		require.NoError(t, f.sessions.AddItem(context.Background(), f.session.ID, it))
	}
}

func defaultParams() service.StartPaymentParams {
	return service.StartPaymentParams{
		FullName:     "Asha Rao",
		Email:        "asha@example.com",
		Phone:        "9876543210",
		Address:      "12 MG Road",
		City:         "Bengaluru",
		State:        "Karnataka",
		PinCode:      "560001",
		DeliveryType: "standard",
	}
}

// callbackForm builds a gateway return post from the fields of the request we
// handed the gateway, signed with the reverse hash exactly as the gateway
// would sign it.
func callbackForm(req *payment.Request, status string) url.Values {
	form := url.Values{}
	for _, k := range []string{"txnid", "amount", "productinfo", "firstname", "email",
		"phone", "udf1", "udf2", "udf3", "udf4", "udf5"} {
		form.Set(k, req.Fields[k])
	}
	form.Set("status", status)
	form.Set("mihpayid", "403993715531")
	form.Set("mode", "UPI")
	signCallback(form)
	return form
}

func signCallback(form url.Values) {
	parts := []string{testSalt, form.Get("status"), "", "", "", "", "",
		form.Get("udf5"), form.Get("udf4"), form.Get("udf3"),
		form.Get("udf2"), form.Get("udf1"),
		form.Get("email"), form.Get("firstname"), form.Get("productinfo"),
		form.Get("amount"), form.Get("txnid"), testKey}
	sum := sha512.Sum512([]byte(strings.Join(parts, "|")))
	form.Set("hash", hex.EncodeToString(sum[:]))
}

func TestStartPayment_BuildsSignedRequestAndPendingOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 42, Title: "The Blue Umbrella", UnitPricePaise: 25000, Quantity: 2})

	req, orderID, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	require.NoError(t, err)

	// 500.00 subtotal clears the free shipping threshold.
	assert.Equal(t, "500.00", req.Fields["amount"])
	assert.Equal(t, orderID.String(), req.Fields["udf1"])
	assert.Equal(t, "12 MG Road", req.Fields["udf4"])
	assert.Equal(t, "Bengaluru|Karnataka|560001|9876543210|standard|0", req.Fields["udf5"])
	assert.Len(t, req.Fields["hash"], 128)
	assert.Equal(t, "https://shop.example.com/webhooks/payment", req.Fields["surl"])

	order, err := f.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPendingPayment, order.Status)
	assert.Equal(t, int64(50000), order.TotalPaise)
	// Contact fields stay blank until the callback is verified.
	assert.Empty(t, order.FullName)

	items, err := f.sessions.ListItems(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Empty(t, items, "cart must be consumed by checkout")
}

func TestStartPayment_SnapshotsAddonSelection(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 7, Title: "Train to Pakistan", UnitPricePaise: 20000, Quantity: 1})
	require.NoError(t, f.sessions.SetAddons(context.Background(), f.session.ID, []string{"bag"}))

	req, orderID, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	require.NoError(t, err)

	// 200.00 book + 49.00 shipping + 30.00 bag.
	assert.Equal(t, "279.00", req.Fields["amount"])

	items, err := f.orders.ListItems(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, items, 2, "the add-on must survive as its own order line")
	addon := items[1]
	assert.Equal(t, domain.ItemTypeAddOn, addon.ItemType)
	assert.Equal(t, "bag", addon.Title)
	assert.Equal(t, int64(3000), addon.UnitPricePaise)
	assert.Equal(t, int32(1), addon.Quantity)
}

func TestHandleCallback_AddonLinesReachCarrierManifest(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 7, Title: "Train to Pakistan", UnitPricePaise: 20000, Quantity: 1})
	require.NoError(t, f.sessions.SetAddons(context.Background(), f.session.ID, []string{"bag"}))

	req, _, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	require.NoError(t, err)

	outcome, err := f.svc.HandleCallback(context.Background(), callbackForm(req, "success"))
	require.NoError(t, err)
	assert.True(t, outcome.Confirmed)

	require.Len(t, f.carrier.CreateOrderCalls, 1)
	manifest := f.carrier.CreateOrderCalls[0].Items
	require.Len(t, manifest, 2)
	assert.Equal(t, "BOOK-7", manifest[0].SKU)
	assert.Equal(t, "ADDON-bag", manifest[1].SKU)
	assert.Empty(t, manifest[1].HSN, "add-ons are not printed matter")
}

func TestStartPayment_RejectsUnverifiedContact(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 1, Title: "X", UnitPricePaise: 10000, Quantity: 1})

	p := defaultParams()
	p.Phone = "9000000000"

	_, _, err := f.svc.StartPayment(context.Background(), f.session, p)
	assert.ErrorIs(t, err, domain.ErrContactNotVerified)
}

func TestStartPayment_AcceptsVerifiedEmail(t *testing.T) {
	f := newCheckoutFixture(t)
	f.session.VerifiedPhone = ""
	f.session.VerifiedEmail = "asha@example.com"
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 1, Title: "X", UnitPricePaise: 10000, Quantity: 1})

	req, _, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(req.Fields["udf5"], "|1"), "verified email flag must travel signed")
}

func TestStartPayment_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)

	_, _, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	assert.ErrorIs(t, err, domain.ErrCartEmpty)
}

func TestStartPayment_InvalidPincode(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 1, Title: "X", UnitPricePaise: 10000, Quantity: 1})

	p := defaultParams()
	p.PinCode = "56001"

	_, _, err := f.svc.StartPayment(context.Background(), f.session, p)
	assert.True(t, domain.IsCode(err, domain.EINVALID))
}

func TestHandleCallback_SuccessConfirmsAndShips(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 42, Title: "The Blue Umbrella", UnitPricePaise: 25000, Quantity: 2})

	req, orderID, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	require.NoError(t, err)

	outcome, err := f.svc.HandleCallback(context.Background(), callbackForm(req, "success"))
	require.NoError(t, err)
	assert.True(t, outcome.Confirmed)
	assert.Equal(t, orderID, outcome.OrderID)

	order, err := f.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderShipped, order.Status)
	assert.Equal(t, "SR-1001", order.CarrierOrderID)

	// Contact fields applied from signed callback content only.
	assert.Equal(t, "Asha Rao", order.FullName)
	assert.Equal(t, "12 MG Road", order.Address)
	assert.Equal(t, "560001", order.PinCode)
	assert.Equal(t, "9876543210", order.PhoneNumber)
	assert.Equal(t, "UPI", order.PaymentMethod)
	assert.Equal(t, "403993715531", order.PaymentID)

	require.Len(t, f.carrier.CreateOrderCalls, 1)
	assert.Equal(t, orderID.String(), f.carrier.CreateOrderCalls[0].OrderRef)

	// Customer receipt, shipped notice and operator alert all went out.
	assert.NotEmpty(t, f.mailer.Sent)
	assert.NotEmpty(t, f.wa.Sent)
}

func TestHandleCallback_DuplicateSuccessAcknowledgedOnce(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 42, Title: "X", UnitPricePaise: 25000, Quantity: 2})

	req, orderID, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	require.NoError(t, err)
	form := callbackForm(req, "success")

	first, err := f.svc.HandleCallback(context.Background(), form)
	require.NoError(t, err)
	require.True(t, first.Confirmed)
	mailsAfterFirst := len(f.mailer.Sent)

	second, err := f.svc.HandleCallback(context.Background(), form)
	require.NoError(t, err, "replays must be acknowledged, not errored")
	assert.True(t, second.Replayed)
	assert.False(t, second.Confirmed)

	order, err := f.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderShipped, order.Status)
	assert.Len(t, f.carrier.CreateOrderCalls, 1, "replay must not create a second shipment")
	assert.Len(t, f.mailer.Sent, mailsAfterFirst, "replay must not renotify")
}

func TestHandleCallback_TamperedAmountRejected(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 42, Title: "X", UnitPricePaise: 25000, Quantity: 2})

	req, orderID, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	require.NoError(t, err)

	form := callbackForm(req, "success")
	form.Set("amount", "1.00") // hash no longer matches

	_, err = f.svc.HandleCallback(context.Background(), form)
	assert.True(t, domain.IsCode(err, domain.EUNAUTHORIZED))

	order, err := f.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPendingPayment, order.Status, "rejected callback must not touch the order")
	assert.Empty(t, f.carrier.CreateOrderCalls)
}

func TestHandleCallback_SignedAmountMismatchRejected(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 42, Title: "X", UnitPricePaise: 25000, Quantity: 2})

	req, orderID, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	require.NoError(t, err)

	// Validly signed, but the amount disagrees with the stored order total.
	form := callbackForm(req, "success")
	form.Set("amount", "1.00")
	signCallback(form)

	_, err = f.svc.HandleCallback(context.Background(), form)
	assert.True(t, domain.IsCode(err, domain.EUNAUTHORIZED))

	order, err := f.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPendingPayment, order.Status)
}

func TestHandleCallback_FailureCancelsPendingOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 42, Title: "X", UnitPricePaise: 25000, Quantity: 2})

	req, orderID, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	require.NoError(t, err)

	outcome, err := f.svc.HandleCallback(context.Background(), callbackForm(req, "failure"))
	require.NoError(t, err, "failure callbacks are acknowledged")
	assert.True(t, outcome.Cancelled)
	assert.False(t, outcome.Confirmed)

	order, err := f.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, order.Status)
	assert.Empty(t, f.carrier.CreateOrderCalls)
}

func TestHandleCallback_LateFailureLeavesConfirmedOrderAlone(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 42, Title: "X", UnitPricePaise: 25000, Quantity: 2})

	req, orderID, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	require.NoError(t, err)

	_, err = f.svc.HandleCallback(context.Background(), callbackForm(req, "success"))
	require.NoError(t, err)

	// A stale failure delivery for the same transaction must not unwind a
	// confirmed order.
	outcome, err := f.svc.HandleCallback(context.Background(), callbackForm(req, "failure"))
	require.NoError(t, err)
	assert.False(t, outcome.Cancelled)

	order, err := f.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderShipped, order.Status)
}

func TestHandleCallback_CarrierDownKeepsOrderProcessing(t *testing.T) {
	f := newCheckoutFixture(t)
	f.carrier.CreateOrderFunc = func(context.Context, shipping.OrderParams) (*shipping.CarrierOrder, error) {
		return nil, shipping.ErrCarrierUnavailable
	}
	f.fillCart(t, domain.CartItem{ItemType: "book", ItemID: 42, Title: "X", UnitPricePaise: 25000, Quantity: 2})

	req, orderID, err := f.svc.StartPayment(context.Background(), f.session, defaultParams())
	require.NoError(t, err)

	outcome, err := f.svc.HandleCallback(context.Background(), callbackForm(req, "success"))
	require.NoError(t, err, "shipment failure must not bounce the webhook")
	assert.True(t, outcome.Confirmed)

	order, err := f.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, order.Status, "paid order awaits manual dispatch")

	// Operator got an alert naming the problem.
	var alerted bool
	for _, m := range f.mailer.Sent {
		if len(m.To) == 1 && m.To[0] == "ops@vellum.local" && strings.Contains(m.Subject, "needs attention") {
			alerted = true
		}
	}
	assert.True(t, alerted)
}

func TestHandleCallback_UnknownTransaction(t *testing.T) {
	f := newCheckoutFixture(t)

	form := url.Values{}
	form.Set("txnid", "feedfacefeedfacefeedfacefeedface")
	form.Set("status", "success")
	form.Set("amount", "100.00")
	form.Set("udf1", uuid.New().String())
	signCallback(form)

	_, err := f.svc.HandleCallback(context.Background(), form)
	assert.True(t, domain.IsCode(err, domain.ENOTFOUND))
}

func TestQuote_RanksTopThreeByPrice(t *testing.T) {
	f := newCheckoutFixture(t)
	f.carrier.GetRatesFunc = func(_ context.Context, params shipping.RateParams) ([]shipping.Rate, error) {
		assert.Equal(t, "110001", params.PickupPincode)
		assert.Equal(t, "560001", params.DeliveryPincode)
		return []shipping.Rate{
			{CourierCode: "a", CostPaise: 7200},
			{CourierCode: "b", CostPaise: 9550},
			{CourierCode: "c", CostPaise: 11000},
			{CourierCode: "d", CostPaise: 15000},
		}, nil
	}

	rates, fromFallback, err := f.svc.Quote(context.Background(), f.session.ID, "560001")
	require.NoError(t, err)
	assert.False(t, fromFallback)
	require.Len(t, rates, 3)
	assert.Equal(t, "a", rates[0].CourierCode)
	assert.Equal(t, "c", rates[2].CourierCode)
}

func TestQuote_FallsBackToFlatRates(t *testing.T) {
	f := newCheckoutFixture(t)
	f.carrier.GetRatesFunc = func(context.Context, shipping.RateParams) ([]shipping.Rate, error) {
		return nil, shipping.ErrCarrierUnavailable
	}

	rates, fromFallback, err := f.svc.Quote(context.Background(), f.session.ID, "560001")
	require.NoError(t, err)
	assert.True(t, fromFallback)
	require.Len(t, rates, 2)
	assert.Equal(t, int64(4900), rates[0].CostPaise)
	assert.Equal(t, int64(9900), rates[1].CostPaise)
}

func TestQuote_InvalidPincode(t *testing.T) {
	f := newCheckoutFixture(t)

	_, _, err := f.svc.Quote(context.Background(), f.session.ID, "5600x1")
	assert.True(t, domain.IsCode(err, domain.EINVALID))
}

func TestQuote_CarrierErrorPropagatesWhenFallbackFailsToo(t *testing.T) {
	f := newCheckoutFixture(t)
	f.carrier.GetRatesFunc = func(context.Context, shipping.RateParams) ([]shipping.Rate, error) {
		return nil, errors.New("boom")
	}

	// FlatRateProvider still answers, so this stays available.
	rates, fromFallback, err := f.svc.Quote(context.Background(), f.session.ID, "560001")
	require.NoError(t, err)
	assert.True(t, fromFallback)
	assert.NotEmpty(t, rates)
}
