package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/events"
	"github.com/dukerupert/vellum/internal/notify"
	"github.com/dukerupert/vellum/internal/payment"
	"github.com/dukerupert/vellum/internal/pricing"
	"github.com/dukerupert/vellum/internal/shipping"
	"github.com/dukerupert/vellum/internal/telemetry"
)

// CheckoutService owns the payment handoff and the verified-callback path.
type CheckoutService struct {
	orders    OrderStore
	sessions  SessionStore
	gateway   *payment.Client
	carrier   shipping.Provider
	fallback  shipping.Provider
	fulfiller *Fulfiller
	notifier  *notify.Notifier
	publisher events.Publisher
	policy    pricing.Policy

	baseURL       string
	pickupPincode string
	storeName     string
	logger        *slog.Logger
}

// CheckoutConfig wires the checkout service.
type CheckoutConfig struct {
	Orders        OrderStore
	Sessions      SessionStore
	Gateway       *payment.Client
	Carrier       shipping.Provider
	Fallback      shipping.Provider
	Fulfiller     *Fulfiller
	Notifier      *notify.Notifier
	Publisher     events.Publisher
	Policy        pricing.Policy
	BaseURL       string
	PickupPincode string
	StoreName     string
	Logger        *slog.Logger
}

func NewCheckoutService(cfg CheckoutConfig) *CheckoutService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CheckoutService{
		orders:        cfg.Orders,
		sessions:      cfg.Sessions,
		gateway:       cfg.Gateway,
		carrier:       cfg.Carrier,
		fallback:      cfg.Fallback,
		fulfiller:     cfg.Fulfiller,
		notifier:      cfg.Notifier,
		publisher:     publisher,
		policy:        cfg.Policy,
		baseURL:       cfg.BaseURL,
		pickupPincode: cfg.PickupPincode,
		storeName:     cfg.StoreName,
		logger:        logger,
	}
}

// StartPaymentParams is the customer form submitted to initiate payment. The
// phone or email must match the session's verified contact.
type StartPaymentParams struct {
	FullName     string
	Email        string
	Phone        string
	Address      string
	City         string
	State        string
	PinCode      string
	DeliveryType string
}

// StartPayment snapshots the cart into a pending order and returns the signed
// gateway form. The cart is consumed: once the order exists the session cart
// is cleared. A fresh transaction id is generated per attempt so gateway
// retries of an abandoned attempt cannot collide with a new one.
func (s *CheckoutService) StartPayment(ctx context.Context, session *domain.Session, p StartPaymentParams) (*payment.Request, uuid.UUID, error) {
	const op = "checkout.start_payment"

	if err := validateStartPayment(p); err != nil {
		return nil, uuid.Nil, err
	}
	if !contactVerified(session, p) {
		return nil, uuid.Nil, domain.ErrContactNotVerified
	}

	items, err := s.sessions.ListItems(ctx, session.ID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if len(items) == 0 {
		return nil, uuid.Nil, domain.ErrCartEmpty
	}
	addons, err := s.sessions.ListAddons(ctx, session.ID)
	if err != nil {
		return nil, uuid.Nil, err
	}

	priced, err := pricing.Compute(items, addons, s.policy)
	if err != nil {
		return nil, uuid.Nil, err
	}

	txnID, err := payment.NewTxnID()
	if err != nil {
		return nil, uuid.Nil, domain.Internal(err, op, "failed to generate transaction id")
	}

	order := &domain.Order{
		ID:            uuid.New(),
		TxnID:         txnID,
		SubtotalPaise: priced.SubtotalPaise,
		ShippingPaise: priced.ShippingPaise,
		DiscountPaise: priced.DiscountPaise,
		AddonPaise:    priced.AddOnPaise,
		TotalPaise:    priced.TotalPaise,
	}

	orderItems := make([]domain.OrderItem, 0, len(items)+len(addons))
	for _, it := range items {
		orderItems = append(orderItems, domain.OrderItem{
			ItemType:       it.ItemType,
			ItemID:         it.ItemID,
			Title:          it.Title,
			UnitPricePaise: it.UnitPricePaise,
			Quantity:       it.Quantity,
			ImageURL:       it.ImageURL,
		})
	}
	// Add-ons are purchased lines in their own right: snapshot them so the
	// paid order records which ones were bought, not just their combined
	// price. Compute already rejected unknown names.
	for _, name := range addons {
		orderItems = append(orderItems, domain.OrderItem{
			ItemType:       domain.ItemTypeAddOn,
			Title:          name,
			UnitPricePaise: s.policy.AddOnPricesPaise[name],
			Quantity:       1,
		})
	}

	if err := s.orders.CreatePending(ctx, order, orderItems); err != nil {
		return nil, uuid.Nil, err
	}
	if err := s.sessions.ClearCart(ctx, session.ID); err != nil {
		// The order exists; a stale cart is an annoyance, not a failure.
		s.logger.Warn("failed to clear cart after order creation",
			"session_id", session.ID, "error", err)
	}

	callbackURL := s.baseURL + "/webhooks/payment"
	req := s.gateway.BuildRequest(payment.RequestParams{
		TxnID:       txnID,
		AmountPaise: priced.TotalPaise,
		ProductInfo: fmt.Sprintf("%s order (%d items)", s.storeName, priced.ItemCount),
		FirstName:   p.FullName,
		Email:       p.Email,
		Phone:       p.Phone,
		SuccessURL:  callbackURL,
		FailureURL:  callbackURL,
		UDF1:        order.ID.String(),
		UDF2:        payment.FormatAmount(priced.DiscountPaise),
		UDF3:        fmt.Sprintf("%d", priced.ItemCount),
		UDF4:        p.Address,
		UDF5:        packShippingUDF(p, session),
	})

	if telemetry.Business != nil {
		telemetry.Business.CheckoutStarted.WithLabelValues().Inc()
		telemetry.Business.CartValue.WithLabelValues().Observe(float64(priced.TotalPaise))
	}
	s.logger.Info("payment handoff built",
		"order_id", order.ID, "total_paise", priced.TotalPaise)
	return &req, order.ID, nil
}

// CallbackOutcome reports what a verified gateway callback did. Replayed and
// Cancelled outcomes are still acknowledged with success to the gateway.
type CallbackOutcome struct {
	OrderID   uuid.UUID
	Confirmed bool
	Cancelled bool
	Replayed  bool
	Status    string
}

// HandleCallback verifies a gateway return post and drives the order state
// machine. Nothing in the payload is trusted before the signature check. A
// success callback confirms the order exactly once and triggers shipment and
// notifications; duplicates are acknowledged without effect; a failure
// callback cancels the order only if it is still pending.
func (s *CheckoutService) HandleCallback(ctx context.Context, form url.Values) (CallbackOutcome, error) {
	const op = "checkout.handle_callback"

	cb, err := s.gateway.VerifyCallback(form)
	if err != nil {
		s.logger.Warn("rejected payment callback", "error", err)
		return CallbackOutcome{}, err
	}

	orderID, err := uuid.Parse(cb.UDF1)
	if err != nil {
		return CallbackOutcome{}, domain.Invalid(op, "callback carries no valid order reference")
	}

	order, err := s.orders.GetByTxnID(ctx, cb.TxnID)
	if err != nil {
		return CallbackOutcome{}, err
	}
	if order.ID != orderID {
		// Signed fields disagree with our records; treat as hostile.
		return CallbackOutcome{}, domain.Unauthorized(op, "callback order reference mismatch")
	}
	if cb.AmountPaise != order.TotalPaise {
		return CallbackOutcome{}, domain.Unauthorized(op, "callback amount does not match order total")
	}

	outcome := CallbackOutcome{OrderID: order.ID, Status: cb.Status}

	if !cb.Succeeded() {
		cancelled, err := s.orders.CancelPending(ctx, order.ID)
		if err != nil {
			// Best-effort cleanup; a failed cancel must not bounce the webhook.
			s.logger.Error("failed to cancel unpaid order", "order_id", order.ID, "error", err)
		}
		outcome.Cancelled = cancelled
		if telemetry.Business != nil {
			telemetry.Business.PaymentFailed.WithLabelValues(cb.Status).Inc()
		}
		s.logger.Info("payment did not succeed", "order_id", order.ID, "status", cb.Status)
		return outcome, nil
	}

	details := contactDetailsFromCallback(cb)
	err = s.orders.ConfirmPayment(ctx, order.ID, details, cb.PaymentID)
	if domain.IsCode(err, domain.ECONFLICT) {
		// Replayed success callback: exactly one delivery won the transition,
		// this one acknowledges and does nothing.
		outcome.Replayed = true
		if telemetry.Business != nil {
			telemetry.Business.WebhookReplayed.WithLabelValues("payment").Inc()
		}
		s.logger.Info("duplicate success callback acknowledged", "order_id", order.ID)
		return outcome, nil
	}
	if err != nil {
		return CallbackOutcome{}, err
	}
	outcome.Confirmed = true

	// Refresh the order with the fields the confirmation just applied.
	order, err = s.orders.Get(ctx, order.ID)
	if err != nil {
		return outcome, nil
	}
	items, err := s.orders.ListItems(ctx, order.ID)
	if err != nil {
		s.logger.Error("failed to load order items for fulfillment", "order_id", order.ID, "error", err)
		items = nil
	}

	if telemetry.Business != nil {
		telemetry.Business.PaymentSucceeded.WithLabelValues().Inc()
		telemetry.Business.OrdersConfirmed.WithLabelValues().Inc()
		telemetry.Business.OrderValue.WithLabelValues().Observe(float64(order.TotalPaise))
		telemetry.Business.OrderItemCount.WithLabelValues().Observe(float64(len(items)))
		telemetry.Business.RevenueCollected.WithLabelValues().Add(float64(order.TotalPaise))
	}
	s.publisher.PublishOrder(ctx, events.SubjectOrderConfirmed, order, int32(len(items)))

	// Shipment is strictly after the point of no return: any failure leaves
	// the order processing for manual dispatch and the buyer still sees
	// success.
	if s.fulfiller != nil {
		if err := s.fulfiller.CreateShipment(ctx, order, items); err != nil {
			s.logger.Error("shipment creation failed, order stays processing",
				"order_id", order.ID, "error", err)
			if telemetry.Business != nil {
				telemetry.Business.ShipmentFailed.WithLabelValues().Inc()
			}
			if s.notifier != nil {
				s.notifier.ShipmentFailed(ctx, order, err)
			}
		} else {
			s.publisher.PublishOrder(ctx, events.SubjectOrderShipped, order, int32(len(items)))
			if s.notifier != nil {
				s.notifier.OrderShipped(ctx, order)
			}
		}
	}

	if s.notifier != nil {
		s.notifier.OrderConfirmed(ctx, order, items)
	}
	return outcome, nil
}

// Quote returns up to three courier options for a destination pincode, ranked
// by price. When the carrier is unreachable the fixed flat-rate pair is
// served instead so checkout never dead-ends on a quote.
func (s *CheckoutService) Quote(ctx context.Context, sessionID uuid.UUID, pincode string) (rates []shipping.Rate, fromFallback bool, err error) {
	const op = "checkout.quote"

	if !validPincode(pincode) {
		return nil, false, domain.Invalid(op, "pincode must be 6 digits")
	}

	// Parcel metrics come from the current cart; an empty cart quotes as a
	// single-line parcel.
	lines := 1
	if items, lerr := s.sessions.ListItems(ctx, sessionID); lerr == nil && len(items) > 0 {
		lines = len(items)
	}
	pkg := PackageFor(make([]domain.OrderItem, lines))

	if telemetry.Business != nil {
		telemetry.Business.QuoteRequests.WithLabelValues().Inc()
	}

	params := shipping.RateParams{
		PickupPincode:   s.pickupPincode,
		DeliveryPincode: pincode,
		Package:         pkg,
	}
	rates, err = s.carrier.GetRates(ctx, params)
	if err != nil {
		s.logger.Warn("carrier quote failed, serving flat rates", "error", err)
		if telemetry.Business != nil {
			telemetry.Business.QuoteFallbacks.WithLabelValues().Inc()
		}
		rates, err = s.fallback.GetRates(ctx, params)
		if err != nil {
			return nil, false, domain.Unavailable(err, op, "no shipping rates available")
		}
		return rates, true, nil
	}

	if len(rates) > 3 {
		rates = rates[:3]
	}
	return rates, false, nil
}

// contactVerified reports whether the submitted contact matches what the
// session proved ownership of.
func contactVerified(session *domain.Session, p StartPaymentParams) bool {
	if session.VerifiedPhone != "" && normalizeDigits(session.VerifiedPhone) == normalizeDigits(p.Phone) {
		return true
	}
	if session.VerifiedEmail != "" && strings.EqualFold(session.VerifiedEmail, p.Email) {
		return true
	}
	return false
}

func validateStartPayment(p StartPaymentParams) error {
	const op = "checkout.start_payment"

	switch {
	case p.FullName == "":
		return domain.Invalid(op, "name is required")
	case p.Email == "":
		return domain.Invalid(op, "email is required")
	case p.Phone == "":
		return domain.Invalid(op, "phone is required")
	case p.Address == "" || p.City == "" || p.State == "":
		return domain.Invalid(op, "delivery address is required")
	case !validPincode(p.PinCode):
		return domain.Invalid(op, "pincode must be 6 digits")
	}
	return nil
}

func validPincode(pincode string) bool {
	if len(pincode) != 6 {
		return false
	}
	for _, r := range pincode {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// normalizeDigits strips everything but digits so "+91 98765-43210" and
// "9876543210" compare equal on their trailing ten digits.
func normalizeDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) > 10 {
		d = d[len(d)-10:]
	}
	return d
}

// packShippingUDF folds the delivery fields the gateway does not sign into
// the signed udf5 slot: city|state|pincode|phone|delivery_type|email_verified.
// The callback handler unpacks the same format.
func packShippingUDF(p StartPaymentParams, session *domain.Session) string {
	emailVerified := "0"
	if session.VerifiedEmail != "" && strings.EqualFold(session.VerifiedEmail, p.Email) {
		emailVerified = "1"
	}
	deliveryType := p.DeliveryType
	if deliveryType == "" {
		deliveryType = "standard"
	}
	return strings.Join([]string{p.City, p.State, p.PinCode, p.Phone, deliveryType, emailVerified}, "|")
}

// contactDetailsFromCallback rebuilds the trusted contact fields from signed
// callback content only.
func contactDetailsFromCallback(cb payment.Callback) domain.ContactDetails {
	details := domain.ContactDetails{
		FullName:      cb.FirstName,
		Email:         cb.Email,
		Address:       cb.UDF4,
		PaymentMethod: cb.Mode,
		DeliveryType:  "standard",
	}
	parts := strings.Split(cb.UDF5, "|")
	if len(parts) >= 6 {
		details.City = parts[0]
		details.State = parts[1]
		details.PinCode = parts[2]
		details.PhoneNumber = parts[3]
		details.DeliveryType = parts[4]
		if parts[5] == "1" {
			details.VerifiedEmail = cb.Email
		}
	}
	return details
}
