package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/service"
	"github.com/dukerupert/vellum/internal/shipping"
)

// CheckoutHandler exposes payment initiation, shipping quotes and order
// status.
type CheckoutHandler struct {
	checkout  *service.CheckoutService
	fulfiller *service.Fulfiller
	orders    service.OrderStore
	sessions  *Sessions
}

func NewCheckoutHandler(checkout *service.CheckoutService, fulfiller *service.Fulfiller, orders service.OrderStore, sessions *Sessions) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, fulfiller: fulfiller, orders: orders, sessions: sessions}
}

type startPaymentRequest struct {
	FullName     string `json:"full_name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required"`
	Address      string `json:"address" validate:"required"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state" validate:"required"`
	PinCode      string `json:"pin_code" validate:"required,len=6,numeric"`
	DeliveryType string `json:"delivery_type" validate:"omitempty,oneof=standard express"`
}

// startPaymentResponse carries the signed gateway form the browser must post.
type startPaymentResponse struct {
	OrderID    string            `json:"order_id"`
	GatewayURL string            `json:"gateway_url"`
	Fields     map[string]string `json:"fields"`
}

// StartPayment handles POST /checkout/payment: snapshots the cart into an
// order and returns the signed gateway handoff.
func (h *CheckoutHandler) StartPayment(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(w, r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req startPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	gwReq, orderID, err := h.checkout.StartPayment(r.Context(), session, service.StartPaymentParams{
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		City:         req.City,
		State:        req.State,
		PinCode:      req.PinCode,
		DeliveryType: req.DeliveryType,
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, startPaymentResponse{
		OrderID:    orderID.String(),
		GatewayURL: gwReq.GatewayURL,
		Fields:     gwReq.Fields,
	})
}

type rateResponse struct {
	CourierCode   string `json:"courier_code"`
	CourierName   string `json:"courier_name"`
	CostPaise     int64  `json:"cost_paise"`
	EstimatedDays int32  `json:"estimated_days"`
	ETD           string `json:"etd,omitempty"`
}

type quoteResponse struct {
	Rates    []rateResponse `json:"rates"`
	FlatRate bool           `json:"flat_rate"`
}

// Quote handles GET /shipping/quote?pincode=NNNNNN.
func (h *CheckoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(w, r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	rates, fromFallback, err := h.checkout.Quote(r.Context(), session.ID, r.URL.Query().Get("pincode"))
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	resp := quoteResponse{Rates: make([]rateResponse, 0, len(rates)), FlatRate: fromFallback}
	for _, rate := range rates {
		resp.Rates = append(resp.Rates, toRateResponse(rate))
	}
	respondJSON(w, http.StatusOK, resp)
}

func toRateResponse(rate shipping.Rate) rateResponse {
	return rateResponse{
		CourierCode:   rate.CourierCode,
		CourierName:   rate.CourierName,
		CostPaise:     rate.CostPaise,
		EstimatedDays: rate.EstimatedDays,
		ETD:           rate.ETD,
	}
}

type orderResponse struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	TotalPaise     int64  `json:"total_paise"`
	CarrierOrderID string `json:"carrier_order_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// GetOrder handles GET /orders/{id}: the order confirmation view.
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("checkout.get_order", "malformed order id"))
		return
	}

	order, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, orderResponse{
		OrderID:        order.ID.String(),
		Status:         string(order.Status),
		TotalPaise:     order.TotalPaise,
		CarrierOrderID: order.CarrierOrderID,
		CreatedAt:      order.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

type trackingResponse struct {
	Status string          `json:"status"`
	Events []trackingEvent `json:"events"`
}

type trackingEvent struct {
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// Track handles GET /orders/{id}/tracking.
func (h *CheckoutHandler) Track(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("checkout.track", "malformed order id"))
		return
	}

	info, err := h.fulfiller.Track(r.Context(), orderID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	resp := trackingResponse{Status: info.Status, Events: make([]trackingEvent, 0, len(info.Events))}
	for _, e := range info.Events {
		resp.Events = append(resp.Events, trackingEvent{
			Timestamp:   e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			Status:      e.Status,
			Location:    e.Location,
			Description: e.Description,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}
