package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/handler"
	"github.com/dukerupert/vellum/internal/service"
	"github.com/dukerupert/vellum/internal/telemetry"
)

// carrierTokenHeader carries the shared webhook token configured in the
// carrier dashboard.
const carrierTokenHeader = "X-Webhook-Token"

// CarrierHandler receives shipment status updates from the carrier.
type CarrierHandler struct {
	fulfiller *service.Fulfiller
	token     string
}

func NewCarrierHandler(fulfiller *service.Fulfiller, token string) *CarrierHandler {
	return &CarrierHandler{fulfiller: fulfiller, token: token}
}

// carrierUpdatePayload is the carrier's webhook body. The order reference is
// our order ID, echoed back from shipment registration.
type carrierUpdatePayload struct {
	OrderRef       string `json:"order_id"`
	CarrierOrderID string `json:"sr_order_id"`
	Status         string `json:"current_status"`
}

// Handle processes POST /webhooks/carrier. Out-of-order and replayed updates
// are acknowledged with 200 so the carrier stops retrying; only bad tokens
// and unparseable bodies are refused.
func (h *CarrierHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if telemetry.Business != nil {
		telemetry.Business.WebhookReceived.WithLabelValues("carrier").Inc()
		defer func() {
			telemetry.Business.WebhookLatency.WithLabelValues("carrier").Observe(time.Since(start).Seconds())
		}()
	}

	got := r.Header.Get(carrierTokenHeader)
	if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		if telemetry.Business != nil {
			telemetry.Business.WebhookRejected.WithLabelValues("carrier").Inc()
		}
		handler.ErrorResponse(w, r, domain.Unauthorized("webhook.carrier", "invalid webhook token"))
		return
	}

	var payload carrierUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("webhook.carrier", "malformed webhook body"))
		return
	}
	orderID, err := uuid.Parse(payload.OrderRef)
	if err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("webhook.carrier", "malformed order reference"))
		return
	}

	err = h.fulfiller.ApplyCarrierUpdate(r.Context(), service.CarrierUpdate{
		OrderID:        orderID,
		CarrierOrderID: payload.CarrierOrderID,
		Status:         payload.Status,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrCarrierMismatch):
		// Replay or out-of-order delivery. Acknowledge so the carrier does
		// not retry forever; the stored state already won.
		if telemetry.Business != nil {
			telemetry.Business.WebhookReplayed.WithLabelValues("carrier").Inc()
		}
	default:
		handler.ErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
