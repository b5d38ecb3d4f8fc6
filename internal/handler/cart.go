package handler

import (
	"net/http"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/pricing"
	"github.com/dukerupert/vellum/internal/service"
)

// CartHandler exposes the session cart as JSON.
type CartHandler struct {
	cart     *service.CartService
	sessions *Sessions
}

func NewCartHandler(cart *service.CartService, sessions *Sessions) *CartHandler {
	return &CartHandler{cart: cart, sessions: sessions}
}

// cartItemResponse is one cart line on the wire.
type cartItemResponse struct {
	Key            string `json:"key"`
	Title          string `json:"title"`
	UnitPricePaise int64  `json:"unit_price_paise"`
	Quantity       int32  `json:"quantity"`
	ImageURL       string `json:"image_url,omitempty"`
}

// cartResponse is the priced cart state returned by every cart endpoint.
type cartResponse struct {
	Items   []cartItemResponse `json:"items"`
	Addons  []string           `json:"addons"`
	Pricing pricingResponse    `json:"pricing"`
}

type pricingResponse struct {
	SubtotalPaise int64 `json:"subtotal_paise"`
	AddOnPaise    int64 `json:"addon_paise"`
	ShippingPaise int64 `json:"shipping_paise"`
	DiscountPaise int64 `json:"discount_paise"`
	TotalPaise    int64 `json:"total_paise"`
	ItemCount     int32 `json:"item_count"`
}

func toCartResponse(view *service.CartView) cartResponse {
	resp := cartResponse{
		Items:   make([]cartItemResponse, 0, len(view.Items)),
		Addons:  view.Addons,
		Pricing: toPricingResponse(view.Pricing),
	}
	if resp.Addons == nil {
		resp.Addons = []string{}
	}
	for _, it := range view.Items {
		resp.Items = append(resp.Items, cartItemResponse{
			Key:            it.Key(),
			Title:          it.Title,
			UnitPricePaise: it.UnitPricePaise,
			Quantity:       it.Quantity,
			ImageURL:       it.ImageURL,
		})
	}
	return resp
}

func toPricingResponse(p pricing.Result) pricingResponse {
	return pricingResponse{
		SubtotalPaise: p.SubtotalPaise,
		AddOnPaise:    p.AddOnPaise,
		ShippingPaise: p.ShippingPaise,
		DiscountPaise: p.DiscountPaise,
		TotalPaise:    p.TotalPaise,
		ItemCount:     p.ItemCount,
	}
}

// View handles GET /cart.
func (h *CartHandler) View(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(w, r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	view, err := h.cart.View(r.Context(), session.ID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(view))
}

type addItemRequest struct {
	ItemType       string `json:"item_type" validate:"required"`
	ItemID         int64  `json:"item_id" validate:"required"`
	Title          string `json:"title" validate:"required"`
	UnitPricePaise int64  `json:"unit_price_paise" validate:"gte=0"`
	Quantity       int32  `json:"quantity" validate:"required,gte=1"`
	ImageURL       string `json:"image_url"`
	BuyNow         bool   `json:"buy_now"`
}

// Add handles POST /cart/items. With buy_now set, the cart is replaced by
// this single line so the customer jumps straight to checkout.
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(w, r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	view, err := h.cart.Add(r.Context(), session.ID, domain.CartItem{
		ItemType:       req.ItemType,
		ItemID:         req.ItemID,
		Title:          req.Title,
		UnitPricePaise: req.UnitPricePaise,
		Quantity:       req.Quantity,
		ImageURL:       req.ImageURL,
	}, req.BuyNow)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(view))
}

type updateQuantityRequest struct {
	Quantity int32 `json:"quantity" validate:"gte=0"`
}

// UpdateQuantity handles PATCH /cart/items/{key}. Quantity zero removes the
// line.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(w, r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req updateQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	view, err := h.cart.UpdateQuantity(r.Context(), session.ID, r.PathValue("key"), req.Quantity)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(view))
}

// Remove handles DELETE /cart/items/{key}.
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(w, r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	view, err := h.cart.Remove(r.Context(), session.ID, r.PathValue("key"))
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(view))
}

type setAddonsRequest struct {
	Addons []string `json:"addons" validate:"required"`
}

// SetAddons handles PUT /cart/addons, replacing the add-on selection.
func (h *CartHandler) SetAddons(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(w, r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req setAddonsRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	view, err := h.cart.SetAddons(r.Context(), session.ID, req.Addons)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(view))
}
