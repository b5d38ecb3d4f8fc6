package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/pricing"
	"github.com/dukerupert/vellum/internal/telemetry"
)

// CartService mutates session carts and reports their priced state.
type CartService struct {
	sessions SessionStore
	policy   pricing.Policy
	logger   *slog.Logger
}

func NewCartService(sessions SessionStore, policy pricing.Policy, logger *slog.Logger) *CartService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartService{sessions: sessions, policy: policy, logger: logger}
}

// CartView is the priced state of a cart returned by every mutation.
type CartView struct {
	Items   []domain.CartItem
	Addons  []string
	Pricing pricing.Result
}

// ParseItemKey splits a composite "{type}_{id}" cart key.
func ParseItemKey(key string) (itemType string, itemID int64, err error) {
	const op = "cart.parse_key"

	t, idStr, found := strings.Cut(key, "_")
	if !found || t == "" {
		return "", 0, domain.Invalid(op, "malformed item key")
	}
	id, perr := strconv.ParseInt(idStr, 10, 64)
	if perr != nil {
		return "", 0, domain.Invalid(op, "malformed item key")
	}
	return t, id, nil
}

// Add puts an item into the cart, stacking quantity onto an existing line
// with the same key. With buyNow set, the cart is cleared first so checkout
// proceeds with just this title.
func (s *CartService) Add(ctx context.Context, sessionID uuid.UUID, item domain.CartItem, buyNow bool) (*CartView, error) {
	const op = "cart.add"

	if item.Quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	if item.UnitPricePaise < 0 {
		return nil, domain.ErrInvalidPrice
	}
	if item.ItemType == "" || item.Title == "" {
		return nil, domain.Invalid(op, "item type and title are required")
	}

	if buyNow {
		if err := s.sessions.ClearCart(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	if err := s.sessions.AddItem(ctx, sessionID, item); err != nil {
		return nil, err
	}

	if telemetry.Business != nil {
		telemetry.Business.CartItemsAdded.WithLabelValues(item.ItemType).Add(float64(item.Quantity))
		telemetry.Business.CartUpdated.WithLabelValues("add").Inc()
	}
	return s.View(ctx, sessionID)
}

// UpdateQuantity sets the absolute quantity of a line; zero removes it.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID uuid.UUID, key string, quantity int32) (*CartView, error) {
	itemType, itemID, err := ParseItemKey(key)
	if err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	if quantity == 0 {
		err = s.sessions.RemoveItem(ctx, sessionID, itemType, itemID)
	} else {
		err = s.sessions.UpdateQuantity(ctx, sessionID, itemType, itemID, quantity)
	}
	if err != nil {
		return nil, err
	}

	if telemetry.Business != nil {
		telemetry.Business.CartUpdated.WithLabelValues("update_quantity").Inc()
	}
	return s.View(ctx, sessionID)
}

// Remove drops a line from the cart.
func (s *CartService) Remove(ctx context.Context, sessionID uuid.UUID, key string) (*CartView, error) {
	itemType, itemID, err := ParseItemKey(key)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.RemoveItem(ctx, sessionID, itemType, itemID); err != nil {
		return nil, err
	}

	if telemetry.Business != nil {
		telemetry.Business.CartUpdated.WithLabelValues("remove").Inc()
	}
	return s.View(ctx, sessionID)
}

// Clear empties the cart and add-on selection.
func (s *CartService) Clear(ctx context.Context, sessionID uuid.UUID) error {
	return s.sessions.ClearCart(ctx, sessionID)
}

// SetAddons replaces the add-on selection. Unknown names are rejected before
// anything is written.
func (s *CartService) SetAddons(ctx context.Context, sessionID uuid.UUID, names []string) (*CartView, error) {
	for _, name := range names {
		if _, ok := s.policy.AddOnPricesPaise[name]; !ok {
			return nil, domain.ErrUnknownAddOn
		}
	}
	if err := s.sessions.SetAddons(ctx, sessionID, names); err != nil {
		return nil, err
	}

	if telemetry.Business != nil {
		telemetry.Business.CartUpdated.WithLabelValues("addons").Inc()
	}
	return s.View(ctx, sessionID)
}

// View returns the cart's lines, add-ons and pricing breakdown. An empty cart
// prices to all zeros.
func (s *CartService) View(ctx context.Context, sessionID uuid.UUID) (*CartView, error) {
	items, err := s.sessions.ListItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	addons, err := s.sessions.ListAddons(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	view := &CartView{Items: items, Addons: addons}
	if len(items) > 0 {
		view.Pricing, err = pricing.Compute(items, addons, s.policy)
		if err != nil {
			return nil, err
		}
	}
	return view, nil
}
