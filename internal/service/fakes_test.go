package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/vellum/internal/domain"
)

// memOrders is an in-memory OrderStore mirroring the guarded-transition
// semantics of the postgres store.
type memOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
	items  map[uuid.UUID][]domain.OrderItem
	byTxn  map[string]uuid.UUID
}

func newMemOrders() *memOrders {
	return &memOrders{
		orders: make(map[uuid.UUID]*domain.Order),
		items:  make(map[uuid.UUID][]domain.OrderItem),
		byTxn:  make(map[string]uuid.UUID),
	}
}

func (s *memOrders) CreatePending(_ context.Context, order *domain.Order, items []domain.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *order
	cp.Status = domain.OrderPendingPayment
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.orders[cp.ID] = &cp
	s.byTxn[cp.TxnID] = cp.ID
	lines := make([]domain.OrderItem, len(items))
	copy(lines, items)
	for i := range lines {
		lines[i].OrderID = cp.ID
	}
	s.items[cp.ID] = lines
	order.Status = cp.Status
	order.CreatedAt = cp.CreatedAt
	return nil
}

func (s *memOrders) Get(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memOrders) GetByTxnID(_ context.Context, txnID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byTxn[txnID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *s.orders[id]
	return &cp, nil
}

func (s *memOrders) ListItems(_ context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]domain.OrderItem, len(s.items[orderID]))
	copy(lines, s.items[orderID])
	return lines, nil
}

func (s *memOrders) ConfirmPayment(_ context.Context, id uuid.UUID, details domain.ContactDetails, paymentID string) error {
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
	o.Email = details.Email
	o.VerifiedEmail = details.VerifiedEmail
	o.PhoneNumber = details.PhoneNumber
	o.Address = details.Address
	o.City = details.City
	o.State = details.State
	o.PinCode = details.PinCode
	o.DeliveryType = details.DeliveryType
	o.PaymentMethod = details.PaymentMethod
	o.PaymentID = paymentID
	o.UpdatedAt = time.Now()
	return nil
}

func (s *memOrders) MarkShipped(_ context.Context, id uuid.UUID, carrierOrderID string) error {
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

func (s *memOrders) MarkDelivered(_ context.Context, id uuid.UUID) error {
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

func (s *memOrders) Cancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status != domain.OrderPendingPayment && o.Status != domain.OrderProcessing {
		return domain.ErrInvalidTransition
	}
	o.Status = domain.OrderCancelled
	return nil
}

func (s *memOrders) CancelPending(_ context.Context, id uuid.UUID) (bool, error) {
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

func (s *memOrders) DeleteStalePending(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, o := range s.orders {
		if o.Status == domain.OrderPendingPayment && o.CreatedAt.Before(cutoff) {
			delete(s.orders, id)
			delete(s.items, id)
			delete(s.byTxn, o.TxnID)
			n++
		}
	}
	return n, nil
}

// memSessions is an in-memory SessionStore.
type memSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
	items    map[uuid.UUID][]domain.CartItem
	addons   map[uuid.UUID][]string
}

func newMemSessions() *memSessions {
	return &memSessions{
		sessions: make(map[uuid.UUID]*domain.Session),
		items:    make(map[uuid.UUID][]domain.CartItem),
		addons:   make(map[uuid.UUID][]string),
	}
}

func (s *memSessions) seed(sess *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *memSessions) GetOrCreate(_ context.Context, token string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Token == token {
			cp := *sess
			return &cp, nil
		}
	}
	sess := &domain.Session{ID: uuid.New(), Token: token, CreatedAt: time.Now()}
	s.sessions[sess.ID] = sess
	cp := *sess
	return &cp, nil
}

func (s *memSessions) AddItem(_ context.Context, sessionID uuid.UUID, item domain.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items[sessionID] {
		if it.ItemType == item.ItemType && it.ItemID == item.ItemID {
			s.items[sessionID][i].Quantity += item.Quantity
			return nil
		}
	}
	s.items[sessionID] = append(s.items[sessionID], item)
	return nil
}

func (s *memSessions) UpdateQuantity(_ context.Context, sessionID uuid.UUID, itemType string, itemID int64, quantity int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items[sessionID] {
		if it.ItemType == itemType && it.ItemID == itemID {
			s.items[sessionID][i].Quantity = quantity
			return nil
		}
	}
	return domain.ErrCartItemNotFound
}

func (s *memSessions) RemoveItem(_ context.Context, sessionID uuid.UUID, itemType string, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.items[sessionID]
	for i, it := range lines {
		if it.ItemType == itemType && it.ItemID == itemID {
			s.items[sessionID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return domain.ErrCartItemNotFound
}

func (s *memSessions) ListItems(_ context.Context, sessionID uuid.UUID) ([]domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]domain.CartItem, len(s.items[sessionID]))
	copy(lines, s.items[sessionID])
	return lines, nil
}

func (s *memSessions) SetAddons(_ context.Context, sessionID uuid.UUID, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addons[sessionID] = append([]string(nil), names...)
	return nil
}

func (s *memSessions) ListAddons(_ context.Context, sessionID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.addons[sessionID]...), nil
}

func (s *memSessions) ClearCart(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sessionID)
	delete(s.addons, sessionID)
	return nil
}
