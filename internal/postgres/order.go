package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukerupert/vellum/internal/domain"
)

// OrderStore persists orders and their line items. Every status change is a
// compare-and-set against the expected source state so that replayed webhooks
// and concurrent updates cannot skip or rewind the lifecycle.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `id, status, full_name, email, verified_email, phone_number,
	address, city, state, pin_code, delivery_type, payment_method, payment_id,
	carrier_order_id, txn_id, subtotal_paise, shipping_paise, discount_paise,
	addon_paise, total_paise, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var id pgtype.UUID
	err := row.Scan(
		&id, &o.Status, &o.FullName, &o.Email, &o.VerifiedEmail, &o.PhoneNumber,
		&o.Address, &o.City, &o.State, &o.PinCode, &o.DeliveryType, &o.PaymentMethod,
		&o.PaymentID, &o.CarrierOrderID, &o.TxnID, &o.SubtotalPaise, &o.ShippingPaise,
		&o.DiscountPaise, &o.AddonPaise, &o.TotalPaise, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.ID = uuidFromPg(id)
	return &o, nil
}

// CreatePending inserts an order in pending_payment together with its line
// items in one transaction. The order's ID, TxnID and totals must already be
// set by the caller; timestamps are assigned here.
func (s *OrderStore) CreatePending(ctx context.Context, order *domain.Order, items []domain.OrderItem) error {
	const op = "postgres.order.create_pending"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, status, txn_id, subtotal_paise, shipping_paise,
			discount_paise, addon_paise, total_paise)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		pgUUID(order.ID), domain.OrderPendingPayment, order.TxnID,
		order.SubtotalPaise, order.ShippingPaise, order.DiscountPaise,
		order.AddonPaise, order.TotalPaise,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return domain.Internal(err, op, "failed to insert order")
	}
	order.Status = domain.OrderPendingPayment

	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = order.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, item_type, item_id, title,
				unit_price_paise, quantity, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			pgUUID(items[i].ID), pgUUID(order.ID), items[i].ItemType, items[i].ItemID,
			items[i].Title, items[i].UnitPricePaise, items[i].Quantity, items[i].ImageURL,
		)
		if err != nil {
			return domain.Internal(err, op, "failed to insert order item")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, op, "failed to commit transaction")
	}
	return nil
}

// Get returns an order by ID.
func (s *OrderStore) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	const op = "postgres.order.get"

	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, pgUUID(id))
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query order")
	}
	return order, nil
}

// GetByTxnID returns the order that owns a gateway transaction reference.
func (s *OrderStore) GetByTxnID(ctx context.Context, txnID string) (*domain.Order, error) {
	const op = "postgres.order.get_by_txn_id"

	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE txn_id = $1`, txnID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query order")
	}
	return order, nil
}

// ListItems returns the line items of an order.
func (s *OrderStore) ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	const op = "postgres.order.list_items"

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, item_type, item_id, title, unit_price_paise, quantity, image_url
		FROM order_items WHERE order_id = $1 ORDER BY title`, pgUUID(orderID))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query order items")
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		var id, oid pgtype.UUID
		if err := rows.Scan(&id, &oid, &it.ItemType, &it.ItemID, &it.Title,
			&it.UnitPricePaise, &it.Quantity, &it.ImageURL); err != nil {
			return nil, domain.Internal(err, op, "failed to scan order item")
		}
		it.ID = uuidFromPg(id)
		it.OrderID = uuidFromPg(oid)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read order items")
	}
	return items, nil
}

// ConfirmPayment moves pending_payment -> processing and applies the trusted
// contact details from the verified gateway callback. The guard on the current
// status makes a replayed callback a no-op at the storage level; callers see
// ErrInvalidTransition and decide how to acknowledge.
func (s *OrderStore) ConfirmPayment(ctx context.Context, id uuid.UUID, details domain.ContactDetails, paymentID string) error {
	const op = "postgres.order.confirm_payment"

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET
			status = $2, full_name = $3, email = $4, verified_email = $5,
			phone_number = $6, address = $7, city = $8, state = $9, pin_code = $10,
			delivery_type = $11, payment_method = $12, payment_id = $13,
			updated_at = now()
		WHERE id = $1 AND status = $14`,
		pgUUID(id), domain.OrderProcessing, details.FullName, details.Email,
		details.VerifiedEmail, details.PhoneNumber, details.Address,
		details.City, details.State, details.PinCode, details.DeliveryType,
		details.PaymentMethod, paymentID, domain.OrderPendingPayment,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to update order")
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return nil
}

// MarkShipped moves processing -> shipped and records the carrier reference.
// Retrying with the same carrier reference is a no-op; a different reference
// on an already shipped order is reported as ErrCarrierMismatch.
func (s *OrderStore) MarkShipped(ctx context.Context, id uuid.UUID, carrierOrderID string) error {
	const op = "postgres.order.mark_shipped"

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $2, carrier_order_id = $3, updated_at = now()
		WHERE id = $1 AND status = $4`,
		pgUUID(id), domain.OrderShipped, carrierOrderID, domain.OrderProcessing,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to update order")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	order, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.Status == domain.OrderShipped {
		if order.CarrierOrderID == carrierOrderID {
			return nil
		}
		return domain.ErrCarrierMismatch
	}
	return domain.ErrInvalidTransition
}

// MarkDelivered moves shipped -> delivered.
func (s *OrderStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.order.mark_delivered"

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`,
		pgUUID(id), domain.OrderDelivered, domain.OrderShipped,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to update order")
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return nil
}

// Cancel moves an order to cancelled from either pre-shipment state.
func (s *OrderStore) Cancel(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.order.cancel"

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)`,
		pgUUID(id), domain.OrderCancelled, domain.OrderPendingPayment, domain.OrderProcessing,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to update order")
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return nil
}

// CancelPending cancels an order only if it is still awaiting payment and
// reports whether it did. An order that has progressed past pending_payment is
// left untouched and no error is returned: a late failure callback must not
// undo a success.
func (s *OrderStore) CancelPending(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "postgres.order.cancel_pending"

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`,
		pgUUID(id), domain.OrderCancelled, domain.OrderPendingPayment,
	)
	if err != nil {
		return false, domain.Internal(err, op, "failed to update order")
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "already progressed" (fine) from "no such order".
		if _, err := s.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// DeleteStalePending removes pending_payment orders older than cutoff, along
// with their items via cascade. These are abandoned checkouts whose customers
// never returned from the gateway.
func (s *OrderStore) DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "postgres.order.delete_stale_pending"

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM orders WHERE status = $1 AND created_at < $2`,
		domain.OrderPendingPayment, cutoff,
	)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to delete stale orders")
	}
	return tag.RowsAffected(), nil
}

// transitionConflict maps a zero-row CAS update to the right domain error by
// re-reading the order.
func (s *OrderStore) transitionConflict(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}
