package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukerupert/vellum/internal/domain"
)

// SessionStore persists anonymous shopper sessions, their carts and their
// verified contacts.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	var id pgtype.UUID
	err := row.Scan(&id, &s.Token, &s.VerifiedPhone, &s.VerifiedEmail, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.ID = uuidFromPg(id)
	return &s, nil
}

// GetOrCreate returns the session for a cookie token, creating it on first
// sight. Concurrent first requests race on the unique token; the loser of the
// insert re-reads the winner's row.
func (s *SessionStore) GetOrCreate(ctx context.Context, token string) (*domain.Session, error) {
	const op = "postgres.session.get_or_create"

	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (token) VALUES ($1)
		ON CONFLICT (token) DO UPDATE SET updated_at = now()
		RETURNING id, token, verified_phone, verified_email, created_at, updated_at`,
		token)
	session, err := scanSession(row)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to upsert session")
	}
	return session, nil
}

// GetByToken returns the session for a cookie token without creating one.
func (s *SessionStore) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	const op = "postgres.session.get_by_token"

	row := s.pool.QueryRow(ctx, `
		SELECT id, token, verified_phone, verified_email, created_at, updated_at
		FROM sessions WHERE token = $1`, token)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(op, "session", token)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query session")
	}
	return session, nil
}

// SetVerifiedContact records a contact that passed OTP verification. The
// channel decides which slot it fills.
func (s *SessionStore) SetVerifiedContact(ctx context.Context, sessionID uuid.UUID, channel domain.DeliveryChannel, contact string) error {
	const op = "postgres.session.set_verified_contact"

	column := "verified_phone"
	if channel == domain.ChannelEmail {
		column = "verified_email"
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET `+column+` = $2, updated_at = now() WHERE id = $1`,
		pgUUID(sessionID), contact)
	if err != nil {
		return domain.Internal(err, op, "failed to update session")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(op, "session", sessionID.String())
	}
	return nil
}

// AddItem adds a cart line or, when the same item key already exists,
// increments its quantity.
func (s *SessionStore) AddItem(ctx context.Context, sessionID uuid.UUID, item domain.CartItem) error {
	const op = "postgres.session.add_item"

	_, err := s.pool.Exec(ctx, `
		INSERT INTO cart_items (session_id, item_type, item_id, title, unit_price_paise, quantity, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, item_type, item_id) DO UPDATE SET
			quantity = cart_items.quantity + EXCLUDED.quantity,
			updated_at = now()`,
		pgUUID(sessionID), item.ItemType, item.ItemID, item.Title,
		item.UnitPricePaise, item.Quantity, item.ImageURL)
	if err != nil {
		return domain.Internal(err, op, "failed to upsert cart item")
	}
	return nil
}

// UpdateQuantity sets the absolute quantity of an existing cart line.
func (s *SessionStore) UpdateQuantity(ctx context.Context, sessionID uuid.UUID, itemType string, itemID int64, quantity int32) error {
	const op = "postgres.session.update_quantity"

	tag, err := s.pool.Exec(ctx, `
		UPDATE cart_items SET quantity = $4, updated_at = now()
		WHERE session_id = $1 AND item_type = $2 AND item_id = $3`,
		pgUUID(sessionID), itemType, itemID, quantity)
	if err != nil {
		return domain.Internal(err, op, "failed to update cart item")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

// RemoveItem deletes a cart line.
func (s *SessionStore) RemoveItem(ctx context.Context, sessionID uuid.UUID, itemType string, itemID int64) error {
	const op = "postgres.session.remove_item"

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM cart_items
		WHERE session_id = $1 AND item_type = $2 AND item_id = $3`,
		pgUUID(sessionID), itemType, itemID)
	if err != nil {
		return domain.Internal(err, op, "failed to delete cart item")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

// ListItems returns the cart lines of a session in insertion order.
func (s *SessionStore) ListItems(ctx context.Context, sessionID uuid.UUID) ([]domain.CartItem, error) {
	const op = "postgres.session.list_items"

	rows, err := s.pool.Query(ctx, `
		SELECT item_type, item_id, title, unit_price_paise, quantity, image_url
		FROM cart_items WHERE session_id = $1 ORDER BY created_at`,
		pgUUID(sessionID))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query cart items")
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ItemType, &it.ItemID, &it.Title,
			&it.UnitPricePaise, &it.Quantity, &it.ImageURL); err != nil {
			return nil, domain.Internal(err, op, "failed to scan cart item")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read cart items")
	}
	return items, nil
}

// SetAddons replaces the session's add-on selection with the given names.
func (s *SessionStore) SetAddons(ctx context.Context, sessionID uuid.UUID, names []string) error {
	const op = "postgres.session.set_addons"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cart_addons WHERE session_id = $1`, pgUUID(sessionID)); err != nil {
		return domain.Internal(err, op, "failed to clear add-ons")
	}
	for _, name := range names {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cart_addons (session_id, name) VALUES ($1, $2)
			ON CONFLICT (session_id, name) DO NOTHING`,
			pgUUID(sessionID), name); err != nil {
			return domain.Internal(err, op, "failed to insert add-on")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, op, "failed to commit transaction")
	}
	return nil
}

// ListAddons returns the session's selected add-on names.
func (s *SessionStore) ListAddons(ctx context.Context, sessionID uuid.UUID) ([]string, error) {
	const op = "postgres.session.list_addons"

	rows, err := s.pool.Query(ctx, `
		SELECT name FROM cart_addons WHERE session_id = $1 ORDER BY name`,
		pgUUID(sessionID))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query add-ons")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, domain.Internal(err, op, "failed to scan add-on")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read add-ons")
	}
	return names, nil
}

// ClearCart removes all cart lines and add-ons from a session. Called after
// the cart has been snapshotted into a pending order.
func (s *SessionStore) ClearCart(ctx context.Context, sessionID uuid.UUID) error {
	const op = "postgres.session.clear_cart"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE session_id = $1`, pgUUID(sessionID)); err != nil {
		return domain.Internal(err, op, "failed to clear cart items")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_addons WHERE session_id = $1`, pgUUID(sessionID)); err != nil {
		return domain.Internal(err, op, "failed to clear add-ons")
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, op, "failed to commit transaction")
	}
	return nil
}
