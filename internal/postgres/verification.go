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

// ChallengeStore persists one-time verification codes.
type ChallengeStore struct {
	pool *pgxpool.Pool
}

func NewChallengeStore(pool *pgxpool.Pool) *ChallengeStore {
	return &ChallengeStore{pool: pool}
}

// Create inserts a challenge. The caller sets ID, code and expiry.
func (s *ChallengeStore) Create(ctx context.Context, ch *domain.Challenge) error {
	const op = "postgres.challenge.create"

	err := s.pool.QueryRow(ctx, `
		INSERT INTO verification_challenges (id, contact, channel, code, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		pgUUID(ch.ID), ch.Contact, ch.Channel, ch.Code, ch.ExpiresAt,
	).Scan(&ch.CreatedAt)
	if err != nil {
		return domain.Internal(err, op, "failed to insert challenge")
	}
	return nil
}

// Get returns a challenge by ID.
func (s *ChallengeStore) Get(ctx context.Context, id uuid.UUID) (*domain.Challenge, error) {
	const op = "postgres.challenge.get"

	var ch domain.Challenge
	var chID pgtype.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id, contact, channel, code, verified, created_at, expires_at
		FROM verification_challenges WHERE id = $1`, pgUUID(id),
	).Scan(&chID, &ch.Contact, &ch.Channel, &ch.Code, &ch.Verified, &ch.CreatedAt, &ch.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrChallengeNotFound
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query challenge")
	}
	ch.ID = uuidFromPg(chID)
	return &ch, nil
}

// MarkVerified flips an unverified challenge to verified. A challenge that is
// already verified reports ErrAlreadyVerified so a code cannot be used twice.
func (s *ChallengeStore) MarkVerified(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.challenge.mark_verified"

	tag, err := s.pool.Exec(ctx, `
		UPDATE verification_challenges SET verified = TRUE
		WHERE id = $1 AND verified = FALSE`, pgUUID(id))
	if err != nil {
		return domain.Internal(err, op, "failed to update challenge")
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrAlreadyVerified
	}
	return nil
}

// Delete removes a challenge, e.g. after its delivery failed.
func (s *ChallengeStore) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.challenge.delete"

	if _, err := s.pool.Exec(ctx, `
		DELETE FROM verification_challenges WHERE id = $1`, pgUUID(id)); err != nil {
		return domain.Internal(err, op, "failed to delete challenge")
	}
	return nil
}

// DeleteUnverifiedByContact clears pending codes for a contact so a reissue
// leaves exactly one active challenge.
func (s *ChallengeStore) DeleteUnverifiedByContact(ctx context.Context, contact string) error {
	const op = "postgres.challenge.delete_unverified_by_contact"

	if _, err := s.pool.Exec(ctx, `
		DELETE FROM verification_challenges
		WHERE contact = $1 AND verified = FALSE`, contact); err != nil {
		return domain.Internal(err, op, "failed to delete challenges")
	}
	return nil
}

// DeleteExpired removes challenges whose expiry passed before cutoff.
func (s *ChallengeStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "postgres.challenge.delete_expired"

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM verification_challenges WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to delete expired challenges")
	}
	return tag.RowsAffected(), nil
}
