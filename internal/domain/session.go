package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is an anonymous shopper identified by an opaque cookie token.
// It owns a cart and records which contacts have passed OTP verification,
// since there are no customer accounts.
type Session struct {
	ID            uuid.UUID
	Token         string
	VerifiedPhone string
	VerifiedEmail string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasVerifiedContact reports whether at least one contact channel has been
// verified. Checkout is gated on this.
func (s Session) HasVerifiedContact() bool {
	return s.VerifiedPhone != "" || s.VerifiedEmail != ""
}
