package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryChannel identifies how a one-time code reaches the customer.
type DeliveryChannel string

const (
	ChannelSMS      DeliveryChannel = "sms"
	ChannelWhatsApp DeliveryChannel = "whatsapp"
	ChannelEmail    DeliveryChannel = "email"
)

// Valid reports whether c is a supported delivery channel.
func (c DeliveryChannel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelWhatsApp, ChannelEmail:
		return true
	}
	return false
}

// Challenge is a short-lived one-time code bound to a contact channel.
// A challenge is single-use: once verified it cannot be verified again, and
// once expired it must be rejected and discarded.
type Challenge struct {
	ID        uuid.UUID
	Contact   string
	Channel   DeliveryChannel
	Code      string
	Verified  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the challenge is past its expiry window at now.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Verification-related domain errors.
var (
	ErrChallengeNotFound  = &Error{Code: ENOTFOUND, Message: "Invalid verification session"}
	ErrChallengeExpired   = &Error{Code: EGONE, Message: "Code has expired, please request a new one"}
	ErrCodeMismatch       = &Error{Code: EINVALID, Message: "Incorrect code, please try again"}
	ErrAlreadyVerified    = &Error{Code: ECONFLICT, Message: "Contact is already verified"}
	ErrContactNotVerified = &Error{Code: EFORBIDDEN, Message: "Contact must be verified before providing a shipping address"}
)
