// Package sms delivers one-time codes over SMS and WhatsApp.
package sms

import (
	"context"
	"errors"
	"strings"
)

// Sender delivers a short text message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

var (
	// ErrMissingCredentials means the sender was constructed without an API key.
	ErrMissingCredentials = errors.New("sms credentials required")

	// ErrDeliveryFailed means the provider accepted the request but refused
	// to deliver. Verification challenges must be discarded when sending
	// fails, so callers treat this the same as a transport error.
	ErrDeliveryFailed = errors.New("message delivery failed")
)

// NormalizePhone strips spaces and dashes and prepends the default country
// prefix to bare 10-digit numbers.
func NormalizePhone(phone, countryPrefix string) string {
	s := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, phone)
	if !strings.HasPrefix(s, "+") && len(s) == 10 {
		return countryPrefix + s
	}
	return s
}
