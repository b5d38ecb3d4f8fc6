package shipping

import "errors"

var (
	// ErrNotImplemented is returned when a provider does not support a method.
	ErrNotImplemented = errors.New("not implemented")

	// ErrMissingCredentials means the provider was constructed without the
	// account credentials it needs.
	ErrMissingCredentials = errors.New("carrier credentials required")

	// ErrDestinationRequired means the delivery pincode was empty.
	ErrDestinationRequired = errors.New("delivery pincode required")

	// ErrNoRates means the carrier returned no serviceable couriers.
	ErrNoRates = errors.New("no couriers available for destination")

	// ErrCarrierUnavailable wraps transport failures and carrier 5xx
	// responses. Callers fall back to flat rates when they see it.
	ErrCarrierUnavailable = errors.New("carrier service unavailable")
)
