// Package middleware provides the HTTP middleware the checkout server runs
// behind: request IDs, request-scoped logging, metrics, body and time limits,
// and rate limiting for the verification endpoints.
package middleware

// contextKey is a private type for context keys defined in this package.
type contextKey string
