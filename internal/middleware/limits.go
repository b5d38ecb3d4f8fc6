package middleware

import (
	"context"
	"net/http"
	"time"
)

// Common size limits.
const (
	KB = 1024
	MB = 1024 * KB

	// DefaultMaxBodySize bounds request bodies. Checkout forms are tiny; a
	// megabyte is already generous.
	DefaultMaxBodySize = 1 * MB
)

// Common timeout values.
const (
	// DefaultTimeout is the default request timeout. It must exceed the
	// carrier call budget inside the payment webhook.
	DefaultTimeout = 30 * time.Second
)

// MaxBodySize limits the size of request bodies. Oversized requests get
// 413 Request Entity Too Large.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength > maxBytes {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout bounds request processing through the request context. Handlers
// that respect their context return early; the deadline error surfaces as a
// normal handler error response.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
