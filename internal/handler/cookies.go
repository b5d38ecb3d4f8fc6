package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/dukerupert/vellum/internal/domain"
)

// SessionCookieName is the cookie carrying the anonymous session token.
const SessionCookieName = "vellum_session"

// sessionCookieMaxAge keeps carts alive for thirty days.
const sessionCookieMaxAge = 30 * 24 * 60 * 60

// sessionStore is the slice of the session store the cookie helper needs.
type sessionStore interface {
	GetOrCreate(ctx context.Context, token string) (*domain.Session, error)
}

// Sessions binds session cookie handling to the session store.
type Sessions struct {
	store  sessionStore
	secure bool
}

// NewSessions creates the session cookie helper. secure should be true
// everywhere except local development.
func NewSessions(store sessionStore, secure bool) *Sessions {
	return &Sessions{store: store, secure: secure}
}

// Resolve returns the request's session, minting a token and setting the
// cookie when the request has none.
func (s *Sessions) Resolve(w http.ResponseWriter, r *http.Request) (*domain.Session, error) {
	token := ""
	if c, err := r.Cookie(SessionCookieName); err == nil {
		token = c.Value
	}

	fresh := token == ""
	if fresh {
		t, err := newSessionToken()
		if err != nil {
			return nil, domain.Internal(err, "handler.session", "failed to generate session token")
		}
		token = t
	}

	session, err := s.store.GetOrCreate(r.Context(), token)
	if err != nil {
		return nil, err
	}

	if fresh {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   sessionCookieMaxAge,
			HttpOnly: true,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return session, nil
}

// newSessionToken returns a 32-byte random hex token.
func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
