// Package verify issues and checks the one-time codes that gate checkout.
// A contact (phone or email) must hold a verified challenge before a payment
// can be started for it.
package verify

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/email"
	"github.com/dukerupert/vellum/internal/sms"
	"github.com/dukerupert/vellum/internal/telemetry"
)

// CodeTTL is how long a code stays valid after it is issued.
const CodeTTL = 10 * time.Minute

// ChallengeStore is the persistence the service needs for challenges.
type ChallengeStore interface {
	Create(ctx context.Context, ch *domain.Challenge) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Challenge, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteUnverifiedByContact(ctx context.Context, contact string) error
}

// SessionStore records which contact a session has proven ownership of.
type SessionStore interface {
	SetVerifiedContact(ctx context.Context, sessionID uuid.UUID, channel domain.DeliveryChannel, contact string) error
}

// Service issues, delivers and checks verification codes.
type Service struct {
	challenges ChallengeStore
	sessions   SessionStore
	sms        sms.Sender
	whatsapp   sms.Sender
	email      email.Sender
	storeName  string
	logger     *slog.Logger
	now        func() time.Time
}

// Config wires the service's dependencies. SMS, WhatsApp and Email senders
// are each optional; issuing on a channel without a sender fails with
// EUNAVAILABLE.
type Config struct {
	Challenges ChallengeStore
	Sessions   SessionStore
	SMS        sms.Sender
	WhatsApp   sms.Sender
	Email      email.Sender
	StoreName  string
	Logger     *slog.Logger
}

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		challenges: cfg.Challenges,
		sessions:   cfg.Sessions,
		sms:        cfg.SMS,
		whatsapp:   cfg.WhatsApp,
		email:      cfg.Email,
		storeName:  cfg.StoreName,
		logger:     logger,
		now:        time.Now,
	}
}

// Issue creates a fresh challenge for a contact and delivers the code on the
// requested channel. Any previous unverified challenge for the same contact
// is discarded first, so at most one code is ever live per contact. If
// delivery fails the challenge is discarded too: a code the customer never
// received must not stay redeemable.
func (s *Service) Issue(ctx context.Context, contact string, channel domain.DeliveryChannel) (uuid.UUID, error) {
	const op = "verify.issue"

	if contact == "" {
		return uuid.Nil, domain.Invalid(op, "contact is required")
	}
	if !channel.Valid() {
		return uuid.Nil, domain.Invalid(op, fmt.Sprintf("unsupported channel %q", channel))
	}

	if err := s.challenges.DeleteUnverifiedByContact(ctx, contact); err != nil {
		return uuid.Nil, err
	}

	code, err := generateCode()
	if err != nil {
		return uuid.Nil, domain.Internal(err, op, "failed to generate code")
	}

	ch := &domain.Challenge{
		ID:        uuid.New(),
		Contact:   contact,
		Channel:   channel,
		Code:      code,
		ExpiresAt: s.now().Add(CodeTTL),
	}
	if err := s.challenges.Create(ctx, ch); err != nil {
		return uuid.Nil, err
	}

	if err := s.deliver(ctx, ch); err != nil {
		s.logger.Warn("code delivery failed, discarding challenge",
			"channel", channel, "error", err)
		if delErr := s.challenges.Delete(ctx, ch.ID); delErr != nil {
			s.logger.Error("failed to discard undelivered challenge", "error", delErr)
		}
		if telemetry.Business != nil {
			telemetry.Business.CodeDeliveryErr.WithLabelValues(string(channel)).Inc()
		}
		return uuid.Nil, domain.Unavailable(err, op, "Could not deliver the verification code, please try again")
	}

	if telemetry.Business != nil {
		telemetry.Business.CodesIssued.WithLabelValues(string(channel)).Inc()
	}
	s.logger.Info("verification code issued", "channel", channel, "challenge_id", ch.ID)
	return ch.ID, nil
}

// Reissue discards the previous challenge and sends a brand new code with a
// full expiry window on the same contact and channel.
func (s *Service) Reissue(ctx context.Context, challengeID uuid.UUID) (uuid.UUID, error) {
	ch, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return uuid.Nil, err
	}
	if ch.Verified {
		return uuid.Nil, domain.ErrAlreadyVerified
	}
	return s.Issue(ctx, ch.Contact, ch.Channel)
}

// Check compares a submitted code against a challenge and, on success, marks
// the session's contact as verified. A wrong code leaves the challenge live
// for another try; an expired one is discarded.
func (s *Service) Check(ctx context.Context, sessionID, challengeID uuid.UUID, code string) error {
	ch, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return err
	}
	if ch.Verified {
		s.checkFailed(ch.Channel, "replay")
		return domain.ErrAlreadyVerified
	}
	if ch.Expired(s.now()) {
		if err := s.challenges.Delete(ctx, ch.ID); err != nil {
			s.logger.Error("failed to discard expired challenge", "error", err)
		}
		s.checkFailed(ch.Channel, "expired")
		return domain.ErrChallengeExpired
	}
	if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) != 1 {
		s.checkFailed(ch.Channel, "mismatch")
		return domain.ErrCodeMismatch
	}

	if err := s.challenges.MarkVerified(ctx, ch.ID); err != nil {
		return err
	}
	if err := s.sessions.SetVerifiedContact(ctx, sessionID, ch.Channel, ch.Contact); err != nil {
		return err
	}

	if telemetry.Business != nil {
		telemetry.Business.CodesVerified.WithLabelValues(string(ch.Channel)).Inc()
	}
	s.logger.Info("contact verified", "channel", ch.Channel, "challenge_id", ch.ID)
	return nil
}

func (s *Service) checkFailed(channel domain.DeliveryChannel, reason string) {
	if telemetry.Business != nil {
		telemetry.Business.CodesFailed.WithLabelValues(string(channel), reason).Inc()
	}
}

func (s *Service) deliver(ctx context.Context, ch *domain.Challenge) error {
	message := fmt.Sprintf("Your %s verification code is %s. It expires in 10 minutes.", s.storeName, ch.Code)

	switch ch.Channel {
	case domain.ChannelSMS:
		if s.sms == nil {
			return fmt.Errorf("sms sender not configured")
		}
		return s.sms.Send(ctx, ch.Contact, message)
	case domain.ChannelWhatsApp:
		if s.whatsapp == nil {
			return fmt.Errorf("whatsapp sender not configured")
		}
		return s.whatsapp.Send(ctx, ch.Contact, message)
	case domain.ChannelEmail:
		if s.email == nil {
			return fmt.Errorf("email sender not configured")
		}
		_, err := s.email.Send(ctx, email.VerificationCode(s.storeName, ch.Contact, ch.Code))
		return err
	}
	return fmt.Errorf("unsupported channel %q", ch.Channel)
}

// generateCode returns a 6-digit zero-padded numeric code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
