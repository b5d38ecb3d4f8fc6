package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/sms"
	"github.com/dukerupert/vellum/internal/verify"
)

// VerifyHandler exposes the one-time code flow: send, check, resend.
type VerifyHandler struct {
	verify        *verify.Service
	sessions      *Sessions
	countryPrefix string
}

func NewVerifyHandler(v *verify.Service, sessions *Sessions, countryPrefix string) *VerifyHandler {
	return &VerifyHandler{verify: v, sessions: sessions, countryPrefix: countryPrefix}
}

type sendCodeRequest struct {
	Contact string `json:"contact" validate:"required"`
	Channel string `json:"channel" validate:"required,oneof=sms whatsapp email"`
}

type challengeResponse struct {
	VerificationID string `json:"verification_id"`
}

// Send handles POST /verify/send: issues a fresh code on the requested
// channel. Phone contacts are normalized before use so the number the code
// went to matches the one checked at payment time.
func (h *VerifyHandler) Send(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.Resolve(w, r); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req sendCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	channel := domain.DeliveryChannel(req.Channel)
	contact := req.Contact
	if channel == domain.ChannelSMS || channel == domain.ChannelWhatsApp {
		contact = sms.NormalizePhone(contact, h.countryPrefix)
	}

	id, err := h.verify.Issue(r.Context(), contact, channel)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, challengeResponse{VerificationID: id.String()})
}

type checkCodeRequest struct {
	VerificationID string `json:"verification_id" validate:"required,uuid"`
	Code           string `json:"code" validate:"required,len=6,numeric"`
}

// Check handles POST /verify/check: verifies a code and marks the session's
// contact as proven.
func (h *VerifyHandler) Check(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(w, r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req checkCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	challengeID, err := uuid.Parse(req.VerificationID)
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("verify.check", "malformed verification id"))
		return
	}

	if err := h.verify.Check(r.Context(), session.ID, challengeID, req.Code); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

type resendCodeRequest struct {
	VerificationID string `json:"verification_id" validate:"required,uuid"`
}

// Resend handles POST /verify/resend: discards the previous code and sends a
// new one on the same contact and channel.
func (h *VerifyHandler) Resend(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.Resolve(w, r); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req resendCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	challengeID, err := uuid.Parse(req.VerificationID)
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("verify.resend", "malformed verification id"))
		return
	}

	id, err := h.verify.Reissue(r.Context(), challengeID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, challengeResponse{VerificationID: id.String()})
}
