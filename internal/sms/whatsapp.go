package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// WhatsAppSender sends messages through the WhatsApp Cloud API.
type WhatsAppSender struct {
	phoneID string
	token   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// WhatsAppConfig contains configuration for the WhatsApp sender.
type WhatsAppConfig struct {
	PhoneID string
	Token   string
	BaseURL string       // Optional: defaults to the Graph API
	Client  *http.Client // Optional
	Logger  *slog.Logger // Optional
}

// NewWhatsAppSender creates a WhatsApp Cloud API sender.
func NewWhatsAppSender(cfg WhatsAppConfig) (*WhatsAppSender, error) {
	if cfg.PhoneID == "" || cfg.Token == "" {
		return nil, ErrMissingCredentials
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v17.0"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsAppSender{
		phoneID: cfg.PhoneID,
		token:   cfg.Token,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}, nil
}

// Send delivers a text message to a WhatsApp number.
func (s *WhatsAppSender) Send(ctx context.Context, phone, message string) error {
	to := strings.TrimPrefix(NormalizePhone(phone, "+91"), "+")

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": message},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode whatsapp request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: provider returned %d", ErrDeliveryFailed, resp.StatusCode)
	}

	s.logger.Info("whatsapp message sent")
	return nil
}
