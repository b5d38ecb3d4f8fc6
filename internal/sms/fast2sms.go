package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Fast2SMSSender sends plain SMS through the Fast2SMS bulk API.
type Fast2SMSSender struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Fast2SMSConfig contains configuration for the Fast2SMS sender.
type Fast2SMSConfig struct {
	APIKey  string
	BaseURL string       // Optional: defaults to the public endpoint
	Client  *http.Client // Optional
	Logger  *slog.Logger // Optional
}

// NewFast2SMSSender creates a Fast2SMS sender.
func NewFast2SMSSender(cfg Fast2SMSConfig) (*Fast2SMSSender, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingCredentials
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://www.fast2sms.com/dev/bulkV2"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fast2SMSSender{apiKey: cfg.APIKey, baseURL: baseURL, client: client, logger: logger}, nil
}

// Send delivers a message on the quick-SMS route.
func (s *Fast2SMSSender) Send(ctx context.Context, phone, message string) error {
	// The API takes bare 10-digit numbers.
	number := strings.TrimPrefix(NormalizePhone(phone, "+91"), "+91")

	q := url.Values{}
	q.Set("route", "q")
	q.Set("message", message)
	q.Set("numbers", number)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("authorization", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: provider returned %d", ErrDeliveryFailed, resp.StatusCode)
	}

	var body struct {
		Return bool `json:"return"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: malformed provider response", ErrDeliveryFailed)
	}
	if !body.Return {
		return ErrDeliveryFailed
	}

	s.logger.Info("sms sent", "route", "q")
	return nil
}
