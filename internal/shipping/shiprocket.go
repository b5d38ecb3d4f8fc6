package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"
)

// Carrier auth tokens are valid for days; refresh well before that and on any
// 401 the API returns after a server-side invalidation.
const tokenLifetime = 24 * time.Hour

// ShiprocketProvider implements Provider against the Shiprocket external API.
type ShiprocketProvider struct {
	baseURL   string
	email     string
	password  string
	channelID string
	client    *http.Client
	logger    *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// ShiprocketConfig contains configuration for the Shiprocket provider.
type ShiprocketConfig struct {
	BaseURL   string
	Email     string
	Password  string
	ChannelID string
	Client    *http.Client // Optional: defaults to a 15s-timeout client
	Logger    *slog.Logger // Optional: defaults to slog.Default()
}

// NewShiprocketProvider creates a new Shiprocket carrier provider.
func NewShiprocketProvider(cfg ShiprocketConfig) (*ShiprocketProvider, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, ErrMissingCredentials
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ShiprocketProvider{
		baseURL:   cfg.BaseURL,
		email:     cfg.Email,
		password:  cfg.Password,
		channelID: cfg.ChannelID,
		client:    client,
		logger:    logger,
	}, nil
}

// GetRates queries courier serviceability for a destination and returns the
// options sorted by cost.
func (p *ShiprocketProvider) GetRates(ctx context.Context, params RateParams) ([]Rate, error) {
	if params.DeliveryPincode == "" {
		return nil, ErrDestinationRequired
	}

	logger := p.logger.With(
		"pickup", params.PickupPincode,
		"delivery", params.DeliveryPincode,
		"weight_grams", params.Package.WeightGrams,
	)
	logger.Info("fetching courier rates")

	q := url.Values{}
	q.Set("pickup_postcode", params.PickupPincode)
	q.Set("delivery_postcode", params.DeliveryPincode)
	q.Set("weight", fmt.Sprintf("%.2f", float64(params.Package.WeightGrams)/1000))
	if params.CODAmountPaise > 0 {
		q.Set("cod", "1")
	} else {
		q.Set("cod", "0")
	}

	var resp struct {
		Data struct {
			AvailableCourierCompanies []struct {
				CourierCompanyID      json.Number `json:"courier_company_id"`
				CourierName           string      `json:"courier_name"`
				Rate                  float64     `json:"rate"`
				EstimatedDeliveryDays json.Number `json:"estimated_delivery_days"`
				ETD                   string      `json:"etd"`
			} `json:"available_courier_companies"`
		} `json:"data"`
	}
	if err := p.do(ctx, http.MethodGet, "/courier/serviceability/?"+q.Encode(), nil, &resp); err != nil {
		logger.Error("serviceability request failed", "error", err)
		return nil, err
	}

	companies := resp.Data.AvailableCourierCompanies
	if len(companies) == 0 {
		logger.Warn("no couriers serviceable for destination")
		return nil, ErrNoRates
	}

	rates := make([]Rate, 0, len(companies))
	for _, c := range companies {
		days, _ := c.EstimatedDeliveryDays.Int64()
		rates = append(rates, Rate{
			CourierCode:   c.CourierCompanyID.String(),
			CourierName:   c.CourierName,
			CostPaise:     rupeesToPaise(c.Rate),
			EstimatedDays: int32(days),
			ETD:           c.ETD,
		})
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].CostPaise < rates[j].CostPaise })

	logger.Info("courier rates fetched", "count", len(rates))
	return rates, nil
}

// CreateOrder registers an adhoc prepaid order with the carrier.
func (p *ShiprocketProvider) CreateOrder(ctx context.Context, params OrderParams) (*CarrierOrder, error) {
	logger := p.logger.With("order_ref", params.OrderRef)
	logger.Info("creating carrier order")

	items := make([]map[string]any, 0, len(params.Items))
	for _, it := range params.Items {
		items = append(items, map[string]any{
			"name":          it.Name,
			"sku":           it.SKU,
			"units":         it.Units,
			"selling_price": paiseToRupees(it.PricePaise),
			"hsn":           it.HSN,
		})
	}

	body := map[string]any{
		"order_id":          params.OrderRef,
		"order_date":        params.OrderDate.Format("2006-01-02 15:04"),
		"channel_id":        p.channelID,
		"billing_customer_name": params.CustomerName,
		"billing_last_name":     "",
		"billing_address":       params.AddressLine,
		"billing_city":          params.City,
		"billing_pincode":       params.Pincode,
		"billing_state":         params.State,
		"billing_country":       "India",
		"billing_email":         params.CustomerEmail,
		"billing_phone":         params.CustomerPhone,
		"shipping_is_billing":   true,
		"order_items":           items,
		"payment_method":        "Prepaid",
		"sub_total":             paiseToRupees(params.SubtotalPaise),
		"length":                params.Package.LengthCm,
		"breadth":               params.Package.WidthCm,
		"height":                params.Package.HeightCm,
		"weight":                float64(params.Package.WeightGrams) / 1000,
	}

	var resp struct {
		OrderID    json.Number `json:"order_id"`
		ShipmentID json.Number `json:"shipment_id"`
		Status     string      `json:"status"`
	}
	if err := p.do(ctx, http.MethodPost, "/orders/create/adhoc", body, &resp); err != nil {
		logger.Error("carrier order creation failed", "error", err)
		return nil, err
	}
	if resp.OrderID.String() == "" {
		return nil, fmt.Errorf("%w: carrier returned no order id", ErrCarrierUnavailable)
	}

	logger.Info("carrier order created",
		"carrier_order_id", resp.OrderID.String(),
		"shipment_id", resp.ShipmentID.String(),
	)
	return &CarrierOrder{
		OrderID:    resp.OrderID.String(),
		ShipmentID: resp.ShipmentID.String(),
		Status:     resp.Status,
	}, nil
}

// TrackOrder returns the scan history for a carrier order.
func (p *ShiprocketProvider) TrackOrder(ctx context.Context, carrierOrderID string) (*TrackingInfo, error) {
	logger := p.logger.With("carrier_order_id", carrierOrderID)
	logger.Info("fetching tracking info")

	var resp struct {
		TrackingData struct {
			ShipmentStatus string `json:"shipment_status"`
			ShipmentTrack  []struct {
				CurrentStatus string `json:"current_status"`
				Location      string `json:"location"`
				Remark        string `json:"remark"`
				Date          string `json:"date"`
			} `json:"shipment_track_activities"`
		} `json:"tracking_data"`
	}
	path := "/courier/track?order_id=" + url.QueryEscape(carrierOrderID)
	if err := p.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		logger.Error("tracking request failed", "error", err)
		return nil, err
	}

	info := &TrackingInfo{Status: resp.TrackingData.ShipmentStatus}
	for _, a := range resp.TrackingData.ShipmentTrack {
		event := TrackingEvent{
			Status:      a.CurrentStatus,
			Location:    a.Location,
			Description: a.Remark,
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", a.Date); err == nil {
			event.Timestamp = ts
		}
		info.Events = append(info.Events, event)
	}
	return info, nil
}

// do performs an authenticated request, logging in first if the cached token
// is missing or stale, and retrying once after a fresh login on 401.
func (p *ShiprocketProvider) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := p.authToken(ctx, false)
	if err != nil {
		return err
	}

	status, err := p.send(ctx, method, path, body, token, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		token, err = p.authToken(ctx, true)
		if err != nil {
			return err
		}
		status, err = p.send(ctx, method, path, body, token, out)
		if err != nil {
			return err
		}
	}

	if status >= 500 {
		return fmt.Errorf("%w: carrier returned %d", ErrCarrierUnavailable, status)
	}
	if status >= 400 {
		return fmt.Errorf("carrier rejected request with %d", status)
	}
	return nil
}

// send executes one HTTP round trip and decodes the response into out on 2xx.
func (p *ShiprocketProvider) send(ctx context.Context, method, path string, body any, token string, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCarrierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("%w: malformed carrier response: %v", ErrCarrierUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}

// authToken returns a valid bearer token, logging in when forced or when the
// cached one has expired. The mutex is deliberately held across the login
// round trip: concurrent callers queue behind a single refresh instead of
// racing the login endpoint, and the client's request timeout bounds how long
// they can wait.
func (p *ShiprocketProvider) authToken(ctx context.Context, force bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !force && p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	body := map[string]string{"email": p.email, "password": p.password}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/login", bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCarrierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: login returned %d", ErrCarrierUnavailable, resp.StatusCode)
	}

	var login struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil || login.Token == "" {
		return "", fmt.Errorf("%w: login returned no token", ErrCarrierUnavailable)
	}

	p.token = login.Token
	p.tokenExpiry = time.Now().Add(tokenLifetime)
	p.logger.Debug("carrier login succeeded")
	return p.token, nil
}

// Amount conversion helpers. The carrier API speaks rupees with decimals.

func paiseToRupees(paise int64) float64 {
	return float64(paise) / 100
}

func rupeesToPaise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}
