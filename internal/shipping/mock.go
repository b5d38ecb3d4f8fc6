package shipping

import "context"

// MockProvider is a configurable test double for Provider.
type MockProvider struct {
	GetRatesFunc    func(ctx context.Context, params RateParams) ([]Rate, error)
	CreateOrderFunc func(ctx context.Context, params OrderParams) (*CarrierOrder, error)
	TrackOrderFunc  func(ctx context.Context, carrierOrderID string) (*TrackingInfo, error)

	CreateOrderCalls []OrderParams
}

func (m *MockProvider) GetRates(ctx context.Context, params RateParams) ([]Rate, error) {
	if m.GetRatesFunc != nil {
		return m.GetRatesFunc(ctx, params)
	}
	return nil, ErrNotImplemented
}

func (m *MockProvider) CreateOrder(ctx context.Context, params OrderParams) (*CarrierOrder, error) {
	m.CreateOrderCalls = append(m.CreateOrderCalls, params)
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, params)
	}
	return nil, ErrNotImplemented
}

func (m *MockProvider) TrackOrder(ctx context.Context, carrierOrderID string) (*TrackingInfo, error) {
	if m.TrackOrderFunc != nil {
		return m.TrackOrderFunc(ctx, carrierOrderID)
	}
	return nil, ErrNotImplemented
}
