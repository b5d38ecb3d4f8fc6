package sms

import "context"

// MockSender records sent messages for tests.
type MockSender struct {
	SendFunc func(ctx context.Context, phone, message string) error
	Sent     []SentMessage
}

// SentMessage is one recorded delivery.
type SentMessage struct {
	Phone   string
	Message string
}

func (m *MockSender) Send(ctx context.Context, phone, message string) error {
	m.Sent = append(m.Sent, SentMessage{Phone: phone, Message: message})
	if m.SendFunc != nil {
		return m.SendFunc(ctx, phone, message)
	}
	return nil
}
