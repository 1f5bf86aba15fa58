package delivery

import (
	"context"
	"sync"
)

// MockSender is a mock implementation of Sender
type MockSender struct {
	SendTextFunc func(ctx context.Context, target int64, text string) error
	SendFileFunc func(ctx context.Context, target int64, path, caption string) error

	mu    sync.Mutex
	calls []sendCall
}

type sendCall struct {
	Target int64
	Text   string
	Path   string
}

func (m *MockSender) SendText(ctx context.Context, target int64, text string) error {
	m.record(sendCall{Target: target, Text: text})
	if m.SendTextFunc != nil {
		return m.SendTextFunc(ctx, target, text)
	}
	return nil
}

func (m *MockSender) SendFile(ctx context.Context, target int64, path, caption string) error {
	m.record(sendCall{Target: target, Text: caption, Path: path})
	if m.SendFileFunc != nil {
		return m.SendFileFunc(ctx, target, path, caption)
	}
	return nil
}

func (m *MockSender) record(c sendCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *MockSender) Calls() []sendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sendCall(nil), m.calls...)
}

// MockConnector is a mock implementation of Connector
type MockConnector struct {
	RunFunc func(ctx context.Context, fn func(ctx context.Context, s Sender) error) error
	Sender  Sender
}

func (m *MockConnector) Run(ctx context.Context, fn func(ctx context.Context, s Sender) error) error {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, fn)
	}
	return fn(ctx, m.Sender)
}
