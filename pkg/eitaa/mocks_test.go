package eitaa

import (
	"context"
)

// MockDriver is a mock implementation of SessionDriver
type MockDriver struct {
	StartFunc            func(ctx context.Context) error
	RestoreSessionFunc   func(ctx context.Context, path string) error
	ProbeLivenessFunc    func(ctx context.Context) (LoginStatus, error)
	InteractiveLoginFunc func(ctx context.Context) error
	SaveSessionFunc      func(ctx context.Context, path string) error
	CloseFunc            func() error

	InteractiveCalls int
	Saved            []string
}

func (m *MockDriver) Start(ctx context.Context) error {
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return nil
}

func (m *MockDriver) RestoreSession(ctx context.Context, path string) error {
	if m.RestoreSessionFunc != nil {
		return m.RestoreSessionFunc(ctx, path)
	}
	return nil
}

func (m *MockDriver) ProbeLiveness(ctx context.Context) (LoginStatus, error) {
	if m.ProbeLivenessFunc != nil {
		return m.ProbeLivenessFunc(ctx)
	}
	return LoggedIn, nil
}

func (m *MockDriver) InteractiveLogin(ctx context.Context) error {
	m.InteractiveCalls++
	if m.InteractiveLoginFunc != nil {
		return m.InteractiveLoginFunc(ctx)
	}
	return nil
}

func (m *MockDriver) SaveSession(ctx context.Context, path string) error {
	m.Saved = append(m.Saved, path)
	if m.SaveSessionFunc != nil {
		return m.SaveSessionFunc(ctx, path)
	}
	return nil
}

func (m *MockDriver) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MockPage is a mock implementation of Page
type MockPage struct {
	OpenChatListFunc     func(ctx context.Context) error
	OpenChannelFunc      func(ctx context.Context, channelID string) (bool, error)
	LoginPageVisibleFunc func(ctx context.Context) (bool, error)
	BubblesFunc          func(ctx context.Context) ([]Bubble, error)
	DownloadMediaFunc    func(ctx context.Context, messageID string) (string, error)
}

func (m *MockPage) OpenChatList(ctx context.Context) error {
	if m.OpenChatListFunc != nil {
		return m.OpenChatListFunc(ctx)
	}
	return nil
}

func (m *MockPage) OpenChannel(ctx context.Context, channelID string) (bool, error) {
	if m.OpenChannelFunc != nil {
		return m.OpenChannelFunc(ctx, channelID)
	}
	return true, nil
}

func (m *MockPage) LoginPageVisible(ctx context.Context) (bool, error) {
	if m.LoginPageVisibleFunc != nil {
		return m.LoginPageVisibleFunc(ctx)
	}
	return false, nil
}

func (m *MockPage) Bubbles(ctx context.Context) ([]Bubble, error) {
	if m.BubblesFunc != nil {
		return m.BubblesFunc(ctx)
	}
	return nil, nil
}

func (m *MockPage) DownloadMedia(ctx context.Context, messageID string) (string, error) {
	if m.DownloadMediaFunc != nil {
		return m.DownloadMediaFunc(ctx, messageID)
	}
	return "", nil
}

// textBubbles builds plain text bubbles with the given raw ids
func textBubbles(ids ...string) []Bubble {
	out := make([]Bubble, 0, len(ids))
	for _, id := range ids {
		out = append(out, Bubble{
			RawID:   id,
			Lines:   []string{"post " + id, "Author", "10:00 قبل‌ازظهر"},
			HasText: true,
		})
	}
	return out
}
