package forwarder

import (
	"context"
	"sync"
	"time"

	"github.com/smaghili/eitaa-forwarder/pkg/config"
	"github.com/smaghili/eitaa-forwarder/pkg/delivery"
	"github.com/smaghili/eitaa-forwarder/pkg/eitaa"
)

// MockSession is a mock implementation of Session
type MockSession struct {
	InitializeFunc func(ctx context.Context) error
	LoginFunc      func(ctx context.Context) bool
	IsLoggedInFunc func(ctx context.Context) bool

	Closed int
}

func (m *MockSession) Initialize(ctx context.Context) error {
	if m.InitializeFunc != nil {
		return m.InitializeFunc(ctx)
	}
	return nil
}

func (m *MockSession) Login(ctx context.Context) bool {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx)
	}
	return true
}

func (m *MockSession) IsLoggedIn(ctx context.Context) bool {
	if m.IsLoggedInFunc != nil {
		return m.IsLoggedInFunc(ctx)
	}
	return true
}

func (m *MockSession) Close() error {
	m.Closed++
	return nil
}

// MockReconciler is a mock implementation of Reconciler
type MockReconciler struct {
	ReconcileFunc func(ctx context.Context, ch config.ChannelConfig, watermark string) (*eitaa.ReconcileResult, error)

	Calls []string
}

func (m *MockReconciler) Reconcile(ctx context.Context, ch config.ChannelConfig, watermark string) (*eitaa.ReconcileResult, error) {
	m.Calls = append(m.Calls, ch.ID)
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, ch, watermark)
	}
	return &eitaa.ReconcileResult{NewWatermark: watermark}, nil
}

// MockWatermarks is an in-memory WatermarkStore
type MockWatermarks struct {
	Data  map[string]string
	Saves int
}

func (m *MockWatermarks) Load(channelID string) (string, bool) {
	v, ok := m.Data[channelID]
	return v, ok
}

func (m *MockWatermarks) Save(channelID, id string) error {
	if m.Data == nil {
		m.Data = make(map[string]string)
	}
	m.Data[channelID] = id
	m.Saves++
	return nil
}

// MockErrorCounter is an in-memory ErrorCounter
type MockErrorCounter struct {
	Counts map[string]int
}

func (m *MockErrorCounter) Increment(channelID string) (int, error) {
	if m.Counts == nil {
		m.Counts = make(map[string]int)
	}
	m.Counts[channelID]++
	return m.Counts[channelID], nil
}

func (m *MockErrorCounter) Reset(channelID string) error {
	delete(m.Counts, channelID)
	return nil
}

// MockChannels is an in-memory ChannelRegistry
type MockChannels struct {
	List []config.ChannelConfig
	// OnList runs every time the channel list is read
	OnList func(n int)

	lists   int
	Changes []statusChange
}

type statusChange struct {
	ID     string
	Status config.ChannelStatus
}

func (m *MockChannels) Channels() []config.ChannelConfig {
	m.lists++
	if m.OnList != nil {
		m.OnList(m.lists)
	}
	return append([]config.ChannelConfig(nil), m.List...)
}

func (m *MockChannels) SetChannelStatus(channelID string, status config.ChannelStatus) error {
	for i := range m.List {
		if m.List[i].ID == channelID {
			m.List[i].Status = status
		}
	}
	m.Changes = append(m.Changes, statusChange{ID: channelID, Status: status})
	return nil
}

// MockWorker is a mock implementation of Worker
type MockWorker struct {
	WaitReadyFunc func(ctx context.Context, timeout time.Duration) error

	Started int
	Stopped int
}

func (m *MockWorker) Start(ctx context.Context) error {
	m.Started++
	return nil
}

func (m *MockWorker) WaitReady(ctx context.Context, timeout time.Duration) error {
	if m.WaitReadyFunc != nil {
		return m.WaitReadyFunc(ctx, timeout)
	}
	return nil
}

func (m *MockWorker) Stop() error {
	m.Stopped++
	return nil
}

// MockQueue records jobs and reports them delivered immediately unless
// PendingFunc says otherwise
type MockQueue struct {
	PendingFunc func() int

	mu   sync.Mutex
	Jobs []*delivery.Job
}

func (m *MockQueue) Enqueue(job *delivery.Job) error {
	if len(job.Targets) == 0 {
		return delivery.ErrNoTargets
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Jobs = append(m.Jobs, job)
	return nil
}

func (m *MockQueue) Pending() int {
	if m.PendingFunc != nil {
		return m.PendingFunc()
	}
	return 0
}

func (m *MockQueue) ByKind(kind delivery.Kind) []*delivery.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*delivery.Job
	for _, j := range m.Jobs {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}
