package delivery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/smaghili/eitaa-forwarder/pkg/app/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitDrained(t *testing.T, q *Queue) {
	t.Helper()
	require.Eventually(t, func() bool { return q.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_DeliversToEveryTarget(t *testing.T) {
	sender := &MockSender{}
	q := NewQueue()
	w := NewWorker(q, &MockConnector{Sender: sender}, zap.NewNop(), WithSendInterval(0))

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.WaitReady(context.Background(), time.Second))
	assert.True(t, w.IsReady())

	require.NoError(t, q.Enqueue(NewMessageJob("c1", 5, "first", "", []int64{10, 20})))
	require.NoError(t, q.Enqueue(NewAdminJob("second", []int64{10})))
	waitDrained(t, q)
	require.NoError(t, w.Stop())

	assert.Equal(t, []sendCall{
		{Target: 10, Text: "first"},
		{Target: 20, Text: "first"},
		{Target: 10, Text: "second"},
	}, sender.Calls())
}

func TestWorker_FailedTargetDoesNotBlockOthers(t *testing.T) {
	sender := &MockSender{
		SendTextFunc: func(ctx context.Context, target int64, text string) error {
			if target == 10 {
				return errors.New("peer not found")
			}
			return nil
		},
	}
	q := NewQueue()
	w := NewWorker(q, &MockConnector{Sender: sender}, zap.NewNop(), WithSendInterval(0))
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.WaitReady(context.Background(), time.Second))

	require.NoError(t, q.Enqueue(NewMessageJob("c1", 1, "one", "", []int64{10, 20})))
	require.NoError(t, q.Enqueue(NewMessageJob("c1", 2, "two", "", []int64{20})))
	waitDrained(t, q)
	require.NoError(t, w.Stop())

	calls := sender.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, sendCall{Target: 20, Text: "one"}, calls[1])
	assert.Equal(t, sendCall{Target: 20, Text: "two"}, calls[2])
}

func TestWorker_AttachmentSelectsFileSend(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "img.jpg")
	require.NoError(t, os.WriteFile(image, []byte("jpeg"), 0o644))

	sender := &MockSender{}
	q := NewQueue()
	w := NewWorker(q, &MockConnector{Sender: sender}, zap.NewNop(), WithSendInterval(0))
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.WaitReady(context.Background(), time.Second))

	require.NoError(t, q.Enqueue(NewMessageJob("c1", 1, "with image", image, []int64{1})))
	require.NoError(t, q.Enqueue(NewMessageJob("c1", 2, "gone image", filepath.Join(dir, "missing.jpg"), []int64{1})))
	waitDrained(t, q)
	require.NoError(t, w.Stop())

	assert.Equal(t, []sendCall{
		{Target: 1, Text: "with image", Path: image},
		{Target: 1, Text: "gone image"},
	}, sender.Calls())
}

func TestWorker_WaitReadyTimesOut(t *testing.T) {
	connector := &MockConnector{
		RunFunc: func(ctx context.Context, fn func(ctx context.Context, s Sender) error) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	w := NewWorker(NewQueue(), connector, zap.NewNop())
	require.NoError(t, w.Start(context.Background()))

	err := w.WaitReady(context.Background(), 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryStartupTimeout))
	assert.False(t, w.IsReady())
	require.NoError(t, w.Stop())
}

func TestWorker_WaitReadyReportsConnectFailure(t *testing.T) {
	connector := &MockConnector{
		RunFunc: func(ctx context.Context, fn func(ctx context.Context, s Sender) error) error {
			return errors.New("auth failed")
		},
	}
	w := NewWorker(NewQueue(), connector, zap.NewNop())
	require.NoError(t, w.Start(context.Background()))

	err := w.WaitReady(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth failed")
}

func TestWorker_StartTwice(t *testing.T) {
	w := NewWorker(NewQueue(), &MockConnector{Sender: &MockSender{}}, zap.NewNop())
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
}

func TestWorker_StopBeforeStart(t *testing.T) {
	w := NewWorker(NewQueue(), &MockConnector{}, zap.NewNop())
	assert.NoError(t, w.Stop())
}

func TestWorker_StopTimesOutOnStuckConnector(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	connector := &MockConnector{
		RunFunc: func(ctx context.Context, fn func(ctx context.Context, s Sender) error) error {
			<-release
			return nil
		},
	}
	w := NewWorker(NewQueue(), connector, zap.NewNop(), WithStopTimeout(20*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))

	assert.Error(t, w.Stop())
}

func TestLogConnector_NeverFails(t *testing.T) {
	q := NewQueue()
	w := NewWorker(q, NewLogConnector(zap.NewNop()), zap.NewNop(), WithSendInterval(0))
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.WaitReady(context.Background(), time.Second))

	require.NoError(t, q.Enqueue(NewMessageJob("c1", 1, "dry", "/nonexistent.jpg", []int64{1, 2})))
	waitDrained(t, q)
	require.NoError(t, w.Stop())
}
