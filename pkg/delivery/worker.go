package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/smaghili/eitaa-forwarder/internal/metrics"
	apperrors "github.com/smaghili/eitaa-forwarder/pkg/app/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultSendInterval = 500 * time.Millisecond
	DefaultStopTimeout  = 5 * time.Second
)

// Sender delivers content to a single destination
type Sender interface {
	// SendText posts a plain text message
	SendText(ctx context.Context, target int64, text string) error
	// SendFile uploads the file at path with caption as its text
	SendFile(ctx context.Context, target int64, path, caption string) error
}

// Connector owns the authenticated destination session. Run connects, calls
// fn with a Sender bound to the live session and keeps the session open
// until fn returns or ctx is done.
type Connector interface {
	Run(ctx context.Context, fn func(ctx context.Context, s Sender) error) error
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithSendInterval sets the minimum gap between two sends
func WithSendInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			w.limiter = rate.NewLimiter(rate.Inf, 1)
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the worker to exit
func WithStopTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.stopTimeout = d
	}
}

// Worker drains a Queue into a destination platform on its own goroutine.
// It signals readiness only after the Connector reports a live session.
type Worker struct {
	queue       *Queue
	connector   Connector
	logger      *zap.Logger
	limiter     *rate.Limiter
	stopTimeout time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	ready   chan struct{}
	done    chan struct{}
	runErr  error
}

// NewWorker creates a worker consuming queue through connector
func NewWorker(queue *Queue, connector Connector, logger *zap.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:       queue,
		connector:   connector,
		logger:      logger.Named("delivery"),
		limiter:     rate.NewLimiter(rate.Every(DefaultSendInterval), 1),
		stopTimeout: DefaultStopTimeout,
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the worker goroutine. It returns immediately; use
// WaitReady to block until the destination session is up.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("delivery worker already started")
	}
	w.started = true

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.run(runCtx)
	return nil
}

// WaitReady blocks until the worker is connected, the connection attempt
// fails or timeout elapses.
func (w *Worker) WaitReady(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		return nil
	case <-w.done:
		return apperrors.StartupTimeoutError(w.err(), "delivery worker exited before becoming ready")
	case <-timer.C:
		return apperrors.StartupTimeoutError(nil, fmt.Sprintf("delivery worker not ready after %s", timeout))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsReady reports whether the destination session is live
func (w *Worker) IsReady() bool {
	select {
	case <-w.done:
		return false
	case <-w.ready:
		return true
	default:
		return false
	}
}

// Stop cancels the worker and waits for it to exit, at most the stop timeout
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	started := w.started
	w.mu.Unlock()
	if !started {
		return nil
	}

	w.logger.Info("Stopping delivery worker", zap.Int("pending", w.queue.Pending()))
	cancel()

	select {
	case <-w.done:
		w.logger.Info("Delivery worker stopped")
		return nil
	case <-time.After(w.stopTimeout):
		return fmt.Errorf("delivery worker did not stop within %s", w.stopTimeout)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	err := w.connector.Run(ctx, func(ctx context.Context, s Sender) error {
		close(w.ready)
		w.logger.Info("Delivery worker ready")
		return w.loop(ctx, s)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("Delivery worker exited", zap.Error(err))
	}

	w.mu.Lock()
	w.runErr = err
	w.mu.Unlock()
}

func (w *Worker) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runErr
}

func (w *Worker) loop(ctx context.Context, s Sender) error {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			return nil
		}
		w.deliver(ctx, s, job)
		w.queue.Done()
	}
}

// deliver sends job to every target. A failing target is logged and skipped.
func (w *Worker) deliver(ctx context.Context, s Sender, job *Job) {
	withFile := job.AttachmentPath != "" && fileExists(job.AttachmentPath)
	if job.AttachmentPath != "" && !withFile {
		w.logger.Warn("Attachment missing, sending text only",
			zap.String("job_id", job.ID),
			zap.String("path", job.AttachmentPath))
	}

	delivered := 0
	for _, target := range job.Targets {
		if err := w.limiter.Wait(ctx); err != nil {
			w.logger.Warn("Delivery interrupted",
				zap.String("job_id", job.ID),
				zap.Int("delivered", delivered),
				zap.Int("targets", len(job.Targets)))
			return
		}

		var err error
		if withFile {
			err = s.SendFile(ctx, target, job.AttachmentPath, job.Text)
		} else {
			err = s.SendText(ctx, target, job.Text)
		}
		if err != nil {
			w.logger.Error("Failed to deliver message",
				zap.String("job_id", job.ID),
				zap.String("kind", string(job.Kind)),
				zap.Int64("target", target),
				zap.Error(apperrors.DeliveryError(err, "send failed")))
			metrics.DeliveriesTotal.WithLabelValues(string(job.Kind), "failed").Inc()
			continue
		}

		delivered++
		metrics.DeliveriesTotal.WithLabelValues(string(job.Kind), "sent").Inc()
		w.logger.Info("Message delivered",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.Int64("target", target),
			zap.Bool("with_file", withFile))
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
