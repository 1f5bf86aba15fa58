// Package forwarder runs the polling loop that moves new channel messages
// from the source platform into the delivery queue.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/smaghili/eitaa-forwarder/internal/metrics"
	apperrors "github.com/smaghili/eitaa-forwarder/pkg/app/errors"
	"github.com/smaghili/eitaa-forwarder/pkg/config"
	"github.com/smaghili/eitaa-forwarder/pkg/delivery"
	"github.com/smaghili/eitaa-forwarder/pkg/eitaa"
)

const (
	DefaultDrainPoll  = 500 * time.Millisecond
	finalDrainTimeout = 30 * time.Second
)

// Session is the source platform login lifecycle
type Session interface {
	Initialize(ctx context.Context) error
	Login(ctx context.Context) bool
	IsLoggedIn(ctx context.Context) bool
	Close() error
}

// Reconciler reads one channel and returns jobs for its new messages
type Reconciler interface {
	Reconcile(ctx context.Context, ch config.ChannelConfig, watermark string) (*eitaa.ReconcileResult, error)
}

// WatermarkStore persists the last processed message id per channel
type WatermarkStore interface {
	Load(channelID string) (string, bool)
	Save(channelID, id string) error
}

// ErrorCounter persists consecutive failures per channel
type ErrorCounter interface {
	Increment(channelID string) (int, error)
	Reset(channelID string) error
}

// ChannelRegistry is the configured channel list and its status
type ChannelRegistry interface {
	Channels() []config.ChannelConfig
	SetChannelStatus(channelID string, status config.ChannelStatus) error
}

// Worker delivers queued jobs on its own goroutine
type Worker interface {
	Start(ctx context.Context) error
	WaitReady(ctx context.Context, timeout time.Duration) error
	Stop() error
}

// JobQueue is the producer side of the delivery queue
type JobQueue interface {
	Enqueue(job *delivery.Job) error
	Pending() int
}

// Components are the collaborators driven by the engine
type Components struct {
	Session    Session
	Reconciler Reconciler
	Watermarks WatermarkStore
	Errors     ErrorCounter
	Channels   ChannelRegistry
	Worker     Worker
	Queue      JobQueue
}

// Options tunes the polling loop
type Options struct {
	CheckInterval      time.Duration
	LoginCheckInterval time.Duration
	// Cooldown is the pause after a failed cycle
	Cooldown     time.Duration
	ReadyTimeout time.Duration
	DrainPoll    time.Duration
	MaxErrors    int
	// AdminTargets receive operator notifications
	AdminTargets []int64
	// Once stops after the first complete cycle
	Once bool
}

// OptionsFromConfig derives engine options from the loaded config
func OptionsFromConfig(cfg *config.Config, adminTargets []int64, once bool) Options {
	return Options{
		CheckInterval:      cfg.Eitaa.CheckInterval(),
		LoginCheckInterval: cfg.Eitaa.LoginCheckInterval(),
		Cooldown:           cfg.Eitaa.ErrorHandling.Cooldown,
		ReadyTimeout:       cfg.Telegram.ReadyTimeout,
		DrainPoll:          DefaultDrainPoll,
		MaxErrors:          cfg.Eitaa.ErrorHandling.MaxErrors,
		AdminTargets:       adminTargets,
		Once:               once,
	}
}

// Engine orchestrates login, channel polling and delivery draining
type Engine struct {
	c      Components
	opts   Options
	logger *zap.Logger

	lastLoginCheck time.Time
}

// NewEngine creates a new forwarder engine
func NewEngine(c Components, opts Options, logger *zap.Logger) *Engine {
	if opts.DrainPoll <= 0 {
		opts.DrainPoll = DefaultDrainPoll
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = 1
	}
	return &Engine{
		c:      c,
		opts:   opts,
		logger: logger.Named("engine"),
	}
}

// Run executes the engine until ctx is cancelled, a fatal error occurs or,
// in one-shot mode, the first cycle completes. Cancellation is a clean
// stop and returns nil.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Initializing components")
	defer e.shutdown()

	if err := e.c.Session.Initialize(ctx); err != nil {
		return apperrors.GeneralError(err)
	}
	if err := e.c.Worker.Start(ctx); err != nil {
		return apperrors.GeneralError(err)
	}
	e.logger.Info("Waiting for delivery worker")
	if err := e.c.Worker.WaitReady(ctx, e.opts.ReadyTimeout); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if !e.c.Session.Login(ctx) {
		if ctx.Err() != nil {
			return nil
		}
		return apperrors.SessionExpiredError(nil, "failed to log in to Eitaa")
	}
	e.lastLoginCheck = time.Now()
	e.logResumePoints()

	for {
		err := e.cycle(ctx)
		switch {
		case ctx.Err() != nil:
			e.logger.Info("Shutdown requested, leaving polling loop")
			return nil
		case apperrors.Is(err, apperrors.CategorySessionExpired):
			metrics.CyclesTotal.WithLabelValues("fatal").Inc()
			e.flush(ctx)
			return err
		case err != nil:
			metrics.CyclesTotal.WithLabelValues("failed").Inc()
			e.logger.Error("Error in main loop", zap.Error(err), zap.Duration("cooldown", e.opts.Cooldown))
			if sleep(ctx, e.opts.Cooldown) != nil {
				return nil
			}
			continue
		}

		metrics.CyclesTotal.WithLabelValues("success").Inc()
		if e.opts.Once {
			e.logger.Info("One-time check completed")
			return nil
		}
		if sleep(ctx, e.opts.CheckInterval) != nil {
			return nil
		}
	}
}

// cycle runs one pass: login check, every active channel, then drain
func (e *Engine) cycle(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.GeneralError(fmt.Errorf("cycle panic: %v", r))
		}
	}()

	if err := e.checkLogin(ctx); err != nil {
		return err
	}

	for _, ch := range e.c.Channels.Channels() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ch.Status != config.ChannelStatusActive {
			e.logger.Info("Skipping channel",
				zap.String("channel", ch.DisplayName()),
				zap.String("status", string(ch.Status)))
			continue
		}
		if err := e.reconcileChannel(ctx, ch); err != nil {
			return err
		}
	}

	return e.drain(ctx)
}

func (e *Engine) checkLogin(ctx context.Context) error {
	if time.Since(e.lastLoginCheck) < e.opts.LoginCheckInterval {
		return nil
	}
	if !e.c.Session.IsLoggedIn(ctx) {
		e.logger.Warn("Session expired, trying to login again")
		if !e.c.Session.Login(ctx) {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.notify(eitaa.SessionExpiredNotice())
			return apperrors.SessionExpiredError(nil, "failed to re-login")
		}
	}
	e.lastLoginCheck = time.Now()
	return nil
}

// reconcileChannel processes one channel. Only session expiry and
// cancellation are returned; channel failures are handled here.
func (e *Engine) reconcileChannel(ctx context.Context, ch config.ChannelConfig) error {
	logger := e.logger.With(zap.String("channel", ch.DisplayName()), zap.String("channel_id", ch.ID))
	logger.Info("Checking channel")

	watermark, _ := e.c.Watermarks.Load(ch.ID)
	res, err := e.c.Reconciler.Reconcile(ctx, ch, watermark)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if apperrors.Is(err, apperrors.CategorySessionExpired) {
			logger.Error("Session expired while reading channel", zap.Error(err))
			e.notify(eitaa.SessionExpiredNotice())
			return err
		}
		e.handleChannelError(logger, ch, err)
		return nil
	}

	// jobs arrive in ascending id order; the watermark only covers what
	// reached the queue
	var lastQueued *delivery.Job
	for _, job := range res.Jobs {
		if err := e.c.Queue.Enqueue(job); err != nil {
			logger.Error("Failed to queue message", zap.Int64("message_id", job.MessageID), zap.Error(err))
			if lastQueued != nil {
				e.saveWatermark(logger, ch.ID, watermark, strconv.FormatInt(lastQueued.MessageID, 10))
			}
			e.handleChannelError(logger, ch, apperrors.ChannelError(err, "failed to queue message"))
			return nil
		}
		lastQueued = job
		logger.Info("Message queued",
			zap.String("job_id", job.ID),
			zap.Int64("message_id", job.MessageID),
			zap.Int64s("targets", job.Targets))
	}

	if err := e.c.Errors.Reset(ch.ID); err != nil {
		logger.Warn("Failed to reset error counter", zap.Error(err))
	}
	e.saveWatermark(logger, ch.ID, watermark, res.NewWatermark)

	if res.ChannelGone {
		logger.Warn("Channel not found, disabling")
		metrics.ChannelErrors.WithLabelValues(ch.ID, "gone").Inc()
		e.setStatus(logger, ch, config.ChannelStatusDisabled)
		e.notify(eitaa.ChannelGoneNotice(ch.ID))
	}
	return nil
}

func (e *Engine) saveWatermark(logger *zap.Logger, channelID, prior, next string) {
	if next == "" || next == prior {
		return
	}
	if err := e.c.Watermarks.Save(channelID, next); err != nil {
		logger.Error("Failed to save last message ID", zap.Error(err))
		return
	}
	logger.Info("Updated last message ID", zap.String("last_message_id", next))
	if n, err := strconv.ParseInt(next, 10, 64); err == nil {
		metrics.LastMessageID.WithLabelValues(channelID).Set(float64(n))
	}
}

// handleChannelError counts the failure. Once MaxErrors consecutive
// failures are reached one consolidated notification is queued, the
// counter is reset and the channel is switched to error status.
func (e *Engine) handleChannelError(logger *zap.Logger, ch config.ChannelConfig, cause error) {
	metrics.ChannelErrors.WithLabelValues(ch.ID, apperrors.CategoryOf(cause).String()).Inc()

	count, err := e.c.Errors.Increment(ch.ID)
	if err != nil {
		logger.Warn("Failed to persist error count", zap.Error(err))
	}
	if count < e.opts.MaxErrors {
		logger.Error("Error processing channel",
			zap.Int("error_count", count),
			zap.Int("max_errors", e.opts.MaxErrors),
			zap.Error(cause))
		return
	}

	logger.Error("Max errors reached, channel switched to error status",
		zap.Int("max_errors", e.opts.MaxErrors),
		zap.Error(cause))
	e.notify(eitaa.MaxErrorsNotice(ch.DisplayName(), cause, e.opts.MaxErrors))
	if err := e.c.Errors.Reset(ch.ID); err != nil {
		logger.Warn("Failed to reset error counter", zap.Error(err))
	}
	e.setStatus(logger, ch, config.ChannelStatusError)
}

func (e *Engine) setStatus(logger *zap.Logger, ch config.ChannelConfig, status config.ChannelStatus) {
	if err := e.c.Channels.SetChannelStatus(ch.ID, status); err != nil {
		logger.Error("Failed to save channel status", zap.String("status", string(status)), zap.Error(err))
	}
}

func (e *Engine) notify(text string) {
	job := delivery.NewAdminJob(text, e.opts.AdminTargets)
	if err := e.c.Queue.Enqueue(job); err != nil {
		e.logger.Error("Failed to queue admin notification", zap.Error(err))
		return
	}
	e.logger.Info("Admin notification queued", zap.String("job_id", job.ID))
}

// drain blocks until every queued job has been delivered
func (e *Engine) drain(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.DrainPoll)
	defer ticker.Stop()

	for {
		pending := e.c.Queue.Pending()
		if pending == 0 {
			return nil
		}
		e.logger.Info("Waiting for messages to be sent", zap.Int("pending", pending))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// flush gives queued notifications a bounded chance to go out before a
// fatal exit
func (e *Engine) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, finalDrainTimeout)
	defer cancel()
	if err := e.drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("Pending messages abandoned", zap.Int("pending", e.c.Queue.Pending()))
	}
}

func (e *Engine) logResumePoints() {
	for _, ch := range e.c.Channels.Channels() {
		if id, ok := e.c.Watermarks.Load(ch.ID); ok {
			e.logger.Info("Resuming from message ID",
				zap.String("channel", ch.DisplayName()),
				zap.String("last_message_id", id))
			continue
		}
		e.logger.Info("Starting fresh", zap.String("channel", ch.DisplayName()))
	}
}

// shutdown stops the worker first, then releases the browser
func (e *Engine) shutdown() {
	e.logger.Info("Cleanup started")
	if err := e.c.Worker.Stop(); err != nil {
		e.logger.Warn("Delivery worker stop", zap.Error(err))
	}
	if err := e.c.Session.Close(); err != nil {
		e.logger.Warn("Session close", zap.Error(err))
	}
	e.logger.Info("Forwarder engine stopped")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
