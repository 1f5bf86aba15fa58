package eitaa

import (
	"context"
	"sort"
	"strconv"

	"github.com/smaghili/eitaa-forwarder/internal/metrics"
	apperrors "github.com/smaghili/eitaa-forwarder/pkg/app/errors"
	"github.com/smaghili/eitaa-forwarder/pkg/config"
	"github.com/smaghili/eitaa-forwarder/pkg/delivery"
	"go.uber.org/zap"
)

// Bubble is one rendered message element as found on the page
type Bubble struct {
	// RawID is the element's message id attribute, unparsed
	RawID string
	// Lines is the rendered text of the message body, split by line
	Lines    []string
	HasText  bool
	HasMedia bool
}

// Page is the automation surface used to read one channel
type Page interface {
	// OpenChatList loads the chat list and waits until it is usable
	OpenChatList(ctx context.Context) error
	// OpenChannel selects a channel. found is false when the channel is not
	// in the chat list.
	OpenChannel(ctx context.Context, channelID string) (found bool, err error)
	// LoginPageVisible reports whether the sign-in screen is showing
	LoginPageVisible(ctx context.Context) (bool, error)
	// Bubbles returns the message elements currently rendered
	Bubbles(ctx context.Context) ([]Bubble, error)
	// DownloadMedia saves the attachment of a message and returns its path
	DownloadMedia(ctx context.Context, messageID string) (string, error)
}

// ReconcileResult is the outcome of one pass over a channel
type ReconcileResult struct {
	// NewWatermark is the highest message id visible, or the prior
	// watermark when nothing newer was seen
	NewWatermark string
	Jobs         []*delivery.Job
	// ChannelGone is set when the channel is missing but the session is fine
	ChannelGone bool
}

// Reconciler turns the visible messages of a channel into outbound jobs
type Reconciler struct {
	page           Page
	session        *SessionManager
	defaultTargets []int64
	logger         *zap.Logger
}

// NewReconciler creates a reconciler. defaultTargets is used for channels
// without their own target list.
func NewReconciler(page Page, session *SessionManager, defaultTargets []int64, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		page:           page,
		session:        session,
		defaultTargets: defaultTargets,
		logger:         logger.Named("reconciler"),
	}
}

type visibleMessage struct {
	id     int64
	bubble Bubble
}

// Reconcile reads ch and returns jobs for every message newer than
// watermark. An empty watermark means the channel was never processed and
// every visible message is forwarded.
func (r *Reconciler) Reconcile(ctx context.Context, ch config.ChannelConfig, watermark string) (*ReconcileResult, error) {
	logger := r.logger.With(zap.String("channel", ch.DisplayName()), zap.String("channel_id", ch.ID))
	unchanged := &ReconcileResult{NewWatermark: watermark}

	if err := r.page.OpenChatList(ctx); err != nil {
		return nil, apperrors.ChannelError(err, "chat list not ready")
	}

	found, err := r.page.OpenChannel(ctx, ch.ID)
	if err != nil {
		return nil, apperrors.ChannelError(err, "failed to open channel")
	}
	if !found {
		loginVisible, lerr := r.page.LoginPageVisible(ctx)
		if lerr != nil {
			logger.Warn("Could not check for login page", zap.Error(lerr))
		}
		if loginVisible {
			if cerr := r.session.ClearSession(); cerr != nil {
				logger.Warn("Failed to clear session", zap.Error(cerr))
			}
			return nil, apperrors.SessionExpiredError(nil, "session expired, login required")
		}
		logger.Warn("Channel not found in chat list")
		unchanged.ChannelGone = true
		return unchanged, nil
	}

	bubbles, err := r.page.Bubbles(ctx)
	if err != nil {
		return nil, apperrors.ChannelError(err, "failed to read messages")
	}

	visible := make([]visibleMessage, 0, len(bubbles))
	var maxID int64
	for _, b := range bubbles {
		id, perr := strconv.ParseInt(b.RawID, 10, 64)
		if perr != nil || id <= 0 {
			logger.Warn("Skipping message without valid id", zap.String("raw_id", b.RawID))
			metrics.MessagesSkipped.WithLabelValues(ch.ID, "invalid_id").Inc()
			continue
		}
		if id > maxID {
			maxID = id
		}
		visible = append(visible, visibleMessage{id: id, bubble: b})
	}
	if len(visible) == 0 {
		logger.Info("No messages visible")
		return unchanged, nil
	}

	prior, hasPrior := parseWatermark(watermark)
	if watermark != "" && !hasPrior {
		logger.Warn("Ignoring invalid watermark", zap.String("watermark", watermark))
	}

	kept := visible
	if hasPrior {
		kept = make([]visibleMessage, 0, len(visible))
		for _, v := range visible {
			if v.id > prior {
				kept = append(kept, v)
			}
		}
	} else {
		logger.Info("Processing all messages (no last message ID found)")
	}

	result := &ReconcileResult{NewWatermark: strconv.FormatInt(maxID, 10)}
	if hasPrior && maxID < prior {
		result.NewWatermark = watermark
	}

	if len(kept) == 0 {
		logger.Info("No new messages found", zap.String("watermark", watermark))
		return result, nil
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].id < kept[j].id })
	logger.Info("Processing new messages", zap.Int("count", len(kept)))

	targets := ch.TelegramTargets
	if len(targets) == 0 {
		targets = r.defaultTargets
	}

	for _, v := range kept {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		job := r.buildJob(ctx, logger, ch.ID, v, targets)
		if job == nil {
			continue
		}
		result.Jobs = append(result.Jobs, job)
		metrics.MessagesDetected.WithLabelValues(ch.ID).Inc()
	}

	return result, nil
}

func (r *Reconciler) buildJob(ctx context.Context, logger *zap.Logger, channelID string, v visibleMessage, targets []int64) *delivery.Job {
	if !v.bubble.HasText && !v.bubble.HasMedia {
		logger.Debug("Skipping empty message", zap.Int64("message_id", v.id))
		metrics.MessagesSkipped.WithLabelValues(channelID, "empty").Inc()
		return nil
	}

	var attachment string
	if v.bubble.HasMedia {
		path, err := r.page.DownloadMedia(ctx, v.bubble.RawID)
		if err != nil {
			logger.Error("Media download failed, sending text only",
				zap.Int64("message_id", v.id),
				zap.Error(err))
		} else {
			attachment = path
		}
	}

	msg := NewMessage(v.id, ParseLines(v.bubble.Lines), attachment)
	logger.Info("Found new message",
		zap.Int64("message_id", v.id),
		zap.Bool("with_media", attachment != ""))
	return delivery.NewMessageJob(channelID, v.id, msg.Format(), attachment, targets)
}

func parseWatermark(w string) (int64, bool) {
	if w == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(w, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
