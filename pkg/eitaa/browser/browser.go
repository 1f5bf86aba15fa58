// Package browser drives the Eitaa web client through Chrome DevTools.
//
// Browser implements both eitaa.SessionDriver and eitaa.Page on top of a
// single chromedp tab.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/smaghili/eitaa-forwarder/pkg/config"
	"github.com/smaghili/eitaa-forwarder/pkg/eitaa"
	"github.com/smaghili/eitaa-forwarder/pkg/prompt"
)

var (
	_ eitaa.SessionDriver = (*Browser)(nil)
	_ eitaa.Page          = (*Browser)(nil)
)

// ErrNotStarted is returned by every operation before Start
var ErrNotStarted = errors.New("browser not started")

const (
	navigationTimeout = 60 * time.Second
	promptStepTimeout = 10 * time.Second
	passwordTimeout   = 5 * time.Second
	loginSettleDelay  = 5 * time.Second
	reloadDelay       = 2 * time.Second
	viewerOpenTimeout = 5 * time.Second
	viewerCloseDelay  = 500 * time.Millisecond
)

// Options configures a Browser
type Options struct {
	URL             string
	Headless        bool
	Width           int
	Height          int
	ReadyTimeout    time.Duration
	SettleDelay     time.Duration
	DownloadTimeout time.Duration
	// ImagesDir receives downloaded attachments and debug screenshots
	ImagesDir string
	Prompter  *prompt.Prompter
}

// OptionsFromConfig maps the source settings onto browser options
func OptionsFromConfig(cfg *config.Config, headless bool, p *prompt.Prompter) Options {
	return Options{
		URL:             cfg.Eitaa.URL,
		Headless:        headless,
		Width:           cfg.Eitaa.Viewport.Width,
		Height:          cfg.Eitaa.Viewport.Height,
		ReadyTimeout:    cfg.Eitaa.ReadyTimeout,
		SettleDelay:     cfg.Eitaa.SettleDelay,
		DownloadTimeout: cfg.Eitaa.DownloadTimeout,
		ImagesDir:       cfg.Paths.ImagesDir,
		Prompter:        p,
	}
}

type downloadResult struct {
	guid     string
	name     string
	canceled bool
}

// Browser is a single Chrome tab showing the Eitaa web client
type Browser struct {
	opts   Options
	logger *zap.Logger

	mu          sync.Mutex
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	dlMu      sync.Mutex
	dlNames   map[string]string
	downloads chan downloadResult
}

// New creates a browser. Chrome is launched by Start.
func New(opts Options, logger *zap.Logger) *Browser {
	return &Browser{
		opts:      opts,
		logger:    logger.Named("browser"),
		dlNames:   make(map[string]string),
		downloads: make(chan downloadResult, 16),
	}
}

// Start launches Chrome, opens the web client and enables downloads
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tabCtx != nil {
		return errors.New("browser already started")
	}

	imagesDir, err := filepath.Abs(b.opts.ImagesDir)
	if err != nil {
		return fmt.Errorf("resolve images dir: %w", err)
	}
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return fmt.Errorf("create images dir: %w", err)
	}
	b.opts.ImagesDir = imagesDir

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.DisableGPU,
		chromedp.WindowSize(b.opts.Width, b.opts.Height),
	)

	// The tab outlives ctx; it is torn down by Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	sugar := b.logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	)
	chromedp.ListenTarget(tabCtx, b.onEvent)

	b.tabCtx, b.tabCancel, b.allocCancel = tabCtx, tabCancel, allocCancel

	// the first Run launches Chrome and binds it to the context it gets
	if err := chromedp.Run(tabCtx); err != nil {
		_ = b.closeLocked()
		return fmt.Errorf("launch chrome: %w", err)
	}

	err = b.runLocked(ctx, navigationTimeout,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(b.opts.ImagesDir).
			WithEventsEnabled(true),
		chromedp.Navigate(b.opts.URL),
	)
	if err != nil {
		_ = b.closeLocked()
		return fmt.Errorf("open %s: %w", b.opts.URL, err)
	}

	if err := b.writeSessionHints(ctx); err != nil {
		b.logger.Warn("Failed to write session hints", zap.Error(err))
	}

	b.logger.Info("Browser started",
		zap.String("url", b.opts.URL),
		zap.Bool("headless", b.opts.Headless))
	return nil
}

// Close shuts Chrome down
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *Browser) closeLocked() error {
	if b.tabCtx == nil {
		return nil
	}
	err := chromedp.Cancel(b.tabCtx)
	b.tabCancel()
	b.allocCancel()
	b.tabCtx = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// run executes actions on the tab, bounded by timeout and by ctx
func (b *Browser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runLocked(ctx, timeout, actions...)
}

func (b *Browser) runLocked(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if b.tabCtx == nil {
		return ErrNotStarted
	}
	opCtx, cancel := context.WithTimeout(b.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (b *Browser) writeSessionHints(ctx context.Context) error {
	script, err := setItemsScript(hintRecords())
	if err != nil {
		return err
	}
	var n int
	return b.runLocked(ctx, navigationTimeout,
		chromedp.Evaluate(script, &n),
		chromedp.Evaluate(`sessionStorage.setItem('sessionPersist', 'true')`, nil),
	)
}

func (b *Browser) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *cdpbrowser.EventDownloadWillBegin:
		b.dlMu.Lock()
		b.dlNames[e.GUID] = e.SuggestedFilename
		b.dlMu.Unlock()
	case *cdpbrowser.EventDownloadProgress:
		if e.State != cdpbrowser.DownloadProgressStateCompleted && e.State != cdpbrowser.DownloadProgressStateCanceled {
			return
		}
		b.dlMu.Lock()
		name := b.dlNames[e.GUID]
		delete(b.dlNames, e.GUID)
		b.dlMu.Unlock()

		res := downloadResult{
			guid:     e.GUID,
			name:     name,
			canceled: e.State == cdpbrowser.DownloadProgressStateCanceled,
		}
		select {
		case b.downloads <- res:
		default:
			b.logger.Warn("Dropping download event", zap.String("guid", e.GUID))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
