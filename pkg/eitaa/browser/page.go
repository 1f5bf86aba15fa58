package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/smaghili/eitaa-forwarder/pkg/eitaa"
)

const pollInterval = 250 * time.Millisecond

var errWaitTimeout = errors.New("timed out waiting for page")

// OpenChatList loads the client if needed and waits for the chat list or
// the sign-in screen, then lets the page settle.
func (b *Browser) OpenChatList(ctx context.Context) error {
	ok, err := b.exists(ctx, selChatList)
	if err != nil {
		return err
	}
	if !ok {
		if err := b.run(ctx, navigationTimeout, chromedp.Navigate(b.opts.URL)); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
	}

	if _, err := b.waitAny(ctx, b.opts.ReadyTimeout, selChatList, selLoginPage); err != nil {
		return fmt.Errorf("chat list: %w", err)
	}
	return sleep(ctx, b.opts.SettleDelay)
}

// OpenChannel clicks the channel entry in the chat list
func (b *Browser) OpenChannel(ctx context.Context, channelID string) (bool, error) {
	sel := channelSelector(channelID)
	ok, err := b.exists(ctx, sel)
	if err != nil || !ok {
		return false, err
	}

	err = b.run(ctx, b.opts.ReadyTimeout,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	)
	if err != nil {
		return false, fmt.Errorf("open channel %s: %w", channelID, err)
	}
	return true, sleep(ctx, b.opts.SettleDelay)
}

// LoginPageVisible reports whether the sign-in tab is active
func (b *Browser) LoginPageVisible(ctx context.Context) (bool, error) {
	return b.exists(ctx, selLoginPage)
}

// Bubbles returns the rendered message bubbles of the open channel
func (b *Browser) Bubbles(ctx context.Context) ([]eitaa.Bubble, error) {
	var raw []bubbleData
	if err := b.run(ctx, b.opts.ReadyTimeout, chromedp.Evaluate(bubblesScript, &raw)); err != nil {
		return nil, fmt.Errorf("read bubbles: %w", err)
	}
	out := make([]eitaa.Bubble, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.toBubble())
	}
	return out, nil
}

// DownloadMedia opens the media viewer of a message, clicks download and
// waits for the file to land in the images dir.
func (b *Browser) DownloadMedia(ctx context.Context, messageID string) (string, error) {
	b.drainDownloads()
	defer b.closeViewer(ctx)

	sel := mediaSelector(messageID)
	b.logger.Debug("Opening media viewer", zap.String("message_id", messageID))
	err := b.run(ctx, viewerOpenTimeout,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
		chromedp.WaitVisible(selDownloadBtn, chromedp.ByQuery),
		chromedp.Click(selDownloadBtn, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("open media viewer: %w", err)
	}

	timer := time.NewTimer(b.opts.DownloadTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("download of message %s not finished within %s", messageID, b.opts.DownloadTimeout)
	case res := <-b.downloads:
		if res.canceled {
			return "", fmt.Errorf("download of message %s canceled", messageID)
		}
		src := filepath.Join(b.opts.ImagesDir, res.guid)
		dst := filepath.Join(b.opts.ImagesDir, downloadName(messageID, res.name))
		if err := os.Rename(src, dst); err != nil {
			return "", fmt.Errorf("move download: %w", err)
		}
		b.logger.Info("File downloaded",
			zap.String("message_id", messageID),
			zap.String("path", dst))
		return dst, nil
	}
}

func (b *Browser) closeViewer(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := b.run(ctx, viewerOpenTimeout, chromedp.KeyEvent(kb.Escape)); err != nil {
		b.logger.Debug("Failed to close media viewer", zap.Error(err))
		return
	}
	_ = sleep(ctx, viewerCloseDelay)
}

func (b *Browser) drainDownloads() {
	for {
		select {
		case res := <-b.downloads:
			b.logger.Debug("Discarding stale download", zap.String("guid", res.guid))
		default:
			return
		}
	}
}

// exists reports whether sel matches at least one node right now
func (b *Browser) exists(ctx context.Context, sel string) (bool, error) {
	var nodes []*cdp.Node
	err := b.run(ctx, b.opts.ReadyTimeout,
		chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return false, fmt.Errorf("query %q: %w", sel, err)
	}
	return len(nodes) > 0, nil
}

// waitAny polls until one of sels matches and returns it
func (b *Browser) waitAny(ctx context.Context, timeout time.Duration, sels ...string) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, sel := range sels {
			ok, err := b.exists(ctx, sel)
			if err != nil {
				return "", err
			}
			if ok {
				return sel, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: none of %q within %s", errWaitTimeout, sels, timeout)
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return "", err
		}
	}
}
