package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/smaghili/eitaa-forwarder/pkg/atomicfile"
	"github.com/smaghili/eitaa-forwarder/pkg/eitaa"
	"github.com/smaghili/eitaa-forwarder/pkg/prompt"
)

const debugScreenshotName = "debug_screenshot.png"

// RestoreSession loads cookies and localStorage from a saved artifact
func (b *Browser) RestoreSession(ctx context.Context, path string) error {
	st, err := readStorageState(path)
	if err != nil {
		return err
	}

	if params := st.cookieParams(); len(params) > 0 {
		if err := b.run(ctx, navigationTimeout, network.SetCookies(params)); err != nil {
			return fmt.Errorf("set cookies: %w", err)
		}
	}

	var origin string
	if err := b.run(ctx, navigationTimeout, chromedp.Evaluate(originScript, &origin)); err != nil {
		return fmt.Errorf("read origin: %w", err)
	}
	records := st.localStorageFor(origin)
	if len(records) > 0 {
		script, err := setItemsScript(records)
		if err != nil {
			return err
		}
		var n int
		if err := b.run(ctx, navigationTimeout, chromedp.Evaluate(script, &n)); err != nil {
			return fmt.Errorf("restore local storage: %w", err)
		}
	}

	b.logger.Info("Session restored",
		zap.Int("cookies", len(st.Cookies)),
		zap.Int("local_storage", len(records)))
	return nil
}

// SaveSession writes the cookies and localStorage of the client to path
func (b *Browser) SaveSession(ctx context.Context, path string) error {
	var (
		cookies []*network.Cookie
		origin  string
		entries [][]string
	)
	err := b.run(ctx, navigationTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
		chromedp.Evaluate(originScript, &origin),
		chromedp.Evaluate(localStorageScript, &entries),
	)
	if err != nil {
		return fmt.Errorf("capture session: %w", err)
	}

	if err := writeStorageState(path, newStorageState(cookies, origin, entries)); err != nil {
		return err
	}
	b.logger.Info("Session saved", zap.String("path", path), zap.Int("cookies", len(cookies)))
	return nil
}

// ProbeLiveness reloads the client and looks for the sign-in screen or the
// main sidebar. When neither shows up a debug screenshot is saved.
func (b *Browser) ProbeLiveness(ctx context.Context) (eitaa.LoginStatus, error) {
	if err := b.run(ctx, navigationTimeout, chromedp.Navigate(b.opts.URL)); err != nil {
		return eitaa.LoginUnknown, fmt.Errorf("navigate: %w", err)
	}
	if err := sleep(ctx, reloadDelay); err != nil {
		return eitaa.LoginUnknown, err
	}

	sel, err := b.waitAny(ctx, b.opts.ReadyTimeout, selLoginPage, selMainSidebar)
	switch {
	case err == nil && sel == selLoginPage:
		return eitaa.LoginRequired, nil
	case err == nil:
		return eitaa.LoggedIn, nil
	case !errors.Is(err, errWaitTimeout):
		return eitaa.LoginUnknown, err
	}

	b.saveDebugScreenshot(ctx)
	return eitaa.LoginUnknown, nil
}

// InteractiveLogin waits for the operator to log in by hand when the
// window is visible. Headless, it walks the phone, code and optional
// password steps with answers read from the terminal.
func (b *Browser) InteractiveLogin(ctx context.Context) error {
	p := b.opts.Prompter
	if p == nil {
		return errors.New("interactive login needs a terminal")
	}

	if !b.opts.Headless {
		b.logger.Info("Please login manually in the browser window")
		return p.WaitEnter(ctx, "After login, press Enter to continue...")
	}
	return b.headlessLogin(ctx, p)
}

func (b *Browser) headlessLogin(ctx context.Context, p *prompt.Prompter) error {
	if err := b.run(ctx, navigationTimeout, chromedp.Navigate(b.opts.URL)); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := sleep(ctx, reloadDelay); err != nil {
		return err
	}

	if err := b.run(ctx, promptStepTimeout, chromedp.WaitVisible(selPhoneInput, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("phone input not shown: %w", err)
	}
	phone, err := p.Ask(ctx, "\nEnter phone number (+98xxxxxxxxxx): ", validatePhone)
	if err != nil {
		return err
	}
	err = b.run(ctx, promptStepTimeout,
		chromedp.SetValue(selPhoneInput, "", chromedp.ByQuery),
		chromedp.SendKeys(selPhoneInput, phone, chromedp.ByQuery),
		chromedp.Click(selPhoneSubmit, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("submit phone: %w", err)
	}

	if err := b.run(ctx, promptStepTimeout, chromedp.WaitVisible(selCodeInput, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("code input not shown: %w", err)
	}
	code, err := p.Ask(ctx, "\nEnter verification code: ", validateCode)
	if err != nil {
		return err
	}
	if err := b.run(ctx, promptStepTimeout, chromedp.SendKeys(selCodeInput, code, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("submit code: %w", err)
	}
	if err := sleep(ctx, loginSettleDelay); err != nil {
		return err
	}

	if err := b.run(ctx, passwordTimeout, chromedp.WaitVisible(selPasswordIn, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Debug("No password step")
		return nil
	}
	pwd, err := p.Secret(ctx, "\nEnter Eitaa password: ")
	if err != nil {
		return err
	}
	err = b.run(ctx, promptStepTimeout,
		chromedp.SendKeys(selPasswordIn, pwd, chromedp.ByQuery),
		chromedp.Click(selPasswordSend, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("submit password: %w", err)
	}
	return sleep(ctx, loginSettleDelay)
}

func (b *Browser) saveDebugScreenshot(ctx context.Context) {
	var (
		url string
		buf []byte
	)
	if err := b.run(ctx, navigationTimeout, chromedp.Location(&url), chromedp.CaptureScreenshot(&buf)); err != nil {
		b.logger.Warn("Failed to capture debug screenshot", zap.Error(err))
		return
	}
	path := filepath.Join(b.opts.ImagesDir, debugScreenshotName)
	if err := atomicfile.WriteFile(path, buf, 0o644); err != nil {
		b.logger.Warn("Failed to save debug screenshot", zap.Error(err))
		return
	}
	b.logger.Warn("Could not determine login status",
		zap.String("url", url),
		zap.String("screenshot", path))
}

func validatePhone(s string) error {
	if !strings.HasPrefix(s, "+") || len(s) < 12 {
		return errors.New("invalid format, include country code (+98)")
	}
	return nil
}

func validateCode(s string) error {
	if len(s) < 4 {
		return errors.New("invalid code format")
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return errors.New("invalid code format")
		}
	}
	return nil
}
