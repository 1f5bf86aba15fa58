// Package telegram delivers outbound jobs through a Telegram user account
// over MTProto.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/smaghili/eitaa-forwarder/pkg/config"
	"github.com/smaghili/eitaa-forwarder/pkg/delivery"
	"github.com/smaghili/eitaa-forwarder/pkg/prompt"
)

var _ delivery.Connector = (*Client)(nil)

// Options configures a Client
type Options struct {
	APIID   int
	APIHash string
	// SessionFile stores the MTProto session between runs
	SessionFile string
	// Phone is used for the first login. The operator is asked when empty.
	Phone    string
	Prompter *prompt.Prompter
}

// OptionsFromConfig maps the destination settings onto client options.
// The session file lives next to the config file.
func OptionsFromConfig(cfg config.TelegramConfig, baseDir string, p *prompt.Prompter) Options {
	name := cfg.SessionName
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(baseDir, name)
	}
	return Options{
		APIID:       cfg.APIID,
		APIHash:     cfg.APIHash,
		SessionFile: name,
		Phone:       cfg.Phone,
		Prompter:    p,
	}
}

// Client is a delivery.Connector backed by a Telegram user session
type Client struct {
	opts   Options
	logger *zap.Logger
}

// New creates a client. Nothing is dialed until Run.
func New(opts Options, logger *zap.Logger) *Client {
	return &Client{
		opts:   opts,
		logger: logger.Named("telegram"),
	}
}

// Run connects, logs in if the stored session is not authorized and calls
// fn with a Sender bound to the connection. The connection is closed when
// fn returns.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context, s delivery.Sender) error) error {
	client := telegram.NewClient(c.opts.APIID, c.opts.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: c.opts.SessionFile},
		Logger:         c.logger.Named("mtproto"),
	})

	return client.Run(ctx, func(ctx context.Context) error {
		if err := c.authenticate(ctx, client); err != nil {
			return err
		}
		s := newSender(client.API(), c.logger)
		if err := s.loadDialogs(ctx); err != nil {
			c.logger.Warn("Failed to preload dialogs", zap.Error(err))
		}
		return fn(ctx, s)
	})
}

func (c *Client) authenticate(ctx context.Context, client *telegram.Client) error {
	status, err := client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if status.Authorized {
		c.logger.Info("Telegram client started", zap.String("user", displayUser(status.User)))
		return nil
	}

	if c.opts.Prompter == nil {
		return errors.New("telegram session not authorized and no terminal to log in")
	}
	c.logger.Info("Please complete Telegram login")
	flow := auth.NewFlow(terminalAuth{phone: c.opts.Phone, prompter: c.opts.Prompter}, auth.SendCodeOptions{})
	if err := client.Auth().IfNecessary(ctx, flow); err != nil {
		return fmt.Errorf("telegram login: %w", err)
	}
	c.logger.Info("Telegram client started")
	return nil
}

func displayUser(u *tg.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// terminalAuth answers the login flow from the operator's terminal
type terminalAuth struct {
	phone    string
	prompter *prompt.Prompter
}

func (a terminalAuth) Phone(ctx context.Context) (string, error) {
	if a.phone != "" {
		return a.phone, nil
	}
	return a.prompter.Ask(ctx, "Enter Telegram phone number: ", func(s string) error {
		if !strings.HasPrefix(s, "+") {
			return errors.New("include the country code, e.g. +98")
		}
		return nil
	})
}

func (a terminalAuth) Password(ctx context.Context) (string, error) {
	return a.prompter.Secret(ctx, "Enter Telegram 2FA password: ")
}

func (a terminalAuth) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.prompter.Ask(ctx, "Enter Telegram code: ", func(s string) error {
		if s == "" {
			return errors.New("code is required")
		}
		return nil
	})
}

func (a terminalAuth) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

func (a terminalAuth) SignUp(context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign up is not supported, use an existing account")
}
