package delivery

import (
	"context"

	"go.uber.org/zap"
)

// LogConnector is a Connector that never touches the network. Every send is
// written to the log instead.
type LogConnector struct {
	logger *zap.Logger
}

// NewLogConnector creates a dry-run connector
func NewLogConnector(logger *zap.Logger) *LogConnector {
	return &LogConnector{logger: logger.Named("dry_run")}
}

// Run calls fn immediately with a logging Sender
func (c *LogConnector) Run(ctx context.Context, fn func(ctx context.Context, s Sender) error) error {
	c.logger.Info("Sending disabled, deliveries will only be logged")
	return fn(ctx, logSender{logger: c.logger})
}

type logSender struct {
	logger *zap.Logger
}

func (s logSender) SendText(_ context.Context, target int64, text string) error {
	s.logger.Info("Would send message",
		zap.Int64("target", target),
		zap.String("text", text))
	return nil
}

func (s logSender) SendFile(_ context.Context, target int64, path, caption string) error {
	s.logger.Info("Would send file",
		zap.Int64("target", target),
		zap.String("path", path),
		zap.String("caption", caption))
	return nil
}
