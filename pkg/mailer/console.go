package mailer

import (
	"context"

	"go.uber.org/zap"

	"github.com/campus-ops/clearance-api/pkg/config"
)

// ConsoleMailer logs messages instead of delivering them. Used in development
// and in tests.
type ConsoleMailer struct {
	cfg    config.MailConfig
	logger *zap.Logger
}

// NewConsoleMailer builds a console-backed mailer.
func NewConsoleMailer(cfg config.MailConfig, logger *zap.Logger) *ConsoleMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleMailer{cfg: cfg, logger: logger}
}

// Send writes the message to the application log.
func (m *ConsoleMailer) Send(_ context.Context, msg Message) error {
	m.logger.Sugar().Infow("email",
		"to", msg.ToAddress,
		"subject", subject(m.cfg, msg),
		"body", msg.TextBody,
	)
	return nil
}
