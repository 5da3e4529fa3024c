package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/campus-ops/clearance-api/pkg/config"
)

// Message is a single outbound email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	TextBody  string
	HTMLBody  string
}

// Mailer delivers messages through a concrete backend.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New selects a backend from configuration.
func New(cfg config.MailConfig, logger *zap.Logger) (Mailer, error) {
	switch cfg.Backend {
	case "sendgrid":
		if cfg.SendgridKey == "" {
			return nil, fmt.Errorf("sendgrid backend requires MAIL_SENDGRID_KEY")
		}
		return NewSendgridMailer(cfg), nil
	case "console", "":
		return NewConsoleMailer(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", cfg.Backend)
	}
}

func subject(cfg config.MailConfig, msg Message) string {
	if cfg.SubjectTag == "" {
		return msg.Subject
	}
	return "[" + cfg.SubjectTag + "] " + msg.Subject
}
