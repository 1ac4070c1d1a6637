package mail

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// LogMailer writes outbound messages to the application log instead of
// delivering them. Used when SMTP is not configured so that reset and
// verification links remain reachable during development.
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer builds a Mailer that records messages via the supplied logger.
func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{log: log}
}

// Send logs the message and always succeeds.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.log.Info("mock email delivery",
		zap.String("to", strings.Join(msg.To, ", ")),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
