// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

// Package mail delivers transactional e-mail.
package mail

import (
	"context"
	"log/slog"
)

// Message is a single outbound e-mail with an HTML body.
type Message struct {
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to a logger instead of delivering them.
// It is used when no SMTP host is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs msg and never fails.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail not delivered, no SMTP host configured",
		"to", msg.To,
		"reply_to", msg.ReplyTo,
		"subject", msg.Subject,
		"body", msg.HTML,
	)
	return nil
}
