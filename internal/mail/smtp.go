// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package mail

import (
	"context"
	"crypto/tls"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig holds SMTP transport settings.
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	InsecureSkipVerify bool
}

// SMTPSender delivers messages over authenticated SMTP with STARTTLS when offered.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

// NewSMTPSender validates cfg and prepares a client. No connection is made
// until Send.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("sender address is required")
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	if cfg.InsecureSkipVerify {
		//nolint:gosec // explicitly requested for relays with self-signed certificates
		opts = append(opts, gomail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, InsecureSkipVerify: true}))
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

// Send delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := buildMessage(s.from, msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "dial and send").
			With("subject", msg.Subject).
			Wrap(err)
	}
	return nil
}

func buildMessage(from string, msg Message) (*gomail.Msg, error) {
	if msg.To == "" {
		return nil, oops.Code("MAIL_MESSAGE_INVALID").Errorf("recipient is required")
	}

	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, oops.Code("MAIL_MESSAGE_INVALID").With("field", "from").Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.Code("MAIL_MESSAGE_INVALID").With("field", "to").Wrap(err)
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, oops.Code("MAIL_MESSAGE_INVALID").With("field", "reply_to").Wrap(err)
		}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	return m, nil
}
