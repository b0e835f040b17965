// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

// Package contact forwards contact-us messages from signed-in users to the
// support inbox.
package contact

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/pinvent/pinvent/internal/auth"
	"github.com/pinvent/pinvent/internal/mail"
	"github.com/pinvent/pinvent/pkg/errutil"
)

var messageTmpl = template.Must(template.New("contact").Parse(`<p>From: {{.Name}} &lt;{{.Email}}&gt;</p>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}`))

// Service sends contact messages.
type Service struct {
	mailer  mail.Sender
	support string
	logger  *slog.Logger
}

// NewService creates a Service that delivers to the support address.
// A nil logger uses slog.Default().
func NewService(mailer mail.Sender, support string, logger *slog.Logger) (*Service, error) {
	if mailer == nil {
		return nil, oops.Code("CONTACT_SERVICE_INVALID").Errorf("mail sender is required")
	}
	if support == "" {
		return nil, oops.Code("CONTACT_SERVICE_INVALID").Errorf("support address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{mailer: mailer, support: support, logger: logger}, nil
}

// Send mails subject and message to support with Reply-To set to the
// sender's address.
func (s *Service) Send(ctx context.Context, from *auth.User, subject, message string) error {
	if from == nil {
		return oops.Code(auth.CodeNotFound).Errorf("user not found, please signup")
	}
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)
	if subject == "" || message == "" {
		return oops.Code(auth.CodeInvalidInput).Errorf("please add subject and message")
	}

	body, err := render(from, message)
	if err != nil {
		return err
	}

	err = s.mailer.Send(ctx, mail.Message{
		To:      s.support,
		ReplyTo: from.Email,
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "contact email delivery failed",
			oops.With("operation", "send contact email").With("user_id", from.ID.String()).Wrap(err))
		return oops.Code(auth.CodeEmailDelivery).Errorf("email not sent, please try again")
	}
	return nil
}

func render(from *auth.User, message string) (string, error) {
	var paragraphs []string
	for _, p := range strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	var buf bytes.Buffer
	err := messageTmpl.Execute(&buf, struct {
		Name       string
		Email      string
		Paragraphs []string
	}{from.Name, from.Email, paragraphs})
	if err != nil {
		return "", oops.Code("CONTACT_RENDER_FAILED").Wrap(err)
	}
	return buf.String(), nil
}
