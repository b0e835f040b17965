// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/pinvent/pinvent/pkg/errutil"
)

func TestNewSMTPSender_Validation(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{From: "shop@example.com", Port: 587})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MAIL_CONFIG_INVALID")

	_, err = NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MAIL_CONFIG_INVALID")

	s, err := NewSMTPSender(SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "user",
		Password: "pass",
		From:     "shop@example.com",
	})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestBuildMessage(t *testing.T) {
	m, err := buildMessage("shop@example.com", Message{
		To:      "ada@example.com",
		ReplyTo: "help@example.com",
		Subject: "Password Reset Request",
		HTML:    "<p>hi</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Password Reset Request"}, m.GetGenHeader(gomail.HeaderSubject))
	rcpts, err := m.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"ada@example.com"}, rcpts)
	assert.Len(t, m.GetGenHeader(gomail.HeaderReplyTo), 1)
}

func TestBuildMessage_Invalid(t *testing.T) {
	_, err := buildMessage("shop@example.com", Message{Subject: "x"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MAIL_MESSAGE_INVALID")

	_, err = buildMessage("shop@example.com", Message{To: "not an address"})
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "field", "to")
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := NewLogSender(logger).Send(context.Background(), Message{To: "ada@example.com", Subject: "Hello"})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ada@example.com", entry["to"])
	assert.Equal(t, "Hello", entry["subject"])
}
