// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package auth

import (
	"log/slog"
	"time"
)

type options struct {
	logger   *slog.Logger
	denylist Denylist
	now      func() time.Time
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		now:    time.Now,
	}
}

// Option configures the auth services and Guard.
type Option func(*options)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDenylist enables server-side revocation of session tokens on logout.
func WithDenylist(d Denylist) Option {
	return func(o *options) {
		o.denylist = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
