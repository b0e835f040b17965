// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package errutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/pinvent/pinvent/pkg/errutil"
)

func TestCode(t *testing.T) {
	leaf := oops.Code("EMAIL_TAKEN").Errorf("user already exists")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), ""},
		{"coded", leaf, "EMAIL_TAKEN"},
		{"wrapped without code", oops.With("op", "register").Wrap(leaf), "EMAIL_TAKEN"},
		{"fmt wrapped", fmt.Errorf("ctx: %w", leaf), "EMAIL_TAKEN"},
		{"uncoded oops", oops.Errorf("x"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.Code(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	err := oops.Code("UNAUTHORIZED").Errorf("not authorized")
	assert.True(t, errutil.HasCode(err, "UNAUTHORIZED"))
	assert.False(t, errutil.HasCode(err, "INVALID_INPUT"))
	assert.False(t, errutil.HasCode(nil, ""))
}

func TestStack(t *testing.T) {
	assert.Empty(t, errutil.Stack(errors.New("plain")))
	assert.NotEmpty(t, errutil.Stack(oops.Errorf("boom")))
}
