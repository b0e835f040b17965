// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package errutil

import (
	"fmt"

	"github.com/samber/oops"
)

// Code returns the oops code of err, or "" if it has none. oops reports the
// code of the innermost coded error in the chain.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch c := oopsErr.Code().(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		return fmt.Sprint(c)
	}
}

// HasCode reports whether err carries code.
func HasCode(err error, code string) bool {
	return err != nil && Code(err) == code
}

// Stack returns the oops stack trace of err, or "" for plain errors.
func Stack(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	return oopsErr.Stacktrace()
}
