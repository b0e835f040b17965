// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package auth

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/samber/oops"
)

// ResetEmailSubject is the subject line of password reset e-mails.
const ResetEmailSubject = "Password Reset Request"

var resetEmailTmpl = template.Must(template.New("reset").Parse(`<h2>Hello {{.Name}}</h2>
<p>Please use the url below to reset your password.</p>
<p>This reset link is valid for only {{.Minutes}} minutes.</p>
<a href="{{.Link}}" clicktracking=off>{{.Link}}</a>
<p>Regards...</p>
<p>Pinvent Team</p>
`))

// ResetLink builds the frontend URL that carries the raw reset token.
func ResetLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/resetpassword/" + token
}

func renderResetEmail(name, link string) (string, error) {
	var buf bytes.Buffer
	err := resetEmailTmpl.Execute(&buf, struct {
		Name    string
		Link    string
		Minutes int
	}{
		Name:    name,
		Link:    link,
		Minutes: int(ResetTokenExpiry.Minutes()),
	})
	if err != nil {
		return "", oops.Code("RESET_EMAIL_RENDER_FAILED").Wrap(err)
	}
	return buf.String(), nil
}
