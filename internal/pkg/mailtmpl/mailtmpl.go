// Package mailtmpl renders the HTML bodies of outgoing emails.
package mailtmpl

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/wiki-mailauth/internal/domain"
)

//go:embed templates/*.html
var files embed.FS

var tmpl = template.Must(template.ParseFS(files, "templates/*.html"))

// VerificationCode is the data for the verification-code email.
type VerificationCode struct {
	SiteName      string
	Code          string
	ExpiryMinutes int
	Purpose       domain.Purpose
	Year          int
}

// Intro is the sentence that explains why the code was sent.
func (v VerificationCode) Intro() string {
	switch v.Purpose {
	case domain.PurposeResetPassword:
		return "You asked to reset your " + v.SiteName + " password. Use this code to continue:"
	case domain.PurposeDeleteAccount:
		return "You asked to delete your " + v.SiteName + " account. Use this code to confirm:"
	default:
		return "You are registering a " + v.SiteName + " account. Use this code to verify your email:"
	}
}

// Subject returns the email subject line for the code.
func (v VerificationCode) Subject() string {
	return fmt.Sprintf("[%s] Your verification code", v.SiteName)
}

// Welcome is the data for the post-registration email.
type Welcome struct {
	SiteName string
	Username string
}

func (w Welcome) Subject() string {
	return fmt.Sprintf("Welcome to %s!", w.SiteName)
}

// RenderVerificationCode produces the HTML body for a verification-code email.
func RenderVerificationCode(v VerificationCode) (string, error) {
	return render("verification_code.html", v)
}

// RenderWelcome produces the HTML body for the welcome email.
func RenderWelcome(w Welcome) (string, error) {
	return render("welcome.html", w)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
