package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const (
	KindVerification  = "verification"
	KindPasswordReset = "password-reset"
	KindChangeConfirm = "change-confirmation"
)

var (
	verificationTmpl = template.Must(template.New(KindVerification).Parse(`<h2>Hi {{.Username}},</h2>
<p>Your verification code is <strong>{{.Code}}</strong>. It expires in {{.TTL}}.</p>
<p>Or click <a href="{{.Link}}">here</a> to verify your account.</p>`))

	resetTmpl = template.Must(template.New(KindPasswordReset).Parse(`<h2>Hi {{.Username}},</h2>
<p>We received a request to reset your password. Your reset code is <strong>{{.Code}}</strong>; it expires in {{.TTL}}.</p>
<p>Continue <a href="{{.Link}}">here</a>. If you did not ask for this, ignore this email.</p>`))

	changeTmpl = template.Must(template.New(KindChangeConfirm).Parse(`<h2>Hi {{.Username}},</h2>
<p>Someone asked to change the {{.Field}} on your account to <strong>{{.Value}}</strong>.</p>
<p>Click <a href="{{.Link}}">here</a> within {{.TTL}} to confirm. Nothing changes until you do.</p>`))
)

type mailData struct {
	Username string
	Code     string
	Link     string
	TTL      string
	Field    string
	Value    string
}

func VerificationMessage(to, username, code, link string, ttl time.Duration) (Message, error) {
	return render(verificationTmpl, to, "Verify your account", mailData{
		Username: username, Code: code, Link: link, TTL: humanize(ttl),
	})
}

func PasswordResetMessage(to, username, code, link string, ttl time.Duration) (Message, error) {
	return render(resetTmpl, to, "Reset your password", mailData{
		Username: username, Code: code, Link: link, TTL: humanize(ttl),
	})
}

func ChangeConfirmationMessage(to, username, field, value, link string, ttl time.Duration) (Message, error) {
	return render(changeTmpl, to, fmt.Sprintf("Confirm your new %s", field), mailData{
		Username: username, Field: field, Value: value, Link: link, TTL: humanize(ttl),
	})
}

func render(t *template.Template, to, subject string, data mailData) (Message, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return Message{Kind: t.Name(), To: to, Subject: subject, Body: buf.String()}, nil
}

func humanize(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
