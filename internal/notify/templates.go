package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var otpTemplate = template.Must(template.New("otp").Parse(`<div style="font-family:sans-serif">
<p>Your InfoLock login code is:</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px">{{.Code}}</p>
<p>The code expires in {{.Minutes}} minutes. If you did not try to sign in, change your password.</p>
</div>`))

var verificationTemplate = template.Must(template.New("verify").Parse(`<div style="font-family:sans-serif">
<p>Hi {{.Name}},</p>
<p>Confirm your email address to activate your InfoLock account:</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>The link is valid for {{.Hours}} hours.</p>
</div>`))

// OtpMessage renders the login code email
func OtpMessage(to, code string, ttl time.Duration) (Message, error) {
	var buf bytes.Buffer
	err := otpTemplate.Execute(&buf, struct {
		Code    string
		Minutes int
	}{code, int(ttl.Minutes())})
	if err != nil {
		return Message{}, fmt.Errorf("render otp email: %w", err)
	}
	return Message{To: to, Subject: "Your InfoLock login code", HTML: buf.String()}, nil
}

// VerificationMessage renders the email verification link email
func VerificationMessage(to, name, link string, ttl time.Duration) (Message, error) {
	var buf bytes.Buffer
	err := verificationTemplate.Execute(&buf, struct {
		Name  string
		Link  string
		Hours int
	}{name, link, int(ttl.Hours())})
	if err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}
	return Message{To: to, Subject: "Verify your InfoLock email", HTML: buf.String()}, nil
}
