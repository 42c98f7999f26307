package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const recaptchaEndpoint = "https://www.google.com/recaptcha/api/siteverify"

// CaptchaVerifier answers pass/fail for a client captcha token
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// RecaptchaVerifier checks tokens against Google's siteverify endpoint
type RecaptchaVerifier struct {
	secret   string
	endpoint string
	client   *http.Client
}

// NewRecaptchaVerifier creates a verifier. Callers bound each call through ctx.
func NewRecaptchaVerifier(secret string, client *http.Client) *RecaptchaVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &RecaptchaVerifier{secret: secret, endpoint: recaptchaEndpoint, client: client}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if token == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha request: unexpected status %d", resp.StatusCode)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode captcha response: %w", err)
	}
	return body.Success, nil
}

// DisabledCaptcha passes every token. Used when no secret is configured.
type DisabledCaptcha struct{}

func (DisabledCaptcha) Verify(context.Context, string, string) (bool, error) { return true, nil }
