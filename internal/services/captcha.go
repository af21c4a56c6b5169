package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/8by8-org/challenge-api/internal/config"
)

var ErrCaptchaFailed = errors.New("captcha verification failed")

// CaptchaVerifier checks a client-side captcha token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

type turnstileResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
}

// TurnstileVerifier validates tokens against Cloudflare Turnstile's
// siteverify endpoint.
type TurnstileVerifier struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
}

func NewTurnstileVerifier(cfg *config.Config) *TurnstileVerifier {
	return &TurnstileVerifier{
		secret:     cfg.TurnstileSecretKey,
		verifyURL:  cfg.TurnstileVerifyURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if token == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var out turnstileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode siteverify response: %w", err)
	}
	return out.Success, nil
}

// StaticCaptcha accepts every non-empty token when Pass is true. It stands
// in for Turnstile in the in-memory development setup.
type StaticCaptcha struct {
	Pass bool
}

func (s StaticCaptcha) Verify(_ context.Context, token, _ string) (bool, error) {
	return s.Pass && token != "", nil
}
