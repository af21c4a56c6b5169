package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/8by8-org/challenge-api/internal/dto"
)

const (
	PathSignUpWithEmail   = "/api/signup-with-email"
	PathSendOTPToEmail    = "/api/send-otp-to-email"
	PathResendOTPToEmail  = "/api/resend-otp-to-email"
	PathSignInWithOTP     = "/api/signin-with-otp"
	PathSignOut           = "/api/signout"
	PathElectionReminders = "/api/award-election-reminders-badge"
	PathRegisterToVote    = "/api/award-register-to-vote-badge"
	PathShareChallenge    = "/api/share-challenge"
	PathRestartChallenge  = "/api/restart-challenge"
	PathRefreshUser       = "/api/refresh-user"
	PathSession           = "/api/session"
	PathInvite            = "/api/invite/"
)

// Client issues the JSON requests behind every session action. Each call
// either wholly succeeds or wholly fails, once; nothing is retried.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default client. A client without a cookie
// jar cannot carry the session cookie between calls.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second, Jar: jar},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// HTTPClient exposes the underlying client so the realtime transport can
// reuse its cookie jar.
func (c *Client) HTTPClient() *http.Client { return c.http }

func (c *Client) SignUpWithEmail(ctx context.Context, req dto.SignUpRequest) error {
	return c.do(ctx, http.MethodPost, PathSignUpWithEmail, req, nil)
}

func (c *Client) SendOTPToEmail(ctx context.Context, req dto.SendOTPRequest) error {
	return c.do(ctx, http.MethodPost, PathSendOTPToEmail, req, nil)
}

func (c *Client) ResendOTP(ctx context.Context, req dto.ResendOTPRequest) error {
	return c.do(ctx, http.MethodPost, PathResendOTPToEmail, req, nil)
}

func (c *Client) SignInWithOTP(ctx context.Context, req dto.SignInRequest) (*dto.SignInResponse, error) {
	var out dto.SignInResponse
	if err := c.do(ctx, http.MethodPost, PathSignInWithOTP, req, &out); err != nil {
		return nil, err
	}
	if err := out.User.Validate(); err != nil {
		return nil, &ParseError{Path: PathSignInWithOTP, Err: err}
	}
	return &out, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, PathSignOut, nil, nil)
}

func (c *Client) AwardElectionRemindersBadge(ctx context.Context) (*dto.User, error) {
	return c.userAction(ctx, http.MethodPut, PathElectionReminders)
}

func (c *Client) AwardRegisterToVoteBadge(ctx context.Context) (*dto.User, error) {
	return c.userAction(ctx, http.MethodPut, PathRegisterToVote)
}

func (c *Client) ShareChallenge(ctx context.Context) (*dto.User, error) {
	return c.userAction(ctx, http.MethodPut, PathShareChallenge)
}

func (c *Client) RestartChallenge(ctx context.Context) (*dto.User, error) {
	return c.userAction(ctx, http.MethodPut, PathRestartChallenge)
}

func (c *Client) RefreshUser(ctx context.Context) (*dto.User, error) {
	return c.userAction(ctx, http.MethodPost, PathRefreshUser)
}

// LoadSession fetches the server's view of the session. User is nil when
// nobody is signed in.
func (c *Client) LoadSession(ctx context.Context) (*dto.SessionResponse, error) {
	var out dto.SessionResponse
	if err := c.do(ctx, http.MethodGet, PathSession, nil, &out); err != nil {
		return nil, err
	}
	if out.User != nil {
		if err := out.User.Validate(); err != nil {
			return nil, &ParseError{Path: PathSession, Err: err}
		}
	}
	return &out, nil
}

// ResolveInvite looks up the challenger behind code. The server answers
// with a cookie that makes the next sign-up a player of that challenger.
func (c *Client) ResolveInvite(ctx context.Context, code string) (*dto.InvitedBy, error) {
	path := PathInvite + url.PathEscape(code)
	var out dto.InvitedBy
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) userAction(ctx context.Context, method, path string) (*dto.User, error) {
	var out dto.UserResponse
	if err := c.do(ctx, method, path, nil, &out); err != nil {
		return nil, err
	}
	if err := out.User.Validate(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return out.User, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &RequestFailedError{Method: method, Path: path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestFailedError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		c.logger.Warn("session request failed", "method", method, "path", path, "status", resp.StatusCode)
		return &RequestFailedError{Method: method, Path: path, StatusCode: resp.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}
