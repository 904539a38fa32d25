package talyn

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// publicPaths are endpoint fragments that must succeed even when the stored
// token is stale, so no Authorization header is ever attached to them.
var publicPaths = []string{
	"auth/login",
	"auth/signup",
	"auth/check-email",
	"auth/forgot-password",
	"auth/reset-password",
	"auth/resend-verification",
	"auth/verify-email",
}

// IsPublicPath reports whether path matches the public endpoint allow-list.
func IsPublicPath(path string) bool {
	for _, fragment := range publicPaths {
		if strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}

// UnauthorizedHandler is invoked after a response is classified as a hard
// authentication failure and the stored token has been removed. The session
// store wires its forced-logout transition here at construction time, which
// keeps the client free of any store dependency.
type UnauthorizedHandler func(ctx context.Context)

// Client is the single outbound gateway to the Talyn API. It attaches
// credentials, unwraps the transport envelope, and normalizes every failure
// into a single message-bearing error so page code never sees transport
// internals.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	logger  Logger

	onUnauthorized       UnauthorizedHandler
	handlingUnauthorized atomic.Bool
}

var _ API = (*Client)(nil)

// NewClient returns a Client with the configured base URL and a fixed
// request timeout.
func NewClient(cfg Config, tokens TokenStore) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.GetBaseURL(), "/"),
		tokens:  tokens,
		logger:  defLogger{},
		http: &http.Client{
			Timeout: cfg.GetRequestTimeout(),
		},
	}
}

func (c *Client) WithLogger(logger Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithHTTPClient swaps the underlying transport, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.http = hc
	}
	return c
}

// WithUnauthorizedHandler wires the handler run on authentication failure.
func (c *Client) WithUnauthorizedHandler(h UnauthorizedHandler) *Client {
	c.onUnauthorized = h
	return c
}

// envelope is the transport wrapper every endpoint responds with. Callers of
// Client never see it; Get/Post/Patch hand them the inner payload directly.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.CategoryBadInput, "unable to encode request payload")
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), payload)
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "unable to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if !IsPublicPath(path) {
		if token, ok := c.tokens.Get(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// transport errors surface as-is and never clear the session
		return errors.Wrap(err, errors.CategoryOperation, "request failed").
			WithTextCode(TextCodeRequestFailed)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "unable to read response").
			WithTextCode(TextCodeRequestFailed)
	}

	var env envelope
	if len(raw) > 0 {
		// a non-JSON body falls through with an empty envelope; the status
		// code drives the rest
		_ = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return c.failure(ctx, resp.StatusCode, env)
	}

	if out == nil {
		return nil
	}

	inner := raw
	if len(env.Data) > 0 {
		inner = env.Data
	}

	if err := json.Unmarshal(inner, out); err != nil {
		c.logger.Debug("undecodable payload: %s", print.MaybePrettyJSON(string(raw)))
		return errors.Wrap(err, ErrBadResponse.Category, ErrBadResponse.Message).
			WithTextCode(ErrBadResponse.TextCode)
	}

	return nil
}

func (c *Client) failure(ctx context.Context, status int, env envelope) error {
	message := extractMessage(env)

	if status == http.StatusUnauthorized && IsAuthFailureMessage(message) {
		c.handleUnauthorized(ctx)
		return errors.New(message, errors.CategoryAuth).
			WithTextCode(TextCodeAuthFailure).
			WithCode(errors.CodeUnauthorized)
	}

	richErr := errors.New(message, categoryForStatus(status)).
		WithCode(status).
		WithMetadata(map[string]any{"status": status})

	if env.Code != "" {
		richErr = richErr.WithTextCode(env.Code)
	}

	return richErr
}

// handleUnauthorized removes the persisted token and runs the injected
// logout transition. The busy flag suppresses re-entry so the logout call's
// own potential 401 cannot loop back here.
func (c *Client) handleUnauthorized(ctx context.Context) {
	if !c.handlingUnauthorized.CompareAndSwap(false, true) {
		return
	}
	defer c.handlingUnauthorized.Store(false)

	if err := c.tokens.Clear(); err != nil {
		c.logger.Warn("unable to clear stored token: %v", err)
	}

	if c.onUnauthorized != nil {
		c.onUnauthorized(ctx)
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// extractMessage picks the human-readable failure message: the structured
// error field first, then the message field, then a generic fallback.
func extractMessage(env envelope) string {
	if env.Error != "" {
		return env.Error
	}
	if env.Message != "" {
		return env.Message
	}
	return "Request failed"
}

func categoryForStatus(status int) errors.Category {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return errors.CategoryAuthz
	case status == http.StatusNotFound:
		return errors.CategoryNotFound
	case status == http.StatusConflict:
		return errors.CategoryConflict
	case status == http.StatusTooManyRequests:
		return errors.CategoryRateLimit
	case status >= http.StatusInternalServerError:
		return errors.CategoryInternal
	default:
		return errors.CategoryValidation
	}
}

// RequestTimeout reports the transport's fixed timeout.
func (c *Client) RequestTimeout() time.Duration {
	return c.http.Timeout
}
