// Package chronosdk is the typed HTTP client for the chronod API. Every UI
// surface (web app, extension worker, admin tooling) talks to the server
// through it.
package chronosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/xerrors"
)

// SessionTokenHeader carries the session credential on every request. The
// same token authenticates the websocket join, passed as a query parameter
// because browser websockets cannot set headers.
const (
	SessionTokenHeader = "Chrono-Session-Token"
	SessionTokenQuery  = "chrono_session_token"
)

// Client is an HTTP client for the chronod API.
type Client struct {
	URL        *url.URL
	HTTPClient *http.Client

	mu           sync.RWMutex
	sessionToken string
}

// New creates a client for the chronod instance at serverURL.
func New(serverURL *url.URL) *Client {
	return &Client{
		URL:        serverURL,
		HTTPClient: &http.Client{},
	}
}

// SessionToken returns the currently set token for the client.
func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken
}

// SetSessionToken sets the session token for the client.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionToken = token
}

// RequestOption mutates the request before it is sent.
type RequestOption func(*http.Request)

// WithQueryParam adds a query parameter to the request URL.
func WithQueryParam(key, value string) RequestOption {
	return func(r *http.Request) {
		if value == "" {
			return
		}
		q := r.URL.Query()
		q.Add(key, value)
		r.URL.RawQuery = q.Encode()
	}
}

// Request performs a HTTP request against the API. A non-nil body is JSON
// encoded. Callers own the response body.
func (c *Client) Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (*http.Response, error) {
	u, err := c.URL.Parse(path)
	if err != nil {
		return nil, xerrors.Errorf("parse url: %w", err)
	}

	var r io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, xerrors.Errorf("encode body: %w", err)
		}
		r = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, xerrors.Errorf("create request: %w", err)
	}
	if token := c.SessionToken(); token != "" {
		req.Header.Set(SessionTokenHeader, token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("do request: %w", err)
	}
	return resp, nil
}

// Response is the generic error envelope returned by the API.
type Response struct {
	Message string            `json:"message"`
	Detail  string            `json:"detail,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// ValidationError scopes an error to a single request field.
type ValidationError struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// Error is returned by client methods when the API responds with a
// non-expected status code.
type Error struct {
	Response

	StatusCode int
	Method     string
	URL        string
}

func (e *Error) Error() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "%v %v: unexpected status code %d", e.Method, e.URL, e.StatusCode)
	if e.Message != "" {
		_, _ = fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Detail != "" {
		_, _ = fmt.Fprintf(&b, ": %s", e.Detail)
	}
	for _, err := range e.Errors {
		_, _ = fmt.Fprintf(&b, "\n\t%s: %s", err.Field, err.Detail)
	}
	return b.String()
}

// IsUnauthorized reports whether err is an API error with status 401. The
// extension worker uses it to detect expired credentials.
func IsUnauthorized(err error) bool {
	var sdkErr *Error
	return xerrors.As(err, &sdkErr) && sdkErr.StatusCode == http.StatusUnauthorized
}

// ReadBodyAsError reads the response as a Response and wraps it in an Error.
func ReadBodyAsError(res *http.Response) error {
	var method, u string
	if res.Request != nil {
		method = res.Request.Method
		if res.Request.URL != nil {
			u = res.Request.URL.String()
		}
	}

	var apiErr Response
	// Advisory decode; a non-JSON body still yields a useful status error.
	_ = json.NewDecoder(res.Body).Decode(&apiErr)
	_ = res.Body.Close()

	return &Error{
		Response:   apiErr,
		StatusCode: res.StatusCode,
		Method:     method,
		URL:        u,
	}
}
