// Package reportclient talks to the Echo REST API on behalf of a signed-in user.
package reportclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/echocoach/echo/internal/accounts"
	"github.com/echocoach/echo/internal/auth"
	"github.com/echocoach/echo/internal/coach"
	"github.com/echocoach/echo/internal/reliability"
	"github.com/echocoach/echo/internal/reports"
	"github.com/echocoach/echo/internal/session"
)

const (
	defaultTimeout = 10 * time.Second
	readAttempts   = 3
	retryBase      = 200 * time.Millisecond
	retryCap       = 2 * time.Second
)

var ErrNoToken = errors.New("not signed in")

// APIError is a non-2xx response. Fields holds field-level validation messages when present.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New builds a client for baseURL. A nil httpClient uses a client with a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Register creates an account and keeps the returned token.
func (c *Client) Register(ctx context.Context, req auth.RegisterRequest) (auth.Session, error) {
	var out auth.Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &out, false); err != nil {
		return auth.Session{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// Login signs in and keeps the returned token.
func (c *Client) Login(ctx context.Context, req auth.LoginRequest) (auth.Session, error) {
	var out auth.Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &out, false); err != nil {
		return auth.Session{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

func (c *Client) Profile(ctx context.Context) (accounts.Profile, error) {
	var out accounts.Profile
	err := c.authed(ctx, http.MethodGet, "/api/auth/profile", nil, &out, true)
	return out, err
}

// SaveReport uploads one session record. Creates are never retried.
func (c *Client) SaveReport(ctx context.Context, rec coach.SessionRecord) error {
	return c.authed(ctx, http.MethodPost, "/api/reports", rec, nil, false)
}

func (c *Client) ListReports(ctx context.Context, page, limit int) (reports.ListResult, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out reports.ListResult
	err := c.authed(ctx, http.MethodGet, "/api/reports?"+q.Encode(), nil, &out, true)
	return out, err
}

func (c *Client) GetReport(ctx context.Context, id string) (reports.Report, error) {
	var out reports.Report
	err := c.authed(ctx, http.MethodGet, "/api/reports/"+url.PathEscape(id), nil, &out, true)
	return out, err
}

func (c *Client) DeleteReport(ctx context.Context, id string) error {
	return c.authed(ctx, http.MethodDelete, "/api/reports/"+url.PathEscape(id), nil, nil, false)
}

func (c *Client) Stats(ctx context.Context) (reports.Stats, error) {
	var out reports.Stats
	err := c.authed(ctx, http.MethodGet, "/api/reports/stats", nil, &out, true)
	return out, err
}

// CreatePracticeSession opens a websocket practice session owned by the token's user, or an
// anonymous one when no token is set.
func (c *Client) CreatePracticeSession(ctx context.Context) (session.CreateResponse, error) {
	var out session.CreateResponse
	err := c.do(ctx, http.MethodPost, "/v1/practice/session", session.CreateRequest{}, &out, false)
	return out, err
}

func (c *Client) EndPracticeSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/v1/practice/session/"+url.PathEscape(sessionID)+"/end", nil, nil, false)
}

// PracticeURL is the websocket URL for sessionID.
func (c *Client) PracticeURL(sessionID string) (string, error) {
	u, err := url.Parse(c.baseURL + "/v1/practice/session/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) authed(ctx context.Context, method, path string, body, out any, idempotent bool) error {
	if c.Token() == "" {
		return ErrNoToken
	}
	return c.do(ctx, method, path, body, out, idempotent)
}

// do sends one request. Idempotent requests are retried on transport errors and retryable
// statuses.
func (c *Client) do(ctx context.Context, method, path string, body, out any, idempotent bool) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = b
	}

	attempts := 1
	if idempotent {
		attempts = readAttempts
	}
	return reliability.Retry(ctx, attempts, retryBase, retryCap, func(ctx context.Context) (bool, error) {
		err := c.once(ctx, method, path, payload, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return reliability.IsRetryableHTTPStatus(apiErr.Status), err
		}
		return reliability.IsRetryableError(err), err
	})
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Status: resp.StatusCode}
		var decoded struct {
			Message string            `json:"message"`
			Errors  map[string]string `json:"errors"`
		}
		if json.Unmarshal(raw, &decoded) == nil {
			apiErr.Message = decoded.Message
			apiErr.Fields = decoded.Errors
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
