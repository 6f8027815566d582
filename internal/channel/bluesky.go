package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/FeelPulse/skyoracle/internal/logger"
)

const (
	defaultPDSURL        = "https://bsky.social"
	defaultTimeout       = 30 * time.Second
	defaultMaxMediaBytes = 20 << 20
)

var (
	// ErrAuth is returned when the account credentials are rejected
	ErrAuth = errors.New("bluesky: authentication failed")
	// ErrNotFound is returned for deleted, blocked or unknown posts
	ErrNotFound = errors.New("bluesky: post not found")
	// ErrTransport covers network failures and server-side errors
	ErrTransport = errors.New("bluesky: transport error")
	// ErrDuplicateSuppressed is returned when the same reply was already posted this session
	ErrDuplicateSuppressed = errors.New("bluesky: duplicate reply suppressed")
	// ErrSelfTarget is returned when the resolved target is one of the bot's own posts
	ErrSelfTarget = errors.New("bluesky: target is the bot's own post")
	// ErrInvalidRef is returned for references that are neither post URLs nor at:// URIs
	ErrInvalidRef = errors.New("bluesky: invalid post reference")
	// ErrBacklogTruncated is returned alongside the newest mentions when
	// paging stopped before reaching the requested cursor. The next call with
	// the same cursor continues from the page where this one stopped.
	ErrBacklogTruncated = errors.New("bluesky: notification backlog exceeds page limit")
)

// APIError is an XRPC error response
type APIError struct {
	Method  string
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bluesky API error: %s returned %d %s: %s", e.Method, e.Status, e.Code, e.Message)
}

// Is maps XRPC failures onto the package sentinels
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Status == http.StatusUnauthorized || e.Code == "AuthenticationRequired" || e.Code == "AuthFactorTokenRequired"
	case ErrNotFound:
		return e.Status == http.StatusNotFound || e.Code == "NotFound" ||
			(e.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Message), "not found"))
	case ErrTransport:
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
	}
	return false
}

func (e *APIError) expiredToken() bool {
	return e.Code == "ExpiredToken" || e.Code == "InvalidToken"
}

// Session is an authenticated account session
type Session struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// Options configures a Client
type Options struct {
	Identifier    string // handle or email
	Password      string // app password
	PDSURL        string
	Timeout       time.Duration
	MaxMediaBytes int64
	HTTPClient    *http.Client
	Logger        *logger.Logger
}

// Client is a narrow XRPC client covering what the bot needs: notifications,
// threads, replies and blob downloads.
type Client struct {
	identifier    string
	password      string
	baseURL       string
	maxMediaBytes int64
	client        *http.Client
	log           *logger.Logger

	mu      sync.Mutex
	session *Session

	postedMu sync.Mutex
	posted   map[uint64]struct{}

	backlogMu sync.Mutex
	backlog   backlogResume
}

// NewClient creates a Bluesky client; call Authenticate before anything else
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.PDSURL, "/")
	if baseURL == "" {
		baseURL = defaultPDSURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	maxMedia := opts.MaxMediaBytes
	if maxMedia <= 0 {
		maxMedia = defaultMaxMediaBytes
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetDefaultLogger().WithComponent("bluesky")
	}

	return &Client{
		identifier:    opts.Identifier,
		password:      opts.Password,
		baseURL:       baseURL,
		maxMediaBytes: maxMedia,
		client:        client,
		log:           log,
		posted:        make(map[uint64]struct{}),
	}
}

// Authenticate creates a session if none exists. It is safe to call repeatedly.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		s := *c.session
		return &s, nil
	}
	if err := c.createSessionLocked(ctx); err != nil {
		return nil, err
	}
	c.log.Info("🦋 Logged in as @%s (%s)", c.session.Handle, c.session.DID)
	s := *c.session
	return &s, nil
}

// Self returns the bot account's DID and handle, empty before Authenticate
func (c *Client) Self() (did, handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return "", ""
	}
	return c.session.DID, c.session.Handle
}

func (c *Client) createSessionLocked(ctx context.Context) error {
	if c.identifier == "" || c.password == "" {
		return fmt.Errorf("%w: missing credentials", ErrAuth)
	}
	body := map[string]string{"identifier": c.identifier, "password": c.password}

	var s Session
	if err := c.do(ctx, http.MethodPost, "com.atproto.server.createSession", nil, body, "", &s); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest) {
			return fmt.Errorf("%w: %s", ErrAuth, apiErr.Message)
		}
		return err
	}
	c.session = &s
	return nil
}

// refresh renews the access token, falling back to a fresh login when the
// refresh token is no longer accepted.
func (c *Client) refresh(ctx context.Context, stale string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller already refreshed
	if c.session != nil && c.session.AccessJwt != stale {
		return nil
	}

	if c.session != nil {
		var s Session
		err := c.do(ctx, http.MethodPost, "com.atproto.server.refreshSession", nil, nil, c.session.RefreshJwt, &s)
		if err == nil {
			c.session = &s
			c.log.Debug("Session refreshed")
			return nil
		}
		c.log.Warn("⚠️ Session refresh failed, logging in again: %v", err)
	}

	c.session = nil
	return c.createSessionLocked(ctx)
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if _, err := c.Authenticate(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return "", ErrAuth
	}
	return c.session.AccessJwt, nil
}

// call performs an authenticated XRPC call, refreshing the session once on an
// expired token.
func (c *Client) call(ctx context.Context, method, nsid string, query url.Values, body, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, method, nsid, query, body, token, out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !(apiErr.expiredToken() || apiErr.Status == http.StatusUnauthorized) {
		return err
	}

	if err := c.refresh(ctx, token); err != nil {
		return err
	}
	if token, err = c.accessToken(ctx); err != nil {
		return err
	}
	return c.do(ctx, method, nsid, query, body, token, out)
}

// do performs one XRPC request
func (c *Client) do(ctx context.Context, method, nsid string, query url.Values, body any, token string, out any) error {
	endpoint := c.baseURL + "/xrpc/" + nsid
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", nsid, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, nsid, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: failed to read response: %w", ErrTransport, nsid, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Method: nsid, Status: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", nsid, err)
	}
	return nil
}
