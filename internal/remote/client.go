// Package remote talks to the hosted backend: GoTrue-style identity
// endpoints under /auth/v1 and the vault_items table under /rest/v1.
// A single Client is both the identity.Provider and the storage.Store of
// a hosted vault.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/illarion/vaultx/internal/identity"
	"github.com/illarion/vaultx/internal/storage"
)

const (
	DefaultTimeout = 15 * time.Second
	maxResponse    = 4 << 20
)

var (
	ErrNoURL     = errors.New("remote url is required")
	ErrNoAnonKey = errors.New("remote anon key is required")
)

// Compile-time interface checks
var (
	_ identity.Provider = (*Client)(nil)
	_ storage.Store     = (*Client)(nil)
)

// TokenStore persists the serialized session between runs
type TokenStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
	Delete(account string) error
}

// Config for a Client. Tokens and Logger are optional.
type Config struct {
	URL        string
	AnonKey    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Tokens     TokenStore
	Logger     *slog.Logger
}

// APIError is a non-2xx response not mapped to a sentinel
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Client is safe for concurrent use
type Client struct {
	identity.Notifier

	base    *url.URL
	anonKey string
	http    *http.Client
	tokens  TokenStore
	log     *slog.Logger

	mu      sync.Mutex
	session *identity.Session
}

// New creates a client with no session
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrNoURL
	}
	if cfg.AnonKey == "" {
		return nil, ErrNoAnonKey
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid remote url %q", cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		base:    base,
		anonKey: cfg.AnonKey,
		http:    httpClient,
		tokens:  cfg.Tokens,
		log:     log,
	}, nil
}

// URL returns the base URL, which is also the keyring account name
func (c *Client) URL() string {
	return c.base.String()
}

// request describes one call. A non-empty bearer is sent as
// Authorization; otherwise the anon key is.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	bearer string
	prefer string
}

func (c *Client) do(ctx context.Context, req request) (int, []byte, error) {
	u := *c.base
	u.Path = c.base.Path + req.path
	u.RawQuery = req.query.Encode()

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("apikey", c.anonKey)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	bearer := req.bearer
	if bearer == "" {
		bearer = c.anonKey
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	if req.prefer != "" {
		httpReq.Header.Set("Prefer", req.prefer)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debug("remote request", "method", req.method, "path", req.path, "status", resp.StatusCode)
	return resp.StatusCode, raw, nil
}

func success(status int) bool {
	return status >= 200 && status < 300
}
