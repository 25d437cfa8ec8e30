// Package client holds typed bindings for the storefront checkout REST API.
// Calls are independent: no caching, no retries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const headerIdempotencyKey = "Idempotency-Key"

type Client struct {
	baseURL string
	http    *http.Client
	token   string
	log     *zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithAuthToken attaches "Authorization: Bearer <token>" to every request.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	nop := zerolog.Nop()
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   cfg.AuthToken,
		log:     &nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromEnv builds a client from STOREFRONT_API_* variables.
func NewFromEnv(opts ...Option) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...), nil
}

func (c *Client) BaseURL() string { return c.baseURL }

type errorBody struct {
	Message string `json:"message"`
}

// do sends one JSON request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, in any, headers map[string]string, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("method", method).Str("path", path).Msg("storefront api unreachable")
		return transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		c.log.Error().Err(err).Str("method", method).Str("path", path).Msg("read storefront api response")
		return transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		rerr := statusError(resp.StatusCode, eb.Message)
		c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).
			Str("kind", rerr.Kind.String()).Msg("storefront api rejected request")
		return rerr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Error().Err(err).Str("method", method).Str("path", path).Msg("decode storefront api response")
		return transportError(err)
	}
	return nil
}
