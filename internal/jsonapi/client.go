package jsonapi

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
)

const mediaType = "application/vnd.api+json"

// APIError is a non-2xx or unparsable API response. Body holds the raw
// response body; Errors is set when the body carried an "errors" member.
type APIError struct {
	Status int
	Body   []byte
	Errors []ResponseError
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("api request failed with status %d: %s", e.Status, NewError(e.Errors[0], nil).Message)
	}
	return fmt.Sprintf("api request failed with status %d", e.Status)
}

// Document is a decoded JSON:API response document.
type Document struct {
	Data     json.RawMessage   `json:"data"`
	Included []json.RawMessage `json:"included,omitempty"`
	Meta     map[string]any    `json:"meta,omitempty"`
	Errors   []ResponseError   `json:"errors,omitempty"`
}

// Credentials holds the personal access token of the signed in user.
type Credentials struct {
	mu    sync.RWMutex
	token string
}

func NewCredentials(token string) *Credentials {
	return &Credentials{token: token}
}

func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SignOut forgets the token. Requests continue without authorization.
func (c *Credentials) SignOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

type ClientConfig struct {
	APIOrigin   string
	Locale      string
	Credentials *Credentials
	HTTPClient  *http.Client
}

// Client talks to the JSON:API backend. It is safe for concurrent use.
type Client struct {
	session     *http.Client
	baseURL     string
	locale      string
	credentials *Credentials
}

func NewClient(cfg ClientConfig) (*Client, error) {
	origin := strings.TrimRight(cfg.APIOrigin, "/")
	if origin == "" {
		return nil, errors.New("api origin is empty")
	}

	session := cfg.HTTPClient
	if session == nil {
		session = &http.Client{Timeout: 15 * time.Second}
	}
	creds := cfg.Credentials
	if creds == nil {
		creds = NewCredentials("")
	}
	locale := cfg.Locale
	if locale == "" {
		locale = "en"
	}

	return &Client{
		session:     session,
		baseURL:     origin + "/api/v1",
		locale:      locale,
		credentials: creds,
	}, nil
}

func (c *Client) Credentials() *Credentials { return c.credentials }

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", mediaType)
	req.Header.Set("Accept-Language", c.locale)
	if token := c.credentials.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", mediaType)
	}
	return req, nil
}

// do sends req and returns the raw body of a 2xx response that parses as
// JSON. Anything else becomes an *APIError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	var probe struct {
		Errors []ResponseError `json:"errors"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &probe); err != nil {
			ok = false
		}
	}

	if !ok {
		return nil, &APIError{Status: resp.StatusCode, Body: body, Errors: probe.Errors}
	}
	return body, nil
}

// Get fetches a JSON:API document.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Document, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &doc, nil
}

// Atomic posts operations as one atomic request and returns the result of
// each operation in order.
func (c *Client) Atomic(ctx context.Context, path string, operations []Operation) ([]json.RawMessage, error) {
	bodies := make([]map[string]any, len(operations))
	for i, op := range operations {
		bodies[i] = op.RequestBody()
	}
	payload, err := json.Marshal(map[string]any{"atomic:operations": bodies})
	if err != nil {
		return nil, fmt.Errorf("encode operations: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("atomic %s: %w", path, err)
	}

	var out struct {
		Results []json.RawMessage `json:"atomic:results"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode atomic results: %w", err)
		}
	}
	return out.Results, nil
}
