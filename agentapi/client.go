// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/agentdeck/agentdeck/lib/netutil"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the agent server endpoint (e.g. "http://127.0.0.1:4096").
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is
	// used. The client must not set a global Timeout: the push channel
	// holds its request open indefinitely. Bound individual calls with
	// their contexts instead.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client talks to one agent server endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for one agent server endpoint.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("agentapi: BaseURL is required")
	}

	// Validate the URL structure. The string form (trailing slash
	// stripped) is stored and request URLs are built by concatenation,
	// which avoids url.URL re-encoding path segments.
	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("agentapi: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return nil, fmt.Errorf("agentapi: BaseURL %q must be an absolute http(s) URL", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the normalized endpoint the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// CloseIdleConnections drops pooled connections in the underlying
// transport. Call after a network disruption so the next request dials
// fresh instead of reusing a poisoned connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// ListSessions returns the sessions for a working directory.
func (c *Client) ListSessions(ctx context.Context, directory string) ([]Session, error) {
	var sessions []Session
	if err := c.do(ctx, http.MethodGet, "/session", directory, nil, &sessions); err != nil {
		return nil, fmt.Errorf("agentapi: list sessions failed: %w", err)
	}
	return sessions, nil
}

// GetSession fetches a single session.
func (c *Client) GetSession(ctx context.Context, directory, sessionID string) (Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodGet, "/session/"+sessionID, directory, nil, &session); err != nil {
		return Session{}, fmt.Errorf("agentapi: get session failed: %w", err)
	}
	return session, nil
}

// CreateSession creates a new session.
func (c *Client) CreateSession(ctx context.Context, directory string, request CreateSessionRequest) (Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/session", directory, request, &session); err != nil {
		return Session{}, fmt.Errorf("agentapi: create session failed: %w", err)
	}
	return session, nil
}

// UpdateSessionTitle renames a session.
func (c *Client) UpdateSessionTitle(ctx context.Context, directory, sessionID, title string) (Session, error) {
	var session Session
	body := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPatch, "/session/"+sessionID, directory, body, &session); err != nil {
		return Session{}, fmt.Errorf("agentapi: update session title failed: %w", err)
	}
	return session, nil
}

// DeleteSession deletes a session and its messages.
func (c *Client) DeleteSession(ctx context.Context, directory, sessionID string) error {
	if err := c.do(ctx, http.MethodDelete, "/session/"+sessionID, directory, nil, nil); err != nil {
		return fmt.Errorf("agentapi: delete session failed: %w", err)
	}
	return nil
}

// RevertSession rewinds a session to just before the given message.
func (c *Client) RevertSession(ctx context.Context, directory, sessionID, messageID string) (Session, error) {
	var session Session
	body := map[string]string{"messageID": messageID}
	if err := c.do(ctx, http.MethodPost, "/session/"+sessionID+"/revert", directory, body, &session); err != nil {
		return Session{}, fmt.Errorf("agentapi: revert session failed: %w", err)
	}
	return session, nil
}

// UnrevertSession clears a pending revert.
func (c *Client) UnrevertSession(ctx context.Context, directory, sessionID string) (Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/session/"+sessionID+"/unrevert", directory, nil, &session); err != nil {
		return Session{}, fmt.Errorf("agentapi: unrevert session failed: %w", err)
	}
	return session, nil
}

// ListMessages returns a session's messages with their parts, ordered
// by message id ascending.
func (c *Client) ListMessages(ctx context.Context, directory, sessionID string) ([]MessageWithParts, error) {
	var messages []MessageWithParts
	if err := c.do(ctx, http.MethodGet, "/session/"+sessionID+"/message", directory, nil, &messages); err != nil {
		return nil, fmt.Errorf("agentapi: list messages failed: %w", err)
	}
	return messages, nil
}

// SendMessage submits a prompt. The response is the stored user
// message; the turn's progress arrives on the push channel.
func (c *Client) SendMessage(ctx context.Context, directory, sessionID string, request SendMessageRequest) (Message, error) {
	var message Message
	if err := c.do(ctx, http.MethodPost, "/session/"+sessionID+"/message", directory, request, &message); err != nil {
		return Message{}, fmt.Errorf("agentapi: send message failed: %w", err)
	}
	return message, nil
}

// ListTodos returns a session's task list.
func (c *Client) ListTodos(ctx context.Context, directory, sessionID string) ([]Todo, error) {
	var todos []Todo
	if err := c.do(ctx, http.MethodGet, "/session/"+sessionID+"/todo", directory, nil, &todos); err != nil {
		return nil, fmt.Errorf("agentapi: list todos failed: %w", err)
	}
	return todos, nil
}

// ReplyPermission answers a pending permission request. response is
// one of PermissionOnce, PermissionAlways, or PermissionReject.
func (c *Client) ReplyPermission(ctx context.Context, directory, sessionID, permissionID, response string) error {
	body := map[string]string{"response": response}
	path := "/session/" + sessionID + "/permissions/" + permissionID
	if err := c.do(ctx, http.MethodPost, path, directory, body, nil); err != nil {
		return fmt.Errorf("agentapi: reply permission failed: %w", err)
	}
	return nil
}

// GetConfig fetches the server's configuration document for a
// directory. The document is returned opaquely; the console displays
// and edits it without interpreting individual keys.
func (c *Client) GetConfig(ctx context.Context, directory string) (json.RawMessage, error) {
	var doc json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/config", directory, nil, &doc); err != nil {
		return nil, fmt.Errorf("agentapi: get config failed: %w", err)
	}
	return doc, nil
}

// PatchConfig uploads changes to the server's configuration document.
// The document must be plain JSON; normalize JSONC before calling.
func (c *Client) PatchConfig(ctx context.Context, directory string, doc json.RawMessage) error {
	if err := c.do(ctx, http.MethodPatch, "/config", directory, doc, nil); err != nil {
		return fmt.Errorf("agentapi: patch config failed: %w", err)
	}
	return nil
}

// do performs an HTTP request against the server and decodes the JSON
// response into result (which may be nil to discard the body). On
// 4xx/5xx the error is a *ServerError. The directory, when non-empty,
// is sent as the "directory" query parameter.
func (c *Client) do(ctx context.Context, method, path, directory string, requestBody, result any) error {
	requestURL := c.baseURL + path
	if directory != "" {
		requestURL += "?directory=" + url.QueryEscape(directory)
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return serverErrorFrom(method, path, response.StatusCode, responseBody)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, result); err != nil {
		return fmt.Errorf("parsing response from %s %s: %w", method, path, err)
	}
	return nil
}

// serverErrorFrom decodes an error response body into a *ServerError.
// Non-JSON bodies (a proxy in the way, a crash page) produce a plain
// error carrying the raw body.
func serverErrorFrom(method, path string, statusCode int, body []byte) error {
	var serverErr ServerError
	if err := json.Unmarshal(body, &serverErr); err != nil || serverErr.Code == "" {
		return fmt.Errorf("unexpected %d response from %s %s: %s",
			statusCode, method, path, string(body))
	}
	serverErr.StatusCode = statusCode
	return &serverErr
}

// DialerConfig holds configuration for creating a Dialer.
type DialerConfig struct {
	// HTTPClient is shared by every Client the Dialer creates. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Dialer hands out one Client per endpoint, constructing them lazily.
// It exists for callers that follow several servers at once: the
// mirror engine resolves channels by (endpoint, directory) and a
// Dialer is its natural transport and fetcher.
type Dialer struct {
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewDialer creates a Dialer.
func NewDialer(config DialerConfig) *Dialer {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{
		httpClient: httpClient,
		logger:     logger,
		clients:    make(map[string]*Client),
	}
}

// Client returns the cached Client for endpoint, creating it on first use.
func (d *Dialer) Client(endpoint string) (*Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if client, ok := d.clients[endpoint]; ok {
		return client, nil
	}
	client, err := NewClient(ClientConfig{
		BaseURL:    endpoint,
		HTTPClient: d.httpClient,
		Logger:     d.logger,
	})
	if err != nil {
		return nil, err
	}
	d.clients[endpoint] = client
	return client, nil
}

// Open opens the push channel for (endpoint, directory).
func (d *Dialer) Open(ctx context.Context, endpoint, directory string) (*EventStream, error) {
	client, err := d.Client(endpoint)
	if err != nil {
		return nil, err
	}
	return client.OpenEvents(ctx, directory)
}

// ListSessions fetches sessions from the given endpoint.
func (d *Dialer) ListSessions(ctx context.Context, endpoint, directory string) ([]Session, error) {
	client, err := d.Client(endpoint)
	if err != nil {
		return nil, err
	}
	return client.ListSessions(ctx, directory)
}

// GetSession fetches one session from the given endpoint.
func (d *Dialer) GetSession(ctx context.Context, endpoint, directory, sessionID string) (Session, error) {
	client, err := d.Client(endpoint)
	if err != nil {
		return Session{}, err
	}
	return client.GetSession(ctx, directory, sessionID)
}

// ListMessages fetches a session's messages from the given endpoint.
func (d *Dialer) ListMessages(ctx context.Context, endpoint, directory, sessionID string) ([]MessageWithParts, error) {
	client, err := d.Client(endpoint)
	if err != nil {
		return nil, err
	}
	return client.ListMessages(ctx, directory, sessionID)
}

// ListTodos fetches a session's todos from the given endpoint.
func (d *Dialer) ListTodos(ctx context.Context, endpoint, directory, sessionID string) ([]Todo, error) {
	client, err := d.Client(endpoint)
	if err != nil {
		return nil, err
	}
	return client.ListTodos(ctx, directory, sessionID)
}
