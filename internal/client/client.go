package client

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

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/gmailrelay/internal/credstore"
	"github.com/teemow/gmailrelay/internal/gmail"
	"github.com/teemow/gmailrelay/internal/google"
	"github.com/teemow/gmailrelay/internal/logging"
	"github.com/teemow/gmailrelay/internal/relayerr"
	"github.com/teemow/gmailrelay/internal/server"
)

// ErrNotAuthorized is returned by Send when no credentials or tokens are
// stored.
var ErrNotAuthorized = errors.New("authorization required: run auth and exchange first")

// maxResponseBytes bounds backend response bodies.
const maxResponseBytes = 1 << 20

// Client talks to the relay backend on behalf of a single user.
type Client struct {
	backendURL  string
	redirectURI string
	store       credstore.Store
	httpClient  *http.Client
	logger      logging.Logger

	mu    sync.Mutex
	state State
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for backend requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a Client for the backend at backendURL. redirectURI is the
// consent redirect target registered with Google. The initial state is
// derived from what store already holds.
func New(backendURL, redirectURI string, store credstore.Store, opts ...Option) (*Client, error) {
	if backendURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("redirect URI is required")
	}
	if store == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	c := &Client{
		backendURL:  strings.TrimRight(backendURL, "/"),
		redirectURI: redirectURI,
		store:       store,
		httpClient:  http.DefaultClient,
		logger:      logging.NewSlogAdapter(nil),
	}
	for _, opt := range opts {
		opt(c)
	}

	rec, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	c.state = stateOf(rec)
	return c, nil
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RedirectURI returns the redirect target sent with every authorization.
func (c *Client) RedirectURI() string {
	return c.redirectURI
}

// TokenExpired reports whether the stored access token expired at or
// before now. Without a stored token it reports false.
func (c *Client) TokenExpired(now time.Time) (bool, error) {
	rec, err := c.store.Load()
	if err != nil {
		return false, fmt.Errorf("failed to load credentials: %w", err)
	}
	return rec.Tokens.Expired(now), nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug("client state changed", "from", prev.String(), logging.State(s))
	}
}

// BeginAuthorization stores creds and returns the consent URL the user has
// to open. The URL comes from the backend; when the backend fails for any
// reason it is built locally, with identical bytes.
func (c *Client) BeginAuthorization(ctx context.Context, creds google.ClientCredentials) (string, error) {
	creds.ClientID = strings.TrimSpace(creds.ClientID)
	creds.ClientSecret = strings.TrimSpace(creds.ClientSecret)
	if !creds.Complete() {
		return "", relayerr.MissingParameter("client ID and client secret are required")
	}

	if err := c.store.SaveCredentials(creds, c.redirectURI); err != nil {
		return "", fmt.Errorf("failed to store credentials: %w", err)
	}

	authURL, err := c.generateURL(ctx, creds.ClientID)
	if err != nil {
		c.logger.Warn("backend generate-url failed, building consent URL locally",
			logging.ClientID(creds.ClientID),
			logging.Err(err),
		)
		authURL, err = google.BuildAuthURL(creds.ClientID, c.redirectURI)
		if err != nil {
			return "", err
		}
	}

	c.setState(StateAwaitingConsent)
	return authURL, nil
}

func (c *Client) generateURL(ctx context.Context, clientID string) (string, error) {
	q := url.Values{}
	q.Set("clientId", clientID)
	q.Set("redirectUri", c.redirectURI)

	var resp server.GenerateURLResponse
	if err := c.do(ctx, http.MethodGet, server.RouteGenerateURL+"?"+q.Encode(), nil, &resp, "failed to generate auth URL"); err != nil {
		return "", err
	}
	if resp.AuthURL == "" {
		return "", relayerr.Upstream("backend returned an empty auth URL", nil)
	}
	return resp.AuthURL, nil
}

// CompleteAuthorization exchanges code for a token pair and stores it. On
// failure nothing is stored and the client falls back to the state the
// stored record represents.
func (c *Client) CompleteAuthorization(ctx context.Context, code string) (*google.TokenPair, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, relayerr.MissingParameter("authorization code is required")
	}

	rec, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !rec.HasCredentials() {
		return nil, ErrNotAuthorized
	}

	c.setState(StateAwaitingExchange)

	var resp server.OAuthCallbackResponse
	err = c.do(ctx, http.MethodPost, server.RouteOAuthCallback, google.ExchangeRequest{
		Code:         code,
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
		RedirectURI:  rec.RedirectURI,
	}, &resp, "token exchange failed")
	if err == nil && resp.Tokens.Empty() {
		err = relayerr.Upstream("backend returned no access token", nil)
	}
	if err != nil {
		c.setState(stateOf(rec))
		return nil, err
	}

	if err := c.store.SaveTokens(resp.Tokens); err != nil {
		c.setState(stateOf(rec))
		return nil, fmt.Errorf("failed to store tokens: %w", err)
	}

	c.setState(StateAuthenticated)
	c.logger.Info("authorization completed", logging.ClientID(rec.ClientID))
	return resp.Tokens, nil
}

// Send relays msg through the backend using the stored credentials.
func (c *Client) Send(ctx context.Context, msg gmail.OutboundMessage) (*gmailapi.Message, error) {
	msg.To = strings.TrimSpace(msg.To)
	msg.Subject = strings.TrimSpace(msg.Subject)
	msg.HTMLBody = strings.TrimSpace(msg.HTMLBody)
	if !msg.Complete() {
		return nil, relayerr.MissingParameter("recipient, subject and message are required")
	}
	if !strings.Contains(msg.To, "@") {
		return nil, relayerr.MissingParameter("recipient must be an email address")
	}

	rec, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !rec.Authorized() {
		return nil, ErrNotAuthorized
	}

	c.setState(StateSending)
	defer c.setState(StateAuthenticated)

	var resp server.SendEmailResponse
	err = c.do(ctx, http.MethodPost, server.RouteSendEmail, server.SendEmailRequest{
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
		RedirectURI:  rec.RedirectURI,
		Tokens:       rec.Tokens,
		To:           msg.To,
		Subject:      msg.Subject,
		MessageHTML:  msg.HTMLBody,
	}, &resp, "failed to send email")
	if err != nil {
		c.logger.Warn("send failed",
			logging.Domain(msg.To),
			logging.Err(err),
		)
		return nil, err
	}

	c.logger.Info("email sent", logging.Domain(msg.To))
	return resp.SendRes, nil
}

// Logout removes stored credentials and tokens.
func (c *Client) Logout() error {
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	c.setState(StateUnauthenticated)
	return nil
}

// do sends a JSON request to the backend and decodes a JSON response into
// out. A non-2xx answer becomes an upstream error carrying the backend's
// error field, or fallback when it has none. Failing to reach the backend
// or to read its answer is a transport error.
func (c *Client) do(ctx context.Context, method, path string, in, out any, fallback string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.backendURL+path, body)
	if err != nil {
		return relayerr.Transport(err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return relayerr.Transport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return relayerr.Transport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e server.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			fallback = e.Error
		}
		return relayerr.Upstream(fallback, fmt.Errorf("backend returned status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return relayerr.Transport(fmt.Errorf("failed to decode backend response: %w", err))
	}
	return nil
}
