// Package authclient performs the credential exchange with the backoffice
// auth backend and keeps the session store in step with its results.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/digibo/backoffice/internal/crypto"
	"github.com/digibo/backoffice/internal/guard"
	"github.com/digibo/backoffice/internal/session"
)

const fallbackLoginMessage = "Invalid username or password"

// AuthenticationError reports credentials rejected by the backend. Message
// is the server-supplied display message when present, a generic fallback
// otherwise.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// ErrLoginSuperseded reports a login response discarded because a newer
// login attempt started while it was in flight. The stale identity is not
// applied to the session.
var ErrLoginSuperseded = errors.New("login superseded by a newer attempt")

// Client performs login, logout, refresh and the startup session probe.
// Its HTTP client carries a cookie jar so the server-held session travels
// with every request, and routes responses through the request guard.
type Client struct {
	baseURL   string
	http      *http.Client
	session   *session.Store
	nav       guard.Navigator
	encryptor *crypto.Encryptor
	log       *zap.Logger

	loginSeq atomic.Uint64
	// applyMu makes the generation check and the session update one step,
	// so a response that passed the check cannot apply after a newer
	// attempt finished in between.
	applyMu sync.Mutex
}

// New builds a Client for the auth API rooted at baseURL
// (e.g. "http://localhost:3000/api/auth").
func New(baseURL string, store *session.Store, nav guard.Navigator, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(baseURL, "/")
	httpClient := &http.Client{
		Jar: jar,
		Transport: &guard.Transport{
			Nav:        nav,
			AuthPrefix: authPathPrefix(base),
			Log:        log,
		},
		Timeout: 15 * time.Second,
	}
	return &Client{
		baseURL:   base,
		http:      httpClient,
		session:   store,
		nav:       nav,
		encryptor: crypto.NewEncryptor(base+"/public-key", httpClient),
		log:       log,
	}, nil
}

// HTTPClient returns the cookie-carrying client, for callers that talk to
// the rest of the backend under the same session.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Bootstrap probes the backend for an existing session. Any failure is
// treated as "no prior session" and never surfaced as an error.
func (c *Client) Bootstrap(ctx context.Context) {
	resp, err := c.get(ctx, "/me")
	if err != nil {
		c.log.Debug("session probe failed", zap.Error(err))
		c.session.ClearAuth()
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Debug("no prior session", zap.Int("status", resp.StatusCode))
		c.session.ClearAuth()
		return
	}
	var body authResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Username == "" {
		c.session.ClearAuth()
		return
	}
	c.session.SetUser(body.identity())
}

// Login exchanges credentials for a session. The password is public-key
// encrypted before it leaves the process; a key fetch failure fails the
// login. On success the session store is updated (and with it the route
// table) before Login returns.
func (c *Client) Login(ctx context.Context, username, password string) (*session.Identity, error) {
	seq := c.loginSeq.Add(1)

	encrypted, err := c.encryptor.EncryptCredential(ctx, password)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "/login", map[string]string{
		"username": username,
		"password": encrypted,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AuthenticationError{Message: serverMessage(body)}
	}

	var ar authResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	return c.applyLogin(seq, &ar)
}

// applyLogin installs the identity from a login response, unless a newer
// attempt superseded seq. Check and install run under applyMu: once the
// check passes, no other attempt can complete before the session is updated.
func (c *Client) applyLogin(seq uint64, ar *authResponse) (*session.Identity, error) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	if c.loginSeq.Load() != seq {
		// A newer attempt owns the session now; applying this response
		// would clobber it with a stale identity.
		c.log.Warn("discarding superseded login response", zap.String("username", ar.Username))
		return nil, ErrLoginSuperseded
	}
	id := ar.identity()
	c.session.SetUser(id)
	return &id, nil
}

// Logout tells the backend to drop the session and clears local state no
// matter what the backend answered. The user always lands on the login page.
func (c *Client) Logout(ctx context.Context) {
	if resp, err := c.post(ctx, "/logout", struct{}{}); err != nil {
		c.log.Debug("logout request failed", zap.Error(err))
	} else {
		resp.Body.Close()
	}
	c.session.ClearAuth()
	c.nav.NavigateTo(guard.LoginPath)
}

// Refresh renews the server-held session and re-applies the returned
// identity.
func (c *Client) Refresh(ctx context.Context) (*session.Identity, error) {
	resp, err := c.post(ctx, "/refresh", struct{}{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthenticationError{Message: serverMessage(body)}
	}

	var ar authResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	id := ar.identity()
	c.session.SetUser(id)
	return &id, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// serverMessage extracts the backend's display message from an error body.
func serverMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return fallbackLoginMessage
}

// authPathPrefix derives the request-guard exemption prefix from the API
// base URL.
func authPathPrefix(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Path == "" {
		return "/api/auth"
	}
	return u.Path
}
