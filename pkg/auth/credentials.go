package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Credentials produce bearer tokens for outbound calls on behalf of the bot.
type Credentials interface {
	// AppID returns the application id the credentials belong to, or ""
	// when authentication is disabled.
	AppID() string
	// Token returns a bearer token scoped to the credential's audience.
	Token(ctx context.Context) (string, error)
}

// CredentialFactory decides whether authentication is enabled, which
// application ids are registered, and issues per-audience credentials.
type CredentialFactory interface {
	IsValidAppID(ctx context.Context, appID string) (bool, error)
	IsAuthenticationDisabled(ctx context.Context) (bool, error)
	CreateCredentials(ctx context.Context, appID string, audience string, loginURL string, validateAuthority bool) (Credentials, error)
}

// PasswordCredentialFactory is a CredentialFactory backed by a single
// app-id/password pair. An empty app id disables authentication.
type PasswordCredentialFactory struct {
	appID    string
	password string
	tenantID string
	http     *http.Client
}

// NewPasswordCredentialFactory builds a factory for one application
// identity. The tenant id may be empty for single-tenant public-cloud bots.
func NewPasswordCredentialFactory(appID string, password string, tenantID string) *PasswordCredentialFactory {
	return &PasswordCredentialFactory{
		appID:    appID,
		password: password,
		tenantID: tenantID,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// IsValidAppID reports whether appID is the registered application id.
func (f *PasswordCredentialFactory) IsValidAppID(_ context.Context, appID string) (bool, error) {
	return appID != "" && appID == f.appID, nil
}

// IsAuthenticationDisabled reports whether the factory has no app identity.
func (f *PasswordCredentialFactory) IsAuthenticationDisabled(_ context.Context) (bool, error) {
	return strings.TrimSpace(f.appID) == "", nil
}

// CreateCredentials issues credentials scoped to the given audience.
func (f *PasswordCredentialFactory) CreateCredentials(ctx context.Context, appID string, audience string, loginURL string, validateAuthority bool) (Credentials, error) {
	disabled, err := f.IsAuthenticationDisabled(ctx)
	if err != nil {
		return nil, err
	}
	if disabled {
		return emptyCredentials{}, nil
	}

	valid, err := f.IsValidAppID(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, NewErrorf(ErrorUnregisteredApp, "invalid app id %q", appID)
	}

	_ = validateAuthority

	return newAppCredentials(f.http, appID, f.password, f.tenantID, audience, loginURL), nil
}

// appCredentials acquires tokens via the OAuth client-credentials grant and
// caches them until shortly before expiry.
type appCredentials struct {
	appID    string
	password string
	scope    string
	tokenURL string
	http     *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func newAppCredentials(httpClient *http.Client, appID string, password string, tenantID string, audience string, loginURL string) *appCredentials {
	if loginURL == "" {
		loginURL = ToChannelFromBotLoginURL
	}
	if tenantID != "" {
		loginURL = "https://login.microsoftonline.com/" + tenantID
	}

	scope := strings.TrimSuffix(audience, "/")
	if scope == "" {
		scope = ToChannelFromBotOAuthScope
	}
	scope += "/.default"

	return &appCredentials{
		appID:    appID,
		password: password,
		scope:    scope,
		tokenURL: strings.TrimSuffix(loginURL, "/") + "/oauth2/v2.0/token",
		http:     httpClient,
	}
}

func (c *appCredentials) AppID() string {
	return c.appID
}

func (c *appCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.appID)
	form.Set("client_secret", c.password)
	form.Set("scope", c.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("request token: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.token = tokenResp.AccessToken
	c.expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)

	return c.token, nil
}

// emptyCredentials is the no-auth credential used when authentication is
// disabled.
type emptyCredentials struct{}

func (emptyCredentials) AppID() string { return "" }

func (emptyCredentials) Token(context.Context) (string, error) { return "", nil }
