package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTokenAPIEndpoint is the public token service endpoint.
const DefaultTokenAPIEndpoint = "https://api.botframework.com"

// TokenResponse is the token service's answer for one OAuth connection.
type TokenResponse struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConnectionName string `json:"connectionName,omitempty"`
	Token          string `json:"token,omitempty"`
	Expiration     string `json:"expiration,omitempty"`
}

// UserTokenClient talks to the Bot Framework token service on behalf of a
// bot, retrieving and revoking per-user OAuth tokens.
type UserTokenClient struct {
	endpoint string
	tokens   TokenProvider
	http     *http.Client
}

// NewUserTokenClient builds a user-token client against the given token
// service endpoint. An empty endpoint selects the public cloud.
func NewUserTokenClient(endpoint string, tokens TokenProvider, httpClient *http.Client) (*UserTokenClient, error) {
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultTokenAPIEndpoint
	}
	if tokens == nil {
		return nil, errors.New("token provider is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &UserTokenClient{endpoint: endpoint, tokens: tokens, http: httpClient}, nil
}

// GetUserToken fetches the user's token for a named OAuth connection. A nil
// response with no error means the user has not signed in yet.
func (c *UserTokenClient) GetUserToken(ctx context.Context, userID string, connectionName string, channelID string, magicCode string) (*TokenResponse, error) {
	if userID == "" || connectionName == "" {
		return nil, errors.New("user id and connection name are required")
	}

	query := url.Values{}
	query.Set("userId", userID)
	query.Set("connectionName", connectionName)
	if channelID != "" {
		query.Set("channelId", channelID)
	}
	if magicCode != "" {
		query.Set("code", magicCode)
	}

	endpoint := c.endpoint + "/api/usertoken/GetToken?" + query.Encode()
	resp, err := c.do(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, responseError("get user token", resp)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	return &token, nil
}

// SignOutUser revokes the user's token for a named OAuth connection.
func (c *UserTokenClient) SignOutUser(ctx context.Context, userID string, connectionName string, channelID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}

	query := url.Values{}
	query.Set("userId", userID)
	if connectionName != "" {
		query.Set("connectionName", connectionName)
	}
	if channelID != "" {
		query.Set("channelId", channelID)
	}

	endpoint := c.endpoint + "/api/usertoken/SignOut?" + query.Encode()
	resp, err := c.do(ctx, http.MethodDelete, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return responseError("sign out user", resp)
	}

	return nil
}

func (c *UserTokenClient) do(ctx context.Context, method string, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}

	return resp, nil
}
