// Package connector implements the outbound side of the Bot Framework
// protocol: the REST client that delivers activities to a channel's service
// URL, and the user-token client for OAuth sign-in flows.
package connector

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
	"time"

	"botframe/pkg/activity"
)

// TokenProvider supplies a bearer token for outbound connector calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client sends, updates, and deletes activities in one conversation service.
type Client interface {
	SendToConversation(ctx context.Context, act *activity.Activity) (activity.ResourceResponse, error)
	ReplyToActivity(ctx context.Context, act *activity.Activity) (activity.ResourceResponse, error)
	UpdateActivity(ctx context.Context, act *activity.Activity) (activity.ResourceResponse, error)
	DeleteActivity(ctx context.Context, conversationID string, activityID string) error
}

// Factory produces connector clients bound to a service URL and audience.
type Factory interface {
	Create(ctx context.Context, serviceURL string, audience string) (Client, error)
}

// RESTClient is the HTTP implementation of Client against the
// v3/conversations surface.
type RESTClient struct {
	serviceURL string
	tokens     TokenProvider
	http       *http.Client
	log        *slog.Logger
}

// NewRESTClient builds a connector client for one service URL.
func NewRESTClient(serviceURL string, tokens TokenProvider, httpClient *http.Client, log *slog.Logger) (*RESTClient, error) {
	serviceURL = strings.TrimSuffix(strings.TrimSpace(serviceURL), "/")
	if serviceURL == "" {
		return nil, errors.New("service URL is required")
	}
	if tokens == nil {
		return nil, errors.New("token provider is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}

	return &RESTClient{
		serviceURL: serviceURL,
		tokens:     tokens,
		http:       httpClient,
		log:        log.With("component", "connector.client"),
	}, nil
}

// ServiceURL returns the base service URL the client is bound to.
func (c *RESTClient) ServiceURL() string {
	return c.serviceURL
}

// SendToConversation posts a new activity to the conversation.
func (c *RESTClient) SendToConversation(ctx context.Context, act *activity.Activity) (activity.ResourceResponse, error) {
	if act == nil || act.Conversation == nil {
		return activity.ResourceResponse{}, errors.New("activity with conversation is required")
	}

	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities", c.serviceURL, url.PathEscape(act.Conversation.ID))
	return c.postActivity(ctx, http.MethodPost, endpoint, act)
}

// ReplyToActivity posts an activity as a reply to act.ReplyToID.
func (c *RESTClient) ReplyToActivity(ctx context.Context, act *activity.Activity) (activity.ResourceResponse, error) {
	if act == nil || act.Conversation == nil {
		return activity.ResourceResponse{}, errors.New("activity with conversation is required")
	}
	if act.ReplyToID == "" {
		return activity.ResourceResponse{}, errors.New("replyToId is required")
	}

	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities/%s",
		c.serviceURL, url.PathEscape(act.Conversation.ID), url.PathEscape(act.ReplyToID))
	return c.postActivity(ctx, http.MethodPost, endpoint, act)
}

// UpdateActivity replaces an existing activity in place.
func (c *RESTClient) UpdateActivity(ctx context.Context, act *activity.Activity) (activity.ResourceResponse, error) {
	if act == nil || act.Conversation == nil {
		return activity.ResourceResponse{}, errors.New("activity with conversation is required")
	}
	if act.ID == "" {
		return activity.ResourceResponse{}, errors.New("activity id is required")
	}

	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities/%s",
		c.serviceURL, url.PathEscape(act.Conversation.ID), url.PathEscape(act.ID))
	return c.postActivity(ctx, http.MethodPut, endpoint, act)
}

// DeleteActivity removes an activity from the conversation.
func (c *RESTClient) DeleteActivity(ctx context.Context, conversationID string, activityID string) error {
	if conversationID == "" || activityID == "" {
		return errors.New("conversation id and activity id are required")
	}

	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities/%s",
		c.serviceURL, url.PathEscape(conversationID), url.PathEscape(activityID))

	req, err := c.newRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError("delete activity", resp)
	}

	return nil
}

func (c *RESTClient) postActivity(ctx context.Context, method string, endpoint string, act *activity.Activity) (activity.ResourceResponse, error) {
	body, err := json.Marshal(act)
	if err != nil {
		return activity.ResourceResponse{}, fmt.Errorf("marshal activity: %w", err)
	}

	req, err := c.newRequest(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return activity.ResourceResponse{}, fmt.Errorf("send activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return activity.ResourceResponse{}, responseError("send activity", resp)
	}

	var resource activity.ResourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&resource); err != nil && !errors.Is(err, io.EOF) {
		// Some channels return an empty body on success.
		return activity.ResourceResponse{}, nil
	}

	return resource, nil
}

func (c *RESTClient) newRequest(ctx context.Context, method string, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connector token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

func responseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s: %d - %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
