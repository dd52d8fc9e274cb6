package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"botframe/pkg/activity"
)

type staticTokens string

func (t staticTokens) Token(context.Context) (string, error) {
	return string(t), nil
}

type recordedRequest struct {
	method string
	path   string
	auth   string
	act    activity.Activity
}

func newConnectorService(t *testing.T, status int, body string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()

	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.act)
		}
		requests = append(requests, rec)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestSendToConversation(t *testing.T) {
	server, requests := newConnectorService(t, http.StatusOK, `{"id":"act-1"}`)

	client, err := NewRESTClient(server.URL, staticTokens("secret"), server.Client(), nil)
	if err != nil {
		t.Fatalf("NewRESTClient error: %v", err)
	}

	resource, err := client.SendToConversation(context.Background(), &activity.Activity{
		Type:         activity.TypeMessage,
		Conversation: &activity.ConversationAccount{ID: "conv-1"},
		Text:         "hello",
	})
	if err != nil {
		t.Fatalf("SendToConversation error: %v", err)
	}
	if resource.ID != "act-1" {
		t.Fatalf("resource id = %q, want %q", resource.ID, "act-1")
	}

	req := (*requests)[0]
	if req.method != http.MethodPost {
		t.Fatalf("method = %s", req.method)
	}
	if req.path != "/v3/conversations/conv-1/activities" {
		t.Fatalf("path = %s", req.path)
	}
	if req.auth != "Bearer secret" {
		t.Fatalf("authorization = %q", req.auth)
	}
	if req.act.Text != "hello" {
		t.Fatalf("posted text = %q", req.act.Text)
	}
}

func TestReplyToActivityUsesReplyRoute(t *testing.T) {
	server, requests := newConnectorService(t, http.StatusOK, `{"id":"act-2"}`)
	client, _ := NewRESTClient(server.URL, staticTokens(""), server.Client(), nil)

	_, err := client.ReplyToActivity(context.Background(), &activity.Activity{
		Type:         activity.TypeMessage,
		Conversation: &activity.ConversationAccount{ID: "conv-1"},
		ReplyToID:    "inbound-9",
	})
	if err != nil {
		t.Fatalf("ReplyToActivity error: %v", err)
	}
	if got := (*requests)[0].path; got != "/v3/conversations/conv-1/activities/inbound-9" {
		t.Fatalf("path = %s", got)
	}

	// A reply without the inbound id has nowhere to land.
	if _, err := client.ReplyToActivity(context.Background(), &activity.Activity{
		Conversation: &activity.ConversationAccount{ID: "conv-1"},
	}); err == nil {
		t.Fatal("expected error for missing replyToId")
	}
}

func TestUpdateAndDeleteActivity(t *testing.T) {
	server, requests := newConnectorService(t, http.StatusOK, `{}`)
	client, _ := NewRESTClient(server.URL, staticTokens(""), server.Client(), nil)

	_, err := client.UpdateActivity(context.Background(), &activity.Activity{
		ID:           "act-3",
		Conversation: &activity.ConversationAccount{ID: "conv-1"},
	})
	if err != nil {
		t.Fatalf("UpdateActivity error: %v", err)
	}
	if err := client.DeleteActivity(context.Background(), "conv-1", "act-3"); err != nil {
		t.Fatalf("DeleteActivity error: %v", err)
	}

	if got := (*requests)[0].method; got != http.MethodPut {
		t.Fatalf("update method = %s", got)
	}
	if got := (*requests)[1].method; got != http.MethodDelete {
		t.Fatalf("delete method = %s", got)
	}
	if got := (*requests)[1].path; got != "/v3/conversations/conv-1/activities/act-3" {
		t.Fatalf("delete path = %s", got)
	}
}

func TestSendSurfacesServiceErrors(t *testing.T) {
	server, _ := newConnectorService(t, http.StatusBadGateway, "channel unavailable")
	client, _ := NewRESTClient(server.URL, staticTokens(""), server.Client(), nil)

	_, err := client.SendToConversation(context.Background(), &activity.Activity{
		Conversation: &activity.ConversationAccount{ID: "conv-1"},
	})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestGetUserToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/usertoken/GetToken" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("userId"); got != "user-1" {
			t.Errorf("userId = %q", got)
		}
		if got := r.URL.Query().Get("connectionName"); got != "graph" {
			t.Errorf("connectionName = %q", got)
		}
		_ = json.NewEncoder(w).Encode(TokenResponse{ConnectionName: "graph", Token: "user-token"})
	}))
	t.Cleanup(server.Close)

	client, err := NewUserTokenClient(server.URL, staticTokens("bot-token"), server.Client())
	if err != nil {
		t.Fatalf("NewUserTokenClient error: %v", err)
	}

	token, err := client.GetUserToken(context.Background(), "user-1", "graph", "msteams", "")
	if err != nil {
		t.Fatalf("GetUserToken error: %v", err)
	}
	if token == nil || token.Token != "user-token" {
		t.Fatalf("token = %+v", token)
	}
}

func TestGetUserTokenNotSignedIn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client, _ := NewUserTokenClient(server.URL, staticTokens(""), server.Client())

	token, err := client.GetUserToken(context.Background(), "user-1", "graph", "", "")
	if err != nil {
		t.Fatalf("GetUserToken error: %v", err)
	}
	if token != nil {
		t.Fatalf("token = %+v, want nil before sign-in", token)
	}
}

func TestSignOutUser(t *testing.T) {
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client, _ := NewUserTokenClient(server.URL, staticTokens(""), server.Client())
	if err := client.SignOutUser(context.Background(), "user-1", "graph", "msteams"); err != nil {
		t.Fatalf("SignOutUser error: %v", err)
	}
	if method != http.MethodDelete || path != "/api/usertoken/SignOut" {
		t.Fatalf("request = %s %s", method, path)
	}
}
