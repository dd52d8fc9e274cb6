package auth

import (
	"context"
	"log/slog"
	"net/http"

	"botframe/pkg/connector"
)

// credentialConnectorFactory builds connector clients whose outbound tokens
// come from the credential factory, scoped to the requested audience.
type credentialConnectorFactory struct {
	appID    string
	scope    string
	loginURL string
	creds    CredentialFactory
	http     *http.Client
	log      *slog.Logger
}

func (f *credentialConnectorFactory) Create(ctx context.Context, serviceURL string, audience string) (connector.Client, error) {
	if audience == "" {
		audience = f.scope
	}

	creds, err := f.creds.CreateCredentials(ctx, f.appID, audience, f.loginURL, true)
	if err != nil {
		return nil, err
	}

	return connector.NewRESTClient(serviceURL, creds, f.http, f.log)
}
