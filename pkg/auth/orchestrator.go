package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"botframe/pkg/activity"
	"botframe/pkg/connector"
)

// ClaimsValidator is the hook an embedding application supplies to accept or
// reject an authenticated caller's claims. Skill calls must always have one.
type ClaimsValidator func(ctx context.Context, claims []Claim) error

// AuthenticateRequestResult aggregates everything the turn driver needs
// after a request has been authenticated. Created once per inbound request
// and read-only thereafter.
type AuthenticateRequestResult struct {
	Identity         *ClaimsIdentity
	Audience         string
	CallerID         string
	ConnectorFactory connector.Factory
}

// Config configures a BotFrameworkAuthentication.
type Config struct {
	Credentials     CredentialFactory
	ClaimsValidator ClaimsValidator
	// ChannelService selects the cloud: "" for public,
	// GovernmentChannelService for US government.
	ChannelService string
	HTTPClient     *http.Client
	Logger         *slog.Logger
	// TokenValidator overrides the default validator, used when the OpenID
	// metadata endpoints are not the well-known cloud ones.
	TokenValidator *TokenValidator
}

// BotFrameworkAuthentication authenticates inbound requests against the four
// trust sources and produces the outbound capability for the turn.
type BotFrameworkAuthentication struct {
	creds           CredentialFactory
	claimsValidator ClaimsValidator
	channelService  string
	validator       *TokenValidator
	http            *http.Client
	log             *slog.Logger

	oauthScope       string
	loginURL         string
	tokenAPIEndpoint string
}

// NewBotFrameworkAuthentication builds the authentication orchestrator.
func NewBotFrameworkAuthentication(cfg Config) (*BotFrameworkAuthentication, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("credential factory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	validator := cfg.TokenValidator
	if validator == nil {
		validator = NewTokenValidator(cfg.Credentials, cfg.ChannelService, cfg.HTTPClient)
	}

	a := &BotFrameworkAuthentication{
		creds:            cfg.Credentials,
		claimsValidator:  cfg.ClaimsValidator,
		channelService:   cfg.ChannelService,
		validator:        validator,
		http:             cfg.HTTPClient,
		log:              cfg.Logger.With("component", "auth.orchestrator"),
		oauthScope:       ToChannelFromBotOAuthScope,
		loginURL:         ToChannelFromBotLoginURL,
		tokenAPIEndpoint: connector.DefaultTokenAPIEndpoint,
	}
	if a.isGovernment() {
		a.oauthScope = GovernmentOAuthScope
		a.loginURL = GovernmentLoginURL
		a.tokenAPIEndpoint = GovernmentTokenAPIEndpoint
	}

	return a, nil
}

// AuthenticateRequest validates the auth header of an inbound activity and
// computes the outbound audience, caller id, and connector factory.
func (a *BotFrameworkAuthentication) AuthenticateRequest(ctx context.Context, act *activity.Activity, authHeader string) (*AuthenticateRequestResult, error) {
	channelID := ""
	serviceURL := ""
	if act != nil {
		channelID = act.ChannelID
		serviceURL = act.ServiceURL
	}

	identity, err := a.authenticate(ctx, authHeader, channelID, serviceURL, act)
	if err != nil {
		return nil, err
	}

	return a.buildResult(ctx, identity)
}

// AuthenticateStreamingRequest is the transport-agnostic variant used by
// streaming/socket entry points, where the channel id arrives as a header
// instead of an activity.
func (a *BotFrameworkAuthentication) AuthenticateStreamingRequest(ctx context.Context, authHeader string, channelIDHeader string) (*AuthenticateRequestResult, error) {
	if strings.TrimSpace(channelIDHeader) == "" {
		if disabled, err := a.creds.IsAuthenticationDisabled(ctx); err != nil {
			return nil, err
		} else if !disabled {
			return nil, NewError(ErrorBadRequest, "channel id header is required")
		}
	}

	identity, err := a.authenticate(ctx, authHeader, channelIDHeader, "", nil)
	if err != nil {
		return nil, err
	}

	return a.buildResult(ctx, identity)
}

// ConnectorFactoryForIdentity returns a connector factory bound to the
// identity's application id, the default outbound scope, and the cloud's
// login endpoint.
func (a *BotFrameworkAuthentication) ConnectorFactoryForIdentity(identity *ClaimsIdentity) connector.Factory {
	return &credentialConnectorFactory{
		appID:    appIDForOutbound(identity),
		scope:    a.oauthScope,
		loginURL: a.loginURL,
		creds:    a.creds,
		http:     a.http,
		log:      a.log,
	}
}

// CreateUserTokenClient builds a token-service client for the identity.
func (a *BotFrameworkAuthentication) CreateUserTokenClient(ctx context.Context, identity *ClaimsIdentity) (*connector.UserTokenClient, error) {
	creds, err := a.creds.CreateCredentials(ctx, appIDForOutbound(identity), a.oauthScope, a.loginURL, true)
	if err != nil {
		return nil, err
	}

	return connector.NewUserTokenClient(a.tokenAPIEndpoint, creds, a.http)
}

// Audience computes the outbound audience for an identity: the skill's own
// application id for skill claims, the fixed bot-to-channel scope otherwise.
func (a *BotFrameworkAuthentication) Audience(identity *ClaimsIdentity) string {
	if IsSkillIdentity(identity) {
		return GetAppIDFromClaims(identity.Claims())
	}

	return a.oauthScope
}

func (a *BotFrameworkAuthentication) authenticate(ctx context.Context, authHeader string, channelID string, serviceURL string, act *activity.Activity) (*ClaimsIdentity, error) {
	if strings.TrimSpace(authHeader) == "" {
		disabled, err := a.creds.IsAuthenticationDisabled(ctx)
		if err != nil {
			return nil, err
		}
		if !disabled {
			return nil, NewError(ErrorUnauthorized, "authorization header is required")
		}

		return anonymousIdentity(act), nil
	}

	var identity *ClaimsIdentity
	var err error
	switch {
	case IsSkillToken(authHeader):
		identity, err = a.validator.ValidateSkillToken(ctx, authHeader, channelID)
	case IsTokenFromEmulator(authHeader):
		identity, err = a.validator.ValidateEmulatorToken(ctx, authHeader, channelID)
	default:
		identity, err = a.validator.ValidateChannelToken(ctx, authHeader, channelID, serviceURL)
	}
	if err != nil {
		return nil, err
	}

	if a.claimsValidator != nil {
		if err := a.claimsValidator(ctx, identity.Claims()); err != nil {
			return nil, NewErrorf(ErrorUnauthorized, "claims validation failed: %v", err)
		}
	} else if IsSkillIdentity(identity) {
		return nil, NewError(ErrorUnauthorized, "skill calls require a configured claims validator")
	}

	return identity, nil
}

func (a *BotFrameworkAuthentication) buildResult(ctx context.Context, identity *ClaimsIdentity) (*AuthenticateRequestResult, error) {
	callerID, err := a.generateCallerID(ctx, identity)
	if err != nil {
		return nil, err
	}

	return &AuthenticateRequestResult{
		Identity:         identity,
		Audience:         a.Audience(identity),
		CallerID:         callerID,
		ConnectorFactory: a.ConnectorFactoryForIdentity(identity),
	}, nil
}

// generateCallerID labels the caller for downstream logic: empty when
// authentication is disabled, a bot-to-bot urn for skill callers, and the
// cloud's channel urn otherwise.
func (a *BotFrameworkAuthentication) generateCallerID(ctx context.Context, identity *ClaimsIdentity) (string, error) {
	disabled, err := a.creds.IsAuthenticationDisabled(ctx)
	if err != nil {
		return "", err
	}
	if disabled {
		return "", nil
	}

	if IsSkillIdentity(identity) {
		return CallerIDBotPrefix + GetAppIDFromClaims(identity.Claims()), nil
	}

	if a.isGovernment() {
		return CallerIDUSGov, nil
	}

	return CallerIDPublicAzure, nil
}

func (a *BotFrameworkAuthentication) isGovernment() bool {
	return a.channelService == GovernmentChannelService
}

// anonymousIdentity synthesizes the identity used when authentication is
// disabled and no header was supplied. Emulator traffic addressed to a skill
// recipient gets a skill-shaped anonymous identity so downstream skill
// handling still engages.
func anonymousIdentity(act *activity.Activity) *ClaimsIdentity {
	if act != nil && act.ChannelID == activity.ChannelEmulator && act.Recipient.Role == activity.RoleSkill {
		return NewClaimsIdentity(AuthTypeAnonymous, []Claim{
			{Name: ClaimVersion, Value: "1.0"},
			{Name: ClaimAppID, Value: AnonymousSkillAppID},
		})
	}

	return NewClaimsIdentity(AuthTypeAnonymous, nil)
}

// appIDForOutbound resolves the bot's own application id from an identity:
// the audience claim when present (channel and skill tokens address the bot
// by app id), the caller app id claims otherwise.
func appIDForOutbound(identity *ClaimsIdentity) string {
	if identity == nil {
		return ""
	}

	if audience := identity.Claim(ClaimAudience); audience != "" && audience != ToBotFromChannelTokenIssuer {
		return audience
	}

	return GetAppIDFromClaims(identity.Claims())
}
