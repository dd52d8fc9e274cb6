// Package auth implements the inbound and outbound trust model of the Bot
// Framework protocol: bearer-token validation for channel, emulator,
// government, and skill callers, credential issuance for outbound calls, and
// the per-request authentication orchestration that ties them together.
package auth

import "time"

// Authentication types recorded on a ClaimsIdentity.
const (
	AuthTypeJWT       = "jwt"
	AuthTypeAnonymous = "anonymous"
)

// AnonymousSkillAppID is the placeholder app id used for skill-shaped
// anonymous identities when authentication is disabled.
const AnonymousSkillAppID = "AnonymousSkill"

// BearerPrefix is the scheme prefix of an Authorization header value.
const BearerPrefix = "Bearer "

// Well-known claim names. Claims are kept as a flat name/value set; only
// these few are ever consulted.
const (
	ClaimAudience        = "aud"
	ClaimIssuer          = "iss"
	ClaimAppID           = "appid"
	ClaimAuthorizedParty = "azp"
	ClaimVersion         = "ver"
	ClaimServiceURL      = "serviceurl"
)

// Public cloud endpoints and scopes.
const (
	ToChannelFromBotOAuthScope  = "https://api.botframework.com"
	ToBotFromChannelTokenIssuer = "https://api.botframework.com"
	ToChannelFromBotLoginURL    = "https://login.microsoftonline.com/botframework.com"

	ChannelOpenIDMetadataURL  = "https://login.botframework.com/v1/.well-known/openidconfiguration"
	EmulatorOpenIDMetadataURL = "https://login.microsoftonline.com/common/v2.0/.well-known/openid-configuration"
)

// US Government cloud endpoints and scopes.
const (
	GovernmentChannelService        = "https://botframework.azure.us"
	GovernmentOAuthScope            = "https://api.botframework.us"
	GovernmentTokenIssuer           = "https://api.botframework.us"
	GovernmentLoginURL              = "https://login.microsoftonline.us/MicrosoftServices.onmicrosoft.us"
	GovernmentChannelOpenIDMetadata = "https://login.botframework.azure.us/v1/.well-known/openidconfiguration"
	GovernmentTokenAPIEndpoint      = "https://api.botframework.azure.us"
)

// Caller id values stamped onto inbound activities.
const (
	CallerIDPublicAzure = "urn:botframework:azure"
	CallerIDUSGov       = "urn:botframework:azureusgov"
	CallerIDBotPrefix   = "urn:botframework:aad:appid:"
)

// ClockSkew is the tolerance applied to token lifetime validation.
const ClockSkew = 5 * time.Minute

// allowedTokenIssuers is the fixed allow-list of tenant issuers trusted for
// emulator and skill tokens, covering 1.0 and 2.0 token shapes in the public
// and US-government clouds.
var allowedTokenIssuers = []string{
	"https://sts.windows.net/d6d49420-f39b-4df7-a1dc-d59a935871db/",
	"https://login.microsoftonline.com/d6d49420-f39b-4df7-a1dc-d59a935871db/v2.0",
	"https://sts.windows.net/f8cdef31-a31e-4b4a-93e4-5f571e91255a/",
	"https://login.microsoftonline.com/f8cdef31-a31e-4b4a-93e4-5f571e91255a/v2.0",
	"https://sts.windows.net/cab8a31a-1906-4287-a0d8-4eef66b95f6e/",
	"https://login.microsoftonline.us/cab8a31a-1906-4287-a0d8-4eef66b95f6e/v2.0",
}

func isAllowedTokenIssuer(issuer string) bool {
	for _, allowed := range allowedTokenIssuers {
		if issuer == allowed {
			return true
		}
	}

	return false
}
