package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates bearer tokens against the issuer, audience, and
// signature policies of the four Bot Framework trust sources: channel,
// emulator, government channel, and skill-to-skill.
type TokenValidator struct {
	creds          CredentialFactory
	channelService string
	channelKeys    *keyCache
	emulatorKeys   *keyCache
}

// NewTokenValidator builds a validator. An empty channelService selects the
// public cloud; GovernmentChannelService selects the US-government cloud.
func NewTokenValidator(creds CredentialFactory, channelService string, httpClient *http.Client) *TokenValidator {
	channelMetadata := ChannelOpenIDMetadataURL
	if channelService == GovernmentChannelService {
		channelMetadata = GovernmentChannelOpenIDMetadata
	}

	return NewTokenValidatorWithMetadata(creds, channelService, channelMetadata, EmulatorOpenIDMetadataURL, httpClient)
}

// NewTokenValidatorWithMetadata builds a validator against explicit OpenID
// metadata endpoints.
func NewTokenValidatorWithMetadata(creds CredentialFactory, channelService string, channelMetadataURL string, emulatorMetadataURL string, httpClient *http.Client) *TokenValidator {
	return &TokenValidator{
		creds:          creds,
		channelService: channelService,
		channelKeys:    newKeyCache(channelMetadataURL, httpClient),
		emulatorKeys:   newKeyCache(emulatorMetadataURL, httpClient),
	}
}

// ValidateSkillToken validates a bot-to-bot token: allow-listed tenant
// issuer, required ver claim, and an audience that is a registered
// application id. Audience validation is manual; the generic verifier only
// checks signature and lifetime.
func (v *TokenValidator) ValidateSkillToken(ctx context.Context, authHeader string, channelID string) (*ClaimsIdentity, error) {
	raw, err := rawToken(authHeader)
	if err != nil {
		return nil, err
	}

	claims, err := v.verify(ctx, raw, channelID, v.emulatorKeys)
	if err != nil {
		return nil, err
	}

	if !isAllowedTokenIssuer(claimValue(claims, ClaimIssuer)) {
		return nil, NewErrorf(ErrorUnknownIssuer, "skill token issuer %q is not trusted", claimValue(claims, ClaimIssuer))
	}
	if claimValue(claims, ClaimVersion) == "" {
		return nil, NewError(ErrorMissingClaim, "skill token has no ver claim")
	}

	audience := claimValue(claims, ClaimAudience)
	if strings.TrimSpace(audience) == "" {
		return nil, NewError(ErrorMissingClaim, "skill token has no aud claim")
	}

	valid, err := v.creds.IsValidAppID(ctx, audience)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, NewErrorf(ErrorUnregisteredApp, "skill token audience %q is not a registered app id", audience)
	}

	return NewClaimsIdentity(AuthTypeJWT, claims), nil
}

// ValidateEmulatorToken validates an emulator-issued token: allow-listed
// tenant issuer, app id resolved per token version, and a registered caller
// application id.
func (v *TokenValidator) ValidateEmulatorToken(ctx context.Context, authHeader string, channelID string) (*ClaimsIdentity, error) {
	raw, err := rawToken(authHeader)
	if err != nil {
		return nil, err
	}

	claims, err := v.verify(ctx, raw, channelID, v.emulatorKeys)
	if err != nil {
		return nil, err
	}

	if !isAllowedTokenIssuer(claimValue(claims, ClaimIssuer)) {
		return nil, NewErrorf(ErrorUnknownIssuer, "emulator token issuer %q is not trusted", claimValue(claims, ClaimIssuer))
	}

	var appID string
	switch version := claimValue(claims, ClaimVersion); version {
	case "", "1.0":
		appID = claimValue(claims, ClaimAppID)
	case "2.0":
		appID = claimValue(claims, ClaimAuthorizedParty)
	default:
		return nil, NewErrorf(ErrorInvalidToken, "unknown emulator token version %q", version)
	}
	if appID == "" {
		return nil, NewError(ErrorMissingClaim, "emulator token has no app id claim")
	}

	valid, err := v.creds.IsValidAppID(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, NewErrorf(ErrorUnregisteredApp, "emulator token app id %q is not registered", appID)
	}

	return NewClaimsIdentity(AuthTypeJWT, claims), nil
}

// ValidateChannelToken validates a channel-issued token against the single
// configured issuer for the active cloud. When serviceURL is supplied, the
// token's serviceurl claim must equal it exactly.
func (v *TokenValidator) ValidateChannelToken(ctx context.Context, authHeader string, channelID string, serviceURL string) (*ClaimsIdentity, error) {
	raw, err := rawToken(authHeader)
	if err != nil {
		return nil, err
	}

	claims, err := v.verify(ctx, raw, channelID, v.channelKeys)
	if err != nil {
		return nil, err
	}

	issuer := ToBotFromChannelTokenIssuer
	if v.channelService == GovernmentChannelService {
		issuer = GovernmentTokenIssuer
	}
	if claimValue(claims, ClaimIssuer) != issuer {
		return nil, NewErrorf(ErrorUnknownIssuer, "channel token issuer %q does not match %q", claimValue(claims, ClaimIssuer), issuer)
	}

	audience := claimValue(claims, ClaimAudience)
	if strings.TrimSpace(audience) == "" {
		return nil, NewError(ErrorMissingClaim, "channel token has no aud claim")
	}

	valid, err := v.creds.IsValidAppID(ctx, audience)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, NewErrorf(ErrorUnregisteredApp, "channel token audience %q is not a registered app id", audience)
	}

	if serviceURL != "" {
		if claimed := claimValue(claims, ClaimServiceURL); claimed != serviceURL {
			return nil, NewErrorf(ErrorInvalidToken, "channel token serviceurl claim %q does not match %q", claimed, serviceURL)
		}
	}

	return NewClaimsIdentity(AuthTypeJWT, claims), nil
}

// IsSkillToken reports whether a bearer token is structurally a skill token:
// a well-formed JWT from an allow-listed tenant issuer whose claims have the
// skill shape.
func IsSkillToken(authHeader string) bool {
	claims, ok := unverifiedClaims(authHeader)
	if !ok {
		return false
	}

	return isAllowedTokenIssuer(claimValue(claims, ClaimIssuer)) && IsSkillClaim(claims)
}

// IsTokenFromEmulator reports whether a bearer token was issued by one of
// the allow-listed emulator tenant issuers.
func IsTokenFromEmulator(authHeader string) bool {
	claims, ok := unverifiedClaims(authHeader)
	if !ok {
		return false
	}

	return isAllowedTokenIssuer(claimValue(claims, ClaimIssuer))
}

// verify checks signature and lifetime, applies the 5-minute clock skew, and
// enforces the signing key's channel endorsements when present. Audience and
// issuer policy are the caller's responsibility.
func (v *TokenValidator) verify(ctx context.Context, raw string, channelID string, cache *keyCache) ([]Claim, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithJSONNumber(),
	)

	var kid string
	token, err := parser.Parse(raw, func(t *jwt.Token) (any, error) {
		kid, _ = t.Header["kid"].(string)
		if kid == "" {
			return nil, NewError(ErrorInvalidToken, "token header has no kid")
		}
		return cache.keyFor(ctx, kid)
	})
	if err != nil {
		if IsAuthenticationError(err) {
			return nil, err
		}
		return nil, NewErrorf(ErrorInvalidToken, "token validation failed: %v", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, NewError(ErrorInvalidToken, "token has no claims")
	}

	if channelID != "" {
		if endorsements := cache.endorsementsFor(kid); len(endorsements) > 0 && !contains(endorsements, channelID) {
			return nil, NewErrorf(ErrorInvalidToken, "signing key is not endorsed for channel %q", channelID)
		}
	}

	return claimsFromMap(mapClaims), nil
}

func rawToken(authHeader string) (string, error) {
	header := strings.TrimSpace(authHeader)
	if header == "" {
		return "", NewError(ErrorUnauthorized, "authorization header is empty")
	}
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", NewError(ErrorInvalidToken, "authorization header is not a bearer token")
	}

	raw := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	if raw == "" {
		return "", NewError(ErrorInvalidToken, "bearer token is empty")
	}

	return raw, nil
}

func unverifiedClaims(authHeader string) ([]Claim, bool) {
	raw, err := rawToken(authHeader)
	if err != nil {
		return nil, false
	}

	parser := jwt.NewParser(jwt.WithJSONNumber())
	mapClaims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, mapClaims); err != nil {
		return nil, false
	}

	return claimsFromMap(mapClaims), true
}

// claimsFromMap flattens JWT map claims into the ordered string claim set
// the rest of the pipeline consumes. Only scalar and first-of-array values
// are kept; nested structures have no claim the pipeline consults.
func claimsFromMap(mapClaims jwt.MapClaims) []Claim {
	claims := make([]Claim, 0, len(mapClaims))
	for name, value := range mapClaims {
		switch typed := value.(type) {
		case string:
			claims = append(claims, Claim{Name: name, Value: typed})
		case json.Number:
			claims = append(claims, Claim{Name: name, Value: typed.String()})
		case bool:
			if typed {
				claims = append(claims, Claim{Name: name, Value: "true"})
			} else {
				claims = append(claims, Claim{Name: name, Value: "false"})
			}
		case []any:
			if len(typed) > 0 {
				if s, ok := typed[0].(string); ok {
					claims = append(claims, Claim{Name: name, Value: s})
				}
			}
		}
	}

	sort.Slice(claims, func(i, j int) bool { return claims[i].Name < claims[j].Name })

	return claims
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
