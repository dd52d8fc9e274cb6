package auth

import "context"

// Claim is one verified name/value assertion from a bearer token.
type Claim struct {
	Name  string
	Value string
}

// ClaimsIdentity is the verified set of assertions extracted from a bearer
// token plus the authentication type that produced it. It is immutable once
// constructed for a request.
type ClaimsIdentity struct {
	authType string
	claims   []Claim
}

// NewClaimsIdentity builds an identity from an ordered claim set.
func NewClaimsIdentity(authType string, claims []Claim) *ClaimsIdentity {
	copied := make([]Claim, len(claims))
	copy(copied, claims)
	return &ClaimsIdentity{authType: authType, claims: copied}
}

// AuthType returns the authentication type label.
func (id *ClaimsIdentity) AuthType() string {
	if id == nil {
		return ""
	}
	return id.authType
}

// IsAuthenticated reports whether the identity came from a verified token
// rather than the anonymous path.
func (id *ClaimsIdentity) IsAuthenticated() bool {
	return id != nil && id.authType != "" && id.authType != AuthTypeAnonymous
}

// Claims returns a copy of the ordered claim set.
func (id *ClaimsIdentity) Claims() []Claim {
	if id == nil {
		return nil
	}
	copied := make([]Claim, len(id.claims))
	copy(copied, id.claims)
	return copied
}

// Claim returns the value of the first claim with the given name, or "".
func (id *ClaimsIdentity) Claim(name string) string {
	if id == nil {
		return ""
	}
	for _, c := range id.claims {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// GetAppIDFromClaims resolves the caller's application id from a claim set:
// the appid claim for 1.0 tokens (or when ver is absent), the azp claim for
// 2.0 tokens.
func GetAppIDFromClaims(claims []Claim) string {
	version := claimValue(claims, ClaimVersion)
	if version == "" || version == "1.0" {
		return claimValue(claims, ClaimAppID)
	}
	if version == "2.0" {
		return claimValue(claims, ClaimAuthorizedParty)
	}

	return ""
}

// IsSkillClaim reports whether a claim set describes a bot-to-bot (skill)
// call: a versioned token whose audience is another bot's app id rather than
// the channel token issuer, issued to a different app than the audience.
func IsSkillClaim(claims []Claim) bool {
	if claimValue(claims, ClaimAppID) == AnonymousSkillAppID {
		return true
	}

	if claimValue(claims, ClaimVersion) == "" {
		return false
	}

	audience := claimValue(claims, ClaimAudience)
	if audience == "" || audience == ToBotFromChannelTokenIssuer {
		return false
	}

	appID := GetAppIDFromClaims(claims)
	if appID == "" {
		return false
	}

	return appID != audience
}

// IsSkillIdentity reports whether an identity carries skill claims.
func IsSkillIdentity(id *ClaimsIdentity) bool {
	return id != nil && IsSkillClaim(id.claims)
}

// AllowedCallersClaimsValidator builds a claims validator that accepts
// skill calls only from the listed bot app ids. The single entry "*"
// accepts any authenticated skill caller. Non-skill claims always pass.
func AllowedCallersClaimsValidator(allowedCallers []string) ClaimsValidator {
	allowed := make(map[string]bool, len(allowedCallers))
	for _, caller := range allowedCallers {
		allowed[caller] = true
	}

	return func(ctx context.Context, claims []Claim) error {
		if !IsSkillClaim(claims) {
			return nil
		}
		if allowed["*"] {
			return nil
		}

		appID := GetAppIDFromClaims(claims)
		if appID == "" || !allowed[appID] {
			return NewErrorf(ErrorUnauthorized, "caller %q is not an allowed skill", appID)
		}

		return nil
	}
}

func claimValue(claims []Claim, name string) string {
	for _, c := range claims {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
