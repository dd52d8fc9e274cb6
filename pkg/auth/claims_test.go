package auth

import (
	"context"
	"testing"
)

func TestGetAppIDFromClaims(t *testing.T) {
	cases := []struct {
		name   string
		claims []Claim
		want   string
	}{
		{
			name:   "v1 explicit",
			claims: []Claim{{Name: ClaimVersion, Value: "1.0"}, {Name: ClaimAppID, Value: "app-1"}},
			want:   "app-1",
		},
		{
			name:   "no version falls back to appid",
			claims: []Claim{{Name: ClaimAppID, Value: "app-1"}},
			want:   "app-1",
		},
		{
			name:   "v2 uses azp",
			claims: []Claim{{Name: ClaimVersion, Value: "2.0"}, {Name: ClaimAuthorizedParty, Value: "app-2"}},
			want:   "app-2",
		},
		{
			name:   "v2 ignores appid",
			claims: []Claim{{Name: ClaimVersion, Value: "2.0"}, {Name: ClaimAppID, Value: "wrong"}},
			want:   "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := GetAppIDFromClaims(tc.claims); got != tc.want {
				t.Fatalf("GetAppIDFromClaims = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsSkillClaim(t *testing.T) {
	cases := []struct {
		name   string
		claims []Claim
		want   bool
	}{
		{
			name: "bot to bot",
			claims: []Claim{
				{Name: ClaimVersion, Value: "1.0"},
				{Name: ClaimAudience, Value: "callee-app"},
				{Name: ClaimAppID, Value: "caller-app"},
			},
			want: true,
		},
		{
			name:   "anonymous skill app id",
			claims: []Claim{{Name: ClaimAppID, Value: AnonymousSkillAppID}},
			want:   true,
		},
		{
			name: "channel audience is not a skill",
			claims: []Claim{
				{Name: ClaimVersion, Value: "1.0"},
				{Name: ClaimAudience, Value: ToBotFromChannelTokenIssuer},
				{Name: ClaimAppID, Value: "caller-app"},
			},
			want: false,
		},
		{
			name: "missing version",
			claims: []Claim{
				{Name: ClaimAudience, Value: "callee-app"},
				{Name: ClaimAppID, Value: "caller-app"},
			},
			want: false,
		},
		{
			name: "self call is not a skill",
			claims: []Claim{
				{Name: ClaimVersion, Value: "1.0"},
				{Name: ClaimAudience, Value: "same-app"},
				{Name: ClaimAppID, Value: "same-app"},
			},
			want: false,
		},
		{
			name: "missing app id",
			claims: []Claim{
				{Name: ClaimVersion, Value: "1.0"},
				{Name: ClaimAudience, Value: "callee-app"},
			},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSkillClaim(tc.claims); got != tc.want {
				t.Fatalf("IsSkillClaim = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAllowedCallersClaimsValidator(t *testing.T) {
	skillClaims := []Claim{
		{Name: ClaimVersion, Value: "1.0"},
		{Name: ClaimAudience, Value: "callee-app"},
		{Name: ClaimAppID, Value: "caller-app"},
	}

	t.Run("listed caller passes", func(t *testing.T) {
		validate := AllowedCallersClaimsValidator([]string{"caller-app"})
		if err := validate(context.Background(), skillClaims); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("unlisted caller rejected", func(t *testing.T) {
		validate := AllowedCallersClaimsValidator([]string{"other-app"})
		if err := validate(context.Background(), skillClaims); err == nil {
			t.Fatal("expected rejection for unlisted caller")
		}
	})

	t.Run("wildcard accepts any caller", func(t *testing.T) {
		validate := AllowedCallersClaimsValidator([]string{"*"})
		if err := validate(context.Background(), skillClaims); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("non skill claims always pass", func(t *testing.T) {
		validate := AllowedCallersClaimsValidator(nil)
		channelClaims := []Claim{
			{Name: ClaimIssuer, Value: ToBotFromChannelTokenIssuer},
			{Name: ClaimAudience, Value: "callee-app"},
		}
		if err := validate(context.Background(), channelClaims); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("empty list rejects every skill", func(t *testing.T) {
		validate := AllowedCallersClaimsValidator(nil)
		if err := validate(context.Background(), skillClaims); err == nil {
			t.Fatal("expected rejection with empty allow list")
		}
	})
}
