package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

type OIDCConfig struct {
	IssuerURL string
	ClientID  string
}

type oidcAuthenticator struct {
	verifier *oidc.IDTokenVerifier
}

func newOIDCAuthenticator(ctx context.Context, cfg OIDCConfig) (*oidcAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, strings.TrimSpace(cfg.IssuerURL))
	if err != nil {
		return nil, err
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: strings.TrimSpace(cfg.ClientID)})
	return &oidcAuthenticator{verifier: verifier}, nil
}

// resolve verifies raw as an ID token. The role comes from the sctid_role
// or role claim, or an sctid_roles list.
func (a *oidcAuthenticator) resolve(ctx context.Context, raw string) (authPrincipal, bool) {
	idToken, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		slog.Debug("oidc token rejected", "error", err)
		return authPrincipal{}, false
	}
	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return authPrincipal{}, false
	}
	p := authPrincipal{
		Name: claimString(claims, "email", "preferred_username", "sub"),
		Role: claimString(claims, "sctid_role", "role"),
	}
	if p.Name == "" {
		p.Name = "oidc-user"
	}
	if p.Role == "" {
		p.Role = "readonly"
	}
	if rawRoles, ok := claims["sctid_roles"]; ok {
		p.Roles = claimsStringSlice(rawRoles)
	}
	return p, true
}

func claimString(claims map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func claimsStringSlice(v any) []string {
	out := []string{}
	switch x := v.(type) {
	case []any:
		for _, it := range x {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(x, ",") {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
