package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// AdminRole is the role required by reservation management endpoints.
	AdminRole = "admin"

	// TokenIssuer is the issuer written into and required from HS256 tokens.
	TokenIssuer = "sctid"

	tokenLeeway = 30 * time.Second
)

type authPrincipal struct {
	Name  string
	Role  string
	Roles []string
}

func (p authPrincipal) hasRole(role string) bool {
	return strings.EqualFold(p.Role, role) || slices.Contains(p.Roles, role)
}

type ctxKey string

const (
	ctxPrincipalKey ctxKey = "auth_principal"
)

func principalFromContext(ctx context.Context) authPrincipal {
	if v, ok := ctx.Value(ctxPrincipalKey).(authPrincipal); ok {
		return v
	}
	return authPrincipal{Name: "anonymous"}
}

// AdminClaims are the claims carried by HS256 admin tokens.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs an HS256 token for subject that expires after ttl.
func IssueAdminToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("admin secret is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	claims := AdminClaims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type adminAuth struct {
	secret []byte
	oidc   *oidcAuthenticator
	now    func() time.Time
}

func newAdminAuth(ctx context.Context, cfg Config, now func() time.Time) (*adminAuth, error) {
	a := &adminAuth{now: now}
	if s := strings.TrimSpace(cfg.AdminSecret); s != "" {
		a.secret = []byte(s)
	}
	if strings.TrimSpace(cfg.OIDC.IssuerURL) != "" {
		oa, err := newOIDCAuthenticator(ctx, cfg.OIDC)
		if err != nil {
			return nil, err
		}
		a.oidc = oa
	}
	return a, nil
}

func (a *adminAuth) enabled() bool {
	return len(a.secret) > 0 || a.oidc != nil
}

func (a *adminAuth) verifyHS256(raw string) (authPrincipal, error) {
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return authPrincipal{}, err
	}
	name := claims.Subject
	if name == "" {
		name = "token"
	}
	return authPrincipal{Name: name, Role: claims.Role}, nil
}

// resolve returns the principal behind r. status is non-zero when the
// request must be rejected.
func (a *adminAuth) resolve(r *http.Request) (p authPrincipal, status int, code, msg string) {
	if !a.enabled() {
		return authPrincipal{Name: "anonymous", Role: AdminRole}, 0, "", ""
	}
	raw := bearerToken(r)
	if raw == "" {
		return authPrincipal{}, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token"
	}
	if len(a.secret) > 0 {
		p, err := a.verifyHS256(raw)
		if err == nil {
			return p, 0, "", ""
		}
		slog.Debug("admin token rejected", "error", err)
	}
	if a.oidc != nil {
		if p, ok := a.oidc.resolve(r.Context(), raw); ok {
			return p, 0, "", ""
		}
	}
	return authPrincipal{}, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token"
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, status, code, msg := s.auth.resolve(r)
		if status != 0 {
			writeError(w, status, msg, code)
			return
		}
		if !p.hasRole(AdminRole) {
			writeError(w, http.StatusForbidden, "insufficient role permissions", "FORBIDDEN")
			return
		}
		ctx := context.WithValue(r.Context(), ctxPrincipalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("Bearer "):])
}
