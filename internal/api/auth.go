package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Comparador/internal/config"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCliente Role = "cliente"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by AuthMiddleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

var (
	errMissingBearer = errors.New("missing bearer token")
	errUnknownRole   = errors.New("unknown role")
)

// Authenticator verifies HS256 tokens from the identity provider. The user id
// comes from sub; the role from roleClaim, which may be a dotted path such as
// "app_metadata.role".
type Authenticator struct {
	secret    []byte
	issuer    string
	roleClaim string
}

func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	claim := cfg.RoleClaim
	if claim == "" {
		claim = "role"
	}
	return &Authenticator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, roleClaim: claim}
}

func (a *Authenticator) Parse(tokenStr string) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, jwt.ErrTokenInvalidClaims
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return Principal{}, err
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Principal{}, fmt.Errorf("subject is not a uuid: %w", err)
	}

	role := Role(lookupClaim(claims, a.roleClaim))
	if role != RoleAdmin && role != RoleCliente {
		return Principal{}, errUnknownRole
	}
	return Principal{UserID: userID, Role: role}, nil
}

// Issue signs a token for p. The identity provider issues tokens in
// production; this is used by tooling and tests.
func (a *Authenticator) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": p.UserID.String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	setClaim(claims, a.roleClaim, string(p.Role))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func lookupClaim(claims map[string]interface{}, path string) string {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := claims[head]
	if !ok {
		return ""
	}
	if nested {
		m, ok := v.(map[string]interface{})
		if !ok {
			return ""
		}
		return lookupClaim(m, rest)
	}
	s, _ := v.(string)
	return s
}

func setClaim(claims map[string]interface{}, path, value string) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		claims[head] = value
		return
	}
	m, ok := claims[head].(map[string]interface{})
	if !ok {
		m = map[string]interface{}{}
		claims[head] = m
	}
	setClaim(m, rest, value)
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// caller in the request context.
func AuthMiddleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeError(w, http.StatusUnauthorized, errMissingBearer.Error())
				return
			}
			p, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if errors.Is(err, errUnknownRole) {
				writeError(w, http.StatusForbidden, err.Error())
				return
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole lets only callers with role through.
func RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok || p.Role != role {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
