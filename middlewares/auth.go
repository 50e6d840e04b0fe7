package middlewares

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
)

type contextKeyUserId struct{}
type contextKeyUserEmail struct{}
type contextKeyRoles struct{}
type contextKeyValidatedClaims struct{}

// ClaimsConfig names the claims that carry the caller's email and roles. These must match
// the keys used by your IDP.
type ClaimsConfig struct {
	EmailKey string
	RolesKey string
}

var DefaultClaimsConfig = ClaimsConfig{
	EmailKey: "email",
	RolesKey: "roles",
}

// customClaims holds dynamic JWT claims
type customClaims struct {
	Scope  string         `json:"scope"`
	Claims map[string]any `json:"-"`
}

func (c *customClaims) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Claims = make(map[string]any)
	for k, v := range raw {
		if k == "scope" {
			if s, ok := v.(string); ok {
				c.Scope = s
			}
			continue
		}
		c.Claims[k] = v
	}
	return nil
}

func (c *customClaims) Validate(ctx context.Context) error {
	return nil
}

type validatedClaims struct {
	Subject      string
	CustomClaims *customClaims
}

type EnsureValidTokenConfig struct {
	Enabled          bool
	IssuerURL        string
	Audience         []string
	AllowedClockSkew time.Duration
}

// EnsureValidToken validates bearer tokens against the issuer's JWKS and stores the caller
// in the request context. When disabled every request passes through.
func EnsureValidToken(cfg EnsureValidTokenConfig) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}

	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer URL: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		cfg.Audience,
		validator.WithCustomClaims(func() validator.CustomClaims { return &customClaims{} }),
		validator.WithAllowedClockSkew(cfg.AllowedClockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up JWT validator: %w", err)
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Error("JWT validation failed", slog.Any("error", err.Error()))
		respond(w, r, http.StatusUnauthorized, "invalid authentication token", nil)
	}

	middleware := jwtmiddleware.New(jwtValidator.ValidateToken, jwtmiddleware.WithErrorHandler(errorHandler))

	return func(next http.Handler) http.Handler {
		return middleware.CheckJWT(withClaims(next))
	}, nil
}

// withClaims moves the claims validated by jwtmiddleware into the caller context.
func withClaims(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if vclaims, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims); ok {
			cc, _ := vclaims.CustomClaims.(*customClaims)
			claims := &validatedClaims{Subject: vclaims.RegisteredClaims.Subject, CustomClaims: cc}
			r = r.WithContext(contextWithClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

func contextWithClaims(ctx context.Context, claims *validatedClaims) context.Context {
	ctx = context.WithValue(ctx, contextKeyValidatedClaims{}, claims)
	ctx = context.WithValue(ctx, contextKeyUserId{}, claims.Subject)
	if claims.CustomClaims != nil {
		ctx = context.WithValue(ctx, contextKeyUserEmail{}, getEmail(claims.CustomClaims, DefaultClaimsConfig))
		ctx = context.WithValue(ctx, contextKeyRoles{}, getRoles(claims.CustomClaims, DefaultClaimsConfig))
	}
	return ctx
}

// RequireRole rejects callers without roleName: 401 when there are no validated claims
// and 403 when the role is missing.
func RequireRole(roleName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := getValidatedClaims(r.Context())
			if claims == nil || claims.CustomClaims == nil {
				respond(w, r, http.StatusUnauthorized, "authentication required", nil)
				return
			}
			if !slices.Contains(getRoles(claims.CustomClaims, DefaultClaimsConfig), roleName) {
				respond(w, r, http.StatusForbidden, "you are not allowed to perform this action", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetUserIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(contextKeyUserId{}).(string)
	return s
}

func GetEmailFromContext(ctx context.Context) string {
	s, _ := ctx.Value(contextKeyUserEmail{}).(string)
	return s
}

func GetRolesFromContext(ctx context.Context) []string {
	s, _ := ctx.Value(contextKeyRoles{}).([]string)
	return s
}

func getValidatedClaims(ctx context.Context) *validatedClaims {
	claims, _ := ctx.Value(contextKeyValidatedClaims{}).(*validatedClaims)
	return claims
}

func getRoles(c *customClaims, cfg ClaimsConfig) []string {
	if val, ok := c.Claims[cfg.RolesKey]; ok {
		switch v := val.(type) {
		case []any:
			str := make([]string, len(v))
			for i, r := range v {
				str[i], _ = r.(string)
			}
			return str
		case []string:
			return v
		case string:
			return []string{v}
		}
	}
	return nil
}

func getEmail(c *customClaims, cfg ClaimsConfig) string {
	s, _ := c.Claims[cfg.EmailKey].(string)
	return s
}
