package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/apperr"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// TokenValidator is satisfied by *session.Issuer.
type TokenValidator interface {
	Validate(token string) (*session.Claims, error)
}

type claimsKey struct{}

// Gate authenticates bearer tokens and checks roles. It never touches the
// user store, so a ban takes effect only for sessions issued afterwards.
type Gate struct {
	tokens TokenValidator
	logger *zap.SugaredLogger
}

func NewGate(tokens TokenValidator, logger *zap.SugaredLogger) *Gate {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gate{tokens: tokens, logger: logger}
}

func unauthorized() error { return apperr.Auth("unauthorized") }

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticate parses an Authorization header value. Every failure looks the
// same to the caller.
func (g *Gate) Authenticate(header string) (*session.Claims, error) {
	token, ok := bearerToken(header)
	if !ok {
		return nil, unauthorized()
	}
	claims, err := g.tokens.Validate(token)
	if err != nil {
		g.logger.Debugw("token rejected", "reason", err)
		return nil, unauthorized()
	}
	return claims, nil
}

// RequireRole fails with a forbidden error unless claims carry role.
func RequireRole(claims *session.Claims, role entity.Role) error {
	if claims == nil || claims.Role != role {
		return apperr.Forbidden("forbidden")
	}
	return nil
}

// Middleware rejects requests without a valid session and stores the claims
// in the request context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			utilities.WriteError(w, r, g.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireRoleMiddleware must run after Middleware.
func (g *Gate) RequireRoleMiddleware(role entity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := ClaimsFromContext(r.Context())
			if err := RequireRole(claims, role); err != nil {
				utilities.WriteError(w, r, g.logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, c *session.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func ClaimsFromContext(ctx context.Context) (*session.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*session.Claims)
	return c, ok && c != nil
}

// CallerUID returns the uid from the verified session on ctx.
func CallerUID(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return "", false
	}
	return c.UID, true
}
