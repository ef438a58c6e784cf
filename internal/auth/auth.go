// Package auth verifies bearer tokens on the HTTP surface and puts the
// caller identity into the request context.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"

	"initiative-mcp/internal/config"
)

// DevActor is the identity injected when the dev bypass is active.
const DevActor = "dev@localhost"

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Auth verifies OpenID Connect access tokens presented as bearer tokens.
type Auth struct {
	apiVerifier *oidc.IDTokenVerifier
	logger      Logger
	authBypass  bool
}

type scopesKey struct{}

// New creates an Auth from the application configuration. Outside of the dev
// bypass it discovers the issuer and prepares a token verifier.
func New(ctx context.Context, cfg *config.Config, logger Logger) (*Auth, error) {
	shouldBypass := cfg.IsDev() && cfg.DevModeBypass

	var apiVerifier *oidc.IDTokenVerifier
	if !shouldBypass {
		if cfg.Auth.Issuer == "" {
			return nil, errors.New("auth configuration is incomplete: auth.issuer is required")
		}

		provider, err := oidc.NewProvider(ctx, cfg.Auth.Issuer)
		if err != nil {
			return nil, err
		}

		// Access tokens usually carry an API audience rather than the client
		// id, so the audience is only checked when a client id is configured.
		apiVerifier = provider.Verifier(&oidc.Config{
			ClientID:          cfg.Auth.ClientID,
			SkipClientIDCheck: cfg.Auth.ClientID == "",
		})
	}

	return &Auth{
		apiVerifier: apiVerifier,
		logger:      logger,
		authBypass:  shouldBypass,
	}, nil
}

// RequireAuth is middleware that rejects requests without a valid bearer
// token and stores the caller's email as the actor.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.authBypass {
			ctx := WithActor(r.Context(), DevActor)
			ctx = context.WithValue(ctx, scopesKey{}, AllScopes)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		token, err := a.apiVerifier.Verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			if a.logger != nil {
				a.logger.Debug("token verification failed", "error", err)
			}
			http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}

		var claims scopeClaims
		if err := token.Claims(&claims); err != nil {
			http.Error(w, "failed to parse token claims", http.StatusUnauthorized)
			return
		}
		actor := claims.Email
		if actor == "" {
			actor = claims.Sub
		}
		if actor == "" {
			http.Error(w, "token carries no email or subject", http.StatusUnauthorized)
			return
		}

		ctx := WithActor(r.Context(), actor)
		ctx = context.WithValue(ctx, scopesKey{}, claims.scopes())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects requests whose token was not granted scope. It must
// run after RequireAuth.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			granted, _ := r.Context().Value(scopesKey{}).([]string)
			if !hasScope(granted, scope) {
				http.Error(w, "insufficient scope: "+scope+" required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
