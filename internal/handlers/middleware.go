package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/getactive/apiserver/types"
)

// DefaultPublicPaths are served without looking at the Authorization header.
var DefaultPublicPaths = []string{
	"/v1/health",
	"/v1/login",
	"/v1/register",
	"/v1/register/confirm",
	"/metrics",
}

// IdentityResolver maps a session token to the user it was issued for.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, sessionToken string) (types.User, error)
}

// VerificationChecker fails for identities that have not confirmed their registration.
type VerificationChecker interface {
	AssertVerified(identity types.User) error
}

// Authenticator resolves the bearer token of each request into an identity.
type Authenticator struct {
	resolver IdentityResolver
	accounts VerificationChecker
	public   map[string]struct{}
	logger   logrus.FieldLogger
}

func NewAuthenticator(resolver IdentityResolver, accounts VerificationChecker, logger logrus.FieldLogger, publicPaths ...string) *Authenticator {
	if len(publicPaths) == 0 {
		publicPaths = DefaultPublicPaths
	}
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[normalizePath(p)] = struct{}{}
	}
	return &Authenticator{resolver: resolver, accounts: accounts, public: public, logger: logger}
}

func normalizePath(p string) string {
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// IsPublic reports whether path skips authentication.
func (a *Authenticator) IsPublic(path string) bool {
	_, ok := a.public[normalizePath(path)]
	return ok
}

// Authenticate attaches the identity of a valid bearer token to the request
// context. It never rejects a request: missing or bad tokens leave the
// request unauthenticated for the route guards to decide.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := bearerToken(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := a.resolver.ResolveIdentity(r.Context(), tokenString)
		if err != nil {
			entry := a.logger.WithField("path", r.URL.Path)
			if apiErr, ok := apierr.As(err); ok {
				entry = entry.WithField("code", apiErr.Code)
			}
			entry.WithError(err).Debug("ignoring unusable bearer token")
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// RequireAuth rejects requests without an identity with 401.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			writeError(w, r, a.logger, apierr.Unauthenticated())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireVerified rejects requests without an identity with 401 and
// identities that have not confirmed their registration with 403.
func (a *Authenticator) RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeError(w, r, a.logger, apierr.Unauthenticated())
			return
		}
		if err := a.accounts.AssertVerified(identity); err != nil {
			writeError(w, r, a.logger, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
