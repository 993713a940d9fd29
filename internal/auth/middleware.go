package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatewise/gatewise/internal/platform/httpx"
	"github.com/gatewise/gatewise/internal/shared"
)

// Middleware wires authentication and authorization guards for HTTP
// handlers. Role and permission-flag checks are independent axes: the
// admin role never implies a fine-grained flag, so routes compose the
// guards they need.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Authenticate resolves the bearer token to an identity and attaches it
// to the request context. It is read-only with respect to the directory.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		identity, err := m.Service.ResolveIdentity(r.Context(), token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("authenticate", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireAdmin rejects callers whose role is not admin. It must run
// after Authenticate.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := shared.IdentityFromContext(r.Context())
		if identity == nil {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		if !identity.IsAdmin() {
			httpx.RespondError(w, fmt.Errorf("admin role required: %w", shared.ErrForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission rejects callers whose permission snapshot does not
// carry the named flag. It must run after Authenticate.
func (m Middleware) RequirePermission(flag string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if !identity.Permissions.Has(flag) {
				httpx.RespondError(w, fmt.Errorf("permission %s required: %w", flag, shared.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
