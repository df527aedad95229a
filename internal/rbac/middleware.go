package rbac

import (
	"log/slog"
	"net/http"

	"github.com/otp-manager/otp-manager/internal/shared"
)

// Middleware wires the redirecting authorization gates. The surface is
// browser driven, so failures redirect instead of answering 401/403.
type Middleware struct {
	LoginPath     string
	ForbiddenPath string
	Logger        *slog.Logger
}

// NewMiddleware builds gates redirecting below contextPath, which must end
// with a slash.
func NewMiddleware(contextPath string, logger *slog.Logger) Middleware {
	return Middleware{
		LoginPath:     contextPath + "login",
		ForbiddenPath: contextPath + "forbidden",
		Logger:        logger,
	}
}

// RequireAuthenticated lets through requests whose session holds an identity.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return m.require(func(*shared.Identity) bool { return true }, next)
}

// RequireManagerOrAdmin lets through managers and admins.
func (m Middleware) RequireManagerOrAdmin(next http.Handler) http.Handler {
	return m.require((*shared.Identity).IsManager, next)
}

// RequireAdmin lets through admins only.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return m.require((*shared.Identity).IsAdmin, next)
}

func (m Middleware) require(allowed func(*shared.Identity) bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := shared.IdentityFromContext(r.Context())
		if id == nil || id.UID == "" {
			http.Redirect(w, r, m.LoginPath, http.StatusFound)
			return
		}
		if !allowed(id) {
			if m.Logger != nil {
				m.Logger.Warn("rbac denied",
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method),
					slog.String("uid", id.UID),
					slog.String("role", string(id.Role)),
				)
			}
			http.Redirect(w, r, m.ForbiddenPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
