package app

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/otp-manager/otp-manager/internal/auth"
	"github.com/otp-manager/otp-manager/internal/observability"
	"github.com/otp-manager/otp-manager/internal/otp"
	"github.com/otp-manager/otp-manager/internal/platform/httpx"
	"github.com/otp-manager/otp-manager/internal/shared"
	"github.com/otp-manager/otp-manager/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	AuthHandler    *auth.Handler
	OTPHandler     *otp.Handler
	SocketHandler  http.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router, every route lives below the
// configured context path.
func NewRouter(params RouterParams) http.Handler {
	contextPath := params.Config.ContextPath
	stack := NewMiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	})

	r := chi.NewRouter()
	for _, mw := range stack.Base {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	mount := func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		if params.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
		}

		staticFS, err := fs.Sub(web.Static, "static")
		if err != nil {
			params.Logger.Error("create static sub filesystem", slog.Any("error", err))
		} else {
			fileServer := http.StripPrefix(contextPath+"static/", http.FileServer(http.FS(staticFS)))
			r.Handle("/static/*", staticCacheHandler(fileServer))
		}

		r.Group(func(r chi.Router) {
			for _, mw := range stack.Session {
				r.Use(mw)
			}
			if params.SocketHandler != nil {
				r.Handle("/"+params.Config.SocketPath, params.SocketHandler)
			}

			r.Group(func(r chi.Router) {
				for _, mw := range stack.Request {
					r.Use(mw)
				}
				params.AuthHandler.MountRoutes(r)
				params.OTPHandler.MountRoutes(r)
			})
		})
	}

	if base := strings.TrimSuffix(contextPath, "/"); base != "" {
		r.Route(base, mount)
	} else {
		mount(r)
	}
	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
