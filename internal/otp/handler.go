package otp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/otp-manager/otp-manager/internal/i18n"
	"github.com/otp-manager/otp-manager/internal/otpapi"
	"github.com/otp-manager/otp-manager/internal/platform/httpx"
	"github.com/otp-manager/otp-manager/internal/rbac"
	"github.com/otp-manager/otp-manager/internal/shared"
	"github.com/otp-manager/otp-manager/internal/view"
)

const maxBodyBytes = 1 << 20

const hashPrefix = "hash:"

// HandlerParams groups the Handler dependencies.
type HandlerParams struct {
	Logger       *slog.Logger
	Client       *otpapi.Client
	Hasher       *otpapi.Hasher
	Templates    *view.Engine
	CSRF         *shared.CSRFManager
	Bundles      *i18n.Bundles
	Gates        rbac.Middleware
	UsersMethods map[string]bool
	SocketPath   string
}

// Handler serves the manager pages and proxies the API routes.
type Handler struct {
	logger       *slog.Logger
	client       *otpapi.Client
	hasher       *otpapi.Hasher
	templates    *view.Engine
	csrf         *shared.CSRFManager
	bundles      *i18n.Bundles
	gates        rbac.Middleware
	usersMethods map[string]bool
	socketPath   string
}

// NewHandler constructs a Handler instance.
func NewHandler(params HandlerParams) *Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:       logger,
		client:       params.Client,
		hasher:       params.Hasher,
		templates:    params.Templates,
		csrf:         params.CSRF,
		bundles:      params.Bundles,
		gates:        params.Gates,
		usersMethods: params.UsersMethods,
		socketPath:   params.SocketPath,
	}
}

// MountRoutes registers the pages, the bundles and the proxied API routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/api/messages", h.handleMessages)

	r.Group(func(r chi.Router) {
		r.Use(h.gates.RequireAuthenticated)
		r.Get("/preferences", h.handlePreferences)
		r.Get("/forbidden", h.handleForbidden)
		r.Get("/api/messages/{language}", h.handleMessagesByName)
		r.Get("/manager/users_methods", h.handleUsersMethods)
	})

	// Gate before CSRF: anonymous callers get the login redirect for every
	// method.
	protect := h.csrf.Protect(h.logger)
	for _, route := range APIRoutes {
		r.With(h.gate(route.Gate), protect).Method(route.Method, route.Path, h.proxy(route))
	}
}

func (h *Handler) gate(g Gate) func(http.Handler) http.Handler {
	switch g {
	case GateManager:
		return h.gates.RequireManagerOrAdmin
	case GateAdmin:
		return h.gates.RequireAdmin
	default:
		return h.gates.RequireAuthenticated
	}
}

func (h *Handler) proxy(route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := route.Backend.Expand(h.resolver(r))
		if err != nil {
			h.logger.Warn("reject backend path", slog.String("route", route.Path), slog.Any("error", err))
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
			return
		}

		body, err := readBody(w, r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpx.Message(w, http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge))
				return
			}
			httpx.RespondError(w, fmt.Errorf("%w: read body", httpx.ErrBadRequest))
			return
		}

		h.client.Forward(w, r, otpapi.Request{
			Path:   path,
			Method: route.BackendMethod,
			Body:   body,
			Bearer: route.Bearer,
			Route:  route.Backend.String(),
		})
	}
}

// resolver resolves backend placeholders for one request.
func (h *Handler) resolver(r *http.Request) func(string) (string, error) {
	var resolve func(string) (string, error)
	resolve = func(name string) (string, error) {
		if target, ok := strings.CutPrefix(name, hashPrefix); ok {
			value, err := resolve(target)
			if err != nil {
				return "", err
			}
			if value == "" {
				return "", fmt.Errorf("%w: %s", otpapi.ErrInvalidSegment, target)
			}
			return h.hasher.Hash(value), nil
		}
		if name == "self" {
			return shared.SessionFromContext(r.Context()).User(), nil
		}
		return urlParam(r, name)
	}
	return resolve
}

// urlParam returns the decoded route parameter. chi matches on RawPath when
// the request carries one, the parameter is then still escaped.
func urlParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return value, nil
	}
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return "", fmt.Errorf("%w: %s", otpapi.ErrInvalidSegment, name)
	}
	return decoded, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/index.html", map[string]any{
		"Messages": h.bundles.Get(i18n.Default),
	})
}

func (h *Handler) handlePreferences(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	h.render(w, r, "pages/dashboard.html", map[string]any{
		"User":       id,
		"Right":      string(id.Role),
		"SocketPath": h.socketPath,
	})
}

func (h *Handler) handleForbidden(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/forbidden.html", map[string]any{
		"User": shared.IdentityFromContext(r.Context()),
	})
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	name := h.bundles.Negotiate(r.Header.Get("Accept-Language"))
	httpx.JSON(w, http.StatusOK, h.bundles.Get(name))
}

func (h *Handler) handleMessagesByName(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.bundles.Get(i18n.ByName(chi.URLParam(r, "language"))))
}

func (h *Handler) handleUsersMethods(w http.ResponseWriter, r *http.Request) {
	data := make(map[string]any, len(h.usersMethods)+1)
	for method, enabled := range h.usersMethods {
		data[method] = enabled
	}
	data["user"] = shared.IdentityFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, err := h.csrf.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	if err := h.templates.Render(w, name, view.TemplateData{
		Title:       "OTP Manager",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}); err != nil {
		h.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
