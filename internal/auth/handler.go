package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/otp-manager/otp-manager/internal/shared"
)

const loginFailedMessage = "Authentication failed, please log in again."

// Handler wires the CAS login and logout endpoints.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	contextPath    string
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, contextPath string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		contextPath:    contextPath,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)
}

// handleLogin sends the browser to CAS, or validates the ticket CAS sent
// it back with.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		http.Redirect(w, r, h.service.LoginURL(), http.StatusFound)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Redirect(w, r, h.contextPath, http.StatusFound)
		return
	}

	identity, err := h.service.Authenticate(ticket)
	if err != nil {
		h.logger.Warn("cas authentication failed", slog.Any("error", err))
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: loginFailedMessage})
		http.Redirect(w, r, h.contextPath, http.StatusFound)
		return
	}

	if err := h.sessionManager.Renew(r.Context(), sess); err != nil {
		h.logger.Error("renew session", slog.Any("error", err))
		http.Redirect(w, r, h.contextPath, http.StatusFound)
		return
	}
	sess.SetIdentity(identity)
	sess.ClearFlashes()
	h.logger.Info("user logged in", slog.String("uid", identity.UID), slog.String("role", string(identity.Role)))
	http.Redirect(w, r, h.contextPath+"preferences", http.StatusFound)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if uid := sess.User(); uid != "" {
			h.logger.Info("user logged out", slog.String("uid", uid))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, h.service.LogoutURL(), http.StatusFound)
}
