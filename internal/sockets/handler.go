package sockets

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/otp-manager/otp-manager/internal/shared"
)

// Handler upgrades dashboard connections and registers them on the hub.
type Handler struct {
	hub     *Hub
	logger  *slog.Logger
	origins []string
}

// NewHandler constructs a Handler. origins are host patterns accepted in
// addition to the request host.
func NewHandler(hub *Hub, logger *slog.Logger, origins []string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, logger: logger, origins: origins}
}

// ServeHTTP holds the connection open until the client goes away. Sessions
// without a user are closed with a policy violation.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Server read and write timeouts would otherwise carry over to the
	// hijacked connection.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.Any("error", err))
		return
	}

	uid := shared.SessionFromContext(r.Context()).User()
	if uid == "" {
		_ = conn.Close(websocket.StatusPolicyViolation, "Forbidden")
		return
	}

	handle, err := h.hub.Register(uid, conn)
	if err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.hub.Unregister(handle)

	// Request deadlines must not end the socket.
	ctx := conn.CloseRead(context.WithoutCancel(r.Context()))
	<-ctx.Done()
}
