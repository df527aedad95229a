package app

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/otp-manager/otp-manager/internal/observability"
	"github.com/otp-manager/otp-manager/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Metrics        *observability.Metrics
}

// MiddlewareStack holds the middleware chains, outermost first. Base wraps
// every route, Session adds the session, Request bounds plain HTTP requests.
// Websocket routes stop at Session.
type MiddlewareStack struct {
	Base    []func(http.Handler) http.Handler
	Session []func(http.Handler) http.Handler
	Request []func(http.Handler) http.Handler
}

type responseWriterWithCommit struct {
	http.ResponseWriter
	sess          *shared.Session
	manager       *shared.SessionManager
	logger        *slog.Logger
	ctx           context.Context
	req           *http.Request
	headerWritten bool
}

func (w *responseWriterWithCommit) commit() {
	if w.headerWritten {
		return
	}
	w.headerWritten = true
	if err := w.manager.Commit(w.ctx, w.ResponseWriter, w.req, w.sess); err != nil {
		w.logger.Error("failed to commit session", slog.Any("error", err))
	}
}

func (w *responseWriterWithCommit) WriteHeader(statusCode int) {
	w.commit()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWithCommit) Write(data []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

func (w *responseWriterWithCommit) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("app: response writer does not support hijacking")
	}
	w.headerWritten = true
	return hj.Hijack()
}

func (w *responseWriterWithCommit) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// NewMiddlewareStack builds the manager middleware chains.
func NewMiddlewareStack(cfg MiddlewareConfig) MiddlewareStack {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.Config == nil || !cfg.Config.IsProduction(),
	})

	sessionMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, err := cfg.SessionManager.Load(ctx, r)
			if err != nil {
				cfg.Logger.Error("failed to load session", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx = shared.ContextWithSession(ctx, sess)

			// Commit right before the status line so cookies make it out.
			wrapped := &responseWriterWithCommit{
				ResponseWriter: w,
				sess:           sess,
				manager:        cfg.SessionManager,
				logger:         cfg.Logger,
				ctx:            ctx,
				req:            r.WithContext(ctx),
			}

			next.ServeHTTP(wrapped, r.WithContext(ctx))
			wrapped.commit()
		})
	}

	secureHeaders := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := secureMiddleware.Process(w, r); err != nil {
				cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	timeout := 30 * time.Second
	rateLimit := 0
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		rateLimit = cfg.Config.RateLimitPerMinute
	}

	stack := MiddlewareStack{
		Base: []func(http.Handler) http.Handler{
			middleware.RealIP,
			middleware.RequestID,
			middleware.Recoverer,
		},
		Session: []func(http.Handler) http.Handler{
			sessionMiddleware,
		},
		Request: []func(http.Handler) http.Handler{
			middleware.Timeout(timeout),
			middleware.Compress(5),
		},
	}
	if cfg.Metrics != nil {
		stack.Base = append(stack.Base, cfg.Metrics.Middleware)
	}
	stack.Base = append(stack.Base, secureHeaders)
	if rateLimit > 0 {
		stack.Request = append(stack.Request, httprate.Limit(rateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}
	return stack
}
