package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/cas.v2"

	"github.com/otp-manager/otp-manager/cmd/otp-manager/cli"
	"github.com/otp-manager/otp-manager/internal/app"
	"github.com/otp-manager/otp-manager/internal/auth"
	"github.com/otp-manager/otp-manager/internal/i18n"
	"github.com/otp-manager/otp-manager/internal/observability"
	"github.com/otp-manager/otp-manager/internal/otp"
	"github.com/otp-manager/otp-manager/internal/otpapi"
	"github.com/otp-manager/otp-manager/internal/platform/cache"
	"github.com/otp-manager/otp-manager/internal/rbac"
	"github.com/otp-manager/otp-manager/internal/shared"
	"github.com/otp-manager/otp-manager/internal/sockets"
	"github.com/otp-manager/otp-manager/internal/view"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		if err := runCommand(ctx, cfg, os.Args[1:]); err != nil {
			logger.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("otp-manager stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "otp_manager_session", cfg.ContextPath, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	templates, err := view.NewEngine(cfg.ContextPath)
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	bundles, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	casURL, err := url.Parse(cfg.CASBaseURL + "/")
	if err != nil {
		return fmt.Errorf("cas url: %w", err)
	}
	validator := cas.NewServiceTicketValidator(&http.Client{Timeout: cfg.APITimeout}, casURL)
	classifier := rbac.NewClassifier(cfg.Managers, cfg.Admins)
	authService, err := auth.NewService(validator, classifier, cfg.CASBaseURL, cfg.CASServiceURL)
	if err != nil {
		return err
	}
	authHandler := auth.NewHandler(logger, authService, sessionManager, cfg.ContextPath)

	apiClient := otpapi.NewClient(otpapi.Options{
		BaseURL:  cfg.APIURL,
		Password: cfg.APIPassword,
		Timeout:  cfg.APITimeout,
		Logger:   logger,
		Observer: metrics,
	})
	otpHandler := otp.NewHandler(otp.HandlerParams{
		Logger:       logger,
		Client:       apiClient,
		Hasher:       otpapi.NewHasher(cfg.UsersSecret),
		Templates:    templates,
		CSRF:         csrfManager,
		Bundles:      bundles,
		Gates:        rbac.NewMiddleware(cfg.ContextPath, logger),
		UsersMethods: cfg.UsersMethods,
		SocketPath:   cfg.SocketPath,
	})

	hub := sockets.NewHub(logger, metrics)
	relay := sockets.NewRelay(redisClient, cfg.EventsChannel, hub, logger, metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		AuthHandler:    authHandler,
		OTPHandler:     otpHandler,
		SocketHandler:  sockets.NewHandler(hub, logger, cfg.WSAllowedOrigins),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("context_path", cfg.ContextPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// runCommand executes an operator subcommand instead of the server.
func runCommand(ctx context.Context, cfg *app.Config, args []string) error {
	switch args[0] {
	case "emit":
		if len(args) < 3 || len(args) > 4 {
			return errors.New("usage: otp-manager emit <uid> <event> [json-data]")
		}
		redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		data := ""
		if len(args) == 4 {
			data = args[3]
		}
		receivers, err := cli.NewEventsCLI(redisClient, cfg.EventsChannel).Emit(ctx, args[1], args[2], data)
		if err != nil {
			return err
		}
		fmt.Printf("event published to %d relay(s)\n", receivers)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
