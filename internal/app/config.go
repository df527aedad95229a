package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the manager. The write timeout
// must outlast both the request and the API timeouts, otherwise a slow
// backend answer is cut off before it is relayed.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"45s" validate:"gtfield=APITimeout,gtfield=AppRequestTimeout"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	ContextPath       string        `envconfig:"CONTEXT_PATH" default:"/" validate:"startswith=/"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379" validate:"required"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true" validate:"required"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	CSRFSecret    string        `envconfig:"CSRF_SECRET" required:"true" validate:"required"`

	APIURL      string        `envconfig:"OTP_API_URL" required:"true" validate:"required,url"`
	APIPassword string        `envconfig:"OTP_API_PASSWORD"`
	UsersSecret string        `envconfig:"OTP_USERS_SECRET"`
	APITimeout  time.Duration `envconfig:"OTP_API_TIMEOUT" default:"30s"`

	CASBaseURL    string `envconfig:"CAS_BASE_URL" required:"true" validate:"required,url"`
	CASServiceURL string `envconfig:"CAS_SERVICE_URL" required:"true" validate:"required,url"`

	Managers     []string        `envconfig:"MANAGERS"`
	Admins       []string        `envconfig:"ADMINS"`
	UsersMethods map[string]bool `envconfig:"USERS_METHODS"`

	SocketPath       string   `envconfig:"SOCKET_PATH" default:"sockets" validate:"required"`
	EventsChannel    string   `envconfig:"EVENTS_CHANNEL" default:"otp-manager:events"`
	WSAllowedOrigins []string `envconfig:"WS_ALLOWED_ORIGINS"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"300" validate:"gte=0"`
}

// LoadConfig reads configuration from environment variables, after merging
// an optional .env file from the working directory.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !strings.HasSuffix(c.ContextPath, "/") {
		c.ContextPath += "/"
	}
	if !strings.HasSuffix(c.APIURL, "/") {
		c.APIURL += "/"
	}
	c.CASBaseURL = strings.TrimSuffix(c.CASBaseURL, "/")
	c.SocketPath = strings.Trim(c.SocketPath, "/")
	c.Managers = trimAll(c.Managers)
	c.Admins = trimAll(c.Admins)
	c.WSAllowedOrigins = trimAll(c.WSAllowedOrigins)
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
