package app

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("OTP_API_URL", "http://otp-api.local:3000")
	t.Setenv("CAS_BASE_URL", "https://cas.example.org/cas/")
	t.Setenv("CAS_SERVICE_URL", "https://otp.example.org/login")
}

func TestLoadConfigNormalizes(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONTEXT_PATH", "/otp")
	t.Setenv("MANAGERS", "alice, bob ,")
	t.Setenv("ADMINS", "root")
	t.Setenv("USERS_METHODS", "totp:true,push:false")
	t.Setenv("SOCKET_PATH", "/sockets/")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/otp/", cfg.ContextPath)
	assert.Equal(t, "http://otp-api.local:3000/", cfg.APIURL)
	assert.Equal(t, "https://cas.example.org/cas", cfg.CASBaseURL)
	assert.Equal(t, "sockets", cfg.SocketPath)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Managers)
	assert.Equal(t, []string{"root"}, cfg.Admins)
	assert.Equal(t, map[string]bool{"totp": true, "push": false}, cfg.UsersMethods)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SESSION_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalidAPIURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OTP_API_URL", "not a url")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigDefaultTimeoutsLetSlowAnswersThrough(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Greater(t, cfg.AppWriteTimeout, cfg.APITimeout)
	assert.Greater(t, cfg.AppWriteTimeout, cfg.AppRequestTimeout)
}

func TestLoadConfigRejectsShortWriteTimeout(t *testing.T) {
	cases := map[string]map[string]string{
		"shorter than api":     {"APP_WRITE_TIMEOUT": "15s"},
		"shorter than request": {"APP_WRITE_TIMEOUT": "40s", "OTP_API_TIMEOUT": "10s", "APP_REQUEST_TIMEOUT": "60s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.ErrorContains(t, err, "AppWriteTimeout")
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
