package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Mail.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Mail.Backoff)
	assert.Equal(t, time.Second, cfg.Mail.Stagger)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 5, cfg.Auth.OTPVerifyAttempts)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("MAIL_RETRY_BACKOFF", "250ms")
	t.Setenv("MAIL_STAGGER", "0s")
	t.Setenv("POSTGRES_DB", "tc_test")
	t.Setenv("OTP_VERIFY_ATTEMPTS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Mail.Backoff)
	assert.Equal(t, time.Duration(0), cfg.Mail.Stagger)
	assert.Contains(t, cfg.Database.DSN(), "dbname=tc_test")
	assert.Equal(t, 3, cfg.Auth.OTPVerifyAttempts)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talent.toml")
	content := "[mail]\nattempts = 5\n\n[notify]\nbrand = \"Acme Hiring\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Mail.Attempts)
	assert.Equal(t, "Acme Hiring", cfg.Notify.Brand)
}

func TestLoadRejectsMinIOWithoutCredentials(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "minio")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minio access key id")
}

func TestLoadRejectsZeroAttempts(t *testing.T) {
	t.Setenv("MAIL_RETRY_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadAllowedOriginsFromEnv(t *testing.T) {
	t.Setenv("API_ALLOWED_ORIGINS", "https://a.test,https://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.API.AllowedOrigins)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := APIConfig{LogLevel: "warn", LogFormat: "json"}.NewLogger(&buf)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	logger.Warn("disk low", slog.Int("pct", 91))
	assert.Contains(t, buf.String(), `"msg":"disk low"`)

	buf.Reset()
	logger = APIConfig{LogLevel: "bogus", LogFormat: "TEXT"}.NewLogger(&buf)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
