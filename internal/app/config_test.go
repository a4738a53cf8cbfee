package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("CSRF_SECRET", "csrf")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "30 0 * * *", cfg.EstimateExpiryCron)
	assert.Equal(t, 7*24*time.Hour, cfg.IdempotencyRetention)
	assert.Equal(t, 24*time.Hour, cfg.PDFCacheTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "csrf")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsNonPositiveRetention(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("IDEMPOTENCY_RETENTION", "0s")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "retention")
}

func TestLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.Int64("company_id", 7))
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"company_id":7`)

	buf.Reset()
	newLogger(&Config{LogFormat: "text"}, &buf).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestSkipStartup(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	t.Cleanup(RefreshTestMode)
	assert.True(t, SkipStartup(nil, "invoicing"))

	t.Setenv(TestModeEnv, "")
	RefreshTestMode()
	assert.False(t, SkipStartup(nil, "invoicing"))
}
