package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("AUDIT_WORKERS", "")
	t.Setenv("PUBLIC_BASE_URL", "")

	cfg, err := Load()
	require.Error(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 2, cfg.AuditWorkers)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, "http://localhost:8080", cfg.PublicBaseURL)
	assert.False(t, cfg.UseS3())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/auditflow")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9090")
	t.Setenv("AUDIT_WORKERS", "4")
	t.Setenv("AUDIT_STEP_INTERVAL", "50ms")
	t.Setenv("POLL_INTERVAL", "not-a-duration")
	t.Setenv("S3_ENDPOINT", "localhost:9000")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("PUBLIC_BASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.AuditWorkers)
	assert.Equal(t, 50*time.Millisecond, cfg.AuditStepInterval)
	assert.Equal(t, 2*time.Second, cfg.PollInterval, "bad values fall back to the default")
	assert.True(t, cfg.UseS3())
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, "http://localhost:9090", cfg.PublicBaseURL)
}

func TestLoadDotEnv_DoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("UPLOADS_BUCKET=from-file\nAPP_ENV=from-file\n"), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("APP_ENV", "test")
	t.Setenv("UPLOADS_BUCKET", "")
	os.Unsetenv("UPLOADS_BUCKET")

	LoadDotEnv()
	t.Cleanup(func() { os.Unsetenv("UPLOADS_BUCKET") })

	cfg, _ := Load()
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "from-file", cfg.UploadsBucket)
}
