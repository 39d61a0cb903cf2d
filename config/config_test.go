package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "security:\n  jwt_secret: s3cret\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, "s3cret", cfg.Security.JWTSecret)
	assert.Equal(t, 48*time.Hour, cfg.Security.JWTTTL)
	assert.Equal(t, 10, cfg.Security.BcryptCost)
	assert.Equal(t, 720*time.Hour, cfg.Audit.Retention)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  admin_ips: ["10.0.0.1"]
database:
  mode: mysql
  mysql_dsn: "u:p@tcp(db:3306)/x"
security:
  jwt_ttl: 1h
  allowed_origins: ["http://a.example"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"10.0.0.1"}, cfg.Server.AdminIPs)
	assert.Equal(t, "mysql", cfg.Database.Mode)
	assert.Equal(t, time.Hour, cfg.Security.JWTTTL)
	assert.Equal(t, []string{"http://a.example"}, cfg.Security.AllowedOrigins)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "security:\n  jwt_secret: from-file\n")
	t.Setenv("HEARTH_SECURITY_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Security.JWTSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
