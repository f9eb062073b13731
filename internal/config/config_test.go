package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"SECRET", "HTTP_PORT", "DB_DRIVER", "DATABASE_DSN", "LOG_LEVEL", "LOG_PRETTY", "SEED_CSV"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "dev_secret", cfg.Secret)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, defaultSQLiteDSN, cfg.DatabaseDSN)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
}

func TestLoadPostgres(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "nurse")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_NAME", "clinic")

	cfg := Load()
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, "postgres://nurse:pw@db:5433/clinic?sslmode=disable", cfg.DatabaseDSN)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	assert.Equal(t, "8080", Load().HTTPPort)
}
