package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmnet/rhythmd/internal/platform/logging"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDev, cfg.AppEnv)
	assert.Equal(t, "rhythmd", cfg.ServiceName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, logging.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.MemoryMode)
	assert.False(t, cfg.MaintenanceMode)
	assert.InDelta(t, 2500, cfg.PPCeiling, 1e-9)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("APP_MEMORY_MODE", "true")
	t.Setenv("MAINTENANCE_MODE", "true")
	t.Setenv("PP_CEILING", "1800.5")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProd, cfg.AppEnv)
	assert.True(t, cfg.MemoryMode)
	assert.True(t, cfg.MaintenanceMode)
	assert.InDelta(t, 1800.5, cfg.PPCeiling, 1e-9)
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad app env":            {"APP_ENV", "production"},
		"bad bool":               {"APP_MEMORY_MODE", "yep"},
		"negative ceiling":       {"PP_CEILING", "-1"},
		"bad cache ttl":          {"BEATMAP_CACHE_TTL", "soon"},
		"webhook without url":    {"WEBHOOK_ENABLED", "true"},
		"uptrace without dsn":    {"UPTRACE_ENABLED", "true"},
		"pyroscope without addr": {"PYROSCOPE_ENABLED", "true"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			require.Error(t, err)
		})
	}
}
