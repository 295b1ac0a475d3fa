package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-hub/internal/models"
)

// clearEnv unsets every key Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	keys := []string{
		"APP_NAME", "HTTP_PORT", "CACHE_BACKEND", "CACHE_DIR", "CACHE_DB_PATH",
		"DATABASE_URL", "CACHE_TTL", "ENABLE_FALLBACKS", "MAX_FALLBACKS",
		"REQUIRED_FIELDS", "SOURCES_DISABLED", "CORELOGIC_API_KEY",
		"CORELOGIC_BASE_URL", "DOMAIN_API_KEY", "SCRAPINGBEE_API_KEY",
		"BROWSER_HEADLESS", "SOURCE_TIMEOUT", "SOURCE_RPS", "GEOCODER_ENABLED",
		"NOMINATIM_URL", "SCHOOLS_CSV", "LOG_LEVEL", "LOG_FORMAT",
		"FLUENTBIT_ENABLED", "FLUENTBIT_HOST", "FLUENTBIT_PORT", "FLUENTBIT_LOG_LEVEL",
	}
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, v) })
			os.Unsetenv(k)
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "property-hub", cfg.AppName)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, 168*time.Hour, cfg.Cache.TTL)
	assert.True(t, cfg.Lookup.EnableFallbacks)
	assert.Equal(t, 3, cfg.Lookup.MaxFallbacks)
	assert.Empty(t, cfg.Lookup.RequiredFields)
	assert.True(t, cfg.Sources.Headless)
	assert.False(t, cfg.FluentBit.Enabled)
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	content := `CACHE_BACKEND=memory
CACHE_TTL=72h
MAX_FALLBACKS=5
ENABLE_FALLBACKS=false
REQUIRED_FIELDS=yearBuilt, landArea
SOURCES_DISABLED=microburbs.com,REALESTATE.COM
DOMAIN_API_KEY=key_abc
SOURCE_TIMEOUT=20
LOG_FORMAT=json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 72*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 5, cfg.Lookup.MaxFallbacks)
	assert.False(t, cfg.Lookup.EnableFallbacks)
	assert.Equal(t, []models.Field{models.FieldYearBuilt, models.FieldLandArea}, cfg.Lookup.RequiredFields)
	assert.Equal(t, []models.SourceID{models.SourceMicroburbs, models.SourceREA}, cfg.Sources.Disabled)
	assert.Equal(t, "key_abc", cfg.Sources.DomainAPIKey)
	assert.Equal(t, 20*time.Second, cfg.Sources.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)

	store := cfg.CacheStore(nil)
	assert.Equal(t, "memory", store.Backend)
	assert.Equal(t, 72*time.Hour, store.TTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"CACHE_BACKEND": "redis"}},
		{"postgres without url", map[string]string{"CACHE_BACKEND": "postgres"}},
		{"unknown field", map[string]string{"REQUIRED_FIELDS": "yearBuilt,colour"}},
		{"unknown source", map[string]string{"SOURCES_DISABLED": "zillow"}},
		{"negative fallbacks", map[string]string{"MAX_FALLBACKS": "-1"}},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}

func TestMalformedNumbersFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("ENABLE_FALLBACKS", "maybe")
	t.Setenv("CACHE_TTL", "a week")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.True(t, cfg.Lookup.EnableFallbacks)
	assert.Equal(t, 168*time.Hour, cfg.Cache.TTL)
}

func TestFluentBitNeedsHost(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLUENTBIT_ENABLED", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.False(t, cfg.FluentBit.Enabled)

	t.Setenv("FLUENTBIT_HOST", "fluent-bit")
	cfg, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.True(t, cfg.FluentBit.Enabled)
	assert.Equal(t, 24224, cfg.FluentBit.Port)
}
