// Package config loads application settings from a .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"property-hub/internal/cache"
	"property-hub/internal/models"
	"property-hub/internal/scraper"
)

// Config holds all application settings
type Config struct {
	AppName  string
	HTTPPort int

	Cache   CacheConfig
	Lookup  LookupConfig
	Sources scraper.Config

	GeocoderEnabled bool
	NominatimURL    string
	SchoolsCSV      string

	Log       LogConfig
	FluentBit FluentBitConfig
}

type CacheConfig struct {
	Backend     string
	Dir         string
	DBPath      string
	DatabaseURL string
	TTL         time.Duration
}

// LookupConfig holds the fallback chain defaults
type LookupConfig struct {
	EnableFallbacks bool
	MaxFallbacks    int
	RequiredFields  []models.Field
}

type LogConfig struct {
	Level  string
	Format string // text or json
}

type FluentBitConfig struct {
	Enabled bool
	Host    string
	Port    int
	Level   string
}

// Load reads envPath (or .env in the working directory) into the process
// environment and builds a Config. A missing .env file is not an error.
func Load(envPath ...string) (*Config, error) {
	var err error
	if len(envPath) > 0 && envPath[0] != "" {
		err = godotenv.Load(envPath[0])
	} else {
		err = godotenv.Load()
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not load .env file (path: %v): %w", envPath, err)
	}

	cfg := &Config{
		AppName:  getEnvAsString("APP_NAME", "property-hub"),
		HTTPPort: getEnvAsInt("HTTP_PORT", 8080),
		Cache: CacheConfig{
			Backend:     strings.ToLower(getEnvAsString("CACHE_BACKEND", "sqlite")),
			Dir:         getEnvAsString("CACHE_DIR", "data/cache"),
			DBPath:      getEnvAsString("CACHE_DB_PATH", "data/property-hub.db"),
			DatabaseURL: getEnvAsString("DATABASE_URL", ""),
			TTL:         getEnvAsDuration("CACHE_TTL", 168*time.Hour),
		},
		Lookup: LookupConfig{
			EnableFallbacks: getEnvAsBool("ENABLE_FALLBACKS", true),
			MaxFallbacks:    getEnvAsInt("MAX_FALLBACKS", 3),
		},
		GeocoderEnabled: getEnvAsBool("GEOCODER_ENABLED", true),
		NominatimURL:    getEnvAsString("NOMINATIM_URL", ""),
		SchoolsCSV:      getEnvAsString("SCHOOLS_CSV", ""),
		Log: LogConfig{
			Level:  getEnvAsString("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnvAsString("LOG_FORMAT", "text")),
		},
	}

	src := scraper.DefaultConfig()
	src.Timeout = getEnvAsDuration("SOURCE_TIMEOUT", src.Timeout)
	src.RequestsPerSecond = getEnvAsFloat("SOURCE_RPS", src.RequestsPerSecond)
	src.CoreLogicAPIKey = getEnvAsString("CORELOGIC_API_KEY", "")
	src.CoreLogicBaseURL = getEnvAsString("CORELOGIC_BASE_URL", src.CoreLogicBaseURL)
	src.DomainAPIKey = getEnvAsString("DOMAIN_API_KEY", "")
	src.ScrapingBeeAPIKey = getEnvAsString("SCRAPINGBEE_API_KEY", "")
	src.Headless = getEnvAsBool("BROWSER_HEADLESS", src.Headless)
	cfg.Sources = src

	if v := getEnvAsString("SOURCES_DISABLED", ""); v != "" {
		ids, err := ParseSources(v)
		if err != nil {
			return nil, fmt.Errorf("SOURCES_DISABLED: %w", err)
		}
		cfg.Sources.Disabled = ids
	}
	if v := getEnvAsString("REQUIRED_FIELDS", ""); v != "" {
		fields, err := ParseFields(v)
		if err != nil {
			return nil, fmt.Errorf("REQUIRED_FIELDS: %w", err)
		}
		cfg.Lookup.RequiredFields = fields
	}

	cfg.FluentBit.Enabled = getEnvAsBool("FLUENTBIT_ENABLED", false)
	if cfg.FluentBit.Enabled {
		cfg.FluentBit.Host = os.Getenv("FLUENTBIT_HOST")
		if cfg.FluentBit.Host == "" {
			slog.Warn("FLUENTBIT_ENABLED is true, but FLUENTBIT_HOST is not set. Disabling Fluent Bit.")
			cfg.FluentBit.Enabled = false
		}
		cfg.FluentBit.Port = getEnvAsInt("FLUENTBIT_PORT", 24224)
		cfg.FluentBit.Level = getEnvAsString("FLUENTBIT_LOG_LEVEL", "info")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "memory", "file", "sqlite":
	case "postgres":
		if c.Cache.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres cache backend")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.Lookup.MaxFallbacks < 0 {
		return fmt.Errorf("MAX_FALLBACKS must not be negative, got %d", c.Lookup.MaxFallbacks)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}

// CacheStore converts the cache settings for cache.Open
func (c *Config) CacheStore(logger *slog.Logger) cache.Config {
	return cache.Config{
		Backend:     c.Cache.Backend,
		Dir:         c.Cache.Dir,
		DBPath:      c.Cache.DBPath,
		DatabaseURL: c.Cache.DatabaseURL,
		Options: cache.Options{
			TTL:    c.Cache.TTL,
			Logger: logger,
		},
	}
}

// ParseFields parses a comma separated list of field names
func ParseFields(s string) ([]models.Field, error) {
	var fields []models.Field
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, ok := models.ParseField(part)
		if !ok {
			return nil, fmt.Errorf("unknown field %q", part)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// ParseSources parses a comma separated list of source IDs
func ParseSources(s string) ([]models.SourceID, error) {
	var ids []models.SourceID
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := models.ParseSourceID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		slog.Warn("Environment variable could not be parsed as int, using default", "key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return valueInt
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	v, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		slog.Warn("Environment variable could not be parsed as float, using default", "key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return v
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valBool, err := strconv.ParseBool(valStr)
	if err != nil {
		slog.Warn("Environment variable could not be parsed as bool, using default", "key", key, "value", valStr, "default", defaultValue)
		return defaultValue
	}
	return valBool
}

// getEnvAsDuration accepts Go durations ("72h") or a bare number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(valStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("Environment variable could not be parsed as duration, using default", "key", key, "value", valStr, "default", defaultValue)
	return defaultValue
}
