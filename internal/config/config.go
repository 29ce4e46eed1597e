package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	AI            AIConfig
	Query         QueryConfig
	Heuristic     HeuristicConfig
	History       HistoryConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
	CORSOrigins    []string
}

type AIConfig struct {
	TranslateEnabled bool
	Provider         string
	BaseURL          string
	APIKey           string
	Model            string
	Temperature      float64
	Timeout          time.Duration
}

type QueryConfig struct {
	Engine    string
	TableName string
	TempDir   string
	RowLimit  int
	Timeout   time.Duration
}

type HeuristicConfig struct {
	CoercionThreshold float64
	FuzzyCutoff       float64
	SampleRows        int
	DefaultLimit      int
	TopLimit          int
	FallbackLimit     int
}

type HistoryConfig struct {
	DSN               string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxIdleTime   time.Duration
	ConnMaxLifetime   time.Duration
	Retention         time.Duration
	RetentionInterval time.Duration
}

func (h HistoryConfig) Enabled() bool {
	return strings.TrimSpace(h.DSN) != ""
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

// Load reads configuration from lookup. When TABSQL_CONFIG_FILE names a YAML
// file its values sit beneath the environment: env always wins.
func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}
	if path, ok := lookup("TABSQL_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		fileLookup, err := LoadFile(strings.TrimSpace(path))
		if err != nil {
			return Config{}, err
		}
		lookup = chain(lookup, fileLookup)
	}

	profile := ProfileDev
	if raw, ok := lookup("TABSQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid TABSQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "TABSQL_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "TABSQL_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "TABSQL_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "TABSQL_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "TABSQL_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyInt64(lookup, "TABSQL_HTTP_MAX_UPLOAD_BYTES", &cfg.HTTP.MaxUploadBytes) },
		func() error { return applyList(lookup, "TABSQL_HTTP_CORS_ORIGINS", &cfg.HTTP.CORSOrigins) },
		func() error { return applyBool(lookup, "TABSQL_AI_TRANSLATE_ENABLED", &cfg.AI.TranslateEnabled) },
		func() error { return applyString(lookup, "TABSQL_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "TABSQL_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "TABSQL_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "TABSQL_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "TABSQL_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "TABSQL_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyString(lookup, "TABSQL_QUERY_ENGINE", &cfg.Query.Engine) },
		func() error { return applyString(lookup, "TABSQL_QUERY_TABLE_NAME", &cfg.Query.TableName) },
		func() error { return applyString(lookup, "TABSQL_QUERY_TEMP_DIR", &cfg.Query.TempDir) },
		func() error { return applyInt(lookup, "TABSQL_QUERY_ROW_LIMIT", &cfg.Query.RowLimit) },
		func() error { return applyDuration(lookup, "TABSQL_QUERY_TIMEOUT", &cfg.Query.Timeout) },
		func() error {
			return applyFloat(lookup, "TABSQL_HEURISTIC_COERCION_THRESHOLD", &cfg.Heuristic.CoercionThreshold)
		},
		func() error { return applyFloat(lookup, "TABSQL_HEURISTIC_FUZZY_CUTOFF", &cfg.Heuristic.FuzzyCutoff) },
		func() error { return applyInt(lookup, "TABSQL_HEURISTIC_SAMPLE_ROWS", &cfg.Heuristic.SampleRows) },
		func() error { return applyInt(lookup, "TABSQL_HEURISTIC_DEFAULT_LIMIT", &cfg.Heuristic.DefaultLimit) },
		func() error { return applyInt(lookup, "TABSQL_HEURISTIC_TOP_LIMIT", &cfg.Heuristic.TopLimit) },
		func() error { return applyInt(lookup, "TABSQL_HEURISTIC_FALLBACK_LIMIT", &cfg.Heuristic.FallbackLimit) },
		func() error { return applyString(lookup, "TABSQL_HISTORY_DSN", &cfg.History.DSN) },
		func() error { return applyInt(lookup, "TABSQL_HISTORY_MAX_OPEN_CONNS", &cfg.History.MaxOpenConns) },
		func() error { return applyInt(lookup, "TABSQL_HISTORY_MAX_IDLE_CONNS", &cfg.History.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "TABSQL_HISTORY_CONN_MAX_IDLE_TIME", &cfg.History.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "TABSQL_HISTORY_CONN_MAX_LIFETIME", &cfg.History.ConnMaxLifetime)
		},
		func() error { return applyDuration(lookup, "TABSQL_HISTORY_RETENTION", &cfg.History.Retention) },
		func() error {
			return applyDuration(lookup, "TABSQL_HISTORY_RETENTION_INTERVAL", &cfg.History.RetentionInterval)
		},
		func() error { return applyBool(lookup, "TABSQL_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled) },
		func() error { return applyString(lookup, "TABSQL_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "TABSQL_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "TABSQL_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error {
			return applyString(lookup, "TABSQL_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
		},
		func() error {
			return applyString(lookup, "TABSQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "TABSQL_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "TABSQL_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "TABSQL_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "TABSQL_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "TABSQL_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "TABSQL_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "TABSQL_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	cfg.Query.Engine = strings.ToLower(cfg.Query.Engine)
	if cfg.AI.Provider == "gemini" && cfg.AI.APIKey == "" {
		// Older deployments only set GEMINI_API_KEY.
		if err := applyString(lookup, "GEMINI_API_KEY", &cfg.AI.APIKey); err != nil {
			return Config{}, err
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	if cfg.HTTP.MaxUploadBytes <= 0 {
		return fmt.Errorf("TABSQL_HTTP_MAX_UPLOAD_BYTES must be positive")
	}
	switch cfg.AI.Provider {
	case "none", "openai", "gemini", "anthropic":
	default:
		return fmt.Errorf("invalid TABSQL_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	switch cfg.Query.Engine {
	case "sqlite", "duckdb":
	default:
		return fmt.Errorf("invalid TABSQL_QUERY_ENGINE: %q", cfg.Query.Engine)
	}
	if cfg.Heuristic.CoercionThreshold <= 0 || cfg.Heuristic.CoercionThreshold >= 1 {
		return fmt.Errorf("TABSQL_HEURISTIC_COERCION_THRESHOLD must be between 0 and 1")
	}
	if cfg.Heuristic.FuzzyCutoff <= 0 || cfg.Heuristic.FuzzyCutoff > 1 {
		return fmt.Errorf("TABSQL_HEURISTIC_FUZZY_CUTOFF must be in (0, 1]")
	}
	if cfg.Heuristic.SampleRows <= 0 {
		return fmt.Errorf("TABSQL_HEURISTIC_SAMPLE_ROWS must be positive")
	}
	if cfg.Heuristic.DefaultLimit <= 0 || cfg.Heuristic.TopLimit <= 0 || cfg.Heuristic.FallbackLimit <= 0 {
		return fmt.Errorf("TABSQL_HEURISTIC_*_LIMIT values must be positive")
	}
	if cfg.ObjectStore.Enabled && (cfg.ObjectStore.Endpoint == "" || cfg.ObjectStore.Bucket == "") {
		return fmt.Errorf("object store endpoint and bucket are required when enabled")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "tabsql-api"},
		HTTP: HTTPConfig{
			Address:        ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxUploadBytes: 32 << 20,
			CORSOrigins:    []string{"*"},
		},
		AI: AIConfig{
			TranslateEnabled: true,
			Provider:         "gemini",
			Temperature:      0.1,
			Timeout:          15 * time.Second,
		},
		Query: QueryConfig{
			Engine:    "sqlite",
			TableName: "df",
			RowLimit:  10000,
			Timeout:   30 * time.Second,
		},
		Heuristic: HeuristicConfig{
			CoercionThreshold: 0.7,
			FuzzyCutoff:       0.6,
			SampleRows:        3,
			DefaultLimit:      25,
			TopLimit:          10,
			FallbackLimit:     20,
		},
		History: HistoryConfig{
			MaxOpenConns:      10,
			MaxIdleConns:      10,
			ConnMaxIdleTime:   5 * time.Minute,
			ConnMaxLifetime:   30 * time.Minute,
			Retention:         30 * 24 * time.Hour,
			RetentionInterval: 10 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "tabsql",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			Prefix:           "exports",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.AI.Provider = "none"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.HTTP.CORSOrigins = nil
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func chain(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, lookup := range lookups {
			if value, ok := lookup(key); ok {
				return value, true
			}
		}
		return "", false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
