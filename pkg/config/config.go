package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/authz"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/middleware"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/observability"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Observability configuration
	Observability ObservabilityConfig

	// Authorization configuration
	Authz AuthzConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Per caller request limits; shared through Redis when Redis is in use
	RateLimitEnabled bool
	RateLimit        middleware.RateLimitConfig

	// Cron schedule for deleting expired API tokens; empty disables the job
	TokenCleanupSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       logrus.Level
	LogFormat      string
	MetricsEnabled bool
	Tracing        observability.TracingConfig
}

// AuthzConfig holds the authorization settings. Bootstrap grants and named
// policies come from the optional YAML file.
type AuthzConfig struct {
	RootID      string
	MaxParallel int

	// AllowAnonymous lets requests without a token reach the authorizer,
	// which then answers 401 instead of the authentication middleware.
	AllowAnonymous bool

	PolicyFile string
	Bootstrap  []BootstrapGrant
	Policies   map[string][]string

	// WatchPolicyFile reloads named policies when the policy file changes
	WatchPolicyFile bool
}

// BootstrapGrant is a right seeded at startup, typically root administration.
type BootstrapGrant struct {
	UserID     string `yaml:"user_id"`
	ResourceID string `yaml:"resource_id"`
	Type       string `yaml:"type"`
	Rights     string `yaml:"rights"`
}

// Resolve parses the grant's right type and permission. A blank resource id
// means the root resource.
func (g BootstrapGrant) Resolve(rootID string) (resourceID string, t rights.RightType, p rights.Permission, err error) {
	resourceID = g.ResourceID
	if resourceID == "" {
		resourceID = rootID
	}
	t, err = rights.ParseRightType(g.Type)
	if err != nil {
		return "", 0, 0, err
	}
	p, err = rights.ParsePermission(g.Rights)
	if err != nil {
		return "", 0, 0, err
	}
	return resourceID, t, p, nil
}

// fileConfig is the layout of the YAML overlay file.
type fileConfig struct {
	RootID    string              `yaml:"root_id"`
	Bootstrap []BootstrapGrant    `yaml:"bootstrap"`
	Policies  map[string][]string `yaml:"policies"`
}

// LoadConfig loads configuration from environment variables and the optional
// policy file named by TODO_API_POLICY_FILE.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
		Authz:         loadAuthzConfig(),
	}

	if cfg.Authz.PolicyFile != "" {
		if err := cfg.LoadPolicyFile(cfg.Authz.PolicyFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func readPolicyFile(path string) (fileConfig, error) {
	var file fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	return file, nil
}

// LoadPolicyFile merges the YAML file at path into the authorization config.
func (c *Config) LoadPolicyFile(path string) error {
	file, err := readPolicyFile(path)
	if err != nil {
		return err
	}

	if file.RootID != "" {
		c.Authz.RootID = file.RootID
	}
	c.Authz.Bootstrap = append(c.Authz.Bootstrap, file.Bootstrap...)
	if len(file.Policies) > 0 && c.Authz.Policies == nil {
		c.Authz.Policies = make(map[string][]string, len(file.Policies))
	}
	for name, reqs := range file.Policies {
		c.Authz.Policies[name] = reqs
	}
	return nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	limits := middleware.DefaultRateLimitConfig()
	limits.RequestsPerWindow = getEnvInt("TODO_API_RATE_LIMIT", limits.RequestsPerWindow)
	limits.BurstSize = getEnvInt("TODO_API_RATE_LIMIT_BURST", limits.BurstSize)
	limits.WindowDuration = getEnvDuration("TODO_API_RATE_LIMIT_WINDOW", limits.WindowDuration)

	return ServerConfig{
		Host:             getEnv("TODO_API_HOST", "0.0.0.0"),
		Port:             getEnv("TODO_API_PORT", "8080"),
		ReadTimeout:      getEnvDuration("TODO_API_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:     getEnvDuration("TODO_API_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:      getEnvDuration("TODO_API_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:  getEnvDuration("TODO_API_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:       getEnv("TODO_API_HEALTH_PORT", "9090"),
		RateLimitEnabled: getEnvBool("TODO_API_RATE_LIMIT_ENABLED", true),
		RateLimit:        limits,

		TokenCleanupSchedule: getEnv("TODO_API_TOKEN_CLEANUP_SCHEDULE", "@hourly"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("TODO_API_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = strings.ToLower(storageType)
	}
	if database := getEnv("TODO_API_DATABASE", ""); database != "" {
		cfg.Database = strings.ToLower(database)
	}
	if counter := getEnv("TODO_API_TAG_COUNTER", ""); counter != "" {
		cfg.TagCounter = strings.ToLower(counter)
	}

	// SQLite config
	if path := getEnv("TODO_API_SQLITE_PATH", ""); path != "" {
		cfg.SQLitePath = path
	}

	// PostgreSQL config
	if pgURL := getEnv("TODO_API_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("TODO_API_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("TODO_API_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("TODO_API_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config
	if redisURL := getEnv("TODO_API_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("TODO_API_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("TODO_API_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("TODO_API_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("TODO_API_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	if prefix := getEnv("TODO_API_REDIS_PREFIX", ""); prefix != "" {
		cfg.RedisPrefix = prefix
	}

	// Rights cache config
	cfg.CacheEnabled = getEnvBool("TODO_API_CACHE_ENABLED", cfg.CacheEnabled)
	cfg.CacheTTL = getEnvDuration("TODO_API_CACHE_TTL", cfg.CacheTTL)
	if size := getEnvInt("TODO_API_CACHE_SIZE", 0); size > 0 {
		cfg.CacheSize = size
	}

	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("TODO_API_LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("TODO_API_LOG_FORMAT", observability.FormatJSON)),
		MetricsEnabled: getEnvBool("TODO_API_METRICS_ENABLED", true),
		Tracing: observability.TracingConfig{
			Enabled:     getEnvBool("TODO_API_TRACING_ENABLED", false),
			Endpoint:    getEnv("TODO_API_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getEnvBool("TODO_API_OTLP_INSECURE", true),
			SampleRatio: getEnvFloat("TODO_API_TRACE_SAMPLE_RATIO", 1),
		},
	}
}

func loadAuthzConfig() AuthzConfig {
	return AuthzConfig{
		RootID:         getEnv("TODO_API_ROOT_ID", authz.DefaultRootID),
		MaxParallel:    getEnvInt("TODO_API_AUTHZ_MAX_PARALLEL", 4),
		AllowAnonymous: getEnvBool("TODO_API_ALLOW_ANONYMOUS", true),
		PolicyFile:      getEnv("TODO_API_POLICY_FILE", ""),
		WatchPolicyFile: getEnvBool("TODO_API_POLICY_WATCH", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	for _, port := range []string{c.Server.Port, c.Server.HealthPort} {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("invalid port: %s", port)
		}
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RateLimit.RequestsPerWindow < 1 || c.Server.RateLimit.BurstSize < 0 {
			return fmt.Errorf("rate limit must allow at least one request per window")
		}
		if c.Server.RateLimit.WindowDuration <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	if c.Server.TokenCleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Server.TokenCleanupSchedule); err != nil {
			return fmt.Errorf("invalid token cleanup schedule: %w", err)
		}
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case storage.TypeSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case storage.TypePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case storage.TypeRedis:
	default:
		return fmt.Errorf("invalid storage type: %s (must be sqlite, postgres, or redis)", c.Storage.Type)
	}

	switch c.Storage.SQLType() {
	case storage.TypeSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the token database")
		}
	case storage.TypePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for the token database")
		}
	default:
		return fmt.Errorf("invalid database: %s (must be sqlite or postgres)", c.Storage.SQLType())
	}

	switch c.Storage.TagCounter {
	case "sql", storage.TypeRedis:
	default:
		return fmt.Errorf("invalid tag counter: %s (must be sql or redis)", c.Storage.TagCounter)
	}

	if c.Storage.UsesRedis() && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required when redis is used")
	}

	if c.Storage.CacheEnabled {
		if c.Storage.CacheTTL <= 0 {
			return fmt.Errorf("cache TTL must be positive when the cache is enabled")
		}
		if c.Storage.CacheSize <= 0 {
			return fmt.Errorf("cache size must be positive when the cache is enabled")
		}
	}

	switch c.Observability.LogFormat {
	case observability.FormatJSON, observability.FormatText:
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}
	if tracing := c.Observability.Tracing; tracing.Enabled {
		if tracing.Endpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when tracing is enabled")
		}
		if tracing.SampleRatio < 0 || tracing.SampleRatio > 1 {
			return fmt.Errorf("trace sample ratio must be between 0 and 1")
		}
	}

	return c.validateAuthz()
}

func (c *Config) validateAuthz() error {
	if strings.TrimSpace(c.Authz.RootID) == "" {
		return fmt.Errorf("root id is required")
	}
	if c.Authz.MaxParallel < 1 {
		return fmt.Errorf("authz max parallel must be at least 1")
	}

	for i, grant := range c.Authz.Bootstrap {
		if strings.TrimSpace(grant.UserID) == "" {
			return fmt.Errorf("bootstrap grant %d: user_id is required", i)
		}
		if _, _, _, err := grant.Resolve(c.Authz.RootID); err != nil {
			return fmt.Errorf("bootstrap grant %d: %w", i, err)
		}
	}

	if _, err := authz.NewStaticPolicies(c.Authz.Policies); err != nil {
		return fmt.Errorf("invalid policies: %w", err)
	}
	return nil
}

// parseLogLevel parses a log level string, defaulting to info
func parseLogLevel(level string) logrus.Level {
	l, err := observability.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
