package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/triggerr/core/pkg/logger"
)

// ServerConfig controls the internal HTTP API.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port int    `json:"port" yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls persistence.
type DatabaseConfig struct {
	Driver          string `json:"driver" yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" yaml:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" yaml:"port" env:"DATABASE_PORT"`
	User            string `json:"user" yaml:"user" env:"DATABASE_USER"`
	Password        string `json:"password" yaml:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" yaml:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" yaml:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
	MigrationsPath  string `json:"migrations_path" yaml:"migrations_path" env:"DATABASE_MIGRATIONS_PATH"`
}

// ConnectionString builds a PostgreSQL connection string from host parameters.
func (c DatabaseConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// AggregationConfig bounds the fan-out pipeline shared by both aggregators and
// the data router.
type AggregationConfig struct {
	MaxSources                   int     `json:"max_sources" yaml:"max_sources" env:"AGG_MAX_SOURCES"`
	PerSourceTimeoutMs           int     `json:"per_source_timeout_ms" yaml:"per_source_timeout_ms" env:"AGG_PER_SOURCE_TIMEOUT_MS"`
	AggregatorTimeoutMs          int     `json:"aggregator_timeout_ms" yaml:"aggregator_timeout_ms" env:"AGG_AGGREGATOR_TIMEOUT_MS"`
	RouterTimeoutMs              int     `json:"router_timeout_ms" yaml:"router_timeout_ms" env:"AGG_ROUTER_TIMEOUT_MS"`
	CacheTTLFlightSeconds        int     `json:"cache_ttl_flight_seconds" yaml:"cache_ttl_flight_seconds" env:"AGG_CACHE_TTL_FLIGHT_SECONDS"`
	CacheTTLWeatherSeconds       int     `json:"cache_ttl_weather_seconds" yaml:"cache_ttl_weather_seconds" env:"AGG_CACHE_TTL_WEATHER_SECONDS"`
	MaxConcurrentWeatherRequests int     `json:"max_concurrent_weather_requests" yaml:"max_concurrent_weather_requests" env:"AGG_MAX_CONCURRENT_WEATHER"`
	MinAcceptableQualityScore    float64 `json:"min_acceptable_quality_score" yaml:"min_acceptable_quality_score" env:"AGG_MIN_QUALITY_SCORE"`
	CoordinateGridDecimals       int     `json:"coordinate_grid_decimals" yaml:"coordinate_grid_decimals" env:"AGG_COORDINATE_GRID_DECIMALS"`
	OutlierSigma                 float64 `json:"outlier_sigma" yaml:"outlier_sigma" env:"AGG_OUTLIER_SIGMA"`
	QualitySaturationSources     int     `json:"quality_saturation_sources" yaml:"quality_saturation_sources" env:"AGG_QUALITY_SATURATION_SOURCES"`
}

// PerSourceTimeout returns the per-source fetch deadline.
func (c AggregationConfig) PerSourceTimeout() time.Duration {
	return time.Duration(c.PerSourceTimeoutMs) * time.Millisecond
}

// AggregatorTimeout returns the deadline bounding one aggregation key.
func (c AggregationConfig) AggregatorTimeout() time.Duration {
	return time.Duration(c.AggregatorTimeoutMs) * time.Millisecond
}

// RouterTimeout returns the deadline bounding one policy-data bundle.
func (c AggregationConfig) RouterTimeout() time.Duration {
	return time.Duration(c.RouterTimeoutMs) * time.Millisecond
}

// FlightTTL returns the flight cache entry lifetime.
func (c AggregationConfig) FlightTTL() time.Duration {
	return time.Duration(c.CacheTTLFlightSeconds) * time.Second
}

// WeatherTTL returns the weather cache entry lifetime.
func (c AggregationConfig) WeatherTTL() time.Duration {
	return time.Duration(c.CacheTTLWeatherSeconds) * time.Second
}

// MonitorConfig controls the periodic policy scanner.
type MonitorConfig struct {
	Enabled                      bool   `json:"enabled" yaml:"enabled" env:"MONITOR_ENABLED"`
	IntervalMs                   int    `json:"interval_ms" yaml:"interval_ms" env:"MONITOR_INTERVAL_MS"`
	MaxPoliciesPerCheck          int    `json:"max_policies_per_check" yaml:"max_policies_per_check" env:"MONITOR_MAX_POLICIES_PER_CHECK"`
	DefaultDelayThresholdMinutes int    `json:"default_delay_threshold_minutes" yaml:"default_delay_threshold_minutes" env:"MONITOR_DEFAULT_DELAY_THRESHOLD_MINUTES"`
	RequestedBy                  string `json:"requested_by" yaml:"requested_by" env:"MONITOR_REQUESTED_BY"`
}

// Interval returns the scan cadence.
func (c MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// ProviderConfig holds one upstream provider's credentials and endpoint.
type ProviderConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// ProvidersConfig enumerates upstream data providers.
type ProvidersConfig struct {
	UseRealProviders bool           `json:"use_real_providers" yaml:"use_real_providers" env:"PROVIDERS_USE_REAL"`
	FlightAware      ProviderConfig `json:"flightaware" yaml:"flightaware"`
	AviationStack    ProviderConfig `json:"aviationstack" yaml:"aviationstack"`
	OpenSky          ProviderConfig `json:"opensky" yaml:"opensky"`
	GoogleWeather    ProviderConfig `json:"google_weather" yaml:"google_weather"`
	OpenWeather      ProviderConfig `json:"openweather" yaml:"openweather"`
}

// ChainConfig holds one blockchain endpoint.
type ChainConfig struct {
	RPCURL    string `json:"rpc_url" yaml:"rpc_url"`
	NetworkID uint32 `json:"network_id" yaml:"network_id"`
	TimeoutMs int    `json:"timeout_ms" yaml:"timeout_ms"`
}

// ChainsConfig selects and configures blockchain providers. Provider tags form
// a closed set; unknown tags fall back to Primary.
type ChainsConfig struct {
	Primary string                 `json:"primary" yaml:"primary" env:"CHAIN_PRIMARY"`
	Clients map[string]ChainConfig `json:"clients" yaml:"clients"`
}

// SecurityConfig controls encryption and internal API authentication.
type SecurityConfig struct {
	SecretEncryptionKey string `json:"secret_encryption_key" yaml:"secret_encryption_key" env:"SECRET_ENCRYPTION_KEY"`
	InternalAPIKey      string `json:"internal_api_key" yaml:"internal_api_key" env:"INTERNAL_API_KEY"`
}

// CacheConfig selects the aggregator cache backend.
type CacheConfig struct {
	Backend       string `json:"backend" yaml:"backend" env:"CACHE_BACKEND"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" env:"CACHE_REDIS_ADDR"`
	RedisPassword string `json:"redis_password" yaml:"redis_password" env:"CACHE_REDIS_PASSWORD"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" env:"CACHE_REDIS_DB"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	Database    DatabaseConfig    `json:"database" yaml:"database"`
	Logging     logger.Config     `json:"logging" yaml:"logging"`
	Aggregation AggregationConfig `json:"aggregation" yaml:"aggregation"`
	Monitor     MonitorConfig     `json:"monitor" yaml:"monitor"`
	Providers   ProvidersConfig   `json:"providers" yaml:"providers"`
	Chains      ChainsConfig      `json:"chains" yaml:"chains"`
	Security    SecurityConfig    `json:"security" yaml:"security"`
	Cache       CacheConfig       `json:"cache" yaml:"cache"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
			MigrationsPath:  "migrations",
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "triggerr",
		},
		Aggregation: AggregationConfig{
			MaxSources:                   3,
			PerSourceTimeoutMs:           30000,
			AggregatorTimeoutMs:          30000,
			RouterTimeoutMs:              45000,
			CacheTTLFlightSeconds:        300,
			CacheTTLWeatherSeconds:       900,
			MaxConcurrentWeatherRequests: 3,
			MinAcceptableQualityScore:    0.3,
			CoordinateGridDecimals:       4,
			OutlierSigma:                 2.0,
			QualitySaturationSources:     3,
		},
		Monitor: MonitorConfig{
			Enabled:                      true,
			IntervalMs:                   300000,
			MaxPoliciesPerCheck:          50,
			DefaultDelayThresholdMinutes: 15,
			RequestedBy:                  "policy-monitor",
		},
		Providers: ProvidersConfig{},
		Chains: ChainsConfig{
			Primary: "PAYGO",
			Clients: map[string]ChainConfig{},
		},
		Security: SecurityConfig{},
		Cache: CacheConfig{
			Backend: "memory",
		},
	}
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when no tagged fields are present in the
		// environment; treat that case as "no overrides".
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	cfg.normalize()
	return cfg, cfg.Validate()
}

// LoadFile reads configuration from a YAML file, skipping the environment.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, cfg.Validate()
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Chains.Primary = strings.ToUpper(strings.TrimSpace(c.Chains.Primary))
	if c.Chains.Primary == "" {
		c.Chains.Primary = "PAYGO"
	}
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
}

// Validate rejects bounds the pipeline cannot run with. Invalid provider
// credentials are not fatal here; the affected adapter is skipped at startup.
func (c *Config) Validate() error {
	if c.Aggregation.MaxSources < 1 {
		return fmt.Errorf("aggregation.max_sources must be at least 1")
	}
	if c.Aggregation.PerSourceTimeoutMs <= 0 || c.Aggregation.RouterTimeoutMs <= 0 || c.Aggregation.AggregatorTimeoutMs <= 0 {
		return fmt.Errorf("aggregation timeouts must be positive")
	}
	if c.Aggregation.MaxConcurrentWeatherRequests < 1 {
		return fmt.Errorf("aggregation.max_concurrent_weather_requests must be at least 1")
	}
	if c.Aggregation.MinAcceptableQualityScore < 0 || c.Aggregation.MinAcceptableQualityScore > 1 {
		return fmt.Errorf("aggregation.min_acceptable_quality_score must be within [0,1]")
	}
	if c.Monitor.MaxPoliciesPerCheck < 1 {
		return fmt.Errorf("monitor.max_policies_per_check must be at least 1")
	}
	if c.Monitor.IntervalMs <= 0 {
		return fmt.Errorf("monitor.interval_ms must be positive")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	return nil
}
