package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "CREDGUARD"

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Security   SecurityConfig   `yaml:"security" envconfig:"SECURITY"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	WebSocket  WebSocketConfig  `yaml:"websocket" envconfig:"WEBSOCKET"`
	Validation ValidationConfig `yaml:"validation" envconfig:"VALIDATION"`
	Token      TokenConfig      `yaml:"token" envconfig:"TOKEN"`
	Redis      RedisConfig      `yaml:"redis" envconfig:"REDIS"`
	GeoIP      GeoIPConfig      `yaml:"geoip" envconfig:"GEOIP"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	AdminToken     string          `yaml:"admin_token" envconfig:"ADMIN_TOKEN"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/credguard.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// ValidationConfig tunes the validation engine
type ValidationConfig struct {
	CacheTTL           time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"5m"`
	Deadline           time.Duration `yaml:"deadline" envconfig:"DEADLINE" default:"10s"`
	PeerNodes          []string      `yaml:"peer_nodes" envconfig:"PEER_NODES"`
	PeerTimeout        time.Duration `yaml:"peer_timeout" envconfig:"PEER_TIMEOUT" default:"5s"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout" envconfig:"BREAKER_TIMEOUT" default:"30s"`
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures" envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	AuditCapacity      int           `yaml:"audit_capacity" envconfig:"AUDIT_CAPACITY" default:"1000"`
	MaxUsagePatterns   int           `yaml:"max_usage_patterns" envconfig:"MAX_USAGE_PATTERNS" default:"100"`
	MaxGeoDistanceKm   float64       `yaml:"max_geo_distance_km" envconfig:"MAX_GEO_DISTANCE_KM" default:"1000"`
	MinFingerprintSim  float64       `yaml:"min_fingerprint_similarity" envconfig:"MIN_FINGERPRINT_SIMILARITY" default:"0.8"`
	FingerprintSim     string        `yaml:"fingerprint_similarity" envconfig:"FINGERPRINT_SIMILARITY" default:"exact"`
	EnableBlockchain   bool          `yaml:"enable_blockchain" envconfig:"ENABLE_BLOCKCHAIN" default:"false"`
	PurgeCacheOnRevoke bool          `yaml:"purge_cache_on_revoke" envconfig:"PURGE_CACHE_ON_REVOKE" default:"false"`
	FleetScanInterval  time.Duration `yaml:"fleet_scan_interval" envconfig:"FLEET_SCAN_INTERVAL" default:"1m"`
	ProfileStore       string        `yaml:"profile_store" envconfig:"PROFILE_STORE" default:"memory"`
}

// TokenConfig configures the signed credential verifier
type TokenConfig struct {
	Secret string `yaml:"secret" envconfig:"SECRET"`
	Issuer string `yaml:"issuer" envconfig:"ISSUER" default:"credguard"`
}

// RedisConfig contains Redis connection settings for the durable profile store
type RedisConfig struct {
	URL          string        `yaml:"url" envconfig:"URL"`
	KeyPrefix    string        `yaml:"key_prefix" envconfig:"KEY_PREFIX" default:"credguard:profile:"`
	PoolSize     int           `yaml:"pool_size" envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" envconfig:"MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `yaml:"dial_timeout" envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"3s"`
}

// GeoIPConfig points at a MaxMind City database. Empty DBPath disables geo resolution.
type GeoIPConfig struct {
	DBPath string `yaml:"db_path" envconfig:"DB_PATH"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs overlays file values onto env config for fields the environment did not set.
// envconfig always fills defaults, so only explicitly file-only settings are taken from the file.
func mergeConfigs(fileConfig, envConfig Config) Config {
	if fileConfig.Server.Port != 0 && os.Getenv(EnvPrefix+"_SERVER_PORT") == "" {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if fileConfig.Logging.Level != "" && os.Getenv(EnvPrefix+"_LOGGING_LEVEL") == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if fileConfig.Logging.Output != "" && os.Getenv(EnvPrefix+"_LOGGING_OUTPUT") == "" {
		envConfig.Logging.Output = fileConfig.Logging.Output
	}
	if len(fileConfig.Validation.PeerNodes) > 0 && len(envConfig.Validation.PeerNodes) == 0 {
		envConfig.Validation.PeerNodes = fileConfig.Validation.PeerNodes
	}
	if fileConfig.Validation.CacheTTL > 0 && os.Getenv(EnvPrefix+"_VALIDATION_CACHE_TTL") == "" {
		envConfig.Validation.CacheTTL = fileConfig.Validation.CacheTTL
	}
	if fileConfig.Validation.ProfileStore != "" && os.Getenv(EnvPrefix+"_VALIDATION_PROFILE_STORE") == "" {
		envConfig.Validation.ProfileStore = fileConfig.Validation.ProfileStore
	}
	if fileConfig.Token.Secret != "" && envConfig.Token.Secret == "" {
		envConfig.Token.Secret = fileConfig.Token.Secret
	}
	if fileConfig.Redis.URL != "" && envConfig.Redis.URL == "" {
		envConfig.Redis.URL = fileConfig.Redis.URL
	}
	if fileConfig.GeoIP.DBPath != "" && envConfig.GeoIP.DBPath == "" {
		envConfig.GeoIP.DBPath = fileConfig.GeoIP.DBPath
	}
	if fileConfig.Security.AdminToken != "" && envConfig.Security.AdminToken == "" {
		envConfig.Security.AdminToken = fileConfig.Security.AdminToken
	}

	return envConfig
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Validation.CacheTTL <= 0 {
		return fmt.Errorf("validation cache ttl must be positive")
	}

	if c.Validation.Deadline <= 0 {
		return fmt.Errorf("validation deadline must be positive")
	}

	if c.Validation.PeerTimeout <= 0 {
		return fmt.Errorf("peer timeout must be positive")
	}

	if c.Validation.AuditCapacity <= 0 {
		return fmt.Errorf("audit capacity must be positive")
	}

	if c.Validation.MaxUsagePatterns <= 0 {
		return fmt.Errorf("max usage patterns must be positive")
	}

	switch c.Validation.FingerprintSim {
	case SimilarityExact, SimilarityJaccard:
	default:
		return fmt.Errorf("unsupported fingerprint similarity: %s", c.Validation.FingerprintSim)
	}

	switch c.Validation.ProfileStore {
	case ProfileStoreMemory:
	case ProfileStoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis url is required when profile store is redis")
		}
	default:
		return fmt.Errorf("unsupported profile store: %s", c.Validation.ProfileStore)
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG_FILE"); explicit != "" {
		return explicit
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/credguard.log",
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Validation: ValidationConfig{
			CacheTTL:           ValidationCacheDuration,
			Deadline:           ValidationDeadline,
			PeerTimeout:        PeerQueryTimeout,
			BreakerTimeout:     30 * time.Second,
			BreakerMaxFailures: 5,
			AuditCapacity:      AuditHistoryCapacity,
			MaxUsagePatterns:   UsagePatternCapacity,
			MaxGeoDistanceKm:   MaxTravelDistanceKm,
			MinFingerprintSim:  MinFingerprintSimilarity,
			FingerprintSim:     SimilarityExact,
			FleetScanInterval:  FleetScanInterval,
			ProfileStore:       ProfileStoreMemory,
		},
		Token: TokenConfig{
			Issuer: "credguard",
		},
		Redis: RedisConfig{
			KeyPrefix:    "credguard:profile:",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}
