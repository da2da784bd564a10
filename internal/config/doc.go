// Package config provides centralized configuration management for credguard.
// It loads configuration from the environment and an optional YAML file, validates
// it, and exposes a typed Config to the rest of the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. YAML configuration file (config.yaml, configs/config.yaml, or CREDGUARD_CONFIG_FILE)
//  3. Default values from struct tags (lowest priority)
//
// # Environment Variables
//
// All environment variables are namespaced with CREDGUARD_ and follow the struct nesting:
//
//	CREDGUARD_SERVER_PORT=8080
//	CREDGUARD_VALIDATION_CACHE_TTL=5m
//	CREDGUARD_VALIDATION_PEER_NODES=http://node-a:8080,http://node-b:8080
//	CREDGUARD_VALIDATION_PROFILE_STORE=redis
//	CREDGUARD_REDIS_URL=redis://localhost:6379/0
//	CREDGUARD_TOKEN_SECRET=change-me
//	CREDGUARD_GEOIP_DB_PATH=/var/lib/GeoLite2-City.mmdb
//
// # Example
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return fmt.Errorf("failed to load configuration: %w", err)
//	}
//	cache := license.NewValidationCache(cfg.Validation.CacheTTL)
package config
