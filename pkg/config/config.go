package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration object assembled from the process
// environment at startup. Each bounded context gets its own sub-struct so
// components only depend on the slice they actually read.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	OAuth    OAuthConfig
	Security SecurityConfig
	Jobx     JobxConfig
	Notifx   NotifxConfig
}

// Load reads Config from the environment. It never fails: every field has a
// sane development default, matching the teacher convention of fail-open
// config with explicit production overrides.
func Load() Config {
	return Config{
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		Redis:    loadRedisConfig(),
		JWT:      loadJWTConfig(),
		OAuth:    loadOAuthConfig(),
		Security: loadSecurityConfig(),
		Jobx:     loadJobxConfig(),
		Notifx:   loadNotifxConfig(),
	}
}

// ============================================================================
// env helpers
// ============================================================================

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvStringSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
