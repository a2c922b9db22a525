package config

import "time"

// ServerConfig configures the HTTP listener and process lifecycle.
type ServerConfig struct {
	Port            string
	APIVersion      string
	Env             string
	CORSOrigins     []string
	FrontendBaseURL string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	RateLimit       RateLimitConfig
}

// RateLimitConfig configures the fixed-window limiter guarding the public
// auth endpoints.
type RateLimitConfig struct {
	Window time.Duration
	Max    int
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:            getEnv("PORT", "8080"),
		APIVersion:      getEnv("API_VERSION", "v1"),
		Env:             getEnv("ENV", "development"),
		CORSOrigins:     getEnvStringSlice("CORS_ORIGINS", []string{"*"}),
		FrontendBaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimit: RateLimitConfig{
			Window: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			Max:    getEnvInt("RATE_LIMIT_MAX", 60),
		},
	}
}
