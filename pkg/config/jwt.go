package config

import "time"

// JWTConfig configures access/refresh token signing. Access and refresh
// tokens are signed with distinct secrets so that a leaked access secret
// cannot be used to forge long-lived refresh tokens.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func loadJWTConfig() JWTConfig {
	// JWT_ACCESS_SECRET is the canonical name; JWT_SECRET is accepted for
	// compatibility with deployments that predate the dual-secret split.
	accessSecret := getEnv("JWT_ACCESS_SECRET", getEnv("JWT_SECRET", "dev-access-secret-change-me"))

	return JWTConfig{
		AccessSecret:  accessSecret,
		RefreshSecret: getEnv("JWT_REFRESH_SECRET", "dev-refresh-secret-change-me"),
		Issuer:        getEnv("JWT_ISSUER", "meridian-auth"),
		Audience:      getEnv("JWT_AUDIENCE", "meridian-api"),
		AccessTTL:     getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
	}
}
