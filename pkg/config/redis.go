package config

// RedisConfig configures the ephemeral store (lockouts, token families,
// CSRF tokens, OAuth state nonces, session metadata, user cache).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}
