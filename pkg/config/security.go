package config

import "time"

// SecurityConfig gathers the numeric constants that govern lockout, CSRF
// and ephemeral-cache lifetimes. Kept separate from JWTConfig because these
// values are domain policy, not token mechanics.
type SecurityConfig struct {
	MaxLoginAttempts   int
	LockoutDuration    time.Duration
	LoginAttemptTTL    time.Duration
	TokenFamilyTTL     time.Duration
	SessionMetaTTL     time.Duration
	SessionTTL         time.Duration
	CSRFTokenTTL       time.Duration
	OAuthStateTTL      time.Duration
	UserCacheTTL       time.Duration
	PasswordResetTTL   time.Duration
	EmailVerifyWindow  time.Duration
	BcryptCost         int
	SweepInterval      time.Duration
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxLoginAttempts:  getEnvInt("SECURITY_MAX_LOGIN_ATTEMPTS", 5),
		LockoutDuration:   getEnvDuration("SECURITY_LOCKOUT_DURATION", 30*time.Minute),
		LoginAttemptTTL:   getEnvDuration("SECURITY_LOGIN_ATTEMPT_TTL", time.Hour),
		TokenFamilyTTL:    getEnvDuration("SECURITY_TOKEN_FAMILY_TTL", 7*24*time.Hour),
		SessionMetaTTL:    getEnvDuration("SECURITY_SESSION_META_TTL", 7*24*time.Hour),
		SessionTTL:        getEnvDuration("SECURITY_SESSION_TTL", 7*24*time.Hour),
		CSRFTokenTTL:      getEnvDuration("SECURITY_CSRF_TOKEN_TTL", 24*time.Hour),
		OAuthStateTTL:     getEnvDuration("SECURITY_OAUTH_STATE_TTL", 10*time.Minute),
		UserCacheTTL:      getEnvDuration("SECURITY_USER_CACHE_TTL", time.Hour),
		PasswordResetTTL:  getEnvDuration("SECURITY_PASSWORD_RESET_TTL", time.Hour),
		EmailVerifyWindow: getEnvDuration("SECURITY_EMAIL_VERIFY_WINDOW", 24*time.Hour),
		BcryptCost:        getEnvInt("SECURITY_BCRYPT_COST", 12),
		SweepInterval:     getEnvDuration("SECURITY_SWEEP_INTERVAL", time.Hour),
	}
}
