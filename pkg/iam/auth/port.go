package auth

import (
	"context"
	"time"

	"github.com/meridianid/authd/pkg/iam"
	"github.com/meridianid/authd/pkg/kernel"
)

// ============================================================================
// Durable repositories (Postgres)
// ============================================================================

// UserRepository is the durable contract for the User entity.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id kernel.UserID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id kernel.UserID, passwordHash string) error
	UpdateEmailVerified(ctx context.Context, id kernel.UserID, verified bool) error
	Delete(ctx context.Context, id kernel.UserID) error
}

// UserProfileRepository is the durable contract for mutable profile data.
type UserProfileRepository interface {
	Upsert(ctx context.Context, p *UserProfile) error
	FindByUserID(ctx context.Context, userID kernel.UserID) (*UserProfile, error)
}

// SessionRepository is the durable contract for the Session entity. Exactly
// one row exists per outstanding refresh token.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	FindByToken(ctx context.Context, token string) (*Session, error)
	FindByID(ctx context.Context, id string) (*Session, error)
	FindByUserID(ctx context.Context, userID kernel.UserID) ([]*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID kernel.UserID) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// OAuthAccountRepository is the durable contract for provider links.
type OAuthAccountRepository interface {
	Create(ctx context.Context, a *OAuthAccount) error
	FindByProviderID(ctx context.Context, provider iam.OAuthProvider, providerID string) (*OAuthAccount, error)
	FindByUserID(ctx context.Context, userID kernel.UserID) ([]*OAuthAccount, error)
	Delete(ctx context.Context, id string) error
}

// EmailVerificationRepository is the durable contract for verification
// tokens. Rows are never swept; consumed tokens remain for audit.
type EmailVerificationRepository interface {
	Create(ctx context.Context, v *EmailVerification) error
	FindByToken(ctx context.Context, token string) (*EmailVerification, error)
	MarkVerified(ctx context.Context, id string) error
}

// PasswordResetRepository is the durable contract for reset tokens.
type PasswordResetRepository interface {
	Create(ctx context.Context, r *PasswordReset) error
	FindByToken(ctx context.Context, token string) (*PasswordReset, error)
	MarkUsed(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ============================================================================
// Ephemeral store (Redis)
// ============================================================================

// EphemeralStore is the generic key/value contract backing every
// cache/session/lockout/CSRF/OAuth-state concern. All operations are
// best-effort: a failure here must never break the correctness of a
// durable-store operation, only its performance or UX.
type EphemeralStore interface {
	Ping(ctx context.Context) error

	GetLoginAttempts(ctx context.Context, email string) (*LoginAttempts, error)
	SetLoginAttempts(ctx context.Context, email string, attempts LoginAttempts, ttl time.Duration) error
	DeleteLoginAttempts(ctx context.Context, email string) error

	// IncrLoginAttempts atomically increments the failed-login counter for
	// email and returns the post-increment count, arming ttl on the key's
	// first increment only. Concurrent failed logins for the same email
	// must never lose an increment, so this is a server-side INCR rather
	// than a client-side read-modify-write.
	IncrLoginAttempts(ctx context.Context, email string, ttl time.Duration) (int, error)

	GetTokenFamilyHead(ctx context.Context, familyID string) (*TokenFamilyHead, error)
	SetTokenFamilyHead(ctx context.Context, familyID string, head TokenFamilyHead, ttl time.Duration) error
	DeleteTokenFamilyHead(ctx context.Context, familyID string) error

	GetSessionMeta(ctx context.Context, sessionID string) (*SessionMeta, error)
	SetSessionMeta(ctx context.Context, sessionID string, meta SessionMeta, ttl time.Duration) error
	DeleteSessionMeta(ctx context.Context, sessionID string) error

	SetCSRFToken(ctx context.Context, token string, ttl time.Duration) error
	ExistsCSRFToken(ctx context.Context, token string) (bool, error)
	DeleteCSRFToken(ctx context.Context, token string) error

	SetOAuthState(ctx context.Context, nonce string, provider iam.OAuthProvider, ttl time.Duration) error
	GetOAuthState(ctx context.Context, nonce string) (iam.OAuthProvider, bool, error)
	DeleteOAuthState(ctx context.Context, nonce string) error

	GetUser(ctx context.Context, userID kernel.UserID) (*User, error)
	SetUser(ctx context.Context, user *User, ttl time.Duration) error
	DeleteUser(ctx context.Context, userID kernel.UserID) error

	// ListTokenFamilyIDs enumerates every live token_family key, used by the
	// sweeper to find heads whose Session row is already gone.
	ListTokenFamilyIDs(ctx context.Context) ([]string, error)

	// ScanDeleteTokenFamilies removes the token_family keys for the given
	// ids, used by the sweeper to clear orphaned heads.
	ScanDeleteTokenFamilies(ctx context.Context, familyIDs []string) error
}

// ============================================================================
// Token service
// ============================================================================

// TokenService is the contract for access/refresh JWT issuance and
// validation.
type TokenService interface {
	IssueAccess(userID kernel.UserID, email string, role kernel.Role, familyID, sessionID string) (string, error)
	IssueRefresh(userID kernel.UserID, email string, role kernel.Role, familyID, sessionID string) (string, error)
	ValidateAccessToken(token string) (*TokenClaims, error)
	ValidateRefreshToken(token string) (*TokenClaims, error)
}

// ============================================================================
// Audit / security event emission
// ============================================================================

// AuditEvent enumerates every security-relevant occurrence the audit
// service must be able to record.
type AuditEvent string

const (
	EventLoginSuccess          AuditEvent = "LOGIN_SUCCESS"
	EventLoginFailed           AuditEvent = "LOGIN_FAILED"
	EventRegisterSuccess       AuditEvent = "REGISTER_SUCCESS"
	EventAccountLocked         AuditEvent = "ACCOUNT_LOCKED"
	EventAccountUnlocked       AuditEvent = "ACCOUNT_UNLOCKED"
	EventTokenRefreshSuccess   AuditEvent = "TOKEN_REFRESH_SUCCESS"
	EventTokenRefreshFailed    AuditEvent = "TOKEN_REFRESH_FAILED"
	EventTokenReuseDetected    AuditEvent = "TOKEN_REUSE_DETECTED"
	EventPasswordResetRequest  AuditEvent = "PASSWORD_RESET_REQUESTED"
	EventPasswordResetSuccess  AuditEvent = "PASSWORD_RESET_SUCCESS"
	EventPasswordChanged       AuditEvent = "PASSWORD_CHANGED"
	EventOAuthLoginSuccess     AuditEvent = "OAUTH_LOGIN_SUCCESS"
	EventOAuthLoginFailed      AuditEvent = "OAUTH_LOGIN_FAILED"
	EventSessionCreated        AuditEvent = "SESSION_CREATED"
	EventSessionRevoked        AuditEvent = "SESSION_REVOKED"
	EventEmailVerificationSent AuditEvent = "EMAIL_VERIFICATION_SENT"
	EventEmailVerified         AuditEvent = "EMAIL_VERIFIED"
)

// AuditService is the contract for recording security-relevant events.
// Implementations must never block or fail the calling operation.
type AuditService interface {
	Emit(ctx context.Context, event AuditEvent, userID kernel.UserID, details map[string]any)
}

// ============================================================================
// Mailer
// ============================================================================

// Mailer dispatches the user-facing emails the credential engine triggers.
// A failure to dispatch must never fail the triggering operation; callers
// are expected to decouple delivery via a background queue.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// ============================================================================
// OAuth provider
// ============================================================================

// OAuthUserInfo is the provider-agnostic profile returned after exchanging
// an authorization code.
type OAuthUserInfo struct {
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string
}

// OAuthProviderClient abstracts one OAuth2 identity provider's
// authorization-code flow.
type OAuthProviderClient interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code string) (*OAuthUserInfo, error)
}
