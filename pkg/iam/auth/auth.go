package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam"
	"github.com/meridianid/authd/pkg/kernel"
)

// ============================================================================
// Domain Types
// ============================================================================

// User is the durable identity record. PasswordHash is empty for accounts
// that were created exclusively through an OAuth provider. UserName is
// optional but, when set, unique.
type User struct {
	ID            kernel.UserID `db:"id" json:"id"`
	Email         string        `db:"email" json:"email"`
	PasswordHash  string        `db:"password_hash" json:"-"`
	FirstName     string        `db:"first_name" json:"firstName"`
	LastName      string        `db:"last_name" json:"lastName"`
	UserName      *string       `db:"user_name" json:"userName,omitempty"`
	Role          kernel.Role   `db:"role" json:"role"`
	EmailVerified bool          `db:"email_verified" json:"email_verified"`
	IsActive      bool          `db:"is_active" json:"isActive"`
	IsSuspended   bool          `db:"is_suspended" json:"isSuspended"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// HasPassword reports whether the account can authenticate via credentials.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// UserProfile carries optional, mutable display attributes separate from
// the identity row so that profile writes never touch auth-critical fields.
type UserProfile struct {
	UserID      kernel.UserID `db:"user_id" json:"user_id"`
	DisplayName string        `db:"display_name" json:"display_name"`
	AvatarURL   string        `db:"avatar_url" json:"avatar_url"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// Session is the durable row backing exactly one outstanding refresh token.
type Session struct {
	ID        string        `db:"id" json:"id"`
	UserID    kernel.UserID `db:"user_id" json:"user_id"`
	Token     string        `db:"token" json:"-"`
	ExpiresAt time.Time     `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the session's refresh token has passed its
// durable expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionMeta is the ephemeral, best-effort transport metadata attached to
// a session for inventory display. It never gates authorization decisions.
type SessionMeta struct {
	IP          string    `json:"ip"`
	UserAgent   string    `json:"userAgent"`
	LastUsedAt  time.Time `json:"lastUsedAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
	LoginMethod string    `json:"loginMethod"`
}

// TokenFamilyHead is the ephemeral pointer recording the current refresh
// token for a family. A mismatch between a presented token and the head
// indicates reuse of a rotated-out token.
type TokenFamilyHead struct {
	CurrentToken string        `json:"currentToken"`
	UserID       kernel.UserID `json:"userId"`
}

// OAuthAccount links a durable User to a third-party identity provider.
type OAuthAccount struct {
	ID           string            `db:"id" json:"id"`
	UserID       kernel.UserID     `db:"user_id" json:"user_id"`
	Provider     iam.OAuthProvider `db:"provider" json:"provider"`
	ProviderID   string            `db:"provider_id" json:"provider_id"`
	AccessToken  string            `db:"access_token" json:"-"`
	RefreshToken string            `db:"refresh_token" json:"-"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
}

// EmailVerifyWindow is how long an EmailVerification token stays live,
// measured from CreatedAt.
const EmailVerifyWindow = 24 * time.Hour

// EmailVerification is a single-use token mailed to a user to confirm
// ownership of their address. Expiry is computed from CreatedAt at check
// time rather than stored, so consumed rows remain for audit.
type EmailVerification struct {
	ID         string        `db:"id" json:"id"`
	UserID     kernel.UserID `db:"user_id" json:"user_id"`
	Token      string        `db:"token" json:"-"`
	Verified   bool          `db:"verified" json:"verified"`
	VerifiedAt *time.Time    `db:"verified_at" json:"verified_at"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the verification token is past its window.
func (e *EmailVerification) IsExpired() bool {
	return time.Since(e.CreatedAt) > EmailVerifyWindow
}

// PasswordReset is a single-use, time-boxed token mailed to a user who
// requested a password reset.
type PasswordReset struct {
	ID        string        `db:"id" json:"id"`
	UserID    kernel.UserID `db:"user_id" json:"user_id"`
	Token     string        `db:"token" json:"-"`
	ExpiresAt time.Time     `db:"expires_at" json:"expires_at"`
	Used      bool          `db:"used" json:"used"`
	UsedAt    *time.Time    `db:"used_at" json:"used_at"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// IsValid reports whether the reset token may still be consumed.
func (p *PasswordReset) IsValid() bool {
	return !p.Used && time.Now().Before(p.ExpiresAt)
}

// LoginAttempts is the ephemeral lockout counter keyed by email.
type LoginAttempts struct {
	Attempts    int        `json:"attempts"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

// IsLocked reports whether the account is currently within a lockout
// window.
func (l *LoginAttempts) IsLocked() bool {
	return l.LockedUntil != nil && l.LockedUntil.After(time.Now())
}

// TokenClaims is the decoded representation of a validated access token.
type TokenClaims struct {
	UserID    kernel.UserID `json:"user_id"`
	Email     string        `json:"email"`
	Role      kernel.Role   `json:"role"`
	FamilyID  string        `json:"family_id"`
	SessionID string        `json:"session_id"`
	IssuedAt  time.Time     `json:"iat"`
	ExpiresAt time.Time     `json:"exp"`
}

// TokenPair is the access/refresh bearer pair handed back on every
// successful authentication operation.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ============================================================================
// Security Constants
// ============================================================================

const (
	MaxLoginAttempts = 5
	LockoutDuration  = 30 * time.Minute
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

var (
	CodeInvalidCredentials       = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid email or password")
	CodeAccountLocked            = ErrRegistry.Register("ACCOUNT_LOCKED", errx.TypeAuthorization, http.StatusUnauthorized, "Account temporarily locked")
	CodeEmailTaken               = ErrRegistry.Register("EMAIL_TAKEN", errx.TypeConflict, http.StatusConflict, "Email already registered")
	CodeInvalidRefreshToken      = ErrRegistry.Register("INVALID_REFRESH_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid refresh token")
	CodeExpiredRefreshToken      = ErrRegistry.Register("EXPIRED_REFRESH_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Expired refresh token")
	CodeTokenReuseDetected       = ErrRegistry.Register("TOKEN_REUSE_DETECTED", errx.TypeAuthorization, http.StatusUnauthorized, "Refresh token reuse detected")
	CodeInvalidOAuthProvider     = ErrRegistry.Register("INVALID_OAUTH_PROVIDER", errx.TypeValidation, http.StatusBadRequest, "Invalid OAuth provider")
	CodeOAuthAuthorizationFailed = ErrRegistry.Register("OAUTH_AUTHORIZATION_FAILED", errx.TypeExternal, http.StatusBadRequest, "OAuth authorization failed")
	CodeInvalidState             = ErrRegistry.Register("INVALID_STATE", errx.TypeValidation, http.StatusUnauthorized, "Invalid or expired OAuth state parameter")
	CodeTokenGenerationFailed    = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token generation failed")
	CodeTokenValidationFailed    = ErrRegistry.Register("TOKEN_VALIDATION_FAILED", errx.TypeAuthorization, http.StatusUnauthorized, "Token validation failed")
	CodeOAuthCallbackError       = ErrRegistry.Register("OAUTH_CALLBACK_ERROR", errx.TypeExternal, http.StatusBadRequest, "OAuth callback error")
	CodeWeakPassword             = ErrRegistry.Register("WEAK_PASSWORD", errx.TypeValidation, http.StatusBadRequest, "Password does not meet policy requirements")
	CodeInvalidResetToken        = ErrRegistry.Register("INVALID_RESET_TOKEN", errx.TypeValidation, http.StatusBadRequest, "Invalid or expired reset token")
	CodeInvalidVerificationToken = ErrRegistry.Register("INVALID_VERIFICATION_TOKEN", errx.TypeValidation, http.StatusBadRequest, "Invalid verification token")
	CodeAlreadyVerified          = ErrRegistry.Register("ALREADY_VERIFIED", errx.TypeValidation, http.StatusBadRequest, "Email already verified")
	CodeCannotUnlinkLastMethod   = ErrRegistry.Register("CANNOT_UNLINK_LAST_METHOD", errx.TypeValidation, http.StatusBadRequest, "Cannot unlink the only remaining login method")
	CodeSessionNotFound          = ErrRegistry.Register("SESSION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Session not found")
	CodeCSRFTokenInvalid         = ErrRegistry.Register("CSRF_TOKEN_INVALID", errx.TypeAuthorization, http.StatusForbidden, "Missing or invalid CSRF token")
	CodeCurrentPasswordInvalid   = ErrRegistry.Register("CURRENT_PASSWORD_INVALID", errx.TypeAuthorization, http.StatusUnauthorized, "Current password is incorrect")
)

func ErrInvalidCredentials() *errx.Error { return ErrRegistry.New(CodeInvalidCredentials) }

// ErrAccountLocked renders the remaining lockout time in minutes, as
// required by the lockout contract.
func ErrAccountLocked(remaining time.Duration) *errx.Error {
	minutes := int(remaining.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return ErrRegistry.NewWithMessage(CodeAccountLocked,
		fmt.Sprintf("Account locked due to too many failed attempts, try again in %d minute(s)", minutes))
}

func ErrEmailTaken() *errx.Error { return ErrRegistry.New(CodeEmailTaken) }

func ErrInvalidRefreshToken() *errx.Error { return ErrRegistry.New(CodeInvalidRefreshToken) }

func ErrExpiredRefreshToken() *errx.Error { return ErrRegistry.New(CodeExpiredRefreshToken) }

func ErrTokenReuseDetected() *errx.Error { return ErrRegistry.New(CodeTokenReuseDetected) }

func ErrInvalidOAuthProvider() *errx.Error { return ErrRegistry.New(CodeInvalidOAuthProvider) }

func ErrOAuthAuthorizationFailed() *errx.Error { return ErrRegistry.New(CodeOAuthAuthorizationFailed) }

func ErrInvalidState() *errx.Error { return ErrRegistry.New(CodeInvalidState) }

func ErrTokenGenerationFailed() *errx.Error { return ErrRegistry.New(CodeTokenGenerationFailed) }

func ErrTokenValidationFailed() *errx.Error { return ErrRegistry.New(CodeTokenValidationFailed) }

func ErrOAuthCallbackError() *errx.Error { return ErrRegistry.New(CodeOAuthCallbackError) }

func ErrWeakPassword(reason string) *errx.Error {
	return ErrRegistry.New(CodeWeakPassword).WithDetail("reason", reason)
}

func ErrInvalidResetToken() *errx.Error { return ErrRegistry.New(CodeInvalidResetToken) }

func ErrInvalidVerificationToken() *errx.Error { return ErrRegistry.New(CodeInvalidVerificationToken) }

func ErrAlreadyVerified() *errx.Error { return ErrRegistry.New(CodeAlreadyVerified) }

func ErrCannotUnlinkLastMethod() *errx.Error { return ErrRegistry.New(CodeCannotUnlinkLastMethod) }

func ErrSessionNotFound() *errx.Error { return ErrRegistry.New(CodeSessionNotFound) }

func ErrCSRFTokenInvalid() *errx.Error { return ErrRegistry.New(CodeCSRFTokenInvalid) }

func ErrCurrentPasswordInvalid() *errx.Error { return ErrRegistry.New(CodeCurrentPasswordInvalid) }
