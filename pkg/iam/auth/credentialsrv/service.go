package credentialsrv

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/meridianid/authd/pkg/asyncx"
	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
	"github.com/meridianid/authd/pkg/logx"
)

// isNotFound reports whether err is an *errx.Error of TypeNotFound, used to
// distinguish "no such user" from a genuine lookup failure during register.
func isNotFound(err error) bool {
	var e *errx.Error
	return errors.As(err, &e) && e.Type == errx.TypeNotFound
}

// SessionIssuer is credentialsrv's view onto the session & rotation engine:
// minting a fresh session+token pair on a successful register/login, and
// revoking every outstanding session for a user after a password mutation.
type SessionIssuer interface {
	IssueOnAuth(ctx context.Context, user *auth.User, ip, userAgent, loginMethod string) (*auth.TokenPair, error)
	RevokeAllSessions(ctx context.Context, userID kernel.UserID) error
}

// UserCacheInvalidator is credentialsrv's view onto the cache-aside user
// reader: every User mutation this engine performs (password, email
// verification) must invalidate the cached copy before returning success.
type UserCacheInvalidator interface {
	Invalidate(ctx context.Context, id kernel.UserID) error
}

// Config gathers the constants the credential engine is parameterized by.
// Values are sourced from config.SecurityConfig by callers.
type Config struct {
	BcryptCost       int
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	LoginAttemptTTL  time.Duration
}

func defaultConfig(cfg Config) Config {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.MaxLoginAttempts == 0 {
		cfg.MaxLoginAttempts = auth.MaxLoginAttempts
	}
	if cfg.LockoutDuration == 0 {
		cfg.LockoutDuration = auth.LockoutDuration
	}
	if cfg.LoginAttemptTTL == 0 {
		cfg.LoginAttemptTTL = time.Hour
	}
	return cfg
}

// Service implements spec.md's credential engine: register, login, the
// failed-login/lockout counter, and the password-reset/change/verify-email
// lifecycles.
type Service struct {
	users         auth.UserRepository
	verifications auth.EmailVerificationRepository
	resets        auth.PasswordResetRepository
	store         auth.EphemeralStore
	sessions      SessionIssuer
	userCache     UserCacheInvalidator
	audit         auth.AuditService
	mailer        auth.Mailer
	cfg           Config
}

func NewService(
	users auth.UserRepository,
	verifications auth.EmailVerificationRepository,
	resets auth.PasswordResetRepository,
	store auth.EphemeralStore,
	sessions SessionIssuer,
	userCache UserCacheInvalidator,
	audit auth.AuditService,
	mailer auth.Mailer,
	cfg Config,
) *Service {
	return &Service{
		users:         users,
		verifications: verifications,
		resets:        resets,
		store:         store,
		sessions:      sessions,
		userCache:     userCache,
		audit:         audit,
		mailer:        mailer,
		cfg:           defaultConfig(cfg),
	}
}

// Register creates a new credential-backed account, dispatches a
// verification email, and mints a session in the same call.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string, userName *string) (*auth.User, *auth.TokenPair, error) {
	if ok, reason := auth.PasswordPolicy(password); !ok {
		return nil, nil, auth.ErrWeakPassword(reason)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, nil, auth.ErrEmailTaken()
	} else if !isNotFound(err) {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, nil, errx.Wrap(err, "failed to hash password", errx.TypeInternal)
	}

	now := time.Now()
	user := &auth.User{
		ID:            kernel.NewUserID(uuid.NewString()),
		Email:         email,
		PasswordHash:  hash,
		FirstName:     firstName,
		LastName:      lastName,
		UserName:      userName,
		Role:          kernel.RoleUser,
		EmailVerified: false,
		IsActive:      true,
		IsSuspended:   false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	s.dispatchVerificationEmail(ctx, user)

	tokens, err := s.sessions.IssueOnAuth(ctx, user, "", "", "password")
	if err != nil {
		return nil, nil, err
	}

	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventRegisterSuccess, user.ID, map[string]any{"email": user.Email})
	})

	return user, tokens, nil
}

// Login authenticates an email/password pair, enforcing the lockout
// counter and returning a uniform error on any failure mode so the caller
// can never distinguish "no such user" from "wrong password".
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*auth.User, *auth.TokenPair, error) {
	attempts, err := s.store.GetLoginAttempts(ctx, email)
	if err != nil {
		logx.WithError(err).Warnf("credentialsrv: failed to read login attempts for %s", email)
	}
	if attempts != nil && attempts.IsLocked() {
		return nil, nil, auth.ErrAccountLocked(time.Until(*attempts.LockedUntil))
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil || !user.HasPassword() || !auth.VerifyPassword(user.PasswordHash, password) {
		if ferr := s.handleFailedLogin(ctx, email); ferr != nil {
			return nil, nil, ferr
		}
		return nil, nil, auth.ErrInvalidCredentials()
	}

	if err := s.store.DeleteLoginAttempts(ctx, email); err != nil {
		logx.WithError(err).Warnf("credentialsrv: failed to clear login attempts for %s", email)
	}

	tokens, err := s.sessions.IssueOnAuth(ctx, user, ip, userAgent, "password")
	if err != nil {
		return nil, nil, err
	}

	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventLoginSuccess, user.ID, map[string]any{"email": user.Email})
	})

	return user, tokens, nil
}

// handleFailedLogin atomically increments the per-email attempt counter via
// the ephemeral store's INCR primitive and locks the account once
// MaxLoginAttempts is reached. Returns the account's lockout error when the
// increment crosses the threshold, so Login can surface the
// remaining-minutes message on the very attempt that locks it.
func (s *Service) handleFailedLogin(ctx context.Context, email string) error {
	count, err := s.store.IncrLoginAttempts(ctx, email, s.cfg.LoginAttemptTTL)
	if err != nil {
		logx.WithError(err).Warnf("credentialsrv: failed to increment login attempts for %s", email)
	}

	if count >= s.cfg.MaxLoginAttempts {
		lockedUntil := time.Now().Add(s.cfg.LockoutDuration)
		attempts := auth.LoginAttempts{Attempts: count, LockedUntil: &lockedUntil}
		if err := s.store.SetLoginAttempts(ctx, email, attempts, s.cfg.LockoutDuration); err != nil {
			logx.WithError(err).Warnf("credentialsrv: failed to persist lockout for %s", email)
		}
		asyncx.DoCtx(ctx, func(ctx context.Context) {
			s.audit.Emit(ctx, auth.EventAccountLocked, kernel.UserID(""), map[string]any{"email": email})
		})
		return auth.ErrAccountLocked(s.cfg.LockoutDuration)
	}

	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventLoginFailed, kernel.UserID(""), map[string]any{"email": email})
	})
	return nil
}

// RequestPasswordReset always reports success regardless of whether the
// email is registered, to avoid leaking account existence.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil
	}

	token, err := auth.RandomToken()
	if err != nil {
		return errx.Wrap(err, "failed to generate reset token", errx.TypeInternal)
	}

	reset := &auth.PasswordReset{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := s.resets.Create(ctx, reset); err != nil {
		return err
	}

	asyncx.DoCtx(context.WithoutCancel(ctx), func(ctx context.Context) {
		if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, token); err != nil {
			logx.WithError(err).Warnf("credentialsrv: failed to dispatch password reset email to %s", user.Email)
		}
	})

	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventPasswordResetRequest, user.ID, map[string]any{"email": user.Email})
	})

	return nil
}

// ResetPassword consumes a reset token, updates the password, and revokes
// every outstanding session for the user (forced global logout).
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if ok, reason := auth.PasswordPolicy(newPassword); !ok {
		return auth.ErrWeakPassword(reason)
	}

	reset, err := s.resets.FindByToken(ctx, token)
	if err != nil {
		return err
	}
	if !reset.IsValid() {
		return auth.ErrInvalidResetToken()
	}

	hash, err := auth.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return errx.Wrap(err, "failed to hash password", errx.TypeInternal)
	}
	if err := s.users.UpdatePassword(ctx, reset.UserID, hash); err != nil {
		return err
	}
	if err := s.userCache.Invalidate(ctx, reset.UserID); err != nil {
		logx.WithError(err).Warnf("credentialsrv: failed to invalidate user cache for %s", reset.UserID)
	}
	if err := s.resets.MarkUsed(ctx, reset.ID); err != nil {
		return err
	}
	if err := s.sessions.RevokeAllSessions(ctx, reset.UserID); err != nil {
		logx.WithError(err).Warnf("credentialsrv: failed to revoke sessions after password reset for %s", reset.UserID)
	}

	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventPasswordResetSuccess, reset.UserID, nil)
	})

	return nil
}

// ChangePassword re-verifies the caller's current password before rotating
// it, and likewise revokes every outstanding session.
func (s *Service) ChangePassword(ctx context.Context, userID kernel.UserID, currentPassword, newPassword string) error {
	if ok, reason := auth.PasswordPolicy(newPassword); !ok {
		return auth.ErrWeakPassword(reason)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() || !auth.VerifyPassword(user.PasswordHash, currentPassword) {
		return auth.ErrCurrentPasswordInvalid()
	}

	hash, err := auth.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return errx.Wrap(err, "failed to hash password", errx.TypeInternal)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.userCache.Invalidate(ctx, userID); err != nil {
		logx.WithError(err).Warnf("credentialsrv: failed to invalidate user cache for %s", userID)
	}
	if err := s.sessions.RevokeAllSessions(ctx, userID); err != nil {
		logx.WithError(err).Warnf("credentialsrv: failed to revoke sessions after password change for %s", userID)
	}

	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventPasswordChanged, userID, nil)
	})

	return nil
}

// VerifyEmail consumes a verification token and marks both the token row
// and the owning user as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	verification, err := s.verifications.FindByToken(ctx, token)
	if err != nil {
		return err
	}
	if verification.Verified {
		return auth.ErrAlreadyVerified()
	}
	if verification.IsExpired() {
		return auth.ErrInvalidVerificationToken()
	}

	if err := s.verifications.MarkVerified(ctx, verification.ID); err != nil {
		return err
	}
	if err := s.users.UpdateEmailVerified(ctx, verification.UserID, true); err != nil {
		return err
	}
	if err := s.userCache.Invalidate(ctx, verification.UserID); err != nil {
		logx.WithError(err).Warnf("credentialsrv: failed to invalidate user cache for %s", verification.UserID)
	}

	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventEmailVerified, verification.UserID, nil)
	})

	return nil
}

func (s *Service) dispatchVerificationEmail(ctx context.Context, user *auth.User) {
	token, err := auth.RandomToken()
	if err != nil {
		logx.WithError(err).Warn("credentialsrv: failed to generate verification token")
		return
	}
	verification := &auth.EmailVerification{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     token,
		CreatedAt: time.Now(),
	}
	if err := s.verifications.Create(ctx, verification); err != nil {
		logx.WithError(err).Warnf("credentialsrv: failed to create email verification for %s", user.Email)
		return
	}

	asyncx.DoCtx(context.WithoutCancel(ctx), func(ctx context.Context) {
		if err := s.mailer.SendVerificationEmail(ctx, user.Email, token); err != nil {
			logx.WithError(err).Warnf("credentialsrv: failed to dispatch verification email to %s", user.Email)
		}
	})

	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventEmailVerificationSent, user.ID, map[string]any{"email": user.Email})
	})
}
