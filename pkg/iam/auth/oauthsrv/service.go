package oauthsrv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meridianid/authd/pkg/asyncx"
	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
	"github.com/meridianid/authd/pkg/logx"
)

// isNotFound reports whether err is an *errx.Error of TypeNotFound, used to
// distinguish "no such row" from a genuine lookup failure, the same way
// credentialsrv.isNotFound does for its own repositories.
func isNotFound(err error) bool {
	var e *errx.Error
	return errors.As(err, &e) && e.Type == errx.TypeNotFound
}

// SessionIssuer is oauthsrv's view onto the session & rotation engine.
type SessionIssuer interface {
	IssueOnAuth(ctx context.Context, user *auth.User, ip, userAgent, loginMethod string) (*auth.TokenPair, error)
}

// Config gathers the TTL the OAuth engine is parameterized by.
type Config struct {
	StateTTL time.Duration
}

func defaultConfig(cfg Config) Config {
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	return cfg
}

// Service implements spec.md's OAuth engine: the authorization-URL/state
// handshake, the callback exchange, and provider-link management.
type Service struct {
	providers map[iam.OAuthProvider]auth.OAuthProviderClient
	users     auth.UserRepository
	accounts  auth.OAuthAccountRepository
	profiles  auth.UserProfileRepository
	store     auth.EphemeralStore
	sessions  SessionIssuer
	audit     auth.AuditService
	cfg       Config
}

func NewService(providers map[iam.OAuthProvider]auth.OAuthProviderClient, users auth.UserRepository, accounts auth.OAuthAccountRepository, profiles auth.UserProfileRepository, store auth.EphemeralStore, sessions SessionIssuer, audit auth.AuditService, cfg Config) *Service {
	return &Service{
		providers: providers,
		users:     users,
		accounts:  accounts,
		profiles:  profiles,
		store:     store,
		sessions:  sessions,
		audit:     audit,
		cfg:       defaultConfig(cfg),
	}
}

// AuthorizationURL generates a CSRF-bound state nonce and returns the
// provider's consent-screen URL.
func (s *Service) AuthorizationURL(ctx context.Context, provider iam.OAuthProvider) (string, error) {
	client, ok := s.providers[provider]
	if !ok {
		return "", auth.ErrInvalidOAuthProvider()
	}

	nonce, err := auth.RandomToken()
	if err != nil {
		return "", errx.Wrap(err, "failed to generate oauth state", errx.TypeInternal)
	}
	if err := s.store.SetOAuthState(ctx, nonce, provider, s.cfg.StateTTL); err != nil {
		return "", errx.Wrap(err, "failed to persist oauth state", errx.TypeInternal)
	}

	return client.AuthorizationURL(nonce), nil
}

// Callback exchanges an authorization code for a local session, linking or
// creating the User as needed.
func (s *Service) Callback(ctx context.Context, provider iam.OAuthProvider, code, state, ip, userAgent string) (*auth.User, *auth.TokenPair, bool, error) {
	storedProvider, ok, err := s.store.GetOAuthState(ctx, state)
	if err != nil {
		logx.WithError(err).Warn("oauthsrv: failed to read oauth state")
	}
	if !ok {
		s.emitFailure(ctx, provider)
		return nil, nil, false, auth.ErrInvalidState()
	}
	if storedProvider != provider {
		s.emitFailure(ctx, provider)
		return nil, nil, false, auth.ErrInvalidState()
	}
	if err := s.store.DeleteOAuthState(ctx, state); err != nil {
		logx.WithError(err).Warn("oauthsrv: failed to delete oauth state")
	}

	client, ok := s.providers[provider]
	if !ok {
		return nil, nil, false, auth.ErrInvalidOAuthProvider()
	}

	info, err := client.Exchange(ctx, code)
	if err != nil {
		logx.WithError(err).Warnf("oauthsrv: %s exchange failed", provider)
		s.emitFailure(ctx, provider)
		return nil, nil, false, auth.ErrOAuthAuthorizationFailed()
	}

	user, isNew, err := s.resolveUser(ctx, provider, info)
	if err != nil {
		return nil, nil, false, err
	}

	tokens, err := s.sessions.IssueOnAuth(ctx, user, ip, userAgent, string(provider))
	if err != nil {
		return nil, nil, false, err
	}

	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventOAuthLoginSuccess, user.ID, map[string]any{"provider": provider, "isNewUser": isNew})
	})

	return user, tokens, isNew, nil
}

func (s *Service) resolveUser(ctx context.Context, provider iam.OAuthProvider, info *auth.OAuthUserInfo) (*auth.User, bool, error) {
	user, err := s.users.FindByEmail(ctx, info.Email)
	if err != nil {
		if !isNotFound(err) {
			return nil, false, err
		}
		return s.createOAuthUser(ctx, provider, info)
	}

	linked, err := s.accounts.FindByProviderID(ctx, provider, info.ProviderID)
	if err != nil && !isNotFound(err) {
		return nil, false, err
	}
	if err == nil {
		if linked.UserID != user.ID {
			return nil, false, errx.Conflict("this provider account is already linked to a different user")
		}
		return user, false, nil
	}

	// No link yet for this user/provider pair: require a verified email
	// before linking, closing the unverified-email account-takeover vector.
	if !user.EmailVerified {
		return nil, false, errx.Validation("link a verified email before connecting this provider").WithDetail("reason", "email not verified")
	}

	account := &auth.OAuthAccount{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Provider:   provider,
		ProviderID: info.ProviderID,
		CreatedAt:  time.Now(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, false, err
	}
	return user, false, nil
}

func (s *Service) createOAuthUser(ctx context.Context, provider iam.OAuthProvider, info *auth.OAuthUserInfo) (*auth.User, bool, error) {
	firstName, lastName := splitName(info.Name)

	now := time.Now()
	user := &auth.User{
		ID:    kernel.NewUserID(uuid.NewString()),
		Email: info.Email,
		// New OAuth-originated users have no password; the provider already
		// vouched for the email, so it is trusted verified (resolved Open
		// Question 1).
		FirstName:     firstName,
		LastName:      lastName,
		Role:          kernel.RoleUser,
		EmailVerified: true,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, false, err
	}

	account := &auth.OAuthAccount{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Provider:   provider,
		ProviderID: info.ProviderID,
		CreatedAt:  now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, false, err
	}

	// The provider's consent screen is the first source of profile display
	// data this identity ever sees, so this is the "first profile write"
	// that lazily creates the user_profiles row.
	if info.Name != "" || info.AvatarURL != "" {
		profile := &auth.UserProfile{
			UserID:      user.ID,
			DisplayName: info.Name,
			AvatarURL:   info.AvatarURL,
			UpdatedAt:   now,
		}
		if err := s.profiles.Upsert(ctx, profile); err != nil {
			logx.WithError(err).Warnf("oauthsrv: failed to seed profile for %s", user.ID)
		}
	}

	return user, true, nil
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func (s *Service) emitFailure(ctx context.Context, provider iam.OAuthProvider) {
	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventOAuthLoginFailed, kernel.UserID(""), map[string]any{"provider": provider})
	})
}

// GetLinkedProviders returns every OAuthAccount linked to userID.
func (s *Service) GetLinkedProviders(ctx context.Context, userID kernel.UserID) ([]*auth.OAuthAccount, error) {
	return s.accounts.FindByUserID(ctx, userID)
}

// UnlinkProvider removes the OAuthAccount for userID and provider, refusing
// to remove the user's last remaining authentication method.
func (s *Service) UnlinkProvider(ctx context.Context, userID kernel.UserID, provider iam.OAuthProvider) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	accounts, err := s.accounts.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}

	var target *auth.OAuthAccount
	for _, a := range accounts {
		if a.Provider == provider {
			target = a
			break
		}
	}
	if target == nil {
		return errx.NotFound("no linked account for this provider")
	}

	if !user.HasPassword() && len(accounts) == 1 {
		return auth.ErrCannotUnlinkLastMethod()
	}

	return s.accounts.Delete(ctx, target.ID)
}
