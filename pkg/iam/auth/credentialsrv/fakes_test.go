package credentialsrv

import (
	"context"
	"sync"
	"time"

	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
)

// fakeUserRepository is a minimal in-memory auth.UserRepository.
type fakeUserRepository struct {
	mu    sync.Mutex
	byID  map[kernel.UserID]*auth.User
	order []kernel.UserID
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{byID: make(map[kernel.UserID]*auth.User)}
}

func (f *fakeUserRepository) Create(ctx context.Context, u *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
	f.order = append(f.order, u.ID)
	return nil
}

func (f *fakeUserRepository) FindByID(ctx context.Context, id kernel.UserID) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, errx.NotFound("user not found")
	}
	return u, nil
}

func (f *fakeUserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		if f.byID[id].Email == email {
			return f.byID[id], nil
		}
	}
	return nil, errx.NotFound("user not found")
}

func (f *fakeUserRepository) UpdatePassword(ctx context.Context, id kernel.UserID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return errx.NotFound("user not found")
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUserRepository) UpdateEmailVerified(ctx context.Context, id kernel.UserID, verified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return errx.NotFound("user not found")
	}
	u.EmailVerified = verified
	return nil
}

func (f *fakeUserRepository) Delete(ctx context.Context, id kernel.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

// fakeVerificationRepository is an in-memory auth.EmailVerificationRepository.
type fakeVerificationRepository struct {
	mu      sync.Mutex
	byToken map[string]*auth.EmailVerification
}

func newFakeVerificationRepository() *fakeVerificationRepository {
	return &fakeVerificationRepository{byToken: make(map[string]*auth.EmailVerification)}
}

func (f *fakeVerificationRepository) Create(ctx context.Context, v *auth.EmailVerification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byToken[v.Token] = v
	return nil
}

func (f *fakeVerificationRepository) FindByToken(ctx context.Context, token string) (*auth.EmailVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.byToken[token]
	if !ok {
		return nil, errx.NotFound("verification token not found")
	}
	return v, nil
}

func (f *fakeVerificationRepository) MarkVerified(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.byToken {
		if v.ID == id {
			v.Verified = true
			now := time.Now()
			v.VerifiedAt = &now
			return nil
		}
	}
	return errx.NotFound("verification not found")
}

// fakeResetRepository is an in-memory auth.PasswordResetRepository.
type fakeResetRepository struct {
	mu      sync.Mutex
	byToken map[string]*auth.PasswordReset
}

func newFakeResetRepository() *fakeResetRepository {
	return &fakeResetRepository{byToken: make(map[string]*auth.PasswordReset)}
}

func (f *fakeResetRepository) Create(ctx context.Context, r *auth.PasswordReset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byToken[r.Token] = r
	return nil
}

func (f *fakeResetRepository) FindByToken(ctx context.Context, token string) (*auth.PasswordReset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byToken[token]
	if !ok {
		return nil, errx.NotFound("reset token not found")
	}
	return r, nil
}

func (f *fakeResetRepository) MarkUsed(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byToken {
		if r.ID == id {
			r.Used = true
			now := time.Now()
			r.UsedAt = &now
			return nil
		}
	}
	return errx.NotFound("reset not found")
}

func (f *fakeResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

// fakeEphemeralStore implements only the login-attempts slice of
// auth.EphemeralStore; every other method is a harmless no-op, since
// credentialsrv only touches login attempts directly.
type fakeEphemeralStore struct {
	mu       sync.Mutex
	attempts map[string]auth.LoginAttempts
}

func newFakeEphemeralStore() *fakeEphemeralStore {
	return &fakeEphemeralStore{attempts: make(map[string]auth.LoginAttempts)}
}

func (f *fakeEphemeralStore) Ping(ctx context.Context) error { return nil }

func (f *fakeEphemeralStore) GetLoginAttempts(ctx context.Context, email string) (*auth.LoginAttempts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[email]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeEphemeralStore) SetLoginAttempts(ctx context.Context, email string, attempts auth.LoginAttempts, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[email] = attempts
	return nil
}

func (f *fakeEphemeralStore) DeleteLoginAttempts(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attempts, email)
	return nil
}

func (f *fakeEphemeralStore) IncrLoginAttempts(ctx context.Context, email string, ttl time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.attempts[email]
	a.Attempts++
	f.attempts[email] = a
	return a.Attempts, nil
}

func (f *fakeEphemeralStore) GetTokenFamilyHead(ctx context.Context, familyID string) (*auth.TokenFamilyHead, error) {
	return nil, nil
}
func (f *fakeEphemeralStore) SetTokenFamilyHead(ctx context.Context, familyID string, head auth.TokenFamilyHead, ttl time.Duration) error {
	return nil
}
func (f *fakeEphemeralStore) DeleteTokenFamilyHead(ctx context.Context, familyID string) error {
	return nil
}
func (f *fakeEphemeralStore) GetSessionMeta(ctx context.Context, sessionID string) (*auth.SessionMeta, error) {
	return nil, nil
}
func (f *fakeEphemeralStore) SetSessionMeta(ctx context.Context, sessionID string, meta auth.SessionMeta, ttl time.Duration) error {
	return nil
}
func (f *fakeEphemeralStore) DeleteSessionMeta(ctx context.Context, sessionID string) error {
	return nil
}
func (f *fakeEphemeralStore) SetCSRFToken(ctx context.Context, token string, ttl time.Duration) error {
	return nil
}
func (f *fakeEphemeralStore) ExistsCSRFToken(ctx context.Context, token string) (bool, error) {
	return false, nil
}
func (f *fakeEphemeralStore) DeleteCSRFToken(ctx context.Context, token string) error { return nil }
func (f *fakeEphemeralStore) SetOAuthState(ctx context.Context, nonce string, provider iam.OAuthProvider, ttl time.Duration) error {
	return nil
}
func (f *fakeEphemeralStore) GetOAuthState(ctx context.Context, nonce string) (iam.OAuthProvider, bool, error) {
	return "", false, nil
}
func (f *fakeEphemeralStore) DeleteOAuthState(ctx context.Context, nonce string) error { return nil }
func (f *fakeEphemeralStore) GetUser(ctx context.Context, userID kernel.UserID) (*auth.User, error) {
	return nil, nil
}
func (f *fakeEphemeralStore) SetUser(ctx context.Context, user *auth.User, ttl time.Duration) error {
	return nil
}
func (f *fakeEphemeralStore) DeleteUser(ctx context.Context, userID kernel.UserID) error { return nil }
func (f *fakeEphemeralStore) ListTokenFamilyIDs(ctx context.Context) ([]string, error) {
	return nil, nil
}
func (f *fakeEphemeralStore) ScanDeleteTokenFamilies(ctx context.Context, familyIDs []string) error {
	return nil
}

// fakeSessionIssuer is a spy implementation of SessionIssuer.
type fakeSessionIssuer struct {
	mu           sync.Mutex
	issueErr     error
	revokeCalls  []kernel.UserID
	issuedTokens int
}

func (f *fakeSessionIssuer) IssueOnAuth(ctx context.Context, user *auth.User, ip, userAgent, loginMethod string) (*auth.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	f.issuedTokens++
	return &auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeSessionIssuer) RevokeAllSessions(ctx context.Context, userID kernel.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeCalls = append(f.revokeCalls, userID)
	return nil
}

// fakeUserCacheInvalidator is a spy implementation of UserCacheInvalidator.
type fakeUserCacheInvalidator struct {
	mu              sync.Mutex
	invalidateCalls []kernel.UserID
}

func (f *fakeUserCacheInvalidator) Invalidate(ctx context.Context, id kernel.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidateCalls = append(f.invalidateCalls, id)
	return nil
}

// fakeAuditService is a no-op auth.AuditService.
type fakeAuditService struct{}

func (f *fakeAuditService) Emit(ctx context.Context, event auth.AuditEvent, userID kernel.UserID, details map[string]any) {
}

// fakeMailer is a spy implementation of auth.Mailer.
type fakeMailer struct {
	mu                  sync.Mutex
	verificationEmails  []string
	passwordResetEmails []string
}

func (f *fakeMailer) SendVerificationEmail(ctx context.Context, email, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verificationEmails = append(f.verificationEmails, email)
	return nil
}

func (f *fakeMailer) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwordResetEmails = append(f.passwordResetEmails, email)
	return nil
}

type testDeps struct {
	users    *fakeUserRepository
	verifs   *fakeVerificationRepository
	resets   *fakeResetRepository
	store    *fakeEphemeralStore
	sessions *fakeSessionIssuer
	cache    *fakeUserCacheInvalidator
	audit    *fakeAuditService
	mailer   *fakeMailer
}

func newTestService(t interface{ Helper() }) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		users:    newFakeUserRepository(),
		verifs:   newFakeVerificationRepository(),
		resets:   newFakeResetRepository(),
		store:    newFakeEphemeralStore(),
		sessions: &fakeSessionIssuer{},
		cache:    &fakeUserCacheInvalidator{},
		audit:    &fakeAuditService{},
		mailer:   &fakeMailer{},
	}
	svc := NewService(deps.users, deps.verifs, deps.resets, deps.store, deps.sessions, deps.cache, deps.audit, deps.mailer, Config{
		BcryptCost:       4,
		MaxLoginAttempts: 3,
		LockoutDuration:  time.Minute,
		LoginAttemptTTL:  time.Minute,
	})
	return svc, deps
}
