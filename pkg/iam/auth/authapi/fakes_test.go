package authapi

import (
	"context"
	"sync"
	"time"

	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
)

// fakeUserRepository is an in-memory auth.UserRepository shared across every
// engine wired into the test harness.
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

// fakeSessionRepository is an in-memory auth.SessionRepository.
type fakeSessionRepository struct {
	mu    sync.Mutex
	byID  map[string]*auth.Session
	order []string
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{byID: make(map[string]*auth.Session)}
}

func (f *fakeSessionRepository) Create(ctx context.Context, s *auth.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.byID[s.ID] = &cp
	f.order = append(f.order, s.ID)
	return nil
}

func (f *fakeSessionRepository) FindByToken(ctx context.Context, token string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		s, ok := f.byID[id]
		if ok && s.Token == token {
			return s, nil
		}
	}
	return nil, errx.NotFound("session not found")
}

func (f *fakeSessionRepository) FindByID(ctx context.Context, id string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, errx.NotFound("session not found")
	}
	return s, nil
}

func (f *fakeSessionRepository) FindByUserID(ctx context.Context, userID kernel.UserID) ([]*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auth.Session
	for _, id := range f.order {
		s, ok := f.byID[id]
		if ok && s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessionRepository) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakeSessionRepository) DeleteByUserID(ctx context.Context, userID kernel.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		s, ok := f.byID[id]
		if ok && s.UserID == userID {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *fakeSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

// fakeOAuthAccountRepository is an in-memory auth.OAuthAccountRepository.
type fakeOAuthAccountRepository struct {
	mu    sync.Mutex
	byID  map[string]*auth.OAuthAccount
	order []string
}

func newFakeOAuthAccountRepository() *fakeOAuthAccountRepository {
	return &fakeOAuthAccountRepository{byID: make(map[string]*auth.OAuthAccount)}
}

func (f *fakeOAuthAccountRepository) Create(ctx context.Context, a *auth.OAuthAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[a.ID] = a
	f.order = append(f.order, a.ID)
	return nil
}

func (f *fakeOAuthAccountRepository) FindByProviderID(ctx context.Context, provider iam.OAuthProvider, providerID string) (*auth.OAuthAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		a := f.byID[id]
		if a.Provider == provider && a.ProviderID == providerID {
			return a, nil
		}
	}
	return nil, errx.NotFound("oauth account not found")
}

func (f *fakeOAuthAccountRepository) FindByUserID(ctx context.Context, userID kernel.UserID) ([]*auth.OAuthAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auth.OAuthAccount
	for _, id := range f.order {
		a, ok := f.byID[id]
		if ok && a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeOAuthAccountRepository) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

// fakeUserProfileRepository is an in-memory auth.UserProfileRepository.
type fakeUserProfileRepository struct {
	mu   sync.Mutex
	byID map[kernel.UserID]*auth.UserProfile
}

func newFakeUserProfileRepository() *fakeUserProfileRepository {
	return &fakeUserProfileRepository{byID: make(map[kernel.UserID]*auth.UserProfile)}
}

func (f *fakeUserProfileRepository) Upsert(ctx context.Context, p *auth.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.byID[p.UserID] = &cp
	return nil
}

func (f *fakeUserProfileRepository) FindByUserID(ctx context.Context, userID kernel.UserID) (*auth.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[userID]
	if !ok {
		return nil, errx.NotFound("user profile not found")
	}
	return p, nil
}

// fakeAuditService is a no-op auth.AuditService.
type fakeAuditService struct{}

func (f *fakeAuditService) Emit(ctx context.Context, event auth.AuditEvent, userID kernel.UserID, details map[string]any) {
}

// fakeMailer is a no-op auth.Mailer.
type fakeMailer struct{}

func (f *fakeMailer) SendVerificationEmail(ctx context.Context, email, token string) error {
	return nil
}

func (f *fakeMailer) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	return nil
}

// fakeProviderClient is a scripted auth.OAuthProviderClient used to drive the
// OAuth callback routes deterministically.
type fakeProviderClient struct {
	authURL  string
	info     *auth.OAuthUserInfo
	exchange error
}

func (f *fakeProviderClient) AuthorizationURL(state string) string {
	return f.authURL + "?state=" + state
}

func (f *fakeProviderClient) Exchange(ctx context.Context, code string) (*auth.OAuthUserInfo, error) {
	if f.exchange != nil {
		return nil, f.exchange
	}
	return f.info, nil
}
