package oauthsrv

import (
	"context"
	"sync"
	"time"

	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
)

// fakeUserRepository is an in-memory auth.UserRepository.
type fakeUserRepository struct {
	mu             sync.Mutex
	byID           map[kernel.UserID]*auth.User
	order          []kernel.UserID
	findByEmailErr error
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
	if f.findByEmailErr != nil {
		return nil, f.findByEmailErr
	}
	for _, id := range f.order {
		if f.byID[id].Email == email {
			return f.byID[id], nil
		}
	}
	return nil, errx.NotFound("user not found")
}

func (f *fakeUserRepository) UpdatePassword(ctx context.Context, id kernel.UserID, passwordHash string) error {
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

func (f *fakeUserRepository) Delete(ctx context.Context, id kernel.UserID) error { return nil }

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

// fakeEphemeralStore implements only the OAuth-state slice of
// auth.EphemeralStore; every other method is a harmless no-op.
type fakeEphemeralStore struct {
	mu    sync.Mutex
	state map[string]iam.OAuthProvider
}

func newFakeEphemeralStore() *fakeEphemeralStore {
	return &fakeEphemeralStore{state: make(map[string]iam.OAuthProvider)}
}

func (f *fakeEphemeralStore) Ping(ctx context.Context) error { return nil }
func (f *fakeEphemeralStore) GetLoginAttempts(ctx context.Context, email string) (*auth.LoginAttempts, error) {
	return nil, nil
}
func (f *fakeEphemeralStore) SetLoginAttempts(ctx context.Context, email string, attempts auth.LoginAttempts, ttl time.Duration) error {
	return nil
}
func (f *fakeEphemeralStore) DeleteLoginAttempts(ctx context.Context, email string) error { return nil }
func (f *fakeEphemeralStore) IncrLoginAttempts(ctx context.Context, email string, ttl time.Duration) (int, error) {
	return 0, nil
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
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[nonce] = provider
	return nil
}

func (f *fakeEphemeralStore) GetOAuthState(ctx context.Context, nonce string) (iam.OAuthProvider, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.state[nonce]
	return p, ok, nil
}

func (f *fakeEphemeralStore) DeleteOAuthState(ctx context.Context, nonce string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.state, nonce)
	return nil
}

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
	issuedTokens int
}

func (f *fakeSessionIssuer) IssueOnAuth(ctx context.Context, user *auth.User, ip, userAgent, loginMethod string) (*auth.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issuedTokens++
	return &auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

// fakeAuditService is a no-op auth.AuditService.
type fakeAuditService struct{}

func (f *fakeAuditService) Emit(ctx context.Context, event auth.AuditEvent, userID kernel.UserID, details map[string]any) {
}

// fakeProviderClient is a scripted auth.OAuthProviderClient.
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

type testFixture struct {
	svc      *Service
	users    *fakeUserRepository
	accounts *fakeOAuthAccountRepository
	profiles *fakeUserProfileRepository
	store    *fakeEphemeralStore
	sessions *fakeSessionIssuer
	provider *fakeProviderClient
}

func newTestFixture() *testFixture {
	users := newFakeUserRepository()
	accounts := newFakeOAuthAccountRepository()
	profiles := newFakeUserProfileRepository()
	store := newFakeEphemeralStore()
	sessions := &fakeSessionIssuer{}
	provider := &fakeProviderClient{authURL: "https://provider.example.com/authorize"}

	svc := NewService(
		map[iam.OAuthProvider]auth.OAuthProviderClient{iam.OAuthProviderGoogle: provider},
		users, accounts, profiles, store, sessions, &fakeAuditService{}, Config{StateTTL: time.Minute},
	)

	return &testFixture{svc: svc, users: users, accounts: accounts, profiles: profiles, store: store, sessions: sessions, provider: provider}
}
