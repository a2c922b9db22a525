package authinfra

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
)

// fakeSessionRepository is an in-memory auth.SessionRepository tracking
// DeleteExpired invocations and supporting lookup by token.
type fakeSessionRepository struct {
	mu             sync.Mutex
	byToken        map[string]*auth.Session
	deleteExpired  int
	expiredDeleted int64
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{byToken: make(map[string]*auth.Session)}
}

func (f *fakeSessionRepository) Create(ctx context.Context, s *auth.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byToken[s.Token] = s
	return nil
}

func (f *fakeSessionRepository) FindByToken(ctx context.Context, token string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byToken[token]
	if !ok {
		return nil, errx.NotFound("session not found")
	}
	return s, nil
}

func (f *fakeSessionRepository) FindByID(ctx context.Context, id string) (*auth.Session, error) {
	return nil, errx.NotFound("session not found")
}

func (f *fakeSessionRepository) FindByUserID(ctx context.Context, userID kernel.UserID) ([]*auth.Session, error) {
	return nil, nil
}

func (f *fakeSessionRepository) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeSessionRepository) DeleteByUserID(ctx context.Context, userID kernel.UserID) error {
	return nil
}

func (f *fakeSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteExpired++
	return f.expiredDeleted, nil
}

// fakePasswordResetRepository is a minimal auth.PasswordResetRepository
// tracking DeleteExpired invocations.
type fakePasswordResetRepository struct {
	mu             sync.Mutex
	deleteExpired  int
	expiredDeleted int64
}

func (f *fakePasswordResetRepository) Create(ctx context.Context, r *auth.PasswordReset) error {
	return nil
}

func (f *fakePasswordResetRepository) FindByToken(ctx context.Context, token string) (*auth.PasswordReset, error) {
	return nil, errx.NotFound("reset token not found")
}

func (f *fakePasswordResetRepository) MarkUsed(ctx context.Context, id string) error { return nil }

func (f *fakePasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteExpired++
	return f.expiredDeleted, nil
}

func TestSweepOnceDelegatesExpiryToRepositories(t *testing.T) {
	ctx := context.Background()
	sessions := newFakeSessionRepository()
	sessions.expiredDeleted = 3
	resets := &fakePasswordResetRepository{expiredDeleted: 2}
	store, _ := newTestStore(t)

	sweeper := NewSweeper(sessions, resets, store, time.Hour)
	sweeper.sweepOnce(ctx)

	require.Equal(t, 1, sessions.deleteExpired)
	require.Equal(t, 1, resets.deleteExpired)
}

func TestSweepOrphanedTokenFamiliesDeletesOnlyOrphans(t *testing.T) {
	ctx := context.Background()
	sessions := newFakeSessionRepository()
	resets := &fakePasswordResetRepository{}
	store, _ := newTestStore(t)

	require.NoError(t, store.SetTokenFamilyHead(ctx, "live-family", auth.TokenFamilyHead{CurrentToken: "live-token"}, time.Hour))
	require.NoError(t, store.SetTokenFamilyHead(ctx, "orphan-family", auth.TokenFamilyHead{CurrentToken: "gone-token"}, time.Hour))
	require.NoError(t, sessions.Create(ctx, &auth.Session{ID: "s1", Token: "live-token"}))

	sweeper := NewSweeper(sessions, resets, store, time.Hour)
	sweeper.sweepOrphanedTokenFamilies(ctx)

	ids, err := store.ListTokenFamilyIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"live-family"}, ids)
}

func TestNewSweeperDefaultsInterval(t *testing.T) {
	store, _ := newTestStore(t)
	sweeper := NewSweeper(newFakeSessionRepository(), &fakePasswordResetRepository{}, store, 0)
	require.Equal(t, time.Hour, sweeper.interval)
}
