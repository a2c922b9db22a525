package sessionsrv

import (
	"context"
	"sync"
	"time"

	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
)

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
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range f.order {
		s, ok := f.byID[id]
		if ok && s.ExpiresAt.Before(before) {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionRepository) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

// fakeUserLookup is a minimal UserLookup backed by a static map.
type fakeUserLookup struct {
	mu    sync.Mutex
	users map[kernel.UserID]*auth.User
}

func newFakeUserLookup() *fakeUserLookup {
	return &fakeUserLookup{users: make(map[kernel.UserID]*auth.User)}
}

func (f *fakeUserLookup) GetByID(ctx context.Context, id kernel.UserID) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, errx.NotFound("user not found")
	}
	return u, nil
}

// fakeAuditService is a no-op auth.AuditService.
type fakeAuditService struct{}

func (f *fakeAuditService) Emit(ctx context.Context, event auth.AuditEvent, userID kernel.UserID, details map[string]any) {
}
