// Package usercache implements the cache-aside user reader: a read-through
// wrapper over auth.UserRepository backed by auth.EphemeralStore.
package usercache

import (
	"context"
	"time"

	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
	"github.com/meridianid/authd/pkg/logx"
)

// Service reads Users through an ephemeral cache, falling back to the
// durable store on a miss and populating the cache on the way back out.
// Ephemeral-store failures never fail a read or a write — they only cost
// the caller a round trip to Postgres.
type Service struct {
	users auth.UserRepository
	store auth.EphemeralStore
	ttl   time.Duration
}

func NewService(users auth.UserRepository, store auth.EphemeralStore, ttl time.Duration) *Service {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &Service{users: users, store: store, ttl: ttl}
}

// GetByID returns the User for id, preferring the ephemeral cache.
func (s *Service) GetByID(ctx context.Context, id kernel.UserID) (*auth.User, error) {
	if cached, err := s.store.GetUser(ctx, id); err != nil {
		logx.WithError(err).Warnf("usercache: failed to read cache for %s", id)
	} else if cached != nil {
		return cached, nil
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetUser(ctx, user, s.ttl); err != nil {
		logx.WithError(err).Warnf("usercache: failed to populate cache for %s", id)
	}
	return user, nil
}

// Invalidate removes id from the ephemeral cache. Callers MUST invoke this
// before returning success from any operation that mutates a User row
// (password change, email verification, delete), so a stale cached role
// can never outlive the mutation that changed it. UserProfile writes don't
// touch this row and so don't require invalidation here.
func (s *Service) Invalidate(ctx context.Context, id kernel.UserID) error {
	return s.store.DeleteUser(ctx, id)
}
