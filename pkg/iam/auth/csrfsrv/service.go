package csrfsrv

import (
	"context"
	"time"

	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam/auth"
)

// Service implements spec.md's CSRF engine: opaque, identity-unbound
// tokens that prove a same-origin request without carrying authentication.
type Service struct {
	store auth.EphemeralStore
	ttl   time.Duration
}

func NewService(store auth.EphemeralStore, ttl time.Duration) *Service {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Service{store: store, ttl: ttl}
}

// GenerateToken mints a fresh CSRF token and records it in the ephemeral
// store with the configured TTL.
func (s *Service) GenerateToken(ctx context.Context) (string, error) {
	token, err := auth.RandomToken()
	if err != nil {
		return "", errx.Wrap(err, "failed to generate csrf token", errx.TypeInternal)
	}
	if err := s.store.SetCSRFToken(ctx, token, s.ttl); err != nil {
		return "", errx.Wrap(err, "failed to persist csrf token", errx.TypeInternal)
	}
	return token, nil
}

// ValidateToken reports whether token is a live, unexpired CSRF token.
func (s *Service) ValidateToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return s.store.ExistsCSRFToken(ctx, token)
}
