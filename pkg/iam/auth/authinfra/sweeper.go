package authinfra

import (
	"context"
	"errors"
	"time"

	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/logx"
)

// Sweeper periodically deletes expired Session and PasswordReset rows from
// the durable store, and purges token_family keys whose currentToken no
// longer matches any live Session row. EmailVerification rows are never
// swept: their expiry is computed from CreatedAt at check time, and
// consumed rows are kept for audit.
//
// Sweeper errors are logged, never propagated: every consuming operation
// re-checks expiration independently, so a missed sweep is a bloat issue,
// not a correctness one.
type Sweeper struct {
	sessions auth.SessionRepository
	resets   auth.PasswordResetRepository
	store    auth.EphemeralStore
	interval time.Duration
}

func NewSweeper(sessions auth.SessionRepository, resets auth.PasswordResetRepository, store auth.EphemeralStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{sessions: sessions, resets: resets, store: store, interval: interval}
}

// Run blocks, sweeping on each tick, until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logx.Infof("authinfra: sweeper starting with interval %s", s.interval)

	for {
		select {
		case <-ctx.Done():
			logx.Info("authinfra: sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	now := time.Now()

	if n, err := s.sessions.DeleteExpired(ctx, now); err != nil {
		logx.WithError(err).Warn("authinfra: sweeper failed to delete expired sessions")
	} else if n > 0 {
		logx.Infof("authinfra: sweeper deleted %d expired sessions", n)
	}

	if n, err := s.resets.DeleteExpired(ctx, now); err != nil {
		logx.WithError(err).Warn("authinfra: sweeper failed to delete expired password resets")
	} else if n > 0 {
		logx.Infof("authinfra: sweeper deleted %d expired password resets", n)
	}

	s.sweepOrphanedTokenFamilies(ctx)
}

// sweepOrphanedTokenFamilies best-effort deletes token_family heads whose
// currentToken no longer backs any Session row — the rotation already
// moved on, but the key would otherwise linger until its own TTL.
func (s *Sweeper) sweepOrphanedTokenFamilies(ctx context.Context) {
	familyIDs, err := s.store.ListTokenFamilyIDs(ctx)
	if err != nil {
		logx.WithError(err).Warn("authinfra: sweeper failed to list token families")
		return
	}

	var orphans []string
	for _, familyID := range familyIDs {
		head, err := s.store.GetTokenFamilyHead(ctx, familyID)
		if err != nil || head == nil {
			continue
		}
		if _, err := s.sessions.FindByToken(ctx, head.CurrentToken); err != nil {
			if isNotFound(err) {
				orphans = append(orphans, familyID)
			}
			continue
		}
	}

	if len(orphans) == 0 {
		return
	}
	if err := s.store.ScanDeleteTokenFamilies(ctx, orphans); err != nil {
		logx.WithError(err).Warn("authinfra: sweeper failed to delete orphaned token families")
		return
	}
	logx.Infof("authinfra: sweeper deleted %d orphaned token families", len(orphans))
}

// isNotFound reports whether err is an *errx.Error of TypeNotFound.
func isNotFound(err error) bool {
	var e *errx.Error
	return errors.As(err, &e) && e.Type == errx.TypeNotFound
}
