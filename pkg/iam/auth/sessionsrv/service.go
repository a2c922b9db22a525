package sessionsrv

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/meridianid/authd/pkg/asyncx"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
	"github.com/meridianid/authd/pkg/logx"
)

// UserLookup is sessionsrv's view onto the cache-aside user reader: refresh
// needs to reload the owning user without depending on usercache directly.
type UserLookup interface {
	GetByID(ctx context.Context, id kernel.UserID) (*auth.User, error)
}

// Config gathers the TTLs the session & rotation engine is parameterized by.
type Config struct {
	SessionTTL     time.Duration
	SessionMetaTTL time.Duration
	TokenFamilyTTL time.Duration
}

func defaultConfig(cfg Config) Config {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.SessionMetaTTL == 0 {
		cfg.SessionMetaTTL = 7 * 24 * time.Hour
	}
	if cfg.TokenFamilyTTL == 0 {
		cfg.TokenFamilyTTL = 7 * 24 * time.Hour
	}
	return cfg
}

// Service implements spec.md's session & rotation engine: issuing sessions
// on register/login, rotating refresh tokens with reuse detection, and the
// session-inventory/revocation operations.
type Service struct {
	sessions auth.SessionRepository
	store    auth.EphemeralStore
	tokens   auth.TokenService
	users    UserLookup
	audit    auth.AuditService
	cfg      Config
}

func NewService(sessions auth.SessionRepository, store auth.EphemeralStore, tokens auth.TokenService, users UserLookup, audit auth.AuditService, cfg Config) *Service {
	return &Service{
		sessions: sessions,
		store:    store,
		tokens:   tokens,
		users:    users,
		audit:    audit,
		cfg:      defaultConfig(cfg),
	}
}

// SessionView is a Session row merged with its best-effort ephemeral
// metadata, as returned by GetSessions.
type SessionView struct {
	ID          string
	IP          string
	UserAgent   string
	LoginMethod string
	LastUsedAt  *time.Time
	LastLoginAt *time.Time
	CreatedAt   time.Time
	ExpiresAt   time.Time
	IsCurrent   bool
}

// IssueOnAuth mints a fresh session and token pair for a successful
// register/login, establishing a brand-new token family.
func (s *Service) IssueOnAuth(ctx context.Context, user *auth.User, ip, userAgent, loginMethod string) (*auth.TokenPair, error) {
	sessionID := uuid.NewString()
	familyID := uuid.NewString()

	tokens, err := s.mintTokens(user, familyID, sessionID)
	if err != nil {
		return nil, err
	}

	head := auth.TokenFamilyHead{CurrentToken: tokens.RefreshToken, UserID: user.ID}
	if err := s.store.SetTokenFamilyHead(ctx, familyID, head, s.cfg.TokenFamilyTTL); err != nil {
		logx.WithError(err).Warnf("sessionsrv: failed to write token family head for %s", familyID)
	}

	if err := s.createSession(ctx, user.ID, tokens.RefreshToken, ip, userAgent, sessionID, loginMethod); err != nil {
		return nil, err
	}

	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventSessionCreated, user.ID, map[string]any{"sessionId": sessionID, "loginMethod": loginMethod})
	})

	return tokens, nil
}

func (s *Service) mintTokens(user *auth.User, familyID, sessionID string) (*auth.TokenPair, error) {
	access, err := s.tokens.IssueAccess(user.ID, user.Email, user.Role, familyID, sessionID)
	if err != nil {
		return nil, auth.ErrTokenGenerationFailed()
	}
	refresh, err := s.tokens.IssueRefresh(user.ID, user.Email, user.Role, familyID, sessionID)
	if err != nil {
		return nil, auth.ErrTokenGenerationFailed()
	}
	return &auth.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) createSession(ctx context.Context, userID kernel.UserID, refreshToken, ip, userAgent, sessionID, loginMethod string) error {
	now := time.Now()
	session := &auth.Session{
		ID:        sessionID,
		UserID:    userID,
		Token:     refreshToken,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return err
	}

	meta := auth.SessionMeta{IP: ip, UserAgent: userAgent, LastUsedAt: now, LastLoginAt: now, LoginMethod: loginMethod}
	if err := s.store.SetSessionMeta(ctx, sessionID, meta, s.cfg.SessionMetaTTL); err != nil {
		logx.WithError(err).Warnf("sessionsrv: failed to write session meta for %s", sessionID)
	}
	return nil
}

// Refresh rotates a refresh token, detecting reuse of an already-rotated
// token via the family head.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		asyncx.DoCtx(ctx, func(ctx context.Context) {
			s.audit.Emit(ctx, auth.EventTokenRefreshFailed, kernel.UserID(""), nil)
		})
		return nil, auth.ErrInvalidRefreshToken()
	}

	if claims.FamilyID != "" {
		head, err := s.store.GetTokenFamilyHead(ctx, claims.FamilyID)
		if err != nil {
			logx.WithError(err).Warnf("sessionsrv: failed to read token family head for %s", claims.FamilyID)
		}
		if head != nil && head.CurrentToken != refreshToken {
			if derr := s.store.DeleteTokenFamilyHead(ctx, claims.FamilyID); derr != nil {
				logx.WithError(derr).Warnf("sessionsrv: failed to delete reused token family head %s", claims.FamilyID)
			}
			// Stronger-than-reference posture: also revoke every session for
			// the affected user, not just the family (resolved Open Question).
			if derr := s.RevokeAllSessions(ctx, claims.UserID); derr != nil {
				logx.WithError(derr).Warnf("sessionsrv: failed to revoke sessions after reuse for %s", claims.UserID)
			}
			asyncx.DoCtx(ctx, func(ctx context.Context) {
				s.audit.Emit(ctx, auth.EventTokenReuseDetected, claims.UserID, map[string]any{"familyId": claims.FamilyID})
			})
			return nil, auth.ErrTokenReuseDetected()
		}
	}

	session, err := s.sessions.FindByToken(ctx, refreshToken)
	if err != nil {
		return nil, auth.ErrInvalidRefreshToken()
	}
	if session.IsExpired() {
		_ = s.sessions.Delete(ctx, session.ID)
		return nil, auth.ErrExpiredRefreshToken()
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, auth.ErrInvalidRefreshToken()
	}

	var ip, userAgent, loginMethod string
	if meta, err := s.store.GetSessionMeta(ctx, session.ID); err == nil && meta != nil {
		ip, userAgent, loginMethod = meta.IP, meta.UserAgent, meta.LoginMethod
	}

	newSessionID := uuid.NewString()
	tokens, err := s.mintTokens(user, claims.FamilyID, newSessionID)
	if err != nil {
		return nil, err
	}

	head := auth.TokenFamilyHead{CurrentToken: tokens.RefreshToken, UserID: user.ID}
	if err := s.store.SetTokenFamilyHead(ctx, claims.FamilyID, head, s.cfg.TokenFamilyTTL); err != nil {
		logx.WithError(err).Warnf("sessionsrv: failed to refresh token family head for %s", claims.FamilyID)
	}

	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		logx.WithError(err).Warnf("sessionsrv: failed to delete rotated-out session %s", session.ID)
	}
	if err := s.store.DeleteSessionMeta(ctx, session.ID); err != nil {
		logx.WithError(err).Warnf("sessionsrv: failed to delete rotated-out session meta %s", session.ID)
	}
	if err := s.createSession(ctx, user.ID, tokens.RefreshToken, ip, userAgent, newSessionID, loginMethod); err != nil {
		return nil, err
	}

	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventTokenRefreshSuccess, user.ID, map[string]any{"sessionId": newSessionID})
	})

	return tokens, nil
}

// Logout deletes the Session row backing refreshToken. Idempotent: an
// unknown token is treated as success.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.sessions.FindByToken(ctx, refreshToken)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return err
	}
	if err := s.store.DeleteSessionMeta(ctx, session.ID); err != nil {
		logx.WithError(err).Warnf("sessionsrv: failed to delete session meta for %s", session.ID)
	}
	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventSessionRevoked, session.UserID, map[string]any{"sessionId": session.ID})
	})
	return nil
}

// GetSessions returns every Session row for userID merged with its
// best-effort metadata, flagging currentSessionID as current.
func (s *Service) GetSessions(ctx context.Context, userID kernel.UserID, currentSessionID string) ([]SessionView, error) {
	rows, err := s.sessions.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]SessionView, 0, len(rows))
	for _, row := range rows {
		view := SessionView{
			ID:        row.ID,
			CreatedAt: row.CreatedAt,
			ExpiresAt: row.ExpiresAt,
			IsCurrent: row.ID == currentSessionID,
		}
		if meta, err := s.store.GetSessionMeta(ctx, row.ID); err == nil && meta != nil {
			view.IP = meta.IP
			view.UserAgent = meta.UserAgent
			view.LoginMethod = meta.LoginMethod
			lastUsed, lastLogin := meta.LastUsedAt, meta.LastLoginAt
			view.LastUsedAt = &lastUsed
			view.LastLoginAt = &lastLogin
		}
		views = append(views, view)
	}
	return views, nil
}

// RevokeSession deletes sessionID, requiring it to belong to userID.
func (s *Service) RevokeSession(ctx context.Context, userID kernel.UserID, sessionID string) error {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil || session.UserID != userID {
		return auth.ErrSessionNotFound()
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return err
	}
	if err := s.store.DeleteSessionMeta(ctx, session.ID); err != nil {
		logx.WithError(err).Warnf("sessionsrv: failed to delete session meta for %s", session.ID)
	}
	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventSessionRevoked, userID, map[string]any{"sessionId": sessionID})
	})
	return nil
}

// RevokeOtherSessions deletes every session for userID except
// currentSessionID.
func (s *Service) RevokeOtherSessions(ctx context.Context, userID kernel.UserID, currentSessionID string) error {
	rows, err := s.sessions.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.ID == currentSessionID {
			continue
		}
		if err := s.sessions.Delete(ctx, row.ID); err != nil {
			logx.WithError(err).Warnf("sessionsrv: failed to delete session %s", row.ID)
			continue
		}
		if err := s.store.DeleteSessionMeta(ctx, row.ID); err != nil {
			logx.WithError(err).Warnf("sessionsrv: failed to delete session meta for %s", row.ID)
		}
	}
	asyncx.DoCtx(ctx, func(ctx context.Context) {
		s.audit.Emit(ctx, auth.EventSessionRevoked, userID, map[string]any{"scope": "others"})
	})
	return nil
}

// RevokeAllSessions deletes every session for userID, satisfying
// credentialsrv.SessionIssuer's contract for password change/reset.
func (s *Service) RevokeAllSessions(ctx context.Context, userID kernel.UserID) error {
	rows, err := s.sessions.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.store.DeleteSessionMeta(ctx, row.ID); err != nil {
			logx.WithError(err).Warnf("sessionsrv: failed to delete session meta for %s", row.ID)
		}
	}
	return s.sessions.DeleteByUserID(ctx, userID)
}
