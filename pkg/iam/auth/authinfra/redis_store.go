package authinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/meridianid/authd/pkg/iam"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
	"github.com/meridianid/authd/pkg/logx"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements auth.EphemeralStore backed by Redis. Every method
// is best-effort: a Redis error is logged and returned to the caller, who
// is expected to treat ephemeral-store failure as non-fatal to the durable
// operation it supports.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func loginAttemptsKey(email string) string { return fmt.Sprintf("login_attempts:%s", email) }
func loginAttemptsCounterKey(email string) string {
	return fmt.Sprintf("login_attempts_count:%s", email)
}
func tokenFamilyKey(familyID string) string { return fmt.Sprintf("token_family:%s", familyID) }
func sessionMetaKey(sessionID string) string { return fmt.Sprintf("session_meta:%s", sessionID) }
func csrfKey(token string) string           { return fmt.Sprintf("csrf:%s", token) }
func oauthStateKey(nonce string) string     { return fmt.Sprintf("oauth:state:%s", nonce) }
func userKey(id kernel.UserID) string       { return fmt.Sprintf("user:%s", id.String()) }

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// ============================================================================
// Login attempts / lockout
// ============================================================================

func (s *RedisStore) GetLoginAttempts(ctx context.Context, email string) (*auth.LoginAttempts, error) {
	data, err := s.rdb.Get(ctx, loginAttemptsKey(email)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Warnf("ephemeral store: get login attempts failed: %v", err)
		return nil, err
	}
	var attempts auth.LoginAttempts
	if err := json.Unmarshal(data, &attempts); err != nil {
		return nil, err
	}
	return &attempts, nil
}

func (s *RedisStore) SetLoginAttempts(ctx context.Context, email string, attempts auth.LoginAttempts, ttl time.Duration) error {
	data, err := json.Marshal(attempts)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, loginAttemptsKey(email), data, ttl).Err(); err != nil {
		logx.Warnf("ephemeral store: set login attempts failed: %v", err)
		return err
	}
	return nil
}

func (s *RedisStore) DeleteLoginAttempts(ctx context.Context, email string) error {
	if err := s.rdb.Del(ctx, loginAttemptsKey(email), loginAttemptsCounterKey(email)).Err(); err != nil {
		logx.Warnf("ephemeral store: delete login attempts failed: %v", err)
		return err
	}
	return nil
}

// IncrLoginAttempts uses Redis INCR, which the server executes atomically,
// so concurrent failed logins for the same email never clobber each
// other's increment the way a GET-then-SET round trip would. The TTL is
// armed only on the first increment (count == 1) so later increments don't
// keep sliding the window forward.
func (s *RedisStore) IncrLoginAttempts(ctx context.Context, email string, ttl time.Duration) (int, error) {
	key := loginAttemptsCounterKey(email)
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		logx.Warnf("ephemeral store: incr login attempts failed: %v", err)
		return 0, err
	}
	if count == 1 {
		if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			logx.Warnf("ephemeral store: expire login attempts counter failed: %v", err)
		}
	}
	return int(count), nil
}

// ============================================================================
// Token family heads
// ============================================================================

func (s *RedisStore) GetTokenFamilyHead(ctx context.Context, familyID string) (*auth.TokenFamilyHead, error) {
	data, err := s.rdb.Get(ctx, tokenFamilyKey(familyID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Warnf("ephemeral store: get token family head failed: %v", err)
		return nil, err
	}
	var head auth.TokenFamilyHead
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	return &head, nil
}

func (s *RedisStore) SetTokenFamilyHead(ctx context.Context, familyID string, head auth.TokenFamilyHead, ttl time.Duration) error {
	data, err := json.Marshal(head)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, tokenFamilyKey(familyID), data, ttl).Err(); err != nil {
		logx.Warnf("ephemeral store: set token family head failed: %v", err)
		return err
	}
	return nil
}

func (s *RedisStore) DeleteTokenFamilyHead(ctx context.Context, familyID string) error {
	if err := s.rdb.Del(ctx, tokenFamilyKey(familyID)).Err(); err != nil {
		logx.Warnf("ephemeral store: delete token family head failed: %v", err)
		return err
	}
	return nil
}

// ============================================================================
// Session metadata
// ============================================================================

func (s *RedisStore) GetSessionMeta(ctx context.Context, sessionID string) (*auth.SessionMeta, error) {
	data, err := s.rdb.Get(ctx, sessionMetaKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Warnf("ephemeral store: get session meta failed: %v", err)
		return nil, err
	}
	var meta auth.SessionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *RedisStore) SetSessionMeta(ctx context.Context, sessionID string, meta auth.SessionMeta, ttl time.Duration) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, sessionMetaKey(sessionID), data, ttl).Err(); err != nil {
		logx.Warnf("ephemeral store: set session meta failed: %v", err)
		return err
	}
	return nil
}

func (s *RedisStore) DeleteSessionMeta(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, sessionMetaKey(sessionID)).Err(); err != nil {
		logx.Warnf("ephemeral store: delete session meta failed: %v", err)
		return err
	}
	return nil
}

// ============================================================================
// CSRF tokens
// ============================================================================

func (s *RedisStore) SetCSRFToken(ctx context.Context, token string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, csrfKey(token), time.Now().Unix(), ttl).Err(); err != nil {
		logx.Warnf("ephemeral store: set csrf token failed: %v", err)
		return err
	}
	return nil
}

func (s *RedisStore) ExistsCSRFToken(ctx context.Context, token string) (bool, error) {
	n, err := s.rdb.Exists(ctx, csrfKey(token)).Result()
	if err != nil {
		logx.Warnf("ephemeral store: exists csrf token failed: %v", err)
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) DeleteCSRFToken(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, csrfKey(token)).Err(); err != nil {
		logx.Warnf("ephemeral store: delete csrf token failed: %v", err)
		return err
	}
	return nil
}

// ============================================================================
// OAuth state
// ============================================================================

type oauthStateValue struct {
	Provider  iam.OAuthProvider `json:"provider"`
	Timestamp time.Time         `json:"timestamp"`
}

func (s *RedisStore) SetOAuthState(ctx context.Context, nonce string, provider iam.OAuthProvider, ttl time.Duration) error {
	data, err := json.Marshal(oauthStateValue{Provider: provider, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, oauthStateKey(nonce), data, ttl).Err(); err != nil {
		logx.Warnf("ephemeral store: set oauth state failed: %v", err)
		return err
	}
	return nil
}

func (s *RedisStore) GetOAuthState(ctx context.Context, nonce string) (iam.OAuthProvider, bool, error) {
	data, err := s.rdb.Get(ctx, oauthStateKey(nonce)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		logx.Warnf("ephemeral store: get oauth state failed: %v", err)
		return "", false, err
	}
	var v oauthStateValue
	if err := json.Unmarshal(data, &v); err != nil {
		return "", false, err
	}
	return v.Provider, true, nil
}

func (s *RedisStore) DeleteOAuthState(ctx context.Context, nonce string) error {
	if err := s.rdb.Del(ctx, oauthStateKey(nonce)).Err(); err != nil {
		logx.Warnf("ephemeral store: delete oauth state failed: %v", err)
		return err
	}
	return nil
}

// ============================================================================
// User cache
// ============================================================================

func (s *RedisStore) GetUser(ctx context.Context, userID kernel.UserID) (*auth.User, error) {
	data, err := s.rdb.Get(ctx, userKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Warnf("ephemeral store: get user cache failed: %v", err)
		return nil, err
	}
	var u auth.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *RedisStore) SetUser(ctx context.Context, user *auth.User, ttl time.Duration) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, userKey(user.ID), data, ttl).Err(); err != nil {
		logx.Warnf("ephemeral store: set user cache failed: %v", err)
		return err
	}
	return nil
}

func (s *RedisStore) DeleteUser(ctx context.Context, userID kernel.UserID) error {
	if err := s.rdb.Del(ctx, userKey(userID)).Err(); err != nil {
		logx.Warnf("ephemeral store: delete user cache failed: %v", err)
		return err
	}
	return nil
}

// ============================================================================
// Sweeper support
// ============================================================================

func (s *RedisStore) ListTokenFamilyIDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.rdb.Scan(ctx, 0, "token_family:*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), "token_family:"))
	}
	if err := iter.Err(); err != nil {
		logx.Warnf("ephemeral store: scan token families failed: %v", err)
		return nil, err
	}
	return ids, nil
}

func (s *RedisStore) ScanDeleteTokenFamilies(ctx context.Context, familyIDs []string) error {
	if len(familyIDs) == 0 {
		return nil
	}
	keys := make([]string, len(familyIDs))
	for i, id := range familyIDs {
		keys[i] = tokenFamilyKey(id)
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		logx.Warnf("ephemeral store: scan-delete token families failed: %v", err)
		return err
	}
	return nil
}
