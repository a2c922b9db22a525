package authinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
)

// PostgresSessionRepository is the Postgres implementation of
// auth.SessionRepository. Exactly one row exists per outstanding refresh
// token, enforced by a unique constraint on token.
type PostgresSessionRepository struct {
	db *sqlx.DB
}

func NewPostgresSessionRepository(db *sqlx.DB) auth.SessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Create(ctx context.Context, s *auth.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token, expires_at, created_at)
		VALUES (:id, :user_id, :token, :expires_at, :created_at)`

	_, err := r.db.NamedExecContext(ctx, query, s)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errx.Conflict("a session already exists for this refresh token")
		}
		return errx.Wrap(err, "failed to create session", errx.TypeInternal).WithDetail("session_id", s.ID)
	}
	return nil
}

func (r *PostgresSessionRepository) FindByToken(ctx context.Context, token string) (*auth.Session, error) {
	var s auth.Session
	query := `SELECT * FROM sessions WHERE token = $1`
	err := r.db.GetContext(ctx, &s, query, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrSessionNotFound()
		}
		return nil, errx.Wrap(err, "failed to find session by token", errx.TypeInternal)
	}
	return &s, nil
}

func (r *PostgresSessionRepository) FindByID(ctx context.Context, id string) (*auth.Session, error) {
	var s auth.Session
	query := `SELECT * FROM sessions WHERE id = $1`
	err := r.db.GetContext(ctx, &s, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrSessionNotFound()
		}
		return nil, errx.Wrap(err, "failed to find session by id", errx.TypeInternal)
	}
	return &s, nil
}

func (r *PostgresSessionRepository) FindByUserID(ctx context.Context, userID kernel.UserID) ([]*auth.Session, error) {
	var sessions []*auth.Session
	query := `SELECT * FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &sessions, query, userID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to find sessions by user", errx.TypeInternal)
	}
	return sessions, nil
}

func (r *PostgresSessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return errx.Wrap(err, "failed to delete session", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresSessionRepository) DeleteByUserID(ctx context.Context, userID kernel.UserID) error {
	query := `DELETE FROM sessions WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete sessions by user", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired sessions", errx.TypeInternal)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to read rows affected", errx.TypeInternal)
	}
	return n, nil
}
