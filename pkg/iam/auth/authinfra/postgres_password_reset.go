package authinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam/auth"
)

// PostgresPasswordResetRepository is the Postgres implementation of
// auth.PasswordResetRepository.
type PostgresPasswordResetRepository struct {
	db *sqlx.DB
}

func NewPostgresPasswordResetRepository(db *sqlx.DB) auth.PasswordResetRepository {
	return &PostgresPasswordResetRepository{db: db}
}

func (r *PostgresPasswordResetRepository) Create(ctx context.Context, p *auth.PasswordReset) error {
	query := `
		INSERT INTO password_resets (id, user_id, token, expires_at, used, used_at, created_at)
		VALUES (:id, :user_id, :token, :expires_at, :used, :used_at, :created_at)`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return errx.Wrap(err, "failed to create password reset", errx.TypeInternal).WithDetail("reset_id", p.ID)
	}
	return nil
}

func (r *PostgresPasswordResetRepository) FindByToken(ctx context.Context, token string) (*auth.PasswordReset, error) {
	var p auth.PasswordReset
	query := `SELECT * FROM password_resets WHERE token = $1`
	err := r.db.GetContext(ctx, &p, query, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrInvalidResetToken()
		}
		return nil, errx.Wrap(err, "failed to find password reset", errx.TypeInternal)
	}
	return &p, nil
}

func (r *PostgresPasswordResetRepository) MarkUsed(ctx context.Context, id string) error {
	now := time.Now()
	query := `UPDATE password_resets SET used = true, used_at = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return errx.Wrap(err, "failed to mark password reset as used", errx.TypeInternal)
	}
	return checkRowsAffected(result, auth.ErrInvalidResetToken())
}

func (r *PostgresPasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM password_resets WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired password resets", errx.TypeInternal)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to read rows affected", errx.TypeInternal)
	}
	return n, nil
}
