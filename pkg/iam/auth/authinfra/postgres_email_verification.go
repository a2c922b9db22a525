package authinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam/auth"
)

// PostgresEmailVerificationRepository is the Postgres implementation of
// auth.EmailVerificationRepository. Rows are never deleted by the sweeper;
// consumed tokens remain for audit.
type PostgresEmailVerificationRepository struct {
	db *sqlx.DB
}

func NewPostgresEmailVerificationRepository(db *sqlx.DB) auth.EmailVerificationRepository {
	return &PostgresEmailVerificationRepository{db: db}
}

func (r *PostgresEmailVerificationRepository) Create(ctx context.Context, v *auth.EmailVerification) error {
	query := `
		INSERT INTO email_verifications (id, user_id, token, verified, verified_at, created_at)
		VALUES (:id, :user_id, :token, :verified, :verified_at, :created_at)`

	_, err := r.db.NamedExecContext(ctx, query, v)
	if err != nil {
		return errx.Wrap(err, "failed to create email verification", errx.TypeInternal).WithDetail("verification_id", v.ID)
	}
	return nil
}

func (r *PostgresEmailVerificationRepository) FindByToken(ctx context.Context, token string) (*auth.EmailVerification, error) {
	var v auth.EmailVerification
	query := `SELECT * FROM email_verifications WHERE token = $1`
	err := r.db.GetContext(ctx, &v, query, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrInvalidVerificationToken()
		}
		return nil, errx.Wrap(err, "failed to find email verification", errx.TypeInternal)
	}
	return &v, nil
}

func (r *PostgresEmailVerificationRepository) MarkVerified(ctx context.Context, id string) error {
	now := time.Now()
	query := `UPDATE email_verifications SET verified = true, verified_at = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return errx.Wrap(err, "failed to mark email verification as verified", errx.TypeInternal)
	}
	return checkRowsAffected(result, auth.ErrInvalidVerificationToken())
}
