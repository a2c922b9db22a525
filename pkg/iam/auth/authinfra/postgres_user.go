package authinfra

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
)

// PostgresUserRepository is the Postgres implementation of auth.UserRepository.
type PostgresUserRepository struct {
	db *sqlx.DB
}

func NewPostgresUserRepository(db *sqlx.DB) auth.UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *auth.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, user_name, role, email_verified, is_active, is_suspended, created_at, updated_at)
		VALUES (:id, :email, :password_hash, :first_name, :last_name, :user_name, :role, :email_verified, :is_active, :is_suspended, :created_at, :updated_at)`

	_, err := r.db.NamedExecContext(ctx, query, u)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return auth.ErrEmailTaken()
		}
		return errx.Wrap(err, "failed to create user", errx.TypeInternal).WithDetail("user_id", u.ID.String())
	}
	return nil
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id kernel.UserID) (*auth.User, error) {
	var u auth.User
	query := `SELECT * FROM users WHERE id = $1`
	err := r.db.GetContext(ctx, &u, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.NotFound("user not found")
		}
		return nil, errx.Wrap(err, "failed to find user by id", errx.TypeInternal)
	}
	return &u, nil
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	var u auth.User
	query := `SELECT * FROM users WHERE email = $1`
	err := r.db.GetContext(ctx, &u, query, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.NotFound("user not found")
		}
		return nil, errx.Wrap(err, "failed to find user by email", errx.TypeInternal)
	}
	return &u, nil
}

func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id kernel.UserID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, passwordHash, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to update password", errx.TypeInternal)
	}
	return checkRowsAffected(result, errx.NotFound("user not found"))
}

func (r *PostgresUserRepository) UpdateEmailVerified(ctx context.Context, id kernel.UserID, verified bool) error {
	query := `UPDATE users SET email_verified = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, verified, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to update email_verified", errx.TypeInternal)
	}
	return checkRowsAffected(result, errx.NotFound("user not found"))
}

func (r *PostgresUserRepository) Delete(ctx context.Context, id kernel.UserID) error {
	query := `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete user", errx.TypeInternal)
	}
	return checkRowsAffected(result, errx.NotFound("user not found"))
}

func checkRowsAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to read rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
