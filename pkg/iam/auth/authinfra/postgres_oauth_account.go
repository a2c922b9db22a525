package authinfra

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
)

// PostgresOAuthAccountRepository is the Postgres implementation of
// auth.OAuthAccountRepository. Enforces uniqueness on (provider, provider_id).
type PostgresOAuthAccountRepository struct {
	db *sqlx.DB
}

func NewPostgresOAuthAccountRepository(db *sqlx.DB) auth.OAuthAccountRepository {
	return &PostgresOAuthAccountRepository{db: db}
}

func (r *PostgresOAuthAccountRepository) Create(ctx context.Context, a *auth.OAuthAccount) error {
	query := `
		INSERT INTO oauth_accounts (id, user_id, provider, provider_id, access_token, refresh_token, created_at)
		VALUES (:id, :user_id, :provider, :provider_id, :access_token, :refresh_token, :created_at)`

	_, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errx.Conflict("this provider account is already linked")
		}
		return errx.Wrap(err, "failed to create oauth account", errx.TypeInternal).WithDetail("oauth_account_id", a.ID)
	}
	return nil
}

func (r *PostgresOAuthAccountRepository) FindByProviderID(ctx context.Context, provider iam.OAuthProvider, providerID string) (*auth.OAuthAccount, error) {
	var a auth.OAuthAccount
	query := `SELECT * FROM oauth_accounts WHERE provider = $1 AND provider_id = $2`
	err := r.db.GetContext(ctx, &a, query, provider, providerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.NotFound("oauth account not found")
		}
		return nil, errx.Wrap(err, "failed to find oauth account", errx.TypeInternal)
	}
	return &a, nil
}

func (r *PostgresOAuthAccountRepository) FindByUserID(ctx context.Context, userID kernel.UserID) ([]*auth.OAuthAccount, error) {
	var accounts []*auth.OAuthAccount
	query := `SELECT * FROM oauth_accounts WHERE user_id = $1 ORDER BY created_at ASC`
	err := r.db.SelectContext(ctx, &accounts, query, userID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to find oauth accounts by user", errx.TypeInternal)
	}
	return accounts, nil
}

func (r *PostgresOAuthAccountRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM oauth_accounts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return errx.Wrap(err, "failed to delete oauth account", errx.TypeInternal)
	}
	return checkRowsAffected(result, errx.NotFound("oauth account not found"))
}
