package authinfra

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
)

// PostgresUserProfileRepository is the Postgres implementation of
// auth.UserProfileRepository.
type PostgresUserProfileRepository struct {
	db *sqlx.DB
}

func NewPostgresUserProfileRepository(db *sqlx.DB) auth.UserProfileRepository {
	return &PostgresUserProfileRepository{db: db}
}

func (r *PostgresUserProfileRepository) Upsert(ctx context.Context, p *auth.UserProfile) error {
	query := `
		INSERT INTO user_profiles (user_id, display_name, avatar_url, updated_at)
		VALUES (:user_id, :display_name, :avatar_url, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return errx.Wrap(err, "failed to upsert user profile", errx.TypeInternal).WithDetail("user_id", p.UserID.String())
	}
	return nil
}

func (r *PostgresUserProfileRepository) FindByUserID(ctx context.Context, userID kernel.UserID) (*auth.UserProfile, error) {
	var p auth.UserProfile
	query := `SELECT * FROM user_profiles WHERE user_id = $1`
	err := r.db.GetContext(ctx, &p, query, userID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.NotFound("user profile not found")
		}
		return nil, errx.Wrap(err, "failed to find user profile", errx.TypeInternal)
	}
	return &p, nil
}
