package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/sessionboard/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByExternalID はIdPのsubjectでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, external_id, email, given_name, family_name, picture, created_at, updated_at
		 FROM users
		 WHERE external_id = $1`,
		externalID,
	).Scan(
		&user.ID, &user.ExternalID, &user.Email, &user.GivenName, &user.FamilyName,
		&user.Picture, &user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}

	return user, nil
}

// UpsertByExternalID はexternal_idをキーにユーザーを作成または更新する。
// 競合時はid、created_atを維持し、プロフィール項目とupdated_atのみ更新する。
func (r *PostgresUserRepo) UpsertByExternalID(ctx context.Context, user *model.User) (*model.User, error) {
	saved := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, external_id, email, given_name, family_name, picture, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (external_id) DO UPDATE SET
		   email = EXCLUDED.email,
		   given_name = EXCLUDED.given_name,
		   family_name = EXCLUDED.family_name,
		   picture = EXCLUDED.picture,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, external_id, email, given_name, family_name, picture, created_at, updated_at`,
		user.ID, user.ExternalID, user.Email, user.GivenName, user.FamilyName,
		user.Picture, user.CreatedAt, user.UpdatedAt,
	).Scan(
		&saved.ID, &saved.ExternalID, &saved.Email, &saved.GivenName, &saved.FamilyName,
		&saved.Picture, &saved.CreatedAt, &saved.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return saved, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
