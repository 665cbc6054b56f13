package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/sessionboard/internal/model"
)

// sessionColumns はセッション取得時のSELECT列。scanSessionの順序と一致させる。
const sessionColumns = `id, user_id, provider_session_id, user_agent, ip_address,
	created_at, last_activity_at, expires_at, active`

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, provider_session_id, user_agent, ip_address,
		   created_at, last_activity_at, expires_at, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		session.ID, session.UserID, session.ProviderSessionID, session.UserAgent, session.IPAddress,
		session.CreatedAt, session.LastActivityAt, session.ExpiresAt, session.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindActiveByID はIDで有効かつ期限内のセッションを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindActiveByID(ctx context.Context, sessionID string, now time.Time) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE id = $1 AND active = true AND expires_at > $2`,
		sessionID, now,
	)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// FindActiveByProviderSessionID はユーザーのIdPセッションIDに対応する有効かつ期限内のセッションを取得する。
// 複数ある場合は最も新しいものを返す。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindActiveByProviderSessionID(ctx context.Context, userID, providerSessionID string, now time.Time) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_id = $1 AND provider_session_id = $2 AND active = true AND expires_at > $3
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, providerSessionID, now,
	)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// ListActiveByUserID はユーザーの有効なセッションを最終アクティビティの新しい順で返す。
func (r *PostgresSessionRepo) ListActiveByUserID(ctx context.Context, userID string) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_id = $1 AND active = true
		 ORDER BY last_activity_at DESC, created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*model.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// Deactivate はユーザー所有の有効なセッションを論理削除する。
// 存在確認・所有者確認・有効確認をWHERE句にまとめ、単一行のUPDATEで完結させる。
func (r *PostgresSessionRepo) Deactivate(ctx context.Context, sessionID, userID string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET active = false, last_activity_at = $3
		 WHERE id = $1 AND user_id = $2 AND active = true`,
		sessionID, userID, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Touch はIDで指定した有効なセッションのlast_activity_atを更新する。
// last_activity_atがstaleBeforeより新しい場合は書き込みを行わない。
func (r *PostgresSessionRepo) Touch(ctx context.Context, sessionID string, now, staleBefore time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET last_activity_at = $2
		 WHERE id = $1 AND active = true AND last_activity_at < $3`,
		sessionID, now, staleBefore,
	)
	if err != nil {
		return false, fmt.Errorf("failed to touch session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(s rowScanner) (*model.Session, error) {
	session := &model.Session{}
	err := s.Scan(
		&session.ID, &session.UserID, &session.ProviderSessionID, &session.UserAgent, &session.IPAddress,
		&session.CreatedAt, &session.LastActivityAt, &session.ExpiresAt, &session.Active,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
