// Package session はログインセッションの一覧・無効化・アクティビティ更新を提供する。
//
// セッションの状態はすべてPostgreSQLが保持し、各操作は毎回ストアを参照する。
// 無効化は単一行のUPDATEで行い、存在・所有者・有効性の確認を同じ文で判定する。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sessionboard/internal/model"
	"github.com/hitoshi/sessionboard/internal/repository"
)

// 操作名（メトリクスのラベル）
const (
	OpList   = "list"
	OpDelete = "delete"
)

// OpRecorder はセッション操作の結果を記録する。
type OpRecorder interface {
	RecordSessionOp(operation, result string)
}

// Config はセッションサービスの設定。
type Config struct {
	// TouchInterval はlast_activity_atを更新する最小間隔。
	TouchInterval time.Duration
}

// Service はセッション管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	recorder    OpRecorder
	config      Config
	now         func() time.Time
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	recorder OpRecorder,
	config Config,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		recorder:    recorder,
		config:      config,
		now:         time.Now,
	}
}

// ListActive は呼び出し元ユーザーの有効なセッションを最終アクティビティの新しい順で返す。
// 該当がない場合は空スライスを返す。
func (s *Service) ListActive(ctx context.Context, caller *model.Caller) (summaries []model.SessionSummary, err error) {
	defer func() { s.record(OpList, err) }()

	user, err := s.resolveUser(ctx, caller)
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessionRepo.ListActiveByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("セッション一覧の取得に失敗しました: %w", err)
	}

	summaries = make([]model.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, model.NewSessionSummary(sess, caller.ProviderSessionID))
	}
	return summaries, nil
}

// Delete は呼び出し元ユーザーが所有する有効なセッションを無効化する。
// 存在しない・他ユーザーのもの・既に無効のいずれもSESSION_NOT_FOUND_OR_INACTIVEとなり、区別しない。
// 冪等ではなく、2回目の呼び出しはエラーになる。
func (s *Service) Delete(ctx context.Context, caller *model.Caller, sessionID string) (err error) {
	defer func() { s.record(OpDelete, err) }()

	if caller == nil {
		return model.NewUnauthorizedError()
	}
	if sessionID == "" {
		return model.NewInvalidArgumentError("セッションIDは必須です")
	}
	if _, parseErr := uuid.Parse(sessionID); parseErr != nil {
		return model.NewInvalidArgumentError("セッションIDの形式が不正です")
	}

	user, err := s.resolveUser(ctx, caller)
	if err != nil {
		return err
	}

	ok, err := s.sessionRepo.Deactivate(ctx, sessionID, user.ID, s.now())
	if err != nil {
		return fmt.Errorf("セッションの無効化に失敗しました: %w", err)
	}
	if !ok {
		return model.NewSessionNotFoundOrInactiveError()
	}

	slog.Info("session revoked",
		slog.String("user_id", user.ID),
		slog.String("session_id", sessionID),
	)
	return nil
}

// Touch は現在のセッションのlast_activity_atを更新する。
// 前回の更新からTouchIntervalが経過していない場合は書き込まない。
func (s *Service) Touch(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	now := s.now()
	if _, err := s.sessionRepo.Touch(ctx, sessionID, now, now.Add(-s.config.TouchInterval)); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (s *Service) resolveUser(ctx context.Context, caller *model.Caller) (*model.User, error) {
	if caller == nil {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByExternalID(ctx, caller.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) record(op string, err error) {
	if s.recorder == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = model.ErrCodeInternal
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			result = apiErr.Code
		}
	}
	s.recorder.RecordSessionOp(op, result)
}
