// Package user はユーザーのプロビジョニングとプロフィール参照を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sessionboard/internal/identity"
	"github.com/hitoshi/sessionboard/internal/model"
	"github.com/hitoshi/sessionboard/internal/repository"
	"github.com/hitoshi/sessionboard/internal/security"
)

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer *security.ProfileSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer *security.ProfileSanitizer) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Provision はIDトークンのクレームからユーザーを作成または更新する。
// 外部IDごとに内部ユーザーは1件のみ存在する。
func (s *Service) Provision(ctx context.Context, claims identity.Claims) (*model.User, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("subject claim is required")
	}

	now := s.now()
	user, err := s.userRepo.UpsertByExternalID(ctx, &model.User{
		ID:         uuid.New().String(),
		ExternalID: claims.Subject,
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		Picture:    claims.Picture,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("ユーザーの登録に失敗しました: %w", err)
	}

	slog.Info("user provisioned",
		slog.String("user_id", user.ID),
		slog.Bool("created", user.CreatedAt.Equal(now)),
	)
	return user, nil
}

// Resolve は呼び出し元に対応するユーザーをストアから取得する。
func (s *Service) Resolve(ctx context.Context, caller *model.Caller) (*model.User, error) {
	if caller == nil || caller.ExternalID == "" {
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

// Profile はAPI返却用のサニタイズ済みプロフィールを返す。
func (s *Service) Profile(u *model.User) model.Profile {
	return s.sanitizer.Profile(u)
}
