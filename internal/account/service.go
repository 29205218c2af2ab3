// Package account はアカウントの参照、削除、初期管理者の作成を提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/ideaforge/internal/model"
	"github.com/hitoshi/ideaforge/internal/repository"
)

// AdminProviderID は初期管理者アカウントのprovider_id。
const AdminProviderID = "ADMIN_ACCOUNT"

// Service はアカウント管理のサービス層。
type Service struct {
	accounts repository.AccountRepository
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accounts repository.AccountRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{accounts: accounts, logger: logger}
}

// Get は指定IDのアカウントを返す。存在しない場合はNotFoundエラーを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewNotFoundError("アカウント", id)
	}
	return account, nil
}

// Delete は指定IDのアカウントを削除する。アカウントが所有するアイデアはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.accounts.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("アカウント", id)
	}

	s.logger.Info("account deleted", slog.Int64("account_id", id))
	return nil
}

// EnsureAdmin は管理者アカウントが1件も無い場合に限り、LOCALプロバイダーの管理者を作成する。
// 作成した場合はtrueを返す。
func (s *Service) EnsureAdmin(ctx context.Context, email, displayName string) (bool, error) {
	exists, err := s.accounts.ExistsByRole(ctx, model.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("管理者アカウントの確認に失敗しました: %w", err)
	}
	if exists {
		return false, nil
	}

	now := time.Now()
	admin := &model.Account{
		Email:       email,
		DisplayName: displayName,
		Provider:    model.ProviderLocal,
		ProviderID:  AdminProviderID,
		Role:        model.RoleAdmin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.accounts.Create(ctx, admin); err != nil {
		return false, fmt.Errorf("管理者アカウントの作成に失敗しました: %w", err)
	}

	s.logger.Info("admin account created",
		slog.Int64("account_id", admin.ID),
		slog.String("email", email),
	)
	return true, nil
}
