package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/ideaforge/internal/model"
	"github.com/hitoshi/ideaforge/internal/repository"
)

// AccountResolver は正規化済みのIDから既存アカウントを特定し、無ければ作成する。
type AccountResolver struct {
	accounts repository.AccountRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewAccountResolver はAccountResolverを生成する。
func NewAccountResolver(accounts repository.AccountRepository, logger *slog.Logger) *AccountResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountResolver{
		accounts: accounts,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve は (provider, providerID) でアカウントを検索する。
// 見つかった場合はメールアドレスと表示名を最新の値で上書きし、
// 見つからない場合はロールUSERで新規作成する。書き込みは1回だけ行う。
//
// 同じ未登録IDで同時にログインした場合、一意制約で負けた側は
// 既に作成された行を再検索してそのアカウントを返す。
func (r *AccountResolver) Resolve(ctx context.Context, identity *model.CanonicalIdentity) (*model.Account, error) {
	if identity.Email == "" {
		return nil, model.NewEmailRequiredError(string(identity.Provider))
	}

	// 1. 既存アカウントを検索
	existing, err := r.accounts.FindByProvider(ctx, identity.Provider, identity.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if existing != nil {
		return r.refreshProfile(ctx, existing, identity)
	}

	// 2. 新規作成
	now := r.now()
	account := &model.Account{
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Provider:    identity.Provider,
		ProviderID:  identity.ProviderID,
		Role:        model.RoleUser,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = r.accounts.Create(ctx, account)
	if err == nil {
		r.logger.Info("account created",
			slog.Int64("account_id", account.ID),
			slog.String("provider", string(account.Provider)),
		)
		return account, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	// 3. 同時ログインで先に作成されていた場合は再検索する
	winner, err := r.accounts.FindByProvider(ctx, identity.Provider, identity.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-resolve account: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("account (%s, %s) vanished after duplicate insert", identity.Provider, identity.ProviderID)
	}
	r.logger.Info("account creation lost race, re-resolved",
		slog.Int64("account_id", winner.ID),
		slog.String("provider", string(identity.Provider)),
	)
	return r.refreshProfile(ctx, winner, identity)
}

func (r *AccountResolver) refreshProfile(ctx context.Context, account *model.Account, identity *model.CanonicalIdentity) (*model.Account, error) {
	now := r.now()
	if err := r.accounts.UpdateProfile(ctx, account.ID, identity.Email, identity.DisplayName, now); err != nil {
		return nil, fmt.Errorf("failed to update account profile: %w", err)
	}
	account.Email = identity.Email
	account.DisplayName = identity.DisplayName
	account.UpdatedAt = now
	return account, nil
}
