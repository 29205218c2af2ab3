package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/ideaforge/internal/model"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pqUniqueViolation = "23505"

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const accountColumns = `id, email, display_name, provider, provider_id, role, created_at, updated_at`

func scanAccount(row interface{ Scan(dest ...any) error }) (*model.Account, error) {
	a := &model.Account{}
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.Provider, &a.ProviderID, &a.Role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id int64) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return a, nil
}

// FindByProvider はproviderとprovider_idでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByProvider(ctx context.Context, provider model.Provider, providerID string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE provider = $1 AND provider_id = $2`,
		provider, providerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by provider: %w", err)
	}
	return a, nil
}

// Create はアカウントを作成する。
// 一意制約 (provider, provider_id) に違反した場合はErrDuplicateをラップして返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (email, display_name, provider, provider_id, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		account.Email, account.DisplayName, account.Provider, account.ProviderID,
		account.Role, account.CreatedAt, account.UpdatedAt,
	).Scan(&account.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert account (%s, %s): %w", account.Provider, account.ProviderID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// UpdateProfile はメールアドレスと表示名を更新する。
func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, id int64, email, displayName string, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET email = $2, display_name = $3, updated_at = $4 WHERE id = $1`,
		id, email, displayName, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update account profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %d", id)
	}
	return nil
}

// ExistsByRole は指定ロールのアカウントが存在するかを返す。
func (r *PostgresAccountRepo) ExistsByRole(ctx context.Context, role model.Role) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE role = $1)`,
		role,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account role: %w", err)
	}
	return exists, nil
}

// DeleteByID は指定IDのアカウントを削除する。
func (r *PostgresAccountRepo) DeleteByID(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// isUniqueViolation はlib/pqのエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
