// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/ideaforge/internal/model"
)

// ErrDuplicate は一意制約違反で書き込みが拒否されたことを示す。
var ErrDuplicate = errors.New("repository: duplicate key")

// AccountRepository はアカウントの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Account, error)

	// FindByProvider はproviderとprovider_idでアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByProvider(ctx context.Context, provider model.Provider, providerID string) (*model.Account, error)

	// Create はアカウントを作成し、採番されたIDとタイムスタンプをaccountに設定する。
	// (provider, provider_id) が既に存在する場合はErrDuplicateをラップしたエラーを返す。
	Create(ctx context.Context, account *model.Account) error

	// UpdateProfile はメールアドレスと表示名を更新する。
	UpdateProfile(ctx context.Context, id int64, email, displayName string, updatedAt time.Time) error

	// ExistsByRole は指定ロールのアカウントが1件以上存在するかを返す。
	ExistsByRole(ctx context.Context, role model.Role) (bool, error)

	// DeleteByID は指定IDのアカウントを削除する。
	// 関連するartifactsはCASCADE削除される。存在しない場合はfalseを返す。
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

// ArtifactRepository はブレインストーミング結果（アイデア）の永続化インターフェース。
type ArtifactRepository interface {
	// Create はアイデアを作成し、採番されたIDと作成日時をartifactに設定する。
	Create(ctx context.Context, artifact *model.Artifact) error

	// FindByID は指定IDのアイデアを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Artifact, error)

	// ListByAccountID は指定アカウントのアイデアを新しい順に返す。
	ListByAccountID(ctx context.Context, accountID int64) ([]*model.Artifact, error)

	// ListByGuestToken は指定ゲストトークンのアイデアを新しい順に返す。
	ListByGuestToken(ctx context.Context, guestToken string) ([]*model.Artifact, error)

	// CountByAccountID は指定アカウントのアイデア件数を返す。
	CountByAccountID(ctx context.Context, accountID int64) (int, error)

	// CountByGuestToken は指定ゲストトークンのアイデア件数を返す。
	CountByGuestToken(ctx context.Context, guestToken string) (int, error)

	// DeleteByID は指定IDのアイデアを削除する。存在しない場合はfalseを返す。
	DeleteByID(ctx context.Context, id int64) (bool, error)

	// ReassignGuestToAccount はゲストトークンに紐づく全アイデアの所有者をアカウントに付け替え、
	// ゲストトークンを消去する。付け替えた件数を返す。
	ReassignGuestToAccount(ctx context.Context, guestToken string, accountID int64) (int64, error)

	// DeleteGuestCreatedBefore はアカウント未紐付けかつゲストトークン付きで、
	// cutoffより前に作成されたアイデアを削除し、削除件数を返す。
	DeleteGuestCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
