package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/ideaforge/internal/model"
	"github.com/hitoshi/ideaforge/internal/repository"
)

// Reconciler はゲストトークンで作成されたアイデアをアカウントへ付け替える。
type Reconciler struct {
	artifacts repository.ArtifactRepository
	logger    *slog.Logger
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
func NewReconciler(artifacts repository.ArtifactRepository, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{artifacts: artifacts, logger: logger}
}

// Reconcile はguestTokenに紐づく全アイデアの所有者をaccountIDに変更し、件数を返す。
// 付け替え済みまたは未使用のトークンでは0を返す。同じ引数で繰り返し呼んでも安全。
func (r *Reconciler) Reconcile(ctx context.Context, guestToken string, accountID int64) (int, error) {
	guestToken = strings.TrimSpace(guestToken)
	if guestToken == "" {
		return 0, model.NewValidationError("guestSessionToken は必須です")
	}
	if accountID <= 0 {
		return 0, model.NewValidationError("accountId が不正です")
	}

	n, err := r.artifacts.ReassignGuestToAccount(ctx, guestToken, accountID)
	if err != nil {
		return 0, fmt.Errorf("ゲストアイデアの付け替えに失敗しました: %w", err)
	}

	if n > 0 {
		r.logger.Info("ゲストアイデアをアカウントに付け替えました",
			slog.Int64("account_id", accountID),
			slog.Int64("count", n),
		)
	}
	return int(n), nil
}
