// Package sweeper は保持期間を過ぎたゲスト所有アイデアの自動削除ジョブを提供する。
// アカウントに付け替えられていないアイデアのうち、作成から保持期間（デフォルト24時間）を
// 超えたものを日次バッチで削除する。
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention はゲスト所有アイデアのデフォルト保持期間。
const DefaultRetention = 24 * time.Hour

// GuestArtifactDeleter はゲスト所有アイデアの削除を抽象化する。
// repository.ArtifactRepository が実装する。
type GuestArtifactDeleter interface {
	DeleteGuestCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepRecorder は削除件数を記録する。
type SweepRecorder interface {
	RecordSweep(deleted int64, err error)
}

// Sweeper は保持期間を超過したゲスト所有アイデアの削除ジョブ。
// 削除条件を満たすものがなくてもエラーにならず、何度実行しても結果は同じ。
type Sweeper struct {
	artifacts GuestArtifactDeleter
	recorder  SweepRecorder
	logger    *slog.Logger
	Retention time.Duration
	now       func() time.Time
}

// New は新しいSweeperを生成する。retentionが0以下の場合はDefaultRetentionを使う。
func New(artifacts GuestArtifactDeleter, recorder SweepRecorder, retention time.Duration, logger *slog.Logger) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Sweeper{
		artifacts: artifacts,
		recorder:  recorder,
		logger:    logger,
		Retention: retention,
		now:       time.Now,
	}
}

// Run は現在時刻からRetentionを引いた時刻より前に作成されたゲスト所有アイデアを削除し、
// 削除件数を返す。保持期間内のアイデアには触れない。
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	start := s.now()
	cutoff := start.Add(-s.Retention)

	deleted, err := s.artifacts.DeleteGuestCreatedBefore(ctx, cutoff)
	if s.recorder != nil {
		s.recorder.RecordSweep(deleted, err)
	}
	if err != nil {
		s.logger.Error("ゲストアイデアの削除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", s.Retention),
		)
		return 0, fmt.Errorf("ゲストアイデアの削除に失敗: %w", err)
	}

	s.logger.Info("ゲストアイデアの削除ジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
	)
	return deleted, nil
}
