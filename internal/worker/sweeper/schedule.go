package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TimeOfDay は1日の中の実行時刻（ローカル時刻）。
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay は "HH:MM" 形式の文字列をTimeOfDayに変換する。
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM): %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// NextRunAt はnow以降で最初にtに一致する時刻を返す。nowがちょうどtの場合は翌日を返す。
func NextRunAt(now time.Time, t TimeOfDay) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start は毎日atの時刻にRunを実行する。コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context, at TimeOfDay) {
	s.logger.Info("ゲストアイデアの削除スケジューラを開始しました",
		slog.String("time_of_day", at.String()),
		slog.Duration("retention", s.Retention),
	)

	for {
		next := NextRunAt(s.now(), at)
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("ゲストアイデアの削除スケジューラを停止しました")
			return
		case <-timer.C:
			// エラーはRun内でログ出力済み。翌日に再試行する。
			_, _ = s.Run(ctx)
		}
	}
}
