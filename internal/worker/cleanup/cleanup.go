// Package cleanup は送信済みリマインダーの自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過した送信済みリマインダーを日次バッチで削除する。
// 未送信のリマインダーは対象外。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SentReminderPurger は送信済みリマインダーの削除を抽象化するインターフェース。
// repository.ReminderRepositoryが満たす。
type SentReminderPurger interface {
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した送信済みリマインダーの削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	repo          SentReminderPurger
	logger        *slog.Logger
	RetentionDays int // 送信済みリマインダーの保持日数（デフォルト: 30）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(repo SentReminderPurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:          repo,
		logger:        logger,
		RetentionDays: 30,
		now:           time.Now,
	}
}

// Run はsent_atがRetentionDays日より前の送信済みリマインダーを削除し、削除件数を返す。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	if j.RetentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive: %d", j.RetentionDays)
	}
	start := j.now()
	before := start.UTC().AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.repo.DeleteSentBefore(ctx, before)
	if err != nil {
		j.logger.Error("reminder cleanup failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, fmt.Errorf("送信済みリマインダーの削除に失敗: %w", err)
	}

	j.logger.Info("reminder cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return deleted, nil
}

// Start はintervalごとにRunを実行する。コンテキストがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// エラーはRun内でログ出力済み
			_, _ = j.Run(ctx)
		}
	}
}
