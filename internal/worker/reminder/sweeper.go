// Package reminder はリマインダーメールのバックグラウンド送信を提供する。
// スイーパー、メール送信、リトライ/バックオフ戦略を含む。
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/repository"
)

const (
	// defaultMaxConcurrency は同時送信数の既定値。
	defaultMaxConcurrency = 5
	// defaultBatchSize は1サイクルで取得するリマインダーの上限。
	defaultBatchSize = 100
	// claimLease は取得したリマインダーを他のワーカーから隠す時間。
	// 送信中にプロセスが落ちた場合、この時間の経過後に再取得される。
	claimLease = 5 * time.Minute
)

// Recorder は送信結果のメトリクスを記録する。
type Recorder interface {
	RecordReminderSent()
	RecordReminderFailure()
}

// Sweeper は送信時刻を過ぎたリマインダーを定期的に取得して送信する。
// 取得はFOR UPDATE SKIP LOCKEDで行うため、複数のワーカーを同時に動かしても二重送信しない。
type Sweeper struct {
	repo           repository.ReminderRepository
	notifier       Notifier
	recorder       Recorder
	logger         *slog.Logger
	maxConcurrency int
	batchSize      int
	now            func() time.Time
}

// NewSweeper はSweeperの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。recorderはnilでもよい。
func NewSweeper(
	repo repository.ReminderRepository,
	notifier Notifier,
	recorder Recorder,
	logger *slog.Logger,
	maxConcurrency int,
) *Sweeper {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &Sweeper{
		repo:           repo,
		notifier:       notifier,
		recorder:       recorder,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		batchSize:      defaultBatchSize,
		now:            time.Now,
	}
}

// Start は指定間隔のティッカーでスイーパーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("reminder sweeper started",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder sweeper stopped")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Sweeper) runAndLog(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("reminder sweep failed",
			slog.String("error", err.Error()),
		)
	}
}

// Result は1サイクルの送信結果。
type Result struct {
	Claimed int
	Sent    int
	Failed  int
}

// RunOnce は送信時刻を過ぎたリマインダーを1回取得し、並列で送信する。
// 送信に成功したものだけを送信済みにし、失敗したものは次回試行時刻を延ばして未送信のまま残す。
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	start := s.now()

	due, err := s.repo.ClaimDue(ctx, start.UTC(), claimLease, s.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("failed to claim due reminders: %w", err)
	}
	if len(due) == 0 {
		return Result{}, nil
	}

	s.logger.Info("reminder sweep started",
		slog.Int("reminder_count", len(due)),
	)

	var (
		mu  sync.Mutex
		res = Result{Claimed: len(due)}
		wg  sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(s.maxConcurrency))

	for _, rem := range due {
		if err := sem.Acquire(ctx, 1); err != nil {
			// キャンセルされた。未処理分はリース切れ後に再取得される
			break
		}
		wg.Add(1)
		go func(r *model.Reminder) {
			defer wg.Done()
			defer sem.Release(1)

			sent := s.deliver(ctx, r)
			mu.Lock()
			if sent {
				res.Sent++
			} else {
				res.Failed++
			}
			mu.Unlock()
		}(rem)
	}
	wg.Wait()

	s.logger.Info("reminder sweep completed",
		slog.Int("reminder_count", res.Claimed),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
		slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
	)
	return res, nil
}

// deliver は1件を送信し、結果を永続化する。送信済みにできた場合はtrueを返す。
func (s *Sweeper) deliver(ctx context.Context, rem *model.Reminder) bool {
	sendErr := s.notifier.Send(ctx, rem)
	now := s.now().UTC()

	if sendErr == nil {
		if err := s.repo.MarkSent(ctx, rem.ID, now); err != nil {
			// 送信済みだが記録できなかった。リース切れ後に再送される可能性がある
			s.logger.Error("failed to mark reminder as sent",
				slog.String("reminder_id", rem.ID),
				slog.String("error", err.Error()),
			)
			s.recordFailure()
			return false
		}
		if s.recorder != nil {
			s.recorder.RecordReminderSent()
		}
		return true
	}

	next := NextAttemptAt(now, rem.Attempts)
	if IsPermanent(sendErr) {
		next = now.Add(maxBackoff)
	}
	s.logger.Warn("reminder delivery failed",
		slog.String("reminder_id", rem.ID),
		slog.Int("attempts", rem.Attempts+1),
		slog.Time("next_attempt_at", next),
		slog.String("error", sendErr.Error()),
	)
	if err := s.repo.MarkFailed(ctx, rem.ID, truncateError(sendErr), next); err != nil {
		s.logger.Error("failed to record reminder failure",
			slog.String("reminder_id", rem.ID),
			slog.String("error", err.Error()),
		)
	}
	s.recordFailure()
	return false
}

func (s *Sweeper) recordFailure() {
	if s.recorder != nil {
		s.recorder.RecordReminderFailure()
	}
}
