// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/flowstate/internal/model"
)

// ErrConflict は一意制約違反（external_id・email重複）を表す。
var ErrConflict = errors.New("repository: unique constraint conflict")

// AccountRepository はアカウントデータの永続化インターフェース。
// ポイントに影響する更新はLedger経由で行い、ここでは扱わない。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByExternalID は外部IdPの識別子でアカウントを取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.Account, error)

	// FindByEmail はメールアドレスでアカウントを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// Create はアカウントを作成する。一意制約違反の場合はErrConflictを返す。
	Create(ctx context.Context, account *model.Account) error

	// UpdateProfile は外部識別子・メールアドレス・表示名を更新する。
	// 一意制約違反の場合はErrConflictを返す。
	UpdateProfile(ctx context.Context, account *model.Account) error

	// SaveInsight は週次コーチ結果を上書き保存する。
	SaveInsight(ctx context.Context, accountID string, insight model.Insight) error
}

// TaskRepository はタスク記録の永続化インターフェース。
// 完了と削除はポイントに影響するためLedgerTxで行う。
type TaskRepository interface {
	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// FindByIDs は指定ID群のうち存在するタスクを返す。存在しないIDは無視する。
	FindByIDs(ctx context.Context, ids []string) ([]*model.Task, error)

	// ListByAccount はアカウントのタスクをcreated_at降順で返す。
	// statusが空の場合は全件を返す。
	ListByAccount(ctx context.Context, accountID string, status model.TaskStatus) ([]*model.Task, error)

	// ListCompletedSince はsince以降に完了したタスクをcompleted_at昇順で返す。
	ListCompletedSince(ctx context.Context, accountID string, since time.Time) ([]*model.Task, error)
}

// ReminderRepository はリマインダーの永続化インターフェース。
type ReminderRepository interface {
	// Create はリマインダーを作成する。
	Create(ctx context.Context, reminder *model.Reminder) error

	// FindByID は指定IDのリマインダーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Reminder, error)

	// ListByAccount はアカウントのリマインダーをscheduled_time昇順で返す。
	ListByAccount(ctx context.Context, accountID string) ([]*model.Reminder, error)

	// UpdateSchedule は送信前のリマインダーの本文と予定時刻を更新する。
	// 既に送信済みの場合はfalseを返す。
	UpdateSchedule(ctx context.Context, reminder *model.Reminder) (bool, error)

	// Delete は指定IDのリマインダーを削除する。
	Delete(ctx context.Context, id string) error

	// ClaimDue は送信時刻を過ぎた未送信リマインダーを最大limit件取得し、
	// next_attempt_atをnow+leaseに進めて他のワーカーから見えなくする。
	// 行の選択はFOR UPDATE SKIP LOCKEDで行う。
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*model.Reminder, error)

	// MarkSent はリマインダーを送信済みにする。
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// MarkFailed は送信失敗を記録する。attemptsを1増やし、次回試行時刻を設定する。
	MarkFailed(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error

	// DeleteSentBefore はbefore以前に送信済みになったリマインダーを削除し、削除件数を返す。
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
}

// Ledger はポイントに影響する操作の作業単位を提供する。
// fnがnilを返した場合のみコミットし、それ以外はロールバックする。
type Ledger interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

// LedgerTx はトランザクション内で使う台帳操作。
// Lock系メソッドは行ロックを取得し、トランザクション終了まで同一アカウントへの操作を直列化する。
type LedgerTx interface {
	// LockAccount はアカウント行をロックして取得する。見つからない場合はnilを返す。
	LockAccount(ctx context.Context, accountID string) (*model.Account, error)

	// SaveLedger はtotalPoints・dailyXP・streak・lastLogDateを保存する。
	SaveLedger(ctx context.Context, account *model.Account) error

	// LockTask はタスク行をロックして取得する。見つからない場合はnilを返す。
	LockTask(ctx context.Context, taskID string) (*model.Task, error)

	// LockTasks は指定ID群のタスク行をID昇順でロックして取得する。存在しないIDは無視する。
	LockTasks(ctx context.Context, taskIDs []string) ([]*model.Task, error)

	// MarkTaskCompleted はタスクを完了状態にする。
	MarkTaskCompleted(ctx context.Context, taskID string, completedAt time.Time) error

	// DeleteTasks は指定ID群のタスクを削除し、削除件数を返す。
	DeleteTasks(ctx context.Context, taskIDs []string) (int, error)
}
