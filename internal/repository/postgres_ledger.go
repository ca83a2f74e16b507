package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/flowstate/internal/model"
)

// PostgresLedger はPostgreSQLのトランザクションと行ロックによるLedger実装。
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger はPostgresLedgerを生成する。
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// RunInTx はfnをトランザクション内で実行する。
// fnがエラーを返した場合とpanicした場合はロールバックする。
func (l *PostgresLedger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &postgresLedgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// postgresLedgerTx はトランザクション内の台帳操作。
type postgresLedgerTx struct {
	tx *sql.Tx
}

// LockAccount はアカウント行をSELECT ... FOR UPDATEで取得する。
func (t *postgresLedgerTx) LockAccount(ctx context.Context, accountID string) (*model.Account, error) {
	acc, err := scanAccount(t.tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントのロックに失敗しました: %w", err)
	}
	return acc, nil
}

// SaveLedger はtotalPoints・dailyXP・streak・lastLogDateを保存する。
func (t *postgresLedgerTx) SaveLedger(ctx context.Context, acc *model.Account) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE accounts
		 SET total_points = $1, daily_xp = $2, streak = $3, last_log_date = $4, updated_at = now()
		 WHERE id = $5`,
		acc.TotalPoints, acc.DailyXP, acc.Streak, acc.LastLogDate, acc.ID,
	)
	if err != nil {
		return fmt.Errorf("台帳の保存に失敗しました: %w", err)
	}
	return nil
}

// LockTask はタスク行をSELECT ... FOR UPDATEで取得する。
func (t *postgresLedgerTx) LockTask(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := scanTask(t.tx.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, taskID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクのロックに失敗しました: %w", err)
	}
	return task, nil
}

// LockTasks は指定ID群のタスク行をID昇順でロックする。
// ロック順序を固定してデッドロックを避ける。
func (t *postgresLedgerTx) LockTasks(ctx context.Context, taskIDs []string) ([]*model.Task, error) {
	if len(taskIDs) == 0 {
		return []*model.Task{}, nil
	}
	return queryTasks(ctx, t.tx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		pq.StringArray(taskIDs),
	)
}

// MarkTaskCompleted はタスクを完了状態にする。
func (t *postgresLedgerTx) MarkTaskCompleted(ctx context.Context, taskID string, completedAt time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE tasks SET status = 'completed', completed_at = $1 WHERE id = $2`,
		completedAt, taskID,
	)
	if err != nil {
		return fmt.Errorf("タスクの完了に失敗しました: %w", err)
	}
	return nil
}

// DeleteTasks は指定ID群のタスクを削除し、削除件数を返す。
func (t *postgresLedgerTx) DeleteTasks(ctx context.Context, taskIDs []string) (int, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ANY($1)`,
		pq.StringArray(taskIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// compile-time interface check
var (
	_ Ledger   = (*PostgresLedger)(nil)
	_ LedgerTx = (*postgresLedgerTx)(nil)
)
