package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/flowstate/internal/model"
)

// reminderColumns はremindersテーブルのSELECT列。scanReminderと順序を合わせる。
const reminderColumns = `id, account_id, email, message, scheduled_time, status, attempts,
	last_error, next_attempt_at, sent_at, created_at, updated_at`

func scanReminder(s rowScanner) (*model.Reminder, error) {
	rem := &model.Reminder{}
	var sentAt sql.NullTime

	if err := s.Scan(
		&rem.ID, &rem.AccountID, &rem.Email, &rem.Message, &rem.ScheduledTime, &rem.Status,
		&rem.Attempts, &rem.LastError, &rem.NextAttemptAt, &sentAt, &rem.CreatedAt, &rem.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		rem.SentAt = &t
	}
	return rem, nil
}

func queryReminders(ctx context.Context, q queryer, query string, args ...any) ([]*model.Reminder, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("リマインダーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	reminders := []*model.Reminder{}
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("リマインダーの読み取りに失敗しました: %w", err)
		}
		reminders = append(reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リマインダーの走査に失敗しました: %w", err)
	}
	return reminders, nil
}

// PostgresReminderRepo はPostgreSQLを使用したリマインダーリポジトリ。
type PostgresReminderRepo struct {
	db *sql.DB
}

// NewPostgresReminderRepo はPostgresReminderRepoを生成する。
func NewPostgresReminderRepo(db *sql.DB) *PostgresReminderRepo {
	return &PostgresReminderRepo{db: db}
}

// Create はリマインダーを作成する。
func (r *PostgresReminderRepo) Create(ctx context.Context, rem *model.Reminder) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reminders (id, account_id, email, message, scheduled_time, status, attempts,
		                        last_error, next_attempt_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rem.ID, rem.AccountID, rem.Email, rem.Message, rem.ScheduledTime, rem.Status, rem.Attempts,
		rem.LastError, rem.NextAttemptAt, rem.CreatedAt, rem.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("リマインダーの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのリマインダーを取得する。見つからない場合はnilを返す。
func (r *PostgresReminderRepo) FindByID(ctx context.Context, id string) (*model.Reminder, error) {
	rem, err := scanReminder(r.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リマインダーの取得に失敗しました: %w", err)
	}
	return rem, nil
}

// ListByAccount はアカウントのリマインダーをscheduled_time昇順で返す。
func (r *PostgresReminderRepo) ListByAccount(ctx context.Context, accountID string) ([]*model.Reminder, error) {
	return queryReminders(ctx, r.db,
		`SELECT `+reminderColumns+` FROM reminders WHERE account_id = $1 ORDER BY scheduled_time ASC, id`,
		accountID,
	)
}

// UpdateSchedule は送信前のリマインダーの本文と予定時刻を更新する。
// 予定時刻の変更に合わせて再試行状態もリセットする。
func (r *PostgresReminderRepo) UpdateSchedule(ctx context.Context, rem *model.Reminder) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reminders
		 SET message = $1, scheduled_time = $2, next_attempt_at = $2, attempts = 0, last_error = '',
		     updated_at = now()
		 WHERE id = $3 AND status = 'pending'`,
		rem.Message, rem.ScheduledTime, rem.ID,
	)
	if err != nil {
		return false, fmt.Errorf("リマインダーの更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete は指定IDのリマインダーを削除する。
func (r *PostgresReminderRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("リマインダーの削除に失敗しました: %w", err)
	}
	return nil
}

// ClaimDue は送信対象のリマインダーを取得し、lease期間だけ他のワーカーから隠す。
// SKIP LOCKEDにより、複数ワーカーが同時に実行しても同じ行を二重に取得しない。
func (r *PostgresReminderRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*model.Reminder, error) {
	return queryReminders(ctx, r.db,
		`UPDATE reminders AS r
		 SET next_attempt_at = $2, updated_at = now()
		 FROM (
		     SELECT id FROM reminders
		     WHERE status = 'pending' AND scheduled_time <= $1 AND next_attempt_at <= $1
		     ORDER BY scheduled_time ASC
		     LIMIT $3
		     FOR UPDATE SKIP LOCKED
		 ) AS due
		 WHERE r.id = due.id
		 RETURNING r.id, r.account_id, r.email, r.message, r.scheduled_time, r.status, r.attempts,
		           r.last_error, r.next_attempt_at, r.sent_at, r.created_at, r.updated_at`,
		now, now.Add(lease), limit,
	)
}

// MarkSent はリマインダーを送信済みにする。
func (r *PostgresReminderRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET status = 'sent', sent_at = $1, last_error = '', updated_at = now()
		 WHERE id = $2`,
		sentAt, id,
	)
	if err != nil {
		return fmt.Errorf("リマインダーの送信済み更新に失敗しました: %w", err)
	}
	return nil
}

// MarkFailed は送信失敗を記録する。
func (r *PostgresReminderRepo) MarkFailed(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reminders
		 SET attempts = attempts + 1, last_error = $1, next_attempt_at = $2, updated_at = now()
		 WHERE id = $3 AND status = 'pending'`,
		lastError, nextAttemptAt, id,
	)
	if err != nil {
		return fmt.Errorf("リマインダーの失敗記録に失敗しました: %w", err)
	}
	return nil
}

// DeleteSentBefore はbefore以前に送信済みになったリマインダーを削除する。
func (r *PostgresReminderRepo) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE status = 'sent' AND sent_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("送信済みリマインダーの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ReminderRepository = (*PostgresReminderRepo)(nil)
