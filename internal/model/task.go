// Package model はドメインモデルを定義する。
package model

import "time"

// Task はユーザーが記録した作業ログ1件を表す。
// pointsは作成時に一度だけ算出され、以後変更されない。
type Task struct {
	ID              string
	AccountID       string
	TaskDescription string
	Duration        int // 分
	Tags            []string
	Points          int
	Status          TaskStatus
	AIFeedback      string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// TaskStatus はタスクのライフサイクル状態を表す。
// pending → completed の一方向にのみ遷移する。
type TaskStatus string

const (
	// TaskStatusPending は未完了状態。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusCompleted は完了済み状態。ポイントが台帳に加算されている。
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid はステータスが定義済みの値かを返す。
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusCompleted
}

// IsCompleted は完了済みかを返す。
func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}
