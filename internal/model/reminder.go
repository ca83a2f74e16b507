// Package model はドメインモデルを定義する。
package model

import "time"

// Reminder はメールで通知するリマインダーを表す。
type Reminder struct {
	ID            string
	AccountID     string
	Email         string
	Message       string
	ScheduledTime time.Time
	Status        ReminderStatus
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	SentAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReminderStatus はリマインダーの送信状態を表す。
type ReminderStatus string

const (
	// ReminderStatusPending は未送信状態。スイープの対象になる。
	ReminderStatusPending ReminderStatus = "pending"
	// ReminderStatusSent は送信済み状態。
	ReminderStatusSent ReminderStatus = "sent"
)
