// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultDailyGoal は新規アカウントの1日あたりの目標XP。
const DefaultDailyGoal = 500

// Account はサービス利用ユーザーの累計台帳を表す。
// totalPoints・dailyXP・streakはタスクの完了と削除でのみ変化する。
type Account struct {
	ID          string
	ExternalID  string // 外部IdPが発行した検証済みユーザー識別子
	Email       string
	DisplayName string
	TotalPoints int
	DailyXP     int
	DailyGoal   int
	Streak      int
	LastLogDate *time.Time
	LastInsight *Insight
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Insight は週次コーチ結果のキャッシュを表す。
// 再生成のたびに上書きされる。
type Insight struct {
	Feedback    string
	Rating      int
	GeneratedAt time.Time
}
