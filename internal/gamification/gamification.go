// Package gamification はレベル・進捗・連続日数・日次XPの計算を提供する。
// 全て純粋関数であり、永続化はtask/accountサービスが担う。
package gamification

import (
	"math"
	"time"

	"github.com/hitoshi/flowstate/internal/model"
)

// xpPerLevelUnit はレベル閾値の係数。レベルLの開始XPは 1000×(L-1)²。
const xpPerLevelUnit = 1000

// Progress はアカウントのレベルと次のレベルまでの進捗を表す。
type Progress struct {
	Level           int     `json:"level"`
	TotalXP         int     `json:"totalXP"`
	CurrentLevelXP  int     `json:"currentLevelXP"`
	NextLevelXP     int     `json:"nextLevelXP"`
	XPToNext        int     `json:"xpToNext"`
	ProgressPercent float64 `json:"progressPercent"`
}

// LevelFor は累計XPからレベルを返す。level = floor(sqrt(total/1000)) + 1。
func LevelFor(totalPoints int) int {
	if totalPoints <= 0 {
		return 1
	}
	level := int(math.Sqrt(float64(totalPoints)/xpPerLevelUnit)) + 1
	// 浮動小数点誤差を閾値の整数比較で補正する
	for level > 1 && threshold(level) > totalPoints {
		level--
	}
	for threshold(level+1) <= totalPoints {
		level++
	}
	return level
}

// threshold はレベルlevelに到達するための累計XP。
func threshold(level int) int {
	n := level - 1
	return xpPerLevelUnit * n * n
}

// ProgressFor は累計XPから現在レベルと進捗率（0〜100%）を算出する。
func ProgressFor(totalPoints int) Progress {
	if totalPoints < 0 {
		totalPoints = 0
	}
	level := LevelFor(totalPoints)
	cur := threshold(level)
	next := threshold(level + 1)

	pct := float64(totalPoints-cur) / float64(next-cur) * 100
	pct = math.Max(0, math.Min(100, pct))

	return Progress{
		Level:           level,
		TotalXP:         totalPoints,
		CurrentLevelXP:  cur,
		NextLevelXP:     next,
		XPToNext:        next - totalPoints,
		ProgressPercent: pct,
	}
}

// DateKey はUTCの暦日を YYYY-MM-DD 形式で返す。
func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// SameUTCDay は2つの時刻がUTCで同じ暦日かを返す。
func SameUTCDay(a, b time.Time) bool {
	return DateKey(a) == DateKey(b)
}

// ResetDailyIfNeeded は最終記録日が今日でなければdailyXPを0に戻す。
// 変更があった場合はtrueを返す。
func ResetDailyIfNeeded(acc *model.Account, now time.Time) bool {
	if acc.LastLogDate != nil && SameUTCDay(*acc.LastLogDate, now) {
		return false
	}
	if acc.DailyXP == 0 {
		return false
	}
	acc.DailyXP = 0
	return true
}

// NextStreak は最終記録日と現在時刻から連続日数を更新した値を返す。
// 同日なら維持（0なら1）、前日なら+1、それ以外は1から数え直す。
func NextStreak(last *time.Time, now time.Time, current int) int {
	if last == nil {
		return 1
	}
	switch {
	case SameUTCDay(*last, now):
		if current < 1 {
			return 1
		}
		return current
	case SameUTCDay(last.Add(24*time.Hour), now):
		return current + 1
	default:
		return 1
	}
}

// Award はタスク完了時のポイント加算を台帳に適用する。
// 日付が変わっていればdailyXPをリセットしてから加算し、連続日数と最終記録日を更新する。
func Award(acc *model.Account, points int, now time.Time) {
	if points < 0 {
		points = 0
	}
	ResetDailyIfNeeded(acc, now)
	acc.Streak = NextStreak(acc.LastLogDate, now, acc.Streak)
	acc.TotalPoints += points
	acc.DailyXP += points
	t := now
	acc.LastLogDate = &t
}

// Reverse は完了済みタスク削除時のポイント減算を適用する。下限は0。
func Reverse(acc *model.Account, points int) {
	if points <= 0 {
		return
	}
	acc.TotalPoints = max(0, acc.TotalPoints-points)
}
