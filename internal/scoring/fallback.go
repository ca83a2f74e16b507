// Package scoring はAIオラクルが利用できない場合の決定的なスコア計算を提供する。
// ネットワークに依存しない純粋関数のみで構成され、どのような入力に対しても結果を返す。
package scoring

import (
	"math"
	"regexp"
	"strings"
	"time"
)

const (
	// BaseRatePerMinute は作業時間1分あたりの基礎ポイント。
	BaseRatePerMinute = 0.6
	// MaxTaskScore は1タスクあたりの上限ポイント。作業時間の入力ミスによる外れ値を抑える。
	MaxTaskScore = 400
	// OfflineMarker はフォールバック時のフィードバックに必ず含まれる目印。
	OfflineMarker = "AI Offline"

	// weeklyPointsTarget は週次評価で満点となる合計ポイント。
	weeklyPointsTarget = 2100.0
	// weekWindow は週次評価の対象期間。
	weekWindow = 7 * 24 * time.Hour
)

// TaskScore はタスク1件の採点結果。
type TaskScore struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// WeekRating は直近1週間の評価結果。
type WeekRating struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

// WeekEntry は週次評価に使うタスク1件分の集計値。
type WeekEntry struct {
	Points int
	At     time.Time // 完了日時（未完了なら作成日時）
}

// tier はキーワードと倍率の組を表す。
type tier struct {
	multiplier float64
	keywords   []string
}

// restrictedKeywords は生産的でない活動を表すキーワード。一致した場合は倍率0になり、他の全ての区分より優先される。
var restrictedKeywords = []string{
	"sleep", "nap", "hangout", "break", "travel", "commute",
	"gaming", "tv", "movie", "lunch", "dinner",
}

// tiers は倍率の高い順に並べる。最初に一致した区分を採用する。
var tiers = []tier{
	{multiplier: 1.4, keywords: []string{"dsa", "system design", "debugging"}},
	{multiplier: 1.2, keywords: []string{"coding", "learning", "writing"}},
	{multiplier: 1.0, keywords: []string{"planning", "research", "study"}},
	{multiplier: 0.8, keywords: []string{"meeting", "admin", "email"}},
}

var (
	restrictedPattern = prefixPattern(restrictedKeywords)
	tierPatterns      = func() []*regexp.Regexp {
		ps := make([]*regexp.Regexp, len(tiers))
		for i, t := range tiers {
			ps[i] = wordPattern(t.keywords)
		}
		return ps
	}()
)

// wordPattern はキーワードのいずれかに単語単位で一致する大文字小文字無視の正規表現を返す。
func wordPattern(keywords []string) *regexp.Regexp {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// prefixPattern はキーワードで始まる単語に一致する正規表現を返す。
// "Sleeping" や "breaks" のような活用形も一致し、"activity" 中の "tv" は一致しない。
func prefixPattern(keywords []string) *regexp.Regexp {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)`)
}

// Multiplier は説明文とタグから難易度倍率を決定する。
//
// 判定順:
//  1. 制限キーワード（説明文の単語先頭一致またはタグの完全一致）なら0
//  2. タグが一致する最上位の区分
//  3. 説明文が一致する最上位の区分
//  4. いずれにも一致しなければ1.0
func Multiplier(description string, tags []string) float64 {
	if restrictedPattern.MatchString(description) {
		return 0
	}
	for _, tag := range tags {
		if containsFold(restrictedKeywords, tag) {
			return 0
		}
	}

	for _, t := range tiers {
		for _, tag := range tags {
			if containsFold(t.keywords, tag) {
				return t.multiplier
			}
		}
	}

	for i, t := range tiers {
		if tierPatterns[i].MatchString(description) {
			return t.multiplier
		}
	}

	return 1.0
}

// FallbackTaskScore は作業時間と倍率から決定的にポイントを算出する。
// score = round(duration × 0.6 × multiplier)、上限400、負にはならない。
func FallbackTaskScore(description string, durationMinutes int, tags []string) TaskScore {
	if durationMinutes < 0 {
		durationMinutes = 0
	}

	m := Multiplier(description, tags)
	score := int(math.Round(float64(durationMinutes) * BaseRatePerMinute * m))
	if score > MaxTaskScore {
		score = MaxTaskScore
	}
	if score < 0 {
		score = 0
	}

	feedback := "Logged successfully (" + OfflineMarker + " - Est. Points)"
	if m == 0 {
		feedback = "Logged (" + OfflineMarker + " - non-productive activity, no points)"
	}

	return TaskScore{Score: score, Feedback: feedback}
}

// FallbackWeekRating は直近7日間の合計ポイントと活動日数から1〜10の評価を算出する。
// rating = round(min(points/2100, 1)×5 + min(activeDays, 7)/7×5)。
// 168時間の窓は8つのUTC日付にまたがりうるため、活動日数は7で打ち切る。
func FallbackWeekRating(entries []WeekEntry, now time.Time) WeekRating {
	since := now.Add(-weekWindow)

	total := 0
	days := make(map[string]struct{})
	for _, e := range entries {
		if e.At.Before(since) || e.At.After(now) {
			continue
		}
		total += e.Points
		days[e.At.UTC().Format(time.DateOnly)] = struct{}{}
	}

	volume := math.Min(float64(total)/weeklyPointsTarget, 1) * 5
	if volume < 0 {
		volume = 0
	}
	consistency := float64(min(len(days), 7)) / 7 * 5

	rating := int(math.Round(volume + consistency))
	rating = clamp(rating, 1, 10)

	return WeekRating{Rating: rating, Feedback: weekFeedback(rating)}
}

// weekFeedback は評価値に応じた定型メッセージを返す。
func weekFeedback(rating int) string {
	switch {
	case rating >= 9:
		return "Outstanding week! You showed up every day and put in serious work. Keep this momentum."
	case rating >= 7:
		return "Strong week. Your consistency is paying off; push a little more depth into your sessions."
	case rating >= 5:
		return "Decent progress. Try to log focused work on more days to build a steadier rhythm."
	default:
		return "A quiet week. Start small: one focused session a day will rebuild your streak."
	}
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
