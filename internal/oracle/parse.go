// Package oracle はAIオラクル（外部テキスト生成サービス）によるタスク採点と週次評価を提供する。
// オラクルの失敗はすべてscoringパッケージのフォールバック計算で吸収し、呼び出し元には返さない。
package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/flowstate/internal/scoring"
)

// ErrNoJSONObject は応答テキストにJSONオブジェクトが含まれない場合のエラー。
var ErrNoJSONObject = errors.New("no JSON object in response")

// ParseResult はオラクル応答のパース結果。
// OKがfalseの場合はErrに理由が入り、Valueはゼロ値になる。
type ParseResult[T any] struct {
	OK    bool
	Value T
	Err   error
}

func parsed[T any](v T) ParseResult[T] {
	return ParseResult[T]{OK: true, Value: v}
}

func parseFailed[T any](err error) ParseResult[T] {
	return ParseResult[T]{Err: err}
}

// ExtractJSONObject は応答テキストから最初の '{' と最後の '}' の間を取り出す。
// Markdownのコードフェンスや前後の説明文を含む応答に対応する。
func ExtractJSONObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end < start {
		return "", ErrNoJSONObject
	}
	return text[start : end+1], nil
}

// taskScoreWire はタスク採点応答のJSON形式。
// 欠落を検出するためポインタで受ける。
type taskScoreWire struct {
	Score    *float64 `json:"score"`
	Feedback *string  `json:"feedback"`
}

// weekRatingWire は週次評価応答のJSON形式。
type weekRatingWire struct {
	Rating   *float64 `json:"rating"`
	Feedback *string  `json:"feedback"`
}

// ParseTaskScore はタスク採点応答をパースする。
// scoreは0〜MaxTaskScoreに丸め込み、feedbackが空の場合は失敗とする。
func ParseTaskScore(text string) ParseResult[scoring.TaskScore] {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return parseFailed[scoring.TaskScore](err)
	}

	var w taskScoreWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return parseFailed[scoring.TaskScore](fmt.Errorf("invalid JSON: %w", err))
	}
	if w.Score == nil {
		return parseFailed[scoring.TaskScore](errors.New("missing field: score"))
	}
	if w.Feedback == nil || strings.TrimSpace(*w.Feedback) == "" {
		return parseFailed[scoring.TaskScore](errors.New("missing field: feedback"))
	}

	score := clampRound(*w.Score, 0, scoring.MaxTaskScore)
	return parsed(scoring.TaskScore{Score: score, Feedback: strings.TrimSpace(*w.Feedback)})
}

// ParseWeekRating は週次評価応答をパースする。ratingは0〜10に丸め込む。
func ParseWeekRating(text string) ParseResult[scoring.WeekRating] {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return parseFailed[scoring.WeekRating](err)
	}

	var w weekRatingWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return parseFailed[scoring.WeekRating](fmt.Errorf("invalid JSON: %w", err))
	}
	if w.Rating == nil {
		return parseFailed[scoring.WeekRating](errors.New("missing field: rating"))
	}
	if w.Feedback == nil || strings.TrimSpace(*w.Feedback) == "" {
		return parseFailed[scoring.WeekRating](errors.New("missing field: feedback"))
	}

	rating := clampRound(*w.Rating, 0, 10)
	return parsed(scoring.WeekRating{Rating: rating, Feedback: strings.TrimSpace(*w.Feedback)})
}

func clampRound(v float64, lo, hi int) int {
	if v != v { // NaN
		return lo
	}
	if v < float64(lo) {
		return lo
	}
	if v > float64(hi) {
		return hi
	}
	return int(v + 0.5)
}
