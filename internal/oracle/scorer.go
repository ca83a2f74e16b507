package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/scoring"
	"github.com/hitoshi/flowstate/internal/security"
)

// DefaultTimeout はオラクル呼び出し1回あたりのタイムアウト既定値。
const DefaultTimeout = 10 * time.Second

// 呼び出し種別。
const (
	KindTask = "task"
	KindWeek = "week"
)

// 呼び出し結果。メトリクスのラベルとログに使う。
const (
	OutcomeSuccess  = "success"
	OutcomeDisabled = "disabled"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeParse    = "parse_error"
)

// Recorder はオラクル呼び出しの結果を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordOracleCall(kind, outcome string, duration time.Duration)
}

// Scorer はオラクルによる採点を行い、失敗時はフォールバック計算に切り替える。
// どのメソッドもエラーを返さない。
type Scorer struct {
	gen       Generator
	sanitizer security.TextSanitizerService
	recorder  Recorder
	timeout   time.Duration
	now       func() time.Time
}

// NewScorer は新しいScorerを生成する。
// genがnilの場合は常にフォールバック計算を使う。recorderはnilでもよい。
func NewScorer(gen Generator, sanitizer security.TextSanitizerService, recorder Recorder, timeout time.Duration) *Scorer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scorer{
		gen:       gen,
		sanitizer: sanitizer,
		recorder:  recorder,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Enabled はオラクルが設定されているかを返す。
func (s *Scorer) Enabled() bool {
	return s.gen != nil
}

// ScoreTask はタスク1件を採点する。
// 返却値のScoreは常に0〜MaxTaskScoreの範囲に収まる。
func (s *Scorer) ScoreTask(ctx context.Context, description string, durationMinutes int, tags []string) scoring.TaskScore {
	fallback := func() scoring.TaskScore {
		return scoring.FallbackTaskScore(description, durationMinutes, tags)
	}
	if s.gen == nil {
		s.record(KindTask, OutcomeDisabled, 0)
		return fallback()
	}

	text, outcome, elapsed := s.generate(ctx, BuildTaskPrompt(description, durationMinutes, tags))
	if outcome != OutcomeSuccess {
		s.record(KindTask, outcome, elapsed)
		return fallback()
	}

	res := ParseTaskScore(text)
	if !res.OK {
		slog.Warn("oracle response could not be parsed, using fallback score",
			slog.String("kind", KindTask),
			slog.String("error", res.Err.Error()),
		)
		s.record(KindTask, OutcomeParse, elapsed)
		return fallback()
	}

	fb := s.sanitize(res.Value.Feedback)
	if fb == "" {
		s.record(KindTask, OutcomeParse, elapsed)
		return fallback()
	}

	s.record(KindTask, OutcomeSuccess, elapsed)
	return scoring.TaskScore{Score: res.Value.Score, Feedback: fb}
}

// ScoreWeek は直近1週間の完了タスクを評価する。
// tasksはアカウントの完了済みタスクで、期間の絞り込みは呼び出し側で済ませておく。
func (s *Scorer) ScoreWeek(ctx context.Context, tasks []model.Task, userName string) scoring.WeekRating {
	fallback := func() scoring.WeekRating {
		return scoring.FallbackWeekRating(weekEntries(tasks), s.now())
	}
	if s.gen == nil {
		s.record(KindWeek, OutcomeDisabled, 0)
		return fallback()
	}

	text, outcome, elapsed := s.generate(ctx, BuildWeekPrompt(tasks, userName))
	if outcome != OutcomeSuccess {
		s.record(KindWeek, outcome, elapsed)
		return fallback()
	}

	res := ParseWeekRating(text)
	if !res.OK {
		slog.Warn("oracle response could not be parsed, using fallback rating",
			slog.String("kind", KindWeek),
			slog.String("error", res.Err.Error()),
		)
		s.record(KindWeek, OutcomeParse, elapsed)
		return fallback()
	}

	fb := s.sanitize(res.Value.Feedback)
	if fb == "" {
		s.record(KindWeek, OutcomeParse, elapsed)
		return fallback()
	}

	s.record(KindWeek, OutcomeSuccess, elapsed)
	return scoring.WeekRating{Rating: res.Value.Rating, Feedback: fb}
}

// generate はタイムアウト付きでGeneratorを呼び出し、結果の分類と所要時間を返す。
func (s *Scorer) generate(ctx context.Context, prompt string) (string, string, time.Duration) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.gen.Generate(callCtx, prompt)
	elapsed := time.Since(start)
	if err == nil {
		return text, OutcomeSuccess, elapsed
	}

	outcome := OutcomeError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		outcome = OutcomeTimeout
	}
	slog.Warn("oracle call failed, using fallback",
		slog.String("outcome", outcome),
		slog.String("error", err.Error()),
		slog.Duration("elapsed", elapsed),
	)
	return "", outcome, elapsed
}

func (s *Scorer) sanitize(text string) string {
	if s.sanitizer == nil {
		return text
	}
	return s.sanitizer.Sanitize(text)
}

func (s *Scorer) record(kind, outcome string, elapsed time.Duration) {
	if s.recorder != nil {
		s.recorder.RecordOracleCall(kind, outcome, elapsed)
	}
}

// weekEntries は完了タスクをフォールバック評価の入力に変換する。
func weekEntries(tasks []model.Task) []scoring.WeekEntry {
	entries := make([]scoring.WeekEntry, 0, len(tasks))
	for _, t := range tasks {
		at := t.CreatedAt
		if t.CompletedAt != nil {
			at = *t.CompletedAt
		}
		entries = append(entries, scoring.WeekEntry{Points: t.Points, At: at})
	}
	return entries
}
