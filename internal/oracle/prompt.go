package oracle

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/scoring"
)

// BuildTaskPrompt はタスク採点用のプロンプトを組み立てる。
// 同じ入力に対して常に同じ文字列を返す。
func BuildTaskPrompt(description string, durationMinutes int, tags []string) string {
	tagList := "None"
	if len(tags) > 0 {
		tagList = strings.Join(tags, ", ")
	}

	var b strings.Builder
	b.WriteString("You score focused work sessions for a productivity tracker.\n\n")
	fmt.Fprintf(&b, "Task: %q\n", description)
	fmt.Fprintf(&b, "Time spent: %d minutes\n", durationMinutes)
	fmt.Fprintf(&b, "Tags: %s\n\n", tagList)
	b.WriteString("Scoring rules:\n")
	fmt.Fprintf(&b, "1. The baseline is %.1f points per minute of focused work.\n", scoring.BaseRatePerMinute)
	b.WriteString("2. Deep technical work (DSA, system design, debugging) earns up to 1.4x; coding, learning and writing up to 1.2x.\n")
	b.WriteString("3. Meetings, admin and email earn about 0.8x.\n")
	b.WriteString("4. Rest and leisure (sleep, naps, breaks, travel, gaming, TV, meals) earn 0 points.\n")
	b.WriteString("5. A short description with a long duration still counts as deep work in that area.\n")
	fmt.Fprintf(&b, "6. Never exceed %d points.\n\n", scoring.MaxTaskScore)
	b.WriteString("Also write one short, encouraging feedback sentence (max 15 words).\n\n")
	b.WriteString("Return ONLY a JSON object of the form:\n")
	b.WriteString(`{"score": <integer>, "feedback": "<string>"}`)
	b.WriteString("\n")
	return b.String()
}

// BuildWeekPrompt は直近1週間の完了タスクから週次評価用のプロンプトを組み立てる。
// タスクは渡された順序のまま列挙する。
func BuildWeekPrompt(tasks []model.Task, userName string) string {
	name := strings.TrimSpace(userName)
	if name == "" {
		name = "the user"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a productivity coach reviewing the past 7 days of work for %s.\n\n", name)

	if len(tasks) == 0 {
		b.WriteString("No completed tasks were logged this week.\n")
	} else {
		total := 0
		b.WriteString("Completed tasks:\n")
		for _, t := range tasks {
			at := t.CreatedAt
			if t.CompletedAt != nil {
				at = *t.CompletedAt
			}
			fmt.Fprintf(&b, "- %s | %q | %d min | %d pts", at.UTC().Format(time.DateOnly), t.TaskDescription, t.Duration, t.Points)
			if len(t.Tags) > 0 {
				fmt.Fprintf(&b, " | tags: %s", strings.Join(t.Tags, ", "))
			}
			b.WriteString("\n")
			total += t.Points
		}
		fmt.Fprintf(&b, "Total points: %d\n", total)
	}

	b.WriteString("\nRate the week from 0 to 10 considering volume, consistency across days, and focus.\n")
	b.WriteString("Give two or three sentences of specific, actionable feedback.\n\n")
	b.WriteString("Return ONLY a JSON object of the form:\n")
	b.WriteString(`{"rating": <integer>, "feedback": "<string>"}`)
	b.WriteString("\n")
	return b.String()
}
