package scoring

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFallbackTaskScore_KnownValues(t *testing.T) {
	tests := []struct {
		name        string
		description string
		duration    int
		tags        []string
		want        int
	}{
		{"coding tag", "Coding session", 480, []string{"Coding"}, 346},
		{"nap is restricted", "Nap time", 120, []string{"Nap"}, 0},
		{"meeting is low effort", "Team meeting", 60, []string{"Meeting"}, 29},
		{"no tier match defaults to 1.0", "Refactor invoices", 100, nil, 60},
		{"extreme tier by tag", "Graph problems", 100, []string{"DSA"}, 84},
		{"description keyword when no tag", "Debugging the scheduler", 50, nil, 42},
		{"zero duration", "Coding", 0, []string{"Coding"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackTaskScore(tt.description, tt.duration, tt.tags)
			assert.Equal(t, tt.want, got.Score)
			assert.Contains(t, got.Feedback, OfflineMarker)
		})
	}
}

func TestFallbackTaskScore_CappedAt400(t *testing.T) {
	got := FallbackTaskScore("Coding marathon", 10000, []string{"Coding"})
	assert.LessOrEqual(t, got.Score, MaxTaskScore)
	assert.Equal(t, MaxTaskScore, got.Score)
}

func TestFallbackTaskScore_NeverNegative(t *testing.T) {
	got := FallbackTaskScore("Coding", -90, []string{"Coding"})
	assert.Equal(t, 0, got.Score)
}

func TestMultiplier_RestrictedOverridesEverything(t *testing.T) {
	// 高倍率タグがあっても制限キーワードが優先される
	assert.Equal(t, 0.0, Multiplier("Coding on the train", []string{"Coding", "Travel"}))
	assert.Equal(t, 0.0, Multiplier("Quick nap before DSA", []string{"DSA"}))

	// 活用形も制限対象
	for _, desc := range []string{"Sleeping in", "Traveling to office", "Coffee breaks", "Gaming night", "Napping"} {
		assert.Equal(t, 0.0, Multiplier(desc, nil), desc)
		assert.Equal(t, 0, FallbackTaskScore(desc, 120, nil).Score, desc)
	}
}

func TestMultiplier_RestrictedMatchesWordStart(t *testing.T) {
	// 単語の途中に含まれるだけでは一致しない
	assert.Equal(t, 1.0, Multiplier("Update snapshot fixtures", nil))
	assert.Equal(t, 1.0, Multiplier("Review activity feed", nil))
	assert.Equal(t, 0.0, Multiplier("Short NAP", nil))
}

func TestMultiplier_TagsAreCaseInsensitive(t *testing.T) {
	assert.Equal(t, 1.2, Multiplier("", []string{"cOdInG"}))
	assert.Equal(t, 1.4, Multiplier("", []string{"System Design"}))
	assert.Equal(t, 0.8, Multiplier("", []string{" email "}))
}

func TestMultiplier_HighestTagTierWins(t *testing.T) {
	assert.Equal(t, 1.4, Multiplier("", []string{"Meeting", "Debugging"}))
}

func TestFallbackTaskScore_Deterministic(t *testing.T) {
	a := FallbackTaskScore("Writing the design doc", 95, []string{"Writing", "Planning"})
	b := FallbackTaskScore("Writing the design doc", 95, []string{"Writing", "Planning"})
	assert.Equal(t, a, b)
}

func TestFallbackWeekRating_OneEntryPerDay(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	var entries []WeekEntry
	for i := 0; i < 7; i++ {
		entries = append(entries, WeekEntry{Points: 100, At: now.Add(-time.Duration(i) * 24 * time.Hour)})
	}

	got := FallbackWeekRating(entries, now)
	assert.Equal(t, 7, got.Rating)
	assert.True(t, strings.HasPrefix(got.Feedback, "Strong week"))
}

func TestFallbackWeekRating_EmptyWeekIsAtLeastOne(t *testing.T) {
	got := FallbackWeekRating(nil, time.Now())
	assert.Equal(t, 1, got.Rating)
}

func TestFallbackWeekRating_MaxedOut(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	var entries []WeekEntry
	for i := 0; i < 7; i++ {
		entries = append(entries, WeekEntry{Points: 400, At: now.Add(-time.Duration(i) * 24 * time.Hour)})
	}

	got := FallbackWeekRating(entries, now)
	assert.Equal(t, 10, got.Rating)
	assert.True(t, strings.HasPrefix(got.Feedback, "Outstanding"))
}

func TestFallbackWeekRating_IgnoresEntriesOutsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	entries := []WeekEntry{
		{Points: 2100, At: now.Add(-8 * 24 * time.Hour)},
		{Points: 50, At: now.Add(-time.Hour)},
	}

	got := FallbackWeekRating(entries, now)
	// volume = 50/2100*5 ≈ 0.12, consistency = 1/7*5 ≈ 0.71 → round(0.83) = 1
	assert.Equal(t, 1, got.Rating)
}

func TestFallbackWeekRating_SameDayCountsOnce(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	entries := []WeekEntry{
		{Points: 300, At: now.Add(-1 * time.Hour)},
		{Points: 300, At: now.Add(-2 * time.Hour)},
		{Points: 300, At: now.Add(-3 * time.Hour)},
	}

	got := FallbackWeekRating(entries, now)
	// volume = 900/2100*5 ≈ 2.14, consistency = 1/7*5 ≈ 0.71 → round(2.86) = 3
	assert.Equal(t, 3, got.Rating)
}

func TestFallbackWeekRating_EightCalendarDatesCapAtSeven(t *testing.T) {
	// 18:00から168時間遡ると8つのUTC日付にまたがる
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	var entries []WeekEntry
	for i := 0; i < 8; i++ {
		at := time.Date(2026, 3, 14-i, 20, 0, 0, 0, time.UTC)
		if i == 0 {
			at = now.Add(-time.Minute)
		}
		if i == 7 {
			at = now.Add(-167 * time.Hour)
		}
		entries = append(entries, WeekEntry{Points: 0, At: at})
	}

	got := FallbackWeekRating(entries, now)
	// consistency = min(8, 7)/7*5 = 5 → round(5) = 5
	assert.Equal(t, 5, got.Rating)
}
