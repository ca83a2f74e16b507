package security

import (
	"reflect"
	"testing"
)

// TestSanitize_StripsTags はHTMLタグが全て除去されることを検証する。
func TestSanitize_StripsTags(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Coding session", "Coding session"},
		{"scriptタグは中身ごと除去", `Fix bug<script>alert(1)</script>`, "Fix bug"},
		{"装飾タグは除去され中身は残る", "<b>Deep</b> work", "Deep work"},
		{"前後の空白を除去", "   Planning  ", "Planning"},
		{"エンティティは元の文字に戻す", "Q&A prep", "Q&A prep"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	input := `<img src=x onerror=alert(1)>Research notes`
	first := s.Sanitize(input)
	second := s.Sanitize(first)
	if first != second {
		t.Errorf("Sanitize is not idempotent: %q then %q", first, second)
	}
}

// TestSanitizeTags はタグの空要素と重複が除去され順序が保たれることを検証する。
func TestSanitizeTags(t *testing.T) {
	s := NewTextSanitizer()
	got := s.SanitizeTags([]string{"Coding", " ", "coding", "<i>DSA</i>", "Meeting"})
	want := []string{"Coding", "DSA", "Meeting"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SanitizeTags = %v, want %v", got, want)
	}
}

// TestSanitizeTags_Nil は nil 入力で空スライスを返すことを検証する。
func TestSanitizeTags_Nil(t *testing.T) {
	s := NewTextSanitizer()
	got := s.SanitizeTags(nil)
	if got == nil || len(got) != 0 {
		t.Errorf("SanitizeTags(nil) = %v, want empty slice", got)
	}
}
