package sanitize

import (
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "passthrough clean text",
			input: "storm rolls in over the harbor",
			want:  "storm rolls in over the harbor",
		},
		{
			name:  "strip null bytes",
			input: "storm\x00 rolls in",
			want:  "storm rolls in",
		},
		{
			name:  "strip control characters except newline and tab",
			input: "sto\x01rm\x02 ro\x03lls\x07 in",
			want:  "storm rolls in",
		},
		{
			name:  "preserve newlines and tabs",
			input: "line one\nline two\n\tindented",
			want:  "line one\nline two\n\tindented",
		},
		{
			name:  "strip xml tags",
			input: "storm <script>alert(1)</script>rolls in",
			want:  "storm alert(1)rolls in",
		},
		{
			name:  "strip self-closing and attribute tags",
			input: `before <img src="x"/> after`,
			want:  "before  after",
		},
		{
			name:  "collapse excessive newlines",
			input: "one\n\n\n\n\ntwo",
			want:  "one\n\ntwo",
		},
		{
			name:  "trim surrounding whitespace",
			input: "  padded  ",
			want:  "padded",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextTruncation(t *testing.T) {
	long := strings.Repeat("a", MaxTextLength+50)
	got := Text(long)
	if len(got) != MaxTextLength+3 {
		t.Errorf("len = %d, want %d", len(got), MaxTextLength+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated text should end with ellipsis")
	}
}

func TestID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"passthrough", "r-storm", "r-storm"},
		{"strip spaces and punctuation", "r storm!", "rstorm"},
		{"collapse repeated hyphens", "r--storm", "r-storm"},
		{"collapse repeated underscores", "r__storm", "r_storm"},
		{"keep slashes", "weather/storm", "weather/storm"},
		{"strip injection attempt", "r-storm<script>", "r-stormscript"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ID(tt.input); got != tt.want {
				t.Errorf("ID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIDTruncation(t *testing.T) {
	long := strings.Repeat("a", MaxIDLength+10)
	if got := ID(long); len(got) != MaxIDLength {
		t.Errorf("len = %d, want %d", len(got), MaxIDLength)
	}
}
