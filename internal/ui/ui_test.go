package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestRenderStatus_PlainWithoutColor(t *testing.T) {
	for _, s := range []string{"completed", "blocked", "in-progress", "other"} {
		if got := RenderStatus(s); got != s {
			t.Errorf("RenderStatus(%q) = %q, want plain text", s, got)
		}
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		score  float64
		filled int
	}{
		{0, 0},
		{50, 5},
		{100, 10},
		{140, 10},
		{-3, 0},
	}
	for _, tt := range tests {
		bar := Bar(tt.score, 10)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("Bar(%v) filled = %d, want %d", tt.score, got, tt.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != 10 {
			t.Errorf("Bar(%v) width = %d, want 10", tt.score, got)
		}
	}
	if Bar(50, 0) != "" {
		t.Error("Bar() with zero width should be empty")
	}
}

func TestKeyValues_Aligns(t *testing.T) {
	out := KeyValues([2]string{"files", "12"}, [2]string{"session", "abcd1234"})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("KeyValues() produced %d lines, want 2", len(lines))
	}
	if strings.Index(lines[0], "12") != strings.Index(lines[1], "abcd1234") {
		t.Errorf("values not aligned:\n%s", out)
	}
}
