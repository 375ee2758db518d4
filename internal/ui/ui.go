// Package ui renders styled CLI output. Styling is dropped when stdout is
// not a terminal or NO_COLOR is set.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	passColor   = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#7FD962"}
	warnColor   = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFB454"}
	failColor   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#F07178"}
	accentColor = lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#59C2FF"}
	mutedColor  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#8A9199"}

	passStyle   = lipgloss.NewStyle().Foreground(passColor)
	warnStyle   = lipgloss.NewStyle().Foreground(warnColor)
	failStyle   = lipgloss.NewStyle().Foreground(failColor)
	accentStyle = lipgloss.NewStyle().Foreground(accentColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	boldStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
)

func init() {
	if !IsTerminal() || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsInteractive reports whether both stdin and stdout are terminals, so
// prompting is possible.
func IsInteractive() bool {
	return IsTerminal() && term.IsTerminal(int(os.Stdin.Fd()))
}

// Width returns the terminal width, or 80 when it cannot be determined.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func RenderPass(s string) string { return passStyle.Render(s) }

func RenderWarn(s string) string { return warnStyle.Render(s) }

func RenderFail(s string) string { return failStyle.Render(s) }

func RenderAccent(s string) string { return accentStyle.Render(s) }

func RenderMuted(s string) string { return mutedStyle.Render(s) }

func RenderBold(s string) string { return boldStyle.Render(s) }

func RenderHeader(s string) string { return headerStyle.Render(s) }

// RenderStatus colors a workflow or drift status word.
func RenderStatus(status string) string {
	switch status {
	case "completed", "up-to-date", "ok":
		return RenderPass(status)
	case "in-progress", "pending", "lines-changed", "mtime-changed":
		return RenderWarn(status)
	case "blocked", "deleted", "failed":
		return RenderFail(status)
	}
	return status
}

// RenderScore colors a 0-100 health score.
func RenderScore(score float64) string {
	s := fmt.Sprintf("%.1f", score)
	switch {
	case score >= 80:
		return RenderPass(s)
	case score >= 50:
		return RenderWarn(s)
	}
	return RenderFail(s)
}

// Bar draws a width-cell bar filled to score/100.
func Bar(score float64, width int) string {
	if width <= 0 {
		return ""
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	filled := int(score / 100 * float64(width))
	return colorFor(score).Render(strings.Repeat("█", filled)) + RenderMuted(strings.Repeat("░", width-filled))
}

func colorFor(score float64) lipgloss.Style {
	switch {
	case score >= 80:
		return passStyle
	case score >= 50:
		return warnStyle
	}
	return failStyle
}

// KeyValues renders aligned "key: value" lines.
func KeyValues(pairs ...[2]string) string {
	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	var b strings.Builder
	for _, p := range pairs {
		fmt.Fprintf(&b, "  %s %s\n", RenderMuted(fmt.Sprintf("%-*s", width+1, p[0]+":")), p[1])
	}
	return b.String()
}
