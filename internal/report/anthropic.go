package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// maxPromptFiles caps how many file names are sent in a prompt.
	maxPromptFiles = 100

	// narratorRetries replaces the SDK default; the event queue waits on
	// every attempt.
	narratorRetries = 1
)

// AnthropicNarrator asks a Claude model for a short prose summary.
type AnthropicNarrator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicNarrator returns a narrator for model. An empty apiKey falls
// back to the ANTHROPIC_API_KEY environment variable. A positive timeout
// bounds each request attempt.
func NewAnthropicNarrator(apiKey, model string, maxTokens int, timeout time.Duration) *AnthropicNarrator {
	opts := []option.RequestOption{option.WithMaxRetries(narratorRetries)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicNarrator{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Narrate implements Narrator.
func (n *AnthropicNarrator) Narrate(ctx context.Context, in *Input) (string, error) {
	msg, err := n.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(n.model),
		MaxTokens: n.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(Prompt(in))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic response had no text")
	}
	return sb.String(), nil
}

// Prompt builds the narration request for in.
func Prompt(in *Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize the completed %s %q for an engineering log in at most two short paragraphs.\n", in.Kind, in.ID)
	sb.WriteString("Focus on what changed and anything left unresolved. Do not invent details.\n\n")
	fmt.Fprintf(&sb, "Status: %s\n", in.Status)
	if in.Stage != "" {
		fmt.Fprintf(&sb, "Stage: %s\n", in.Stage)
	}

	if len(in.Records) > 0 {
		sb.WriteString("\nCompleted work:\n")
		for _, r := range in.Records {
			fmt.Fprintf(&sb, "- %s: %d files", r.Participant, len(r.Files))
			if r.Summary != "" {
				fmt.Fprintf(&sb, ", %s", r.Summary)
			}
			sb.WriteString("\n")
		}
	}
	for _, g := range in.Groups {
		fmt.Fprintf(&sb, "- group %s: %s (%d/%d)\n", g.ID, g.Status, len(g.Completed), len(g.Expected))
	}
	if len(in.Blockers) > 0 {
		fmt.Fprintf(&sb, "\nBlockers: %s\n", strings.Join(in.Blockers, "; "))
	}

	files := in.Files()
	if len(files) > maxPromptFiles {
		files = files[:maxPromptFiles]
	}
	if len(files) > 0 {
		sb.WriteString("\nFiles:\n")
		for _, f := range files {
			sb.WriteString(f + "\n")
		}
	}
	return sb.String()
}
