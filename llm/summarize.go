package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type TranscriptLine struct {
	Time    time.Time
	Speaker string
	Text    string
}

const synopsisPrompt = "Analyze the following voice channel log and provide a narrative synopsis. " +
	"Write punchy single sentence paragraphs, each one prefixed by a relevant emoji, different ones. " +
	"Emphasize key words and salient concepts with CAPS. " +
	"Keep it real, authentic, and not too long."

// SummarizeTranscript asks the model for a short synopsis of a journal
// excerpt.
func SummarizeTranscript(
	ctx context.Context,
	model LanguageModel,
	lines []TranscriptLine,
) (string, error) {
	if len(lines) == 0 {
		return "No exchanges found", nil
	}

	var formatted strings.Builder
	for _, l := range lines {
		formatted.WriteString(
			fmt.Sprintf(
				"%s %s: %s\n",
				l.Time.Format("15:04:05"),
				l.Speaker,
				l.Text,
			),
		)
	}

	req := &ChatCompletionRequest{
		SystemPrompt: synopsisPrompt,
		MaxTokens:    500,
		Temperature:  0.7,
	}

	summary, err := model.ChatCompletion(
		ctx,
		req.WithUserMessage(formatted.String()),
	)
	if err != nil {
		return "", fmt.Errorf("summarize transcript: %w", err)
	}

	return summary, nil
}
