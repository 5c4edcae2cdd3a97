package llm

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
)

const NoResponse = "No response generated."

// Assistant wraps a LanguageModel with Axiom's prompt modes.
type Assistant struct {
	Model       LanguageModel
	MaxTokens   int
	Temperature float32
	Log         *log.Logger
}

func NewAssistant(model LanguageModel, logger *log.Logger) *Assistant {
	return &Assistant{
		Model:       model,
		MaxTokens:   1024,
		Temperature: 0.7,
		Log:         logger,
	}
}

func (a *Assistant) Ask(
	ctx context.Context,
	mode Mode,
	prompt string,
) (string, error) {
	req := &ChatCompletionRequest{
		SystemPrompt: mode.SystemPrompt(),
		MaxTokens:    a.MaxTokens,
		Temperature:  a.Temperature,
	}

	a.Log.Debug("ask", "mode", mode, "prompt", prompt)

	text, err := a.Model.ChatCompletion(ctx, req.WithUserMessage(prompt))
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return NoResponse, nil
	}

	return text, nil
}

// Answer replies to a spoken question.
func (a *Assistant) Answer(ctx context.Context, question string) (string, error) {
	return a.Ask(ctx, ModeVoice, question)
}
