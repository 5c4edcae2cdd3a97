package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-1.5-flash"

type GeminiLanguageModel struct {
	client *genai.Client
	model  string
}

func NewGeminiLanguageModel(
	ctx context.Context,
	apiKey, model string,
) (*GeminiLanguageModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiLanguageModel{client: client, model: model}, nil
}

func (g *GeminiLanguageModel) Close() error {
	return g.client.Close()
}

func (g *GeminiLanguageModel) ChatCompletion(
	ctx context.Context,
	req *ChatCompletionRequest,
) (string, error) {
	// GenerativeModel carries per-request settings, so build one per call.
	model := g.client.GenerativeModel(g.model)
	if req.MaxTokens > 0 {
		model.GenerationConfig.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	model.GenerationConfig.SetTemperature(req.Temperature)
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}

	parts := make([]genai.Part, 0, len(req.UserMessages))
	for _, m := range req.UserMessages {
		parts = append(parts, genai.Text(m))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	return strings.TrimSpace(responseText(resp)), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}
	return b.String()
}
