package stt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const (
	GroqBaseURL         = "https://api.groq.com/openai/v1"
	DefaultWhisperModel = "whisper-large-v3-turbo"
)

// WhisperRecognizer calls an OpenAI-compatible transcription endpoint.
type WhisperRecognizer struct {
	client   *openai.Client
	model    string
	language string
}

func NewWhisperRecognizer(
	apiKey, baseURL, model, language string,
) *WhisperRecognizer {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultWhisperModel
	}
	return &WhisperRecognizer{
		client:   openai.NewClientWithConfig(config),
		model:    model,
		language: language,
	}
}

func (w *WhisperRecognizer) Recognize(
	ctx context.Context,
	wav []byte,
) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(wav),
		Language: w.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return resp.Text, nil
}
