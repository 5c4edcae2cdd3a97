package tts

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/haguro/elevenlabs-go"
)

const (
	DefaultVoiceID = "pKLLpypGseGMUjkb5fEZ"
	DefaultModelID = "eleven_turbo_v2_5"
)

// SpeechGenerator returns encoded audio (MP3) for text.
type SpeechGenerator interface {
	TextToSpeech(ctx context.Context, text string, voiceID string) ([]byte, error)
}

type ElevenLabsSpeechGenerator struct {
	apiKey  string
	modelID string
	timeout time.Duration
}

func NewElevenLabsSpeechGenerator(apiKey string) *ElevenLabsSpeechGenerator {
	return &ElevenLabsSpeechGenerator{
		apiKey:  apiKey,
		modelID: DefaultModelID,
		timeout: 30 * time.Second,
	}
}

func (e *ElevenLabsSpeechGenerator) TextToSpeech(
	ctx context.Context,
	text string,
	voiceID string,
) ([]byte, error) {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}

	client := elevenlabs.NewClient(ctx, e.apiKey, e.timeout)
	ttsReq := elevenlabs.TextToSpeechRequest{
		Text:    text,
		ModelID: e.modelID,
	}

	var buf bytes.Buffer
	err := client.TextToSpeechStream(&buf, voiceID, ttsReq)
	if err != nil {
		return nil, fmt.Errorf("failed to generate speech: %w", err)
	}
	return buf.Bytes(), nil
}
