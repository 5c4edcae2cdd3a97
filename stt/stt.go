package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"axiom/audio"
)

// SpeechRecognition turns a self-describing audio container into text.
type SpeechRecognition interface {
	Recognize(ctx context.Context, wav []byte) (string, error)
}

type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return "transcription failed: " + e.Err.Error()
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// Gateway frames captured PCM as WAV and hands it to a recognizer.
type Gateway struct {
	recognizer SpeechRecognition
	log        *log.Logger
	minLength  int
}

func NewGateway(
	recognizer SpeechRecognition,
	logger *log.Logger,
) *Gateway {
	return &Gateway{
		recognizer: recognizer,
		log:        logger,
		minLength:  2,
	}
}

// Transcribe returns the trimmed transcript, or "" when it is shorter than
// two characters. Recognizer failures come back as *TranscriptionError.
func (g *Gateway) Transcribe(
	ctx context.Context,
	pcm []int16,
	sampleRate, channels int,
) (string, error) {
	wav := audio.NewWavBuffer(audio.Int16ToBytes(pcm), sampleRate, channels)

	g.log.Debug(
		"transcribe",
		"bytes", len(wav),
		"seconds", float64(len(pcm))/float64(sampleRate*channels),
	)

	text, err := g.recognizer.Recognize(ctx, wav)
	if err != nil {
		return "", &TranscriptionError{Err: fmt.Errorf("recognize: %w", err)}
	}

	text = strings.TrimSpace(text)
	if len([]rune(text)) < g.minLength {
		return "", nil
	}

	return text, nil
}
