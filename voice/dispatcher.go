package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"axiom/etc"
	"axiom/tts"
)

const (
	PromptForMoreText = "Yes? What would you like to know?"
	SpokenApology     = "Sorry, I couldn't come up with an answer right now."
	TextApology       = "Sorry, I couldn't speak my answer. Please try again."

	maxMirrorLength = 1900
	mirrorTimeout   = 10 * time.Second
	journalTimeout  = 5 * time.Second
)

type Stage string

const (
	StageAnswer    Stage = "answer"
	StageSynthesis Stage = "synthesis"
	StagePlayback  Stage = "playback"
)

type DispatchError struct {
	Stage Stage
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Dispatcher answers a request out loud: AI answer, markup stripping,
// speech synthesis, playback. The answer is mirrored to the origin text
// channel and recorded in the journal on a best-effort basis.
type Dispatcher struct {
	Assistant       Answerer
	Speech          tts.SpeechGenerator
	Text            TextSender
	Journal         Journal
	VoiceID         string
	MaxSpeechLength int
	Log             *log.Logger
}

func (d *Dispatcher) Dispatch(
	ctx context.Context,
	req ResponseRequest,
	player Player,
) error {
	start := time.Now()

	answer := PromptForMoreText
	if !req.PromptForMore {
		var err error
		answer, err = d.Assistant.Answer(ctx, req.Question)
		if err != nil {
			d.Log.Error("answer failed", "id", req.ID, "error", err)
			if serr := d.speak(ctx, SpokenApology, player); serr != nil {
				d.mirror(req.OriginChannel, TextApology)
			}
			d.record(ctx, req, "", "answer_error", start)
			return &DispatchError{Stage: StageAnswer, Err: err}
		}
		d.mirror(req.OriginChannel, d.mirrorText(req, answer))
	}

	d.Log.Info("answering", "id", req.ID, "question", req.Question, "answer", answer)

	if err := d.speak(ctx, answer, player); err != nil {
		d.record(ctx, req, answer, "speech_error", start)
		// A cancelled dispatch was cut off on purpose and gets no apology.
		if ctx.Err() == nil {
			d.mirror(req.OriginChannel, TextApology)
		}
		return err
	}

	if !req.PromptForMore {
		d.record(ctx, req, answer, "ok", start)
	}
	return nil
}

func (d *Dispatcher) speak(ctx context.Context, text string, player Player) error {
	limit := d.MaxSpeechLength
	if limit == 0 {
		limit = tts.MaxSpeechLength
	}

	encoded, err := d.Speech.TextToSpeech(ctx, tts.CleanText(text, limit), d.VoiceID)
	if err != nil {
		d.Log.Error("speech synthesis failed", "error", err)
		return &DispatchError{Stage: StageSynthesis, Err: err}
	}

	if err := player.Play(ctx, encoded); err != nil {
		d.Log.Error("playback failed", "error", err)
		return &DispatchError{Stage: StagePlayback, Err: err}
	}
	return nil
}

func (d *Dispatcher) mirrorText(req ResponseRequest, answer string) string {
	text := fmt.Sprintf("🎙️ <@%s> asked: %s\n\n%s", req.RequesterID, req.Question, answer)
	if req.RequesterID == "" {
		text = answer
	}
	return etc.Truncate(text, maxMirrorLength, "\n\n*... (truncated)*")
}

// mirror posts to the text channel without holding up playback. Failures
// are logged and otherwise ignored.
func (d *Dispatcher) mirror(channelID, text string) {
	if d.Text == nil || channelID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := d.Text.SendText(ctx, channelID, text); err != nil {
			d.Log.Warn("text mirror failed", "channel", channelID, "error", err)
		}
	}()
}

func (d *Dispatcher) record(
	ctx context.Context,
	req ResponseRequest,
	answer, status string,
	start time.Time,
) {
	if d.Journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	err := d.Journal.Record(ctx, Exchange{
		ID:        req.ID,
		GuildID:   req.GuildID,
		ChannelID: req.OriginChannel,
		UserID:    req.RequesterID,
		Source:    req.Source,
		Question:  req.Question,
		Answer:    answer,
		Status:    status,
		Duration:  time.Since(start),
		CreatedAt: start,
	})
	if err != nil {
		d.Log.Warn("failed to record exchange", "id", req.ID, "error", err)
	}
}
