package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeAnswerer struct {
	answer string
	err    error
	calls  int
}

func (f *fakeAnswerer) Answer(_ context.Context, question string) (string, error) {
	f.calls++
	return f.answer, f.err
}

type fakeSpeech struct {
	err   error
	texts []string
}

func (f *fakeSpeech) TextToSpeech(_ context.Context, text, voiceID string) ([]byte, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("mp3:" + text), nil
}

type fakeJournal struct {
	mu        sync.Mutex
	exchanges []Exchange
}

func (f *fakeJournal) Record(_ context.Context, ex Exchange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, ex)
	return nil
}

func newTestDispatcher(answerer Answerer, speech *fakeSpeech, platform *fakePlatform) (*Dispatcher, *fakeJournal) {
	journal := &fakeJournal{}
	return &Dispatcher{
		Assistant: answerer,
		Speech:    speech,
		Text:      platform,
		Journal:   journal,
		Log:       testLogger(),
	}, journal
}

func mirrored(t *testing.T, p *fakePlatform) string {
	t.Helper()
	select {
	case text := <-p.texts:
		return text
	case <-time.After(time.Second):
		t.Fatal("nothing was sent to the text channel")
	}
	return ""
}

func TestDispatchAnswersOutLoud(t *testing.T) {
	platform := newFakePlatform()
	speech := &fakeSpeech{}
	d, journal := newTestDispatcher(&fakeAnswerer{answer: "It is **noon**."}, speech, platform)
	player := newFakeTransport("g1", "vc1")

	req := ResponseRequest{ID: "r1", Question: "what's the time", OriginChannel: "text", RequesterID: "ana", Source: SourceVoice}
	if err := d.Dispatch(context.Background(), req, player); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(speech.texts) != 1 || speech.texts[0] != "It is noon." {
		t.Errorf("synthesized %q", speech.texts)
	}
	if len(player.played) != 1 || string(player.played[0]) != "mp3:It is noon." {
		t.Errorf("played %q", player.played)
	}
	if text := mirrored(t, platform); !strings.Contains(text, "It is **noon**.") || !strings.Contains(text, "<@ana>") {
		t.Errorf("mirrored %q", text)
	}
	if len(journal.exchanges) != 1 || journal.exchanges[0].Status != "ok" || journal.exchanges[0].Answer != "It is **noon**." {
		t.Errorf("journal = %+v", journal.exchanges)
	}
}

func TestDispatchPromptForMoreSkipsAssistant(t *testing.T) {
	answerer := &fakeAnswerer{answer: "unused"}
	speech := &fakeSpeech{}
	d, journal := newTestDispatcher(answerer, speech, newFakePlatform())

	err := d.Dispatch(context.Background(), ResponseRequest{PromptForMore: true}, newFakeTransport("g1", "vc1"))
	if err != nil {
		t.Fatal(err)
	}
	if answerer.calls != 0 {
		t.Error("assistant should not be called for a bare wake word")
	}
	if len(speech.texts) != 1 || speech.texts[0] != PromptForMoreText {
		t.Errorf("synthesized %q", speech.texts)
	}
	if len(journal.exchanges) != 0 {
		t.Error("prompts for more are not journaled")
	}
}

func TestDispatchAnswerFailureApologizes(t *testing.T) {
	cause := errors.New("rate limited")
	speech := &fakeSpeech{}
	d, journal := newTestDispatcher(&fakeAnswerer{err: cause}, speech, newFakePlatform())
	player := newFakeTransport("g1", "vc1")

	err := d.Dispatch(context.Background(), ResponseRequest{Question: "hi", OriginChannel: "text"}, player)

	var derr *DispatchError
	if !errors.As(err, &derr) || derr.Stage != StageAnswer || !errors.Is(err, cause) {
		t.Fatalf("expected an answer-stage DispatchError, got %v", err)
	}
	if len(speech.texts) != 1 || speech.texts[0] != SpokenApology {
		t.Errorf("synthesized %q", speech.texts)
	}
	if len(player.played) != 1 {
		t.Error("the apology should be played")
	}
	if len(journal.exchanges) != 1 || journal.exchanges[0].Status != "answer_error" {
		t.Errorf("journal = %+v", journal.exchanges)
	}
}

func TestDispatchSynthesisFailureApologizesInText(t *testing.T) {
	platform := newFakePlatform()
	speech := &fakeSpeech{err: errors.New("quota exceeded")}
	d, _ := newTestDispatcher(&fakeAnswerer{answer: "forty two"}, speech, platform)
	player := newFakeTransport("g1", "vc1")

	err := d.Dispatch(context.Background(), ResponseRequest{Question: "meaning of life", OriginChannel: "text"}, player)

	var derr *DispatchError
	if !errors.As(err, &derr) || derr.Stage != StageSynthesis {
		t.Fatalf("expected a synthesis-stage DispatchError, got %v", err)
	}
	if len(player.played) != 0 {
		t.Error("nothing should have been played")
	}

	got := []string{mirrored(t, platform), mirrored(t, platform)}
	found := false
	for _, text := range got {
		if text == TextApology {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a text apology, got %q", got)
	}
}

func TestDispatchPlaybackFailureApologizesInText(t *testing.T) {
	platform := newFakePlatform()
	d, journal := newTestDispatcher(&fakeAnswerer{answer: "forty two"}, &fakeSpeech{}, platform)
	player := newFakeTransport("g1", "vc1")
	player.playErr = errors.New("udp closed")

	err := d.Dispatch(context.Background(), ResponseRequest{Question: "meaning of life", OriginChannel: "text"}, player)

	var derr *DispatchError
	if !errors.As(err, &derr) || derr.Stage != StagePlayback {
		t.Fatalf("expected a playback-stage DispatchError, got %v", err)
	}
	got := []string{mirrored(t, platform), mirrored(t, platform)}
	if got[0] != TextApology && got[1] != TextApology {
		t.Errorf("expected a text apology, got %q", got)
	}
	if len(journal.exchanges) != 1 || journal.exchanges[0].Status != "speech_error" {
		t.Errorf("journal = %+v", journal.exchanges)
	}
}

func TestDispatchCancelledPlaybackIsQuiet(t *testing.T) {
	platform := newFakePlatform()
	d, _ := newTestDispatcher(&fakeAnswerer{answer: "forty two"}, &fakeSpeech{}, platform)
	player := newFakeTransport("g1", "vc1")
	player.playErr = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, ResponseRequest{Question: "meaning of life", OriginChannel: "text"}, player)

	// only the answer mirror
	if text := mirrored(t, platform); text == TextApology {
		t.Errorf("mirrored %q", text)
	}
	select {
	case text := <-platform.texts:
		t.Errorf("unexpected text %q", text)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMirrorTextIsTruncated(t *testing.T) {
	d, _ := newTestDispatcher(&fakeAnswerer{}, &fakeSpeech{}, newFakePlatform())

	text := d.mirrorText(ResponseRequest{RequesterID: "ana", Question: "q"}, strings.Repeat("a", 3000))
	if n := len([]rune(text)); n != maxMirrorLength {
		t.Errorf("mirror length = %d, want %d", n, maxMirrorLength)
	}
	if !strings.HasSuffix(text, "(truncated)*") {
		t.Errorf("missing truncation marker")
	}
}
