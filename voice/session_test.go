package voice

import (
	"errors"
	"testing"
	"time"
)

func speak(tr *fakeTransport, userID string, amp byte, frames int) {
	for i := 0; i < frames; i++ {
		tr.packets <- packet(userID, amp)
	}
}

func TestSubmitWhileSpeakingQueues(t *testing.T) {
	h := newHarness(t, testConfig())
	s, _ := h.join(t, "g1", "ana", "vc1")

	if !s.Submit(ResponseRequest{Question: "first"}) {
		t.Fatal("first request should dispatch immediately")
	}
	if got := h.responder.next(t); got.Question != "first" {
		t.Fatalf("dispatched %q", got.Question)
	}
	if s.State() != StateSpeaking {
		t.Fatalf("state = %v, want speaking", s.State())
	}

	if s.Submit(ResponseRequest{Question: "second"}) {
		t.Error("second request should be queued")
	}
	if s.Submit(ResponseRequest{Question: "third"}) {
		t.Error("third request should be queued")
	}
	if s.QueueLen() != 2 {
		t.Fatalf("queue length = %d, want 2", s.QueueLen())
	}
	h.responder.none(t, 20*time.Millisecond)

	h.responder.release <- nil
	if got := h.responder.next(t); got.Question != "second" {
		t.Fatalf("drained %q, want second", got.Question)
	}
	h.responder.release <- nil
	if got := h.responder.next(t); got.Question != "third" {
		t.Fatalf("drained %q, want third", got.Question)
	}
	h.responder.release <- nil

	eventually(t, "idle", func() bool { return s.State() == StateIdle })
	if s.QueueLen() != 0 {
		t.Errorf("queue length = %d after drain", s.QueueLen())
	}
}

func TestFailedDispatchSettlesAndDrains(t *testing.T) {
	cfg := testConfig()
	cfg.SettleDelay = 100 * time.Millisecond
	h := newHarness(t, cfg)
	s, _ := h.join(t, "g1", "ana", "vc1")

	s.Submit(ResponseRequest{Question: "first"})
	h.responder.next(t)
	s.Submit(ResponseRequest{Question: "second"})

	h.responder.release <- &DispatchError{Stage: StageAnswer, Err: errors.New("model unavailable")}

	// still settling
	h.responder.none(t, 30*time.Millisecond)
	if s.State() != StateSpeaking {
		t.Errorf("state = %v during settle, want speaking", s.State())
	}

	if got := h.responder.next(t); got.Question != "second" {
		t.Fatalf("drained %q, want second", got.Question)
	}
	if s.QueueLen() != 0 {
		t.Errorf("queue length = %d after drain", s.QueueLen())
	}

	h.responder.release <- &DispatchError{Stage: StagePlayback, Err: errors.New("connection reset")}
	eventually(t, "idle", func() bool { return s.State() == StateIdle })
	h.responder.none(t, 2*cfg.SettleDelay)
}

func TestSubmitFillsRequest(t *testing.T) {
	h := newHarness(t, testConfig())
	s, _ := h.join(t, "g1", "ana", "vc1")

	s.Submit(ResponseRequest{Question: "hello"})
	got := h.responder.next(t)

	if got.ID == "" {
		t.Error("request should have been given an ID")
	}
	if got.GuildID != "g1" {
		t.Errorf("guild = %q", got.GuildID)
	}
}

func TestQueueBoundWhileSpeaking(t *testing.T) {
	h := newHarness(t, testConfig())
	s, _ := h.join(t, "g1", "ana", "vc1")

	s.Submit(ResponseRequest{Question: "q0"})
	h.responder.next(t)

	for i := 1; i <= 7; i++ {
		s.Submit(ResponseRequest{Question: "q" + string(rune('0'+i))})
	}
	if s.QueueLen() != 5 {
		t.Fatalf("queue length = %d, want 5", s.QueueLen())
	}

	h.responder.release <- nil
	if got := h.responder.next(t); got.Question != "q3" {
		t.Errorf("oldest surviving request = %q, want q3", got.Question)
	}
}

func TestWatchdogDrainsOnce(t *testing.T) {
	cfg := testConfig()
	cfg.SpeakingWatchdog = 60 * time.Millisecond
	h := newHarness(t, cfg)
	s, _ := h.join(t, "g1", "ana", "vc1")

	s.Submit(ResponseRequest{Question: "stuck"})
	h.responder.next(t)
	s.Submit(ResponseRequest{Question: "next"})
	s.Submit(ResponseRequest{Question: "after"})

	// The stuck dispatch never finishes on its own; the watchdog forces
	// idle and drains exactly one request.
	if got := h.responder.next(t); got.Question != "next" {
		t.Fatalf("drained %q, want next", got.Question)
	}
	if s.QueueLen() != 1 {
		t.Fatalf("queue length = %d, want 1", s.QueueLen())
	}
	h.responder.none(t, 20*time.Millisecond)
	if s.State() != StateSpeaking {
		t.Errorf("state = %v, want speaking", s.State())
	}
}

func TestCloseClearsSession(t *testing.T) {
	h := newHarness(t, testConfig())
	s, tr := h.join(t, "g1", "ana", "vc1")

	s.Submit(ResponseRequest{Question: "one"})
	h.responder.next(t)
	s.Submit(ResponseRequest{Question: "two"})
	speak(tr, "bea", 10, 3)
	eventually(t, "listener", func() bool { return s.ListenerCount() == 1 })

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s.Wait()

	if s.State() != StateIdle || s.QueueLen() != 0 || s.ListenerCount() != 0 {
		t.Errorf("state=%v queue=%d listeners=%d after close", s.State(), s.QueueLen(), s.ListenerCount())
	}
	if !tr.isDisconnected() {
		t.Error("transport should be disconnected")
	}
	if s.Submit(ResponseRequest{Question: "late"}) {
		t.Error("closed session accepted a request")
	}
}

func TestAddressedUtteranceIsDispatched(t *testing.T) {
	h := newHarness(t, testConfig())
	h.transcriber.byAmp[1000] = "hey axiom what's the time"
	s, tr := h.join(t, "g1", "ana", "vc1")

	speak(tr, "ana", 10, 8)

	got := h.responder.next(t)
	if got.Question != "what's the time" {
		t.Errorf("question = %q", got.Question)
	}
	if got.RequesterID != "ana" || got.OriginChannel != "text-g1" || got.Source != SourceVoice {
		t.Errorf("unexpected request: %+v", got)
	}
	eventually(t, "listener cleanup", func() bool { return s.ListenerCount() == 0 })
}

func TestUnaddressedUtteranceIsDropped(t *testing.T) {
	h := newHarness(t, testConfig())
	h.transcriber.byAmp[1000] = "just chatting about lunch"
	_, tr := h.join(t, "g1", "ana", "vc1")

	speak(tr, "ana", 10, 8)

	eventually(t, "transcription", func() bool { return h.transcriber.callCount() == 1 })
	h.responder.none(t, 30*time.Millisecond)
}

func TestWakeWordAlonePromptsForMore(t *testing.T) {
	h := newHarness(t, testConfig())
	h.transcriber.byAmp[1000] = "axiom"
	_, tr := h.join(t, "g1", "ana", "vc1")

	speak(tr, "ana", 10, 8)

	got := h.responder.next(t)
	if !got.PromptForMore {
		t.Errorf("expected a prompt-for-more request, got %+v", got)
	}
}

func TestShortUtteranceNeverTranscribed(t *testing.T) {
	h := newHarness(t, testConfig())
	h.transcriber.byAmp[1000] = "axiom"
	s, tr := h.join(t, "g1", "ana", "vc1")

	speak(tr, "ana", 10, 4)

	eventually(t, "listener", func() bool { return s.ListenerCount() == 1 })
	eventually(t, "listener cleanup", func() bool { return s.ListenerCount() == 0 })
	time.Sleep(20 * time.Millisecond)
	if n := h.transcriber.callCount(); n != 0 {
		t.Errorf("transcriber called %d times for a 4 chunk utterance", n)
	}
}

func TestSilenceFramesAreIgnored(t *testing.T) {
	h := newHarness(t, testConfig())
	s, tr := h.join(t, "g1", "ana", "vc1")

	for i := 0; i < 10; i++ {
		tr.packets <- Packet{UserID: "ana", Opus: []byte{0xf8, 0xff, 0xfe}}
	}
	time.Sleep(20 * time.Millisecond)

	if s.ListenerCount() != 0 {
		t.Error("silence frames should not open a listener")
	}
}

func TestOneListenerPerSpeaker(t *testing.T) {
	h := newHarness(t, testConfig())
	h.transcriber.byAmp[1000] = "axiom tell me a joke"
	s, tr := h.join(t, "g1", "ana", "vc1")

	speak(tr, "ana", 10, 3)
	eventually(t, "listener", func() bool { return s.ListenerCount() == 1 })
	speak(tr, "ana", 10, 5)
	if n := s.ListenerCount(); n != 1 {
		t.Fatalf("listeners = %d, want 1", n)
	}

	h.responder.next(t)
	if n := h.transcriber.callCount(); n != 1 {
		t.Errorf("transcriptions = %d, want 1", n)
	}
	h.transcriber.mu.Lock()
	chunks := h.transcriber.chunks[0]
	h.transcriber.mu.Unlock()
	if chunks != 8 {
		t.Errorf("utterance had %d chunks, want 8", chunks)
	}
}

func TestTwoSimultaneousSpeakers(t *testing.T) {
	h := newHarness(t, testConfig())
	h.transcriber.byAmp[1000] = "axiom what's the weather"
	h.transcriber.byAmp[2000] = "hey axiom tell me a joke"
	s, tr := h.join(t, "g1", "ana", "vc1")

	for i := 0; i < 8; i++ {
		tr.packets <- packet("ana", 10)
		tr.packets <- packet("bea", 20)
	}

	eventually(t, "two listeners", func() bool { return s.ListenerCount() == 2 })
	eventually(t, "two transcriptions", func() bool { return h.transcriber.callCount() == 2 })

	first := h.responder.next(t)
	eventually(t, "second queued", func() bool { return s.QueueLen() == 1 })
	h.responder.none(t, 20*time.Millisecond)

	h.responder.release <- nil
	second := h.responder.next(t)

	if first.RequesterID == second.RequesterID {
		t.Errorf("both requests came from %s", first.RequesterID)
	}
}

func TestCaptureContinuesWhileSpeaking(t *testing.T) {
	h := newHarness(t, testConfig())
	h.transcriber.byAmp[1000] = "axiom how tall is everest"
	h.transcriber.byAmp[2000] = "lovely weather today"
	s, tr := h.join(t, "g1", "ana", "vc1")

	s.Submit(ResponseRequest{Question: "typed question"})
	h.responder.next(t)

	speak(tr, "bea", 20, 6)
	eventually(t, "first transcription", func() bool { return h.transcriber.callCount() == 1 })
	speak(tr, "ana", 10, 6)
	eventually(t, "second transcription", func() bool { return h.transcriber.callCount() == 2 })

	eventually(t, "queued question", func() bool { return s.QueueLen() == 1 })
	h.responder.release <- nil
	if got := h.responder.next(t); got.Question != "how tall is everest" {
		t.Errorf("drained %q", got.Question)
	}
}
