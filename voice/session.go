package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"axiom/audio"
	"axiom/metrics"
	"axiom/wake"
)

// ListenerHandle tracks the capture of one utterance from one speaker.
type ListenerHandle struct {
	UserID  string
	Started time.Time

	frames chan []byte
	cancel context.CancelFunc
}

// Session is the live voice state of one guild. All mutable fields are
// guarded by mu.
type Session struct {
	GuildID       string
	TextChannelID string
	StartedAt     time.Time

	transport Transport
	cfg       Config
	deps      Deps
	log       *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	state          State
	epoch          uint64
	queue          *responseQueue
	listeners      map[string]*ListenerHandle
	dispatchCancel context.CancelFunc
	watchdog       *time.Timer
	settle         *time.Timer
	recovering     bool
	closed         bool
}

func newSession(
	transport Transport,
	textChannelID string,
	cfg Config,
	deps Deps,
	logger *log.Logger,
) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		GuildID:       transport.GuildID(),
		TextChannelID: textChannelID,
		StartedAt:     time.Now(),
		transport:     transport,
		cfg:           cfg,
		deps:          deps,
		log:           logger.With("guild", transport.GuildID()),
		ctx:           ctx,
		cancel:        cancel,
		queue:         newResponseQueue(cfg.QueueSize),
		listeners:     make(map[string]*ListenerHandle),
	}
}

func (s *Session) start() {
	s.wg.Add(1)
	go s.pump()
}

// ChannelID is the voice channel the session is connected to.
func (s *Session) ChannelID() string {
	return s.transport.ChannelID()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

func (s *Session) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Submit dispatches req when the session is idle and queues it otherwise.
// It reports whether req was dispatched immediately.
func (s *Session) Submit(req ResponseRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if req.ID == "" && s.deps.NewID != nil {
		req.ID = s.deps.NewID()
	}
	req.GuildID = s.GuildID

	if s.state == StateSpeaking {
		if evicted, ok := s.queue.push(req); ok {
			metrics.QueueEvictionsTotal.Inc()
			s.log.Warn(
				"response queue full, dropped oldest question",
				"dropped", evicted.Question,
			)
		}
		s.log.Info("queued", "question", req.Question, "depth", s.queue.len())
		return false
	}

	s.startDispatchLocked(req)
	return true
}

func (s *Session) startDispatchLocked(req ResponseRequest) {
	s.stopTimersLocked()
	s.state = StateSpeaking
	s.epoch++
	epoch := s.epoch

	ctx, cancel := context.WithCancel(s.ctx)
	s.dispatchCancel = cancel
	s.watchdog = time.AfterFunc(s.cfg.SpeakingWatchdog, func() {
		s.watchdogFired(epoch)
	})

	s.wg.Add(1)
	go s.respond(ctx, req, epoch)
}

func (s *Session) respond(ctx context.Context, req ResponseRequest, epoch uint64) {
	defer s.wg.Done()

	start := time.Now()
	err := s.deps.Responder.Dispatch(ctx, req, s.transport)
	metrics.ResponseDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ResponsesTotal.WithLabelValues("error").Inc()
		s.log.Error("response failed", "id", req.ID, "error", err)
	} else {
		metrics.ResponsesTotal.WithLabelValues("success").Inc()
	}

	s.playbackIdle(epoch)
}

// playbackIdle starts the settle delay once the response for epoch has
// finished playing.
func (s *Session) playbackIdle(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.epoch != epoch || s.state != StateSpeaking {
		return
	}

	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	s.settle = time.AfterFunc(s.cfg.SettleDelay, func() {
		s.becomeIdle(epoch)
	})
}

func (s *Session) watchdogFired(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.epoch != epoch || s.state != StateSpeaking {
		return
	}

	metrics.WatchdogFiredTotal.Inc()
	s.log.Warn("speaking watchdog fired, forcing idle", "after", s.cfg.SpeakingWatchdog)
	s.becomeIdleLocked()
}

func (s *Session) becomeIdle(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.epoch != epoch || s.state != StateSpeaking {
		return
	}
	s.becomeIdleLocked()
}

// becomeIdleLocked moves to Idle and makes the one drain attempt that
// belongs to this transition. Bumping the epoch turns every pending timer
// and in-flight playback signal of the previous response into a no-op.
func (s *Session) becomeIdleLocked() {
	s.stopTimersLocked()
	if s.dispatchCancel != nil {
		s.dispatchCancel()
		s.dispatchCancel = nil
	}
	s.state = StateIdle
	s.epoch++

	if next, ok := s.queue.pop(); ok {
		s.log.Debug("draining queue", "question", next.Question, "remaining", s.queue.len())
		s.startDispatchLocked(next)
	}
}

func (s *Session) stopTimersLocked() {
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
}

func (s *Session) pump() {
	defer s.wg.Done()

	packets := s.transport.Packets()
	for {
		select {
		case <-s.ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			s.route(pkt)
		}
	}
}

// route hands a frame to the speaker's listener, starting one if the
// speaker has none. Frames are dropped rather than blocking the pump.
func (s *Session) route(pkt Packet) {
	if audio.IsSilenceFrame(pkt.Opus) {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	h, ok := s.listeners[pkt.UserID]
	if !ok {
		h = s.newListenerLocked(pkt.UserID)
	}
	s.mu.Unlock()

	select {
	case h.frames <- pkt.Opus:
	default:
		metrics.DroppedFramesTotal.Inc()
		s.log.Warn("voice packet channel full, dropping packet", "user", pkt.UserID)
	}
}

func (s *Session) newListenerLocked(userID string) *ListenerHandle {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ListenerCeiling)
	h := &ListenerHandle{
		UserID:  userID,
		Started: time.Now(),
		frames:  make(chan []byte, s.cfg.FrameBuffer),
		cancel:  cancel,
	}
	s.listeners[userID] = h
	metrics.ListenersActive.Inc()

	s.wg.Add(1)
	go s.listen(ctx, h)
	return h
}

func (s *Session) removeListener(h *ListenerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners[h.UserID] == h {
		delete(s.listeners, h.UserID)
	}
}

func (s *Session) listen(ctx context.Context, h *ListenerHandle) {
	defer s.wg.Done()
	defer metrics.ListenersActive.Dec()

	chunks, err := s.capture(ctx, h)
	h.cancel()
	s.removeListener(h)

	if err != nil {
		s.captureFailed(h, err)
		return
	}

	text, err := s.deps.Transcriber.Transcribe(
		s.ctx,
		flatten(chunks),
		audio.SampleRate,
		audio.Channels,
	)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		metrics.UtterancesTotal.WithLabelValues("stt_error").Inc()
		s.log.Error("transcription failed", "user", h.UserID, "error", err)
		return
	}
	if text == "" {
		metrics.UtterancesTotal.WithLabelValues("empty").Inc()
		return
	}
	metrics.UtterancesTotal.WithLabelValues("transcribed").Inc()

	s.log.Info("heard", "user", h.UserID, "text", text)
	s.handleTranscript(h.UserID, text)
}

func (s *Session) capture(ctx context.Context, h *ListenerHandle) ([][]int16, error) {
	newDecoder := s.deps.NewDecoder
	if newDecoder == nil {
		newDecoder = audio.NewOpusDecoder
	}
	dec, err := newDecoder()
	if err != nil {
		return nil, err
	}

	chunks, errc := audio.DecodeOpusStream(ctx, dec, h.frames)
	return Assemble(ctx, chunks, errc, s.cfg)
}

func (s *Session) captureFailed(h *ListenerHandle, err error) {
	switch {
	case errors.Is(err, ErrUtteranceTooShort):
		metrics.UtterancesTotal.WithLabelValues("short").Inc()
		s.log.Debug("utterance too short", "user", h.UserID)
	case errors.Is(err, ErrListenerCeiling):
		metrics.UtterancesTotal.WithLabelValues("ceiling").Inc()
		s.log.Warn("listener hit ceiling, discarding", "user", h.UserID, "after", time.Since(h.Started))
	case s.ctx.Err() != nil:
	default:
		metrics.UtterancesTotal.WithLabelValues("decode_error").Inc()
		s.log.Error("capture failed", "user", h.UserID, "error", err)
	}
}

func (s *Session) handleTranscript(userID, text string) {
	result := s.deps.Gate.Extract(text)

	switch result.Kind {
	case wake.None:
		metrics.GateTotal.WithLabelValues("none").Inc()
		s.log.Debug("not addressed, ignoring", "user", userID)
		return
	case wake.PromptForMore:
		metrics.GateTotal.WithLabelValues("prompt").Inc()
	case wake.Question:
		metrics.GateTotal.WithLabelValues("question").Inc()
	}

	s.Submit(ResponseRequest{
		Question:      result.Question,
		OriginChannel: s.TextChannelID,
		RequesterID:   userID,
		PromptForMore: result.Kind == wake.PromptForMore,
		Source:        SourceVoice,
	})
}

// markRecovering reports false when a recovery is already running.
func (s *Session) markRecovering() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.recovering {
		return false
	}
	s.recovering = true
	return true
}

func (s *Session) recovered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovering = false
}

// Close tears the session down: queue, listeners, speaking flag and timers
// are cleared together, then the transport is disconnected.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimersLocked()
	if s.dispatchCancel != nil {
		s.dispatchCancel()
		s.dispatchCancel = nil
	}
	s.queue.clear()
	for id, h := range s.listeners {
		h.cancel()
		delete(s.listeners, id)
	}
	s.state = StateIdle
	s.epoch++
	s.mu.Unlock()

	s.cancel()
	return s.transport.Disconnect()
}

// Wait blocks until every goroutine of a closed session has exited.
func (s *Session) Wait() {
	s.wg.Wait()
}
