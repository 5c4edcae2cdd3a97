package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"axiom/audio"
	"axiom/wake"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 100 * time.Millisecond
	cfg.ReconnectGrace = 50 * time.Millisecond
	cfg.SilenceTimeout = 40 * time.Millisecond
	cfg.ListenerCeiling = 2 * time.Second
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.SpeakingWatchdog = 5 * time.Second
	cfg.EmptyChannelDelay = 30 * time.Millisecond
	return cfg
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// eventually polls cond until it holds or a second has passed.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// packet builds a frame the fake decoder turns into a chunk whose samples
// all equal amp*100.
func packet(userID string, amp byte) Packet {
	return Packet{UserID: userID, Opus: []byte{amp, 0x01, 0x02}}
}

type fakeDecoder struct{}

func (fakeDecoder) Decode(data []byte, pcm []int16) (int, error) {
	if len(data) == 0 || data[0] == 0xee {
		return 0, errors.New("corrupted frame")
	}
	n := audio.FrameSize
	for i := 0; i < n*audio.Channels; i++ {
		pcm[i] = int16(data[0]) * 100
	}
	return n, nil
}

func newFakeDecoder() (audio.FrameDecoder, error) {
	return fakeDecoder{}, nil
}

type fakeTransport struct {
	guildID   string
	channelID string
	packets   chan Packet

	mu           sync.Mutex
	ready        bool
	rejoinErr    error
	rejoins      int
	disconnected bool
	played       [][]byte
	playErr      error
}

func newFakeTransport(guildID, channelID string) *fakeTransport {
	return &fakeTransport{
		guildID:   guildID,
		channelID: channelID,
		packets:   make(chan Packet, 256),
		ready:     true,
	}
}

func (f *fakeTransport) Packets() <-chan Packet { return f.packets }
func (f *fakeTransport) GuildID() string        { return f.guildID }

func (f *fakeTransport) ChannelID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channelID
}

func (f *fakeTransport) SetChannelID(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelID = channelID
}

func (f *fakeTransport) Play(_ context.Context, encoded []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.played = append(f.played, encoded)
	return nil
}

func (f *fakeTransport) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeTransport) Rejoin(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejoins++
	if f.rejoinErr != nil {
		f.ready = false
		return f.rejoinErr
	}
	f.ready = true
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	return nil
}

func (f *fakeTransport) isDisconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

type fakePlatform struct {
	mu           sync.Mutex
	userChannels map[string]string
	humans       map[string]int
	connects     int
	transports   []*fakeTransport
	hang         bool
	connectErr   error
	texts        chan string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		userChannels: make(map[string]string),
		humans:       make(map[string]int),
		texts:        make(chan string, 16),
	}
}

func (p *fakePlatform) Connect(ctx context.Context, guildID, channelID string) (Transport, error) {
	p.mu.Lock()
	hang := p.hang
	connectErr := p.connectErr
	p.connects++
	p.mu.Unlock()

	if connectErr != nil {
		return nil, connectErr
	}
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	t := newFakeTransport(guildID, channelID)
	p.mu.Lock()
	p.transports = append(p.transports, t)
	p.mu.Unlock()
	return t, nil
}

func (p *fakePlatform) UserVoiceChannel(guildID, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userChannels[userID], nil
}

func (p *fakePlatform) HumanCount(guildID, channelID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.humans[channelID], nil
}

func (p *fakePlatform) SendText(_ context.Context, channelID, text string) error {
	p.texts <- text
	return nil
}

func (p *fakePlatform) setHumans(channelID string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.humans[channelID] = n
}

func (p *fakePlatform) connectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

// fakeTranscriber maps the amplitude of the first sample to a transcript.
type fakeTranscriber struct {
	mu     sync.Mutex
	byAmp  map[int16]string
	calls  int
	chunks []int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, pcm []int16, sampleRate, channels int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.chunks = append(f.chunks, len(pcm)/(audio.FrameSize*channels))
	if len(pcm) == 0 {
		return "", nil
	}
	return f.byAmp[pcm[0]], nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeResponder records every request and holds each dispatch until
// released or cancelled. The value sent on release is the dispatch result.
type fakeResponder struct {
	got     chan ResponseRequest
	release chan error
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{
		got:     make(chan ResponseRequest, 16),
		release: make(chan error),
	}
}

func (f *fakeResponder) Dispatch(ctx context.Context, req ResponseRequest, _ Player) error {
	f.got <- req
	select {
	case err := <-f.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeResponder) next(t *testing.T) ResponseRequest {
	t.Helper()
	select {
	case req := <-f.got:
		return req
	case <-time.After(time.Second):
		t.Fatal("no request dispatched")
	}
	return ResponseRequest{}
}

func (f *fakeResponder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case req := <-f.got:
		t.Fatalf("unexpected dispatch of %q", req.Question)
	case <-time.After(wait):
	}
}

type harness struct {
	platform    *fakePlatform
	transcriber *fakeTranscriber
	responder   *fakeResponder
	manager     *Manager
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	gate, err := wake.New(wake.DefaultRules())
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		platform:    newFakePlatform(),
		transcriber: &fakeTranscriber{byAmp: make(map[int16]string)},
		responder:   newFakeResponder(),
	}
	h.manager = NewManager(h.platform, cfg, Deps{
		Transcriber: h.transcriber,
		Gate:        gate,
		Responder:   h.responder,
		NewDecoder:  newFakeDecoder,
	}, testLogger())

	t.Cleanup(h.manager.Close)
	return h
}

// join puts user in channel and joins the guild on their behalf.
func (h *harness) join(t *testing.T, guildID, userID, channelID string) (*Session, *fakeTransport) {
	t.Helper()

	h.platform.mu.Lock()
	h.platform.userChannels[userID] = channelID
	h.platform.humans[channelID]++
	h.platform.mu.Unlock()

	s, err := h.manager.Join(context.Background(), guildID, userID, "text-"+guildID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return s, s.transport.(*fakeTransport)
}
