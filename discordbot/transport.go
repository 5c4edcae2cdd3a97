package discordbot

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"axiom/audio"
	"axiom/metrics"
	"axiom/voice"
)

// transport is one guild's voice connection. Inbound packets are tagged
// with the speaking user and forwarded to a channel that outlives rejoins.
type transport struct {
	discord Discord
	guildID string
	bitrate int
	log     *log.Logger

	packets chan voice.Packet

	mu        sync.Mutex
	channelID string
	conn      *discordgo.VoiceConnection
	ssrcs     map[uint32]string // ssrc -> user ID
	quit      chan struct{}     // stops the current forwarder
	stopped   bool
}

func newTransport(
	discord Discord,
	guildID, channelID string,
	bitrate, buffer int,
	logger *log.Logger,
) *transport {
	return &transport{
		discord:   discord,
		guildID:   guildID,
		channelID: channelID,
		bitrate:   bitrate,
		log:       logger.With("guild", guildID),
		packets:   make(chan voice.Packet, buffer),
		ssrcs:     make(map[uint32]string),
	}
}

func (t *transport) GuildID() string { return t.guildID }

func (t *transport) ChannelID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channelID
}

func (t *transport) SetChannelID(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channelID = channelID
}

func (t *transport) Packets() <-chan voice.Packet {
	return t.packets
}

func (t *transport) Ready() bool {
	return connectionReady(t.connection())
}

func (t *transport) connection() *discordgo.VoiceConnection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// attach switches the transport to vc and starts forwarding its packets.
func (t *transport) attach(vc *discordgo.VoiceConnection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || vc == t.conn {
		return
	}
	if t.quit != nil {
		close(t.quit)
	}
	t.conn = vc
	t.quit = make(chan struct{})

	vc.AddHandler(t.handleVoiceSpeakingUpdate)
	go t.acceptInboundAudioPackets(vc.OpusRecv, t.quit)
}

func (t *transport) handleVoiceSpeakingUpdate(
	_ *discordgo.VoiceConnection,
	event *discordgo.VoiceSpeakingUpdate,
) {
	t.log.Debug(
		"state",
		"speaking", event.Speaking,
		"userID", event.UserID,
		"ssrc", event.SSRC,
	)

	t.mu.Lock()
	t.ssrcs[uint32(event.SSRC)] = event.UserID
	t.mu.Unlock()
}

func (t *transport) speaker(ssrc uint32) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if userID, ok := t.ssrcs[ssrc]; ok {
		return userID
	}
	return "ssrc:" + strconv.FormatUint(uint64(ssrc), 10)
}

func (t *transport) acceptInboundAudioPackets(
	recv <-chan *discordgo.Packet,
	quit <-chan struct{},
) {
	for {
		select {
		case <-quit:
			return
		case packet, ok := <-recv:
			if !ok {
				return
			}

			pkt := voice.Packet{
				UserID: t.speaker(packet.SSRC),
				Opus:   packet.Opus,
			}

			select {
			case t.packets <- pkt:
			case <-quit:
				return
			default:
				metrics.DroppedFramesTotal.Inc()
				t.log.Warn("voice packet channel full, dropping packet")
			}
		}
	}
}

// Play decodes the MP3 through ffmpeg, re-encodes it as Opus and sends it
// at the connection's pace. It returns when the last packet is sent.
func (t *transport) Play(ctx context.Context, encoded []byte) error {
	vc := t.connection()
	if vc == nil {
		return fmt.Errorf("no voice connection")
	}

	enc, err := audio.NewOpusEncoder(t.bitrate)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := vc.Speaking(true); err != nil {
		return fmt.Errorf("failed to set speaking state: %w", err)
	}
	defer func() {
		if err := vc.Speaking(false); err != nil {
			t.log.Warn("failed to clear speaking state", "error", err)
		}
	}()

	pcm, errc := audio.DecodeToPCM(ctx, encoded)
	opusPackets := audio.EncodeOpusStream(ctx, enc, pcm)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet, ok := <-opusPackets:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return ctx.Err()
				}
			}
			select {
			case vc.OpusSend <- packet:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Rejoin joins the same channel again and resumes forwarding.
func (t *transport) Rejoin(ctx context.Context) error {
	t.mu.Lock()
	stopped := t.stopped
	channelID := t.channelID
	t.mu.Unlock()
	if stopped {
		return fmt.Errorf("transport is disconnected")
	}

	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	done := make(chan result, 1)
	go func() {
		vc, err := t.discord.ChannelVoiceJoin(t.guildID, channelID, false, false)
		done <- result{vc, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil && r.vc != nil {
				r.vc.Disconnect()
			}
		}()
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("failed to rejoin voice channel: %w", r.err)
		}
		t.attach(r.vc)
		return nil
	}
}

func (t *transport) Disconnect() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	if t.quit != nil {
		close(t.quit)
		t.quit = nil
	}
	vc := t.conn
	t.mu.Unlock()

	if vc == nil {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from voice channel: %w", err)
	}
	return nil
}
