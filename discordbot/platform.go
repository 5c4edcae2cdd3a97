package discordbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"axiom/voice"
)

// Platform attaches the voice engine to Discord.
type Platform struct {
	discord Discord
	log     *log.Logger

	// Bitrate of outbound Opus audio, in bits per second.
	Bitrate int

	// FrameBuffer is the inbound packet buffer of each connection.
	FrameBuffer int
}

func NewPlatform(discord Discord, logger *log.Logger) *Platform {
	return &Platform{
		discord:     discord,
		log:         logger,
		Bitrate:     64000,
		FrameBuffer: 3 * 1000 / 20, // 3 seconds of audio
	}
}

func (p *Platform) Connect(
	ctx context.Context,
	guildID, channelID string,
) (voice.Transport, error) {
	vc, err := p.joinVoiceChannel(ctx, guildID, channelID)
	if err != nil {
		return nil, err
	}

	t := newTransport(p.discord, guildID, channelID, p.Bitrate, p.FrameBuffer, p.log)
	t.attach(vc)
	p.log.Info("joined", "guild", guildID, "channel", channelID)
	return t, nil
}

// joinVoiceChannel joins and waits for the connection to become ready. A
// join that completes after ctx gave up is disconnected again.
func (p *Platform) joinVoiceChannel(
	ctx context.Context,
	guildID, channelID string,
) (*discordgo.VoiceConnection, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	done := make(chan result, 1)
	go func() {
		vc, err := p.discord.ChannelVoiceJoin(guildID, channelID, false, false)
		done <- result{vc, err}
	}()

	var vc *discordgo.VoiceConnection
	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil && r.vc != nil {
				r.vc.Disconnect()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			if r.vc != nil {
				r.vc.Disconnect()
			}
			if isVoiceTimeout(r.err) {
				return nil, fmt.Errorf("failed to join voice channel: %w: %v", voice.ErrConnectTimeout, r.err)
			}
			return nil, fmt.Errorf("failed to join voice channel: %w", r.err)
		}
		vc = r.vc
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !connectionReady(vc) {
		select {
		case <-ctx.Done():
			vc.Disconnect()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return vc, nil
}

// isVoiceTimeout reports whether discordgo gave up waiting for the voice
// handshake. It has its own deadline of about ten seconds and only reports
// it as text.
func isVoiceTimeout(err error) bool {
	return strings.Contains(err.Error(), "timeout waiting for voice")
}

func connectionReady(vc *discordgo.VoiceConnection) bool {
	if vc == nil {
		return false
	}
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

func (p *Platform) UserVoiceChannel(guildID, userID string) (string, error) {
	states, err := p.discord.GuildVoiceStates(guildID)
	if err != nil {
		return "", err
	}
	for _, vs := range states {
		if vs.UserID == userID {
			return vs.ChannelID, nil
		}
	}
	return "", nil
}

func (p *Platform) HumanCount(guildID, channelID string) (int, error) {
	states, err := p.discord.GuildVoiceStates(guildID)
	if err != nil {
		return 0, err
	}
	me, _ := p.discord.MyUserID()

	n := 0
	for _, vs := range states {
		if vs.ChannelID != channelID || vs.UserID == me {
			continue
		}
		if p.discord.IsBot(guildID, vs.UserID) {
			continue
		}
		n++
	}
	return n, nil
}

func (p *Platform) SendText(ctx context.Context, channelID, text string) error {
	_, err := p.discord.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	return nil
}
