// Package voice is the voice interaction engine: per-guild sessions that
// capture speakers, gate transcripts on a wake phrase, and answer out loud
// without talking over themselves.
package voice

import (
	"context"
	"errors"
	"time"

	"axiom/audio"
	"axiom/wake"
)

var (
	ErrNoChannel         = errors.New("user is not in a voice channel")
	ErrConnectTimeout    = errors.New("timed out connecting to voice")
	ErrNotConnected      = errors.New("not connected to voice in this guild")
	ErrUtteranceTooShort = errors.New("utterance too short")
	ErrListenerCeiling   = errors.New("listener exceeded maximum capture time")
	ErrClosed            = errors.New("voice manager is closed")
)

type State int

const (
	StateIdle State = iota
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	}
	return "unknown"
}

type Source string

const (
	SourceVoice Source = "voice"
	SourceText  Source = "text"
)

// ResponseRequest is one accepted question waiting to be answered out loud.
type ResponseRequest struct {
	ID            string
	GuildID       string
	Question      string
	OriginChannel string
	RequesterID   string
	PromptForMore bool
	Source        Source
}

// Packet is one inbound Opus frame attributed to a speaker.
type Packet struct {
	UserID string
	Opus   []byte
}

// Player plays encoded audio (MP3) into the voice channel and returns when
// playback has finished.
type Player interface {
	Play(ctx context.Context, encoded []byte) error
}

// Transport is a live voice connection in one guild.
type Transport interface {
	Player

	// Packets yields inbound frames. The channel stays the same across
	// Rejoin.
	Packets() <-chan Packet
	Ready() bool
	Rejoin(ctx context.Context) error
	Disconnect() error
	GuildID() string
	ChannelID() string

	// SetChannelID records that the connection was moved to another
	// channel of the same guild.
	SetChannelID(channelID string)
}

type TextSender interface {
	SendText(ctx context.Context, channelID, text string) error
}

// Platform is the chat platform the engine attaches to.
type Platform interface {
	TextSender

	// Connect joins a voice channel and returns once the connection is
	// ready or ctx is done.
	Connect(ctx context.Context, guildID, channelID string) (Transport, error)

	// UserVoiceChannel returns "" when the user is in no voice channel.
	UserVoiceChannel(guildID, userID string) (string, error)

	// HumanCount counts the non-bot members of a voice channel.
	HumanCount(guildID, channelID string) (int, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm []int16, sampleRate, channels int) (string, error)
}

type WakeGate interface {
	Extract(transcript string) wake.Result
}

type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Responder turns an accepted request into speech. *Dispatcher is the
// production implementation.
type Responder interface {
	Dispatch(ctx context.Context, req ResponseRequest, player Player) error
}

// Exchange is one answered question, as stored in the journal.
type Exchange struct {
	ID        string
	GuildID   string
	ChannelID string
	UserID    string
	Source    Source
	Question  string
	Answer    string
	Status    string
	Duration  time.Duration
	CreatedAt time.Time
}

type Journal interface {
	Record(ctx context.Context, ex Exchange) error
}

type Config struct {
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReconnectGrace    time.Duration `mapstructure:"reconnect_grace"`
	SilenceTimeout    time.Duration `mapstructure:"silence_timeout"`
	SilenceRMS        float64       `mapstructure:"silence_rms"`
	MinChunks         int           `mapstructure:"min_chunks"`
	ListenerCeiling   time.Duration `mapstructure:"listener_ceiling"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	SpeakingWatchdog  time.Duration `mapstructure:"speaking_watchdog"`
	EmptyChannelDelay time.Duration `mapstructure:"empty_channel_delay"`
	QueueSize         int           `mapstructure:"queue_size"`
	FrameBuffer       int           `mapstructure:"frame_buffer"`
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    15 * time.Second,
		ReconnectGrace:    5 * time.Second,
		SilenceTimeout:    2 * time.Second,
		SilenceRMS:        150,
		MinChunks:         5,
		ListenerCeiling:   30 * time.Second,
		SettleDelay:       500 * time.Millisecond,
		SpeakingWatchdog:  60 * time.Second,
		EmptyChannelDelay: 10 * time.Second,
		QueueSize:         5,
		FrameBuffer:       64,
	}
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Transcriber Transcriber
	Gate        WakeGate
	Responder   Responder

	// NewDecoder builds one Opus decoder per listener. Defaults to
	// audio.NewOpusDecoder.
	NewDecoder func() (audio.FrameDecoder, error)

	// NewID names requests. Defaults to etc.NewFreshID.
	NewID func() string
}
