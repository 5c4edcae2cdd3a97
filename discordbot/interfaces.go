package discordbot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Discord is the slice of the discordgo session the bot uses. DiscordSession
// adapts a real session; tests substitute a fake.
type Discord interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	UpdateListeningStatus(name string) (err error)
	ChannelVoiceJoin(
		gID, cID string,
		mute, deaf bool,
	) (voice *discordgo.VoiceConnection, err error)
	ChannelTyping(
		channelID string,
		options ...discordgo.RequestOption,
	) (err error)
	ChannelMessageSend(
		channelID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageSendReply(
		channelID string,
		content string,
		reference *discordgo.MessageReference,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error
	InteractionResponseEdit(
		interaction *discordgo.Interaction,
		newresp *discordgo.WebhookEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	MyUserID() (userID string, err error)
	GuildVoiceStates(guildID string) ([]*discordgo.VoiceState, error)
	IsBot(guildID, userID string) bool
	GuildCount() int
}

// DiscordSession answers the state lookups from the session's cache.
type DiscordSession struct {
	*discordgo.Session
}

func NewDiscordSession(token string) (*DiscordSession, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent
	return &DiscordSession{s}, nil
}

func (d *DiscordSession) MyUserID() (string, error) {
	if d.State == nil || d.State.User == nil {
		return "", fmt.Errorf("session has no user yet")
	}
	return d.State.User.ID, nil
}

func (d *DiscordSession) GuildVoiceStates(
	guildID string,
) ([]*discordgo.VoiceState, error) {
	guild, err := d.State.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("error getting guild %s: %w", guildID, err)
	}
	d.State.RLock()
	defer d.State.RUnlock()
	states := make([]*discordgo.VoiceState, len(guild.VoiceStates))
	copy(states, guild.VoiceStates)
	return states, nil
}

// IsBot reports whether the user is a bot. Members missing from the cache
// count as human.
func (d *DiscordSession) IsBot(guildID, userID string) bool {
	member, err := d.State.Member(guildID, userID)
	if err != nil || member.User == nil {
		return false
	}
	return member.User.Bot
}

func (d *DiscordSession) GuildCount() int {
	d.State.RLock()
	defer d.State.RUnlock()
	return len(d.State.Guilds)
}
