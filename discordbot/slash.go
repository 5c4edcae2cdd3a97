package discordbot

import (
	"context"
	"fmt"

	dis "github.com/bwmarrin/discordgo"

	"axiom/etc"
	"axiom/tts"
)

// handleInteractionCreate answers slash commands. The response is deferred
// first since answers routinely take longer than Discord's three seconds.
func (bot *Bot) handleInteractionCreate(_ *dis.Session, i *dis.InteractionCreate) {
	if i.Interaction == nil || i.Type != dis.InteractionApplicationCommand {
		return
	}
	if !bot.enter() {
		return
	}
	defer bot.wg.Done()

	data := i.ApplicationCommandData()
	user := interactionUser(i.Interaction)
	if user == nil {
		return
	}
	bot.log.Info("slash command", "name", data.Name, "user", user.Username)

	err := bot.conn.InteractionRespond(i.Interaction, &dis.InteractionResponse{
		Type: dis.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		bot.log.Error("failed to defer interaction", "command", data.Name, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
	defer cancel()

	edit, err := bot.runSlashCommand(ctx, i.Interaction, user, data)
	if err != nil {
		bot.log.Error("error executing command", "command", data.Name, "error", err)
		content := genericFailure
		edit = &dis.WebhookEdit{Content: &content}
	}

	if _, err := bot.conn.InteractionResponseEdit(i.Interaction, edit, dis.WithContext(ctx)); err != nil {
		bot.log.Error("failed to edit interaction response", "command", data.Name, "error", err)
	}
}

func (bot *Bot) runSlashCommand(
	ctx context.Context,
	i *dis.Interaction,
	user *dis.User,
	data dis.ApplicationCommandInteractionData,
) (*dis.WebhookEdit, error) {
	switch data.Name {
	case "join":
		return textEdit(bot.joinVoice(i.GuildID, user.ID, i.ChannelID))
	case "leave":
		return textEdit(bot.leaveVoice(i.GuildID))
	case "help":
		return textEdit(helpText("/"), nil)
	case "about":
		return textEdit(aboutText(), nil)
	case "speak":
		text := tts.CleanText(stringOption(data, "text"), tts.MaxSpeechLength)
		if text == "" {
			return textEdit("Usage: `/speak <text>`", nil)
		}
		files, err := bot.speechFiles(ctx, text)
		if err != nil {
			return nil, err
		}
		content := "🔊"
		return &dis.WebhookEdit{Content: &content, Files: files}, nil
	}

	pc, ok := promptCommands[data.Name]
	if !ok {
		return nil, fmt.Errorf("unknown slash command %q", data.Name)
	}
	o := origin{guildID: i.GuildID, channelID: i.ChannelID, userID: user.ID}
	response, err := bot.ask(ctx, o, pc.mode, pc.query(slashInvocation(data)), "")
	if err != nil {
		return nil, err
	}
	return textEdit(response, nil)
}

func textEdit(text string, err error) (*dis.WebhookEdit, error) {
	if err != nil {
		return nil, err
	}
	content := etc.Truncate(text, maxReplyLength, truncated)
	return &dis.WebhookEdit{Content: &content}, nil
}

// interactionUser is the member who ran the command in a guild, or the
// user in a direct message.
func interactionUser(i *dis.Interaction) *dis.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
