package discordbot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	dis "github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"axiom/etc"
	"axiom/llm"
	"axiom/ocr"
	"axiom/tts"
	"axiom/voice"
)

const (
	maxReplyLength = 1900
	truncated      = "\n\n*... (truncated)*"
	answerTimeout  = 60 * time.Second
	typingInterval = 5 * time.Second

	genericFailure = "❌ Something went wrong. Please try again."
)

var mentionPattern = regexp.MustCompile(`<@!?\d+>`)

type CommandHandler func(*dis.MessageCreate, []string) error

// Asker answers a prompt in one of the assistant's modes.
type Asker interface {
	Ask(ctx context.Context, mode llm.Mode, prompt string) (string, error)
}

// ImageReader extracts the text shown in an image.
type ImageReader interface {
	ExtractText(ctx context.Context, imageURL string) (string, error)
}

type BotConfig struct {
	Prefix  string
	VoiceID string
	OCR     ImageReader // nil leaves images unread
}

// origin is where a text exchange came from.
type origin struct {
	guildID   string
	channelID string
	userID    string
}

type Bot struct {
	log  *log.Logger
	conn Discord

	voice     *voice.Manager
	assistant Asker
	speech    tts.SpeechGenerator
	journal   voice.Journal // nil without a database

	cfg      BotConfig
	commands map[string]CommandHandler // command name

	mu       sync.RWMutex
	closed   bool
	removers []func()
	wg       sync.WaitGroup
}

func NewBot(
	conn Discord,
	manager *voice.Manager,
	assistant Asker,
	speech tts.SpeechGenerator,
	journal voice.Journal,
	cfg BotConfig,
	logger *log.Logger,
) (*Bot, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = tts.DefaultVoiceID
	}

	bot := &Bot{
		log:       logger,
		conn:      conn,
		voice:     manager,
		assistant: assistant,
		speech:    speech,
		journal:   journal,
		cfg:       cfg,
		commands:  make(map[string]CommandHandler),
	}

	bot.registerCommands()

	bot.removers = []func(){
		bot.conn.AddHandler(bot.handleReady),
		bot.conn.AddHandler(bot.handleGuildCreate),
		bot.conn.AddHandler(bot.handleVoiceStateUpdate),
		bot.conn.AddHandler(bot.handleMessageCreate),
		bot.conn.AddHandler(bot.handleInteractionCreate),
	}

	if err := bot.conn.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	bot.log.Info("bot connected")
	return bot, nil
}

func (bot *Bot) registerCommands() {
	bot.commands["join"] = bot.handleJoinCommand
	bot.commands["leave"] = bot.handleLeaveCommand
	bot.commands["speak"] = bot.handleSpeakCommand
	bot.commands["help"] = bot.handleHelpCommand
	bot.commands["about"] = bot.handleAboutCommand

	for name, pc := range promptCommands {
		bot.commands[name] = bot.promptCommandHandler(pc)
	}
}

// Close stops taking events and waits for the ones in flight. Voice
// channels are left before the gateway closes, since leaving goes through it.
func (bot *Bot) Close() error {
	bot.mu.Lock()
	if bot.closed {
		bot.mu.Unlock()
		return nil
	}
	bot.closed = true
	bot.mu.Unlock()

	for _, remove := range bot.removers {
		remove()
	}
	bot.wg.Wait()
	bot.voice.Close()
	return bot.conn.Close()
}

// enter admits one event handler. The caller must call bot.wg.Done when
// it returns true.
func (bot *Bot) enter() bool {
	bot.mu.RLock()
	defer bot.mu.RUnlock()
	if bot.closed {
		return false
	}
	bot.wg.Add(1)
	return true
}

func (bot *Bot) GuildCount() int {
	return bot.conn.GuildCount()
}

func (bot *Bot) SessionCount() int {
	return bot.voice.SessionCount()
}

func (bot *Bot) handleReady(_ *dis.Session, event *dis.Ready) {
	bot.log.Info("ready", "user", event.User.Username, "guilds", len(event.Guilds))
	if err := bot.conn.UpdateListeningStatus(bot.cfg.Prefix + "help | @mention me"); err != nil {
		bot.log.Warn("failed to set presence", "error", err)
	}
	if event.User == nil {
		return
	}
	registered, err := bot.conn.ApplicationCommandBulkOverwrite(event.User.ID, "", slashCommands())
	if err != nil {
		bot.log.Warn("failed to register slash commands", "error", err)
		return
	}
	bot.log.Info("registered slash commands", "count", len(registered))
}

func (bot *Bot) handleGuildCreate(_ *dis.Session, event *dis.GuildCreate) {
	bot.log.Info(
		"joined",
		"guild",
		event.Guild.Name,
		"id",
		event.Guild.ID,
	)
}

func (bot *Bot) handleVoiceStateUpdate(
	_ *dis.Session,
	event *dis.VoiceStateUpdate,
) {
	if event.VoiceState == nil {
		return
	}
	if !bot.enter() {
		return
	}
	defer bot.wg.Done()

	me, err := bot.conn.MyUserID()
	if err != nil {
		return
	}

	if event.UserID == me {
		if event.ChannelID == "" {
			bot.voice.HandleTransportLost(event.GuildID)
		} else {
			bot.voice.HandleChannelMoved(event.GuildID, event.ChannelID)
		}
		return
	}

	bot.voice.HandleMembershipChange(event.GuildID)
}

func (bot *Bot) handleMessageCreate(
	_ *dis.Session,
	m *dis.MessageCreate,
) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if !bot.enter() {
		return
	}
	defer bot.wg.Done()

	me, err := bot.conn.MyUserID()
	if err != nil || m.Author.ID == me {
		return
	}

	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == me {
			mentioned = true
			break
		}
	}

	content := strings.TrimSpace(mentionPattern.ReplaceAllString(m.Content, ""))
	isCommand := strings.HasPrefix(content, bot.cfg.Prefix)
	if !isCommand && !mentioned {
		return
	}

	if !isCommand {
		bot.reportFailure(m, bot.answer(m, llm.ModeDefault, content))
		return
	}

	args := strings.Fields(content[len(bot.cfg.Prefix):])
	if len(args) == 0 {
		bot.reportFailure(m, bot.answer(m, llm.ModeDefault, ""))
		return
	}

	commandName := strings.ToLower(args[0])
	handler, ok := bot.commands[commandName]
	if !ok {
		bot.reportFailure(m, bot.answer(m, llm.ModeDefault, strings.Join(args, " ")))
		return
	}

	bot.log.Info("command", "name", commandName, "user", m.Author.Username)
	bot.reportFailure(m, handler(m, args[1:]))
}

func (bot *Bot) reportFailure(m *dis.MessageCreate, err error) {
	if err == nil {
		return
	}
	bot.log.Error("error executing command", "error", err)
	bot.reply(m, genericFailure)
}

func (bot *Bot) reply(m *dis.MessageCreate, text string) {
	_, err := bot.conn.ChannelMessageSendReply(
		m.ChannelID,
		etc.Truncate(text, maxReplyLength, truncated),
		m.Reference(),
	)
	if err != nil {
		bot.log.Error("failed to send reply", "channel", m.ChannelID, "error", err)
	}
}

// typing keeps the typing indicator up until the returned func is called.
func (bot *Bot) typing(channelID string) func() {
	done := make(chan struct{})
	bot.conn.ChannelTyping(channelID)

	bot.wg.Add(1)
	go func() {
		defer bot.wg.Done()
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bot.conn.ChannelTyping(channelID)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// answer asks the assistant and replies with the result. A message that
// replies to another one carries that message along as context.
func (bot *Bot) answer(m *dis.MessageCreate, mode llm.Mode, query string) error {
	stop := bot.typing(m.ChannelID)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
	defer cancel()

	prompt := bot.promptContext(ctx, m)
	response, err := bot.ask(ctx, messageOrigin(m), mode, query, prompt)
	if err != nil {
		return err
	}
	bot.reply(m, response)
	return nil
}

// ask puts prefix and query to the assistant and journals the exchange.
func (bot *Bot) ask(
	ctx context.Context,
	o origin,
	mode llm.Mode,
	query, prefix string,
) (string, error) {
	if query == "" {
		query = "Hello!"
	}
	started := time.Now()
	response, err := bot.assistant.Ask(ctx, mode, prefix+query)
	if err != nil {
		bot.record(o, query, "", "answer_error", time.Since(started))
		return "", fmt.Errorf("ask %s: %w", mode, err)
	}
	bot.record(o, query, response, "ok", time.Since(started))
	return response, nil
}

func messageOrigin(m *dis.MessageCreate) origin {
	return origin{guildID: m.GuildID, channelID: m.ChannelID, userID: m.Author.ID}
}

func (bot *Bot) record(
	o origin,
	question, answer, status string,
	duration time.Duration,
) {
	if bot.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := bot.journal.Record(ctx, voice.Exchange{
		ID:        etc.NewFreshID(),
		GuildID:   o.guildID,
		ChannelID: o.channelID,
		UserID:    o.userID,
		Source:    voice.SourceText,
		Question:  question,
		Answer:    answer,
		Status:    status,
		Duration:  duration,
		CreatedAt: time.Now(),
	})
	if err != nil {
		bot.log.Warn("failed to record exchange", "error", err)
	}
}

// promptContext describes the message being replied to and the text of
// any image involved. Images that cannot be read are left out.
func (bot *Bot) promptContext(ctx context.Context, m *dis.MessageCreate) string {
	var b strings.Builder
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil {
		fmt.Fprintf(&b, "[User is replying to a message from %s]\n", ref.Author.Username)
		if ref.Content != "" {
			fmt.Fprintf(&b, "Referenced message: %q\n", ref.Content)
		}
		if text := bot.imageText(ctx, ref.Attachments); text != "" {
			fmt.Fprintf(&b, "Text from referenced image: %q\n", text)
		}
		b.WriteString("\n")
	}
	if text := bot.imageText(ctx, m.Attachments); text != "" {
		fmt.Fprintf(&b, "[User attached an image with text: %q]\n\n", text)
	}
	return b.String()
}

// imageText reads the first image among attachments.
func (bot *Bot) imageText(ctx context.Context, attachments []*dis.MessageAttachment) string {
	if bot.cfg.OCR == nil {
		return ""
	}
	for _, a := range attachments {
		if !ocr.IsImage(a.ContentType, a.Filename) {
			continue
		}
		text, err := bot.cfg.OCR.ExtractText(ctx, a.URL)
		if err != nil {
			bot.log.Warn("failed to read image", "file", a.Filename, "error", err)
			return ""
		}
		return text
	}
	return ""
}

func (bot *Bot) handleJoinCommand(m *dis.MessageCreate, _ []string) error {
	text, err := bot.joinVoice(m.GuildID, m.Author.ID, m.ChannelID)
	if err != nil {
		return err
	}
	bot.reply(m, text)
	return nil
}

// joinVoice joins the user's voice channel and returns what to tell them.
func (bot *Bot) joinVoice(guildID, userID, textChannelID string) (string, error) {
	if guildID == "" {
		return "Voice only works inside a server.", nil
	}

	session, err := bot.voice.Join(context.Background(), guildID, userID, textChannelID)
	switch {
	case errors.Is(err, voice.ErrNoChannel):
		return "You need to be in a voice channel first!", nil
	case errors.Is(err, voice.ErrConnectTimeout):
		return "Couldn't connect to the voice channel in time. Please try again.", nil
	case errors.Is(err, voice.ErrClosed):
		return "I'm shutting down. Please try again in a moment.", nil
	case err != nil:
		return "", err
	}

	return fmt.Sprintf(
		"🎙️ Listening in <#%s>. Say \"hey axiom\" followed by your question!",
		session.ChannelID(),
	), nil
}

func (bot *Bot) handleLeaveCommand(m *dis.MessageCreate, _ []string) error {
	text, err := bot.leaveVoice(m.GuildID)
	if err != nil {
		return err
	}
	bot.reply(m, text)
	return nil
}

func (bot *Bot) leaveVoice(guildID string) (string, error) {
	err := bot.voice.Leave(guildID)
	if errors.Is(err, voice.ErrNotConnected) {
		return "I'm not in a voice channel.", nil
	}
	if err != nil {
		return "", err
	}
	return "👋 Left the voice channel.", nil
}

func (bot *Bot) handleSpeakCommand(m *dis.MessageCreate, args []string) error {
	text := tts.CleanText(strings.Join(args, " "), tts.MaxSpeechLength)
	if text == "" {
		bot.reply(m, fmt.Sprintf("Usage: `%sspeak <text>`", bot.cfg.Prefix))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
	defer cancel()

	files, err := bot.speechFiles(ctx, text)
	if err != nil {
		return err
	}

	_, err = bot.conn.ChannelMessageSendComplex(m.ChannelID, &dis.MessageSend{
		Content:   "🔊",
		Files:     files,
		Reference: m.Reference(),
	}, dis.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send speech attachment: %w", err)
	}
	return nil
}

// speechFiles synthesizes text into an mp3 attachment.
func (bot *Bot) speechFiles(ctx context.Context, text string) ([]*dis.File, error) {
	speech, err := bot.speech.TextToSpeech(ctx, text, bot.cfg.VoiceID)
	if err != nil {
		return nil, fmt.Errorf("text to speech: %w", err)
	}
	return []*dis.File{{
		Name:        "speech.mp3",
		ContentType: "audio/mpeg",
		Reader:      bytes.NewReader(speech),
	}}, nil
}

func (bot *Bot) handleHelpCommand(m *dis.MessageCreate, _ []string) error {
	bot.reply(m, helpText(bot.cfg.Prefix))
	return nil
}

func (bot *Bot) handleAboutCommand(m *dis.MessageCreate, _ []string) error {
	bot.reply(m, aboutText())
	return nil
}

func aboutText() string {
	return strings.Join([]string{
		"**🤖 About Axiom**",
		"A voice and text assistant for Discord.",
		"",
		"**Creators:** Mithun Gowda B, Naren V",
		"**Team:** NextGenXplorrers Team",
		"**Version:** 1.0.0",
		"",
		"Powered by Groq, Whisper and ElevenLabs.",
	}, "\n")
}

func helpText(prefix string) string {
	lines := []string{
		"**🤖 Axiom Commands**",
		"`{p}join` - Join your voice channel and listen",
		"`{p}leave` - Leave the voice channel",
		"`{p}ask <question>` - Ask anything",
		"`{p}speak <text>` - Text to speech",
		"`{p}eli5 <topic>` - Explain simply",
		"`{p}summarize <text>` - Summarize",
		"`{p}translate <text> to <lang>` - Translate",
		"`{p}define <word>` - Define a word",
		"`{p}joke` - Tell a joke",
		"`{p}fact` - Random fact",
		"`{p}quote` - Inspiring quote",
		"`{p}advice <topic>` - Get advice",
		"`{p}roast @user` - Playful roast",
		"`{p}code <code>` - Review code",
		"`{p}story <prompt>` - Generate story",
		"`{p}about` - About Axiom",
		"",
		"**Other Ways to Use**",
		"• @mention me with a question",
		"• Reply to any message and @mention me",
		"• In voice, start with \"hey axiom\"",
		"• Every command also works as a slash command",
		"• Attach or reply to an image and I'll read its text",
	}
	return strings.ReplaceAll(strings.Join(lines, "\n"), "{p}", prefix)
}
