package discordbot

import (
	"sort"
	"strings"

	dis "github.com/bwmarrin/discordgo"

	"axiom/llm"
)

// invocation is one command call, from a prefixed message or a slash
// command.
type invocation struct {
	args       []string
	mentions   []*dis.User
	referenced *dis.Message
}

// promptCommand turns its arguments into a prompt for one assistant mode.
// The same table backs the prefix commands and the slash commands.
type promptCommand struct {
	mode        llm.Mode
	description string
	options     []*dis.ApplicationCommandOption
	query       func(inv *invocation) string
}

var promptCommands = map[string]promptCommand{
	"ask": {
		llm.ModeDefault, "Ask Axiom anything",
		stringOptions("question", "Your question"), joinArgs,
	},
	"eli5": {
		llm.ModeELI5, "Explain Like I'm 5",
		stringOptions("topic", "Topic to explain"), joinArgs,
	},
	"summarize": {
		llm.ModeSummarize, "Summarize text",
		stringOptions("text", "Text to summarize"), argsOrReferenced,
	},
	"translate": {
		llm.ModeTranslate, "Translate text",
		stringOptions("text", "Text to translate", "to", "Target language"), joinArgs,
	},
	"advice": {
		llm.ModeAdvice, "Get advice on something",
		stringOptions("topic", "What do you need advice on?"), joinArgs,
	},
	"code": {
		llm.ModeCode, "Review or explain code",
		stringOptions("code", "Code to review"), joinArgs,
	},
	"joke":  {llm.ModeJoke, "Tell me a joke", nil, fixed("Tell me a funny joke")},
	"fact":  {llm.ModeFact, "Share an interesting fact", nil, fixed("Share an interesting fact")},
	"quote": {llm.ModeQuote, "Share an inspiring quote", nil, fixed("Share an inspiring quote")},
	"define": {
		llm.ModeDefine, "Define a word",
		stringOptions("word", "Word to define"), prefixed("Define: "),
	},
	"story": {
		llm.ModeCreative, "Generate a short story",
		stringOptions("prompt", "Story prompt"), prefixed("Write a short story: "),
	},
	"roast": {
		llm.ModeRoast, "Roast someone (playfully)",
		[]*dis.ApplicationCommandOption{{
			Type:        dis.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "User to roast",
			Required:    true,
		}},
		roastTarget,
	},
}

func (bot *Bot) promptCommandHandler(pc promptCommand) CommandHandler {
	return func(m *dis.MessageCreate, args []string) error {
		return bot.answer(m, pc.mode, pc.query(&invocation{
			args:       args,
			mentions:   m.Mentions,
			referenced: m.ReferencedMessage,
		}))
	}
}

func joinArgs(inv *invocation) string {
	return strings.Join(inv.args, " ")
}

func argsOrReferenced(inv *invocation) string {
	if len(inv.args) > 0 || inv.referenced == nil {
		return strings.Join(inv.args, " ")
	}
	return inv.referenced.Content
}

func fixed(query string) func(*invocation) string {
	return func(*invocation) string { return query }
}

func prefixed(prefix string) func(*invocation) string {
	return func(inv *invocation) string {
		return prefix + strings.Join(inv.args, " ")
	}
}

func roastTarget(inv *invocation) string {
	name := "this person"
	for _, u := range inv.mentions {
		if !u.Bot {
			name = u.Username
			break
		}
	}
	return "Give a playful roast for someone named " + name
}

// stringOptions builds required string options from name, description
// pairs.
func stringOptions(pairs ...string) []*dis.ApplicationCommandOption {
	var options []*dis.ApplicationCommandOption
	for i := 0; i+1 < len(pairs); i += 2 {
		options = append(options, &dis.ApplicationCommandOption{
			Type:        dis.ApplicationCommandOptionString,
			Name:        pairs[i],
			Description: pairs[i+1],
			Required:    true,
		})
	}
	return options
}

// slashCommands lists every command registered with Discord.
func slashCommands() []*dis.ApplicationCommand {
	names := make([]string, 0, len(promptCommands))
	for name := range promptCommands {
		names = append(names, name)
	}
	sort.Strings(names)

	commands := []*dis.ApplicationCommand{
		{Name: "join", Description: "Join your voice channel and listen"},
		{Name: "leave", Description: "Leave the voice channel"},
		{
			Name:        "speak",
			Description: "Convert text to speech",
			Options:     stringOptions("text", "Text to speak"),
		},
	}
	for _, name := range names {
		pc := promptCommands[name]
		commands = append(commands, &dis.ApplicationCommand{
			Name:        name,
			Description: pc.description,
			Options:     pc.options,
		})
	}
	return append(commands,
		&dis.ApplicationCommand{Name: "help", Description: "Show all commands"},
		&dis.ApplicationCommand{Name: "about", Description: "About Axiom and its creators"},
	)
}

// slashInvocation reads the options of a slash command the way prefix
// command arguments are read. The translate target keeps its "to".
func slashInvocation(data dis.ApplicationCommandInteractionData) *invocation {
	inv := &invocation{}
	for _, opt := range data.Options {
		switch opt.Type {
		case dis.ApplicationCommandOptionString:
			if opt.Name == "to" {
				inv.args = append(inv.args, "to")
			}
			inv.args = append(inv.args, opt.StringValue())
		case dis.ApplicationCommandOptionUser:
			id, _ := opt.Value.(string)
			if data.Resolved != nil {
				if u, ok := data.Resolved.Users[id]; ok {
					inv.mentions = append(inv.mentions, u)
				}
			}
		}
	}
	return inv
}

// stringOption returns the value of a string option, or "".
func stringOption(data dis.ApplicationCommandInteractionData, name string) string {
	for _, opt := range data.Options {
		if opt.Name == name && opt.Type == dis.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}
