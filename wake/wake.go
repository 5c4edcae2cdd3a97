// Package wake decides whether a transcript was addressed to the agent and
// extracts the question from it.
//
// The rule set is plain data so it can be loaded from configuration and
// tuned without touching the voice engine.
package wake

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

type Kind int

const (
	None Kind = iota
	PromptForMore
	Question
)

func (k Kind) String() string {
	switch k {
	case PromptForMore:
		return "prompt"
	case Question:
		return "question"
	default:
		return "none"
	}
}

type Result struct {
	Kind     Kind
	Question string
	Rule     string // name of the matcher that accepted the transcript
}

type Rule struct {
	Name    string `mapstructure:"name"`
	Pattern string `mapstructure:"pattern"`
}

type Rules struct {
	WakeWords []string `mapstructure:"wake_words"`
	Greetings []string `mapstructure:"greetings"`
	Patterns  []Rule   `mapstructure:"patterns"`

	// A stripped transcript of at most this many characters means the
	// speaker only said the wake word.
	MinQuestionLength int `mapstructure:"min_question_length"`
}

func DefaultRules() Rules {
	return Rules{
		WakeWords: []string{"axiom", "bot"},
		Greetings: []string{"hey", "hi", "hello", "ok", "okay", "yo"},
		Patterns: []Rule{
			{Name: "direct-address", Pattern: `^(can|could|would|will) you\b`},
			{Name: "direct-address", Pattern: `^(please|tell me|explain|show me|help me)\b`},
			{Name: "direct-address", Pattern: `\bwhat do you think\b`},
			{Name: "question-form", Pattern: `^(what|who|whose|why|how|when|where|which|is|are|do|does|did|should)\b`},
			{Name: "question-form", Pattern: `\?`},
		},
		MinQuestionLength: 2,
	}
}

type matcher struct {
	name string
	re   *regexp.Regexp
}

type Gate struct {
	matchers []matcher
	strip    *regexp.Regexp
	minLen   int
}

func New(rules Rules) (*Gate, error) {
	if len(rules.WakeWords) == 0 {
		return nil, fmt.Errorf("wake rules need at least one wake word")
	}

	wakeAlt := alternation(rules.WakeWords)
	g := &Gate{minLen: rules.MinQuestionLength}

	if len(rules.Greetings) > 0 {
		greetAlt := alternation(rules.Greetings)
		g.matchers = append(g.matchers, matcher{
			name: "greeting-prefix",
			re:   regexp.MustCompile(`^\s*(` + greetAlt + `)[\s,!.]+(` + wakeAlt + `)\b`),
		})
		g.strip = regexp.MustCompile(
			`(?i)^\s*(?:(?:` + greetAlt + `)\b[\s,!.]*)?(?:(?:` + wakeAlt + `)\b[\s,!.?:;-]*)?`,
		)
	} else {
		g.strip = regexp.MustCompile(`(?i)^\s*(?:(?:` + wakeAlt + `)\b[\s,!.?:;-]*)?`)
	}

	g.matchers = append(g.matchers, matcher{
		name: "wake-word",
		re:   regexp.MustCompile(`\b(` + wakeAlt + `)\b`),
	})

	for _, rule := range rules.Patterns {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile wake rule %q: %w", rule.Name, err)
		}
		g.matchers = append(g.matchers, matcher{name: rule.Name, re: re})
	}

	return g, nil
}

func alternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return strings.Join(quoted, "|")
}

// Extract applies the rules in order and returns the question, a request
// to prompt the speaker for more, or None when the transcript was not
// addressed to the agent.
func (g *Gate) Extract(transcript string) Result {
	original := strings.TrimSpace(transcript)
	if original == "" {
		return Result{Kind: None}
	}

	lower := strings.ToLower(original)

	rule := ""
	for _, m := range g.matchers {
		if m.re.MatchString(lower) {
			rule = m.name
			break
		}
	}
	if rule == "" {
		return Result{Kind: None}
	}

	stripped := strings.TrimSpace(g.strip.ReplaceAllString(original, ""))
	if len([]rune(stripped)) <= g.minLen {
		return Result{Kind: PromptForMore, Rule: rule}
	}

	if !hasWordCharacter(stripped) {
		stripped = original
	}

	return Result{Kind: Question, Question: stripped, Rule: rule}
}

func hasWordCharacter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
