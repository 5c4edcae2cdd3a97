package tts

import (
	"regexp"
	"strings"
)

const MaxSpeechLength = 500

var (
	headingMarks = regexp.MustCompile(`#{1,6}\s`)
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	emphasis     = strings.NewReplacer("**", "", "*", "", "`", "")
)

// CleanText removes markdown the synthesizer would read aloud and caps the
// result at limit runes.
func CleanText(text string, limit int) string {
	text = emphasis.Replace(text)
	text = headingMarks.ReplaceAllString(text, "")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = strings.TrimSpace(text)

	if limit > 0 {
		if r := []rune(text); len(r) > limit {
			text = string(r[:limit])
		}
	}
	return text
}
