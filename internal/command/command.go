// Package command extracts bot commands from comment texts.
package command

import (
	"regexp"
	"strings"
)

// Extractor finds commands addressed to a bot in comments.
// A command is the first word following a mention of the bot, e.g.
// "@bot try". Words consist of letters, digits, underscores and dashes.
type Extractor struct {
	re *regexp.Regexp
}

// NewExtractor returns an Extractor for mentions of botName.
// Mentions are matched case-insensitively.
func NewExtractor(botName string) *Extractor {
	return &Extractor{
		re: regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(botName) + `\s+([A-Za-z0-9_-]+)`),
	}
}

// Extract returns the lowercased command of the first mention in text.
// If the bot is not mentioned, an empty string is returned.
func (e *Extractor) Extract(text string) string {
	matches := e.re.FindStringSubmatch(text)
	if len(matches) != 2 {
		return ""
	}

	return strings.ToLower(matches[1])
}
