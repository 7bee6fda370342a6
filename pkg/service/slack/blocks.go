package slack

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// SuggestionActionPrefix prefixes the action ID of every follow-up
// suggestion button. Block actions callbacks match on this prefix; the
// button value carries the suggestion text verbatim.
const SuggestionActionPrefix = "mn_suggestion"

// Slack limits section block text to 3000 characters and plain text button
// labels to 75.
const (
	maxSectionLen = 3000
	maxButtonLen  = 75
)

// IsSuggestionAction reports whether a block action ID belongs to a
// suggestion button.
func IsSuggestionAction(actionID string) bool {
	return strings.HasPrefix(actionID, SuggestionActionPrefix)
}

// buildMessageBlocks renders the response text followed by one button per
// follow-up suggestion. Long text is split across section blocks.
func buildMessageBlocks(text string, suggestions []string) []slack.Block {
	var blocks []slack.Block
	for _, chunk := range splitRunes(text, maxSectionLen) {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, chunk, false, false),
			nil, nil,
		))
	}

	if len(suggestions) == 0 {
		return blocks
	}

	buttons := make([]slack.BlockElement, 0, len(suggestions))
	for i, sg := range suggestions {
		buttons = append(buttons, slack.NewButtonBlockElement(
			fmt.Sprintf("%s_%d", SuggestionActionPrefix, i),
			sg,
			slack.NewTextBlockObject(slack.PlainTextType, truncateRunes(sg, maxButtonLen), false, false),
		))
	}
	blocks = append(blocks, slack.NewActionBlock("", buttons...))

	return blocks
}

// splitRunes chunks s into pieces of at most limit runes.
func splitRunes(s string, limit int) []string {
	runes := []rune(s)
	if len(runes) <= limit {
		return []string{s}
	}

	var chunks []string
	for len(runes) > limit {
		chunks = append(chunks, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// truncateRunes cuts s to at most limit runes, marking the cut with an
// ellipsis.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
