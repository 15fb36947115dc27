package bot

import (
	"slices"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// IsBotMentioned reports whether any user mentionee is the bot itself.
func IsBotMentioned(mention *webhook.Mention) bool {
	if mention == nil {
		return false
	}
	return slices.ContainsFunc(mention.Mentionees, func(m webhook.MentioneeInterface) bool {
		u, ok := m.(webhook.UserMentionee)
		return ok && u.IsSelf
	})
}

type span struct{ start, end int }

// RemoveBotMentions cuts every self mention out of text and collapses the
// remaining whitespace. Mention offsets count runes, not bytes.
func RemoveBotMentions(text string, mention *webhook.Mention) string {
	if mention == nil {
		return text
	}

	var spans []span
	for _, m := range mention.Mentionees {
		if u, ok := m.(webhook.UserMentionee); ok && u.IsSelf {
			spans = append(spans, span{int(u.Index), int(u.Index + u.Length)})
		}
	}
	if len(spans) == 0 {
		return text
	}

	// Back to front so earlier offsets stay valid.
	slices.SortFunc(spans, func(a, b span) int { return b.start - a.start })

	runes := []rune(text)
	for _, s := range spans {
		start, end := max(s.start, 0), min(s.end, len(runes))
		if start >= end {
			continue
		}
		runes = append(runes[:start], runes[end:]...)
	}
	return strings.Join(strings.Fields(string(runes)), " ")
}
