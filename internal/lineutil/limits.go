package lineutil

import "github.com/garyellow/ntpu-directory-bot/internal/config"

// Text limits, counted in runes.
const (
	MaxTextMessageLength = config.LINEMaxTextMessageLength
	MaxAltTextLength     = 400

	// TextListSafeBuffer is where long rosters and search pages are split,
	// leaving room for the count line and the cache-time footer.
	TextListSafeBuffer = MaxTextMessageLength - 100
)

// Template limits. Buttons text shrinks when a thumbnail is shown, and the
// carousel text is always held to the smaller bound.
const (
	MaxTemplateTitleLength   = 40
	MaxTemplateTextNoImage   = 160
	MaxTemplateTextWithImage = 60
	MaxCarouselTemplateText  = 60
	MaxCarouselColumnCount   = 10
	MaxTemplateActionCount   = 4
)

const (
	MaxFlexCarouselBubbleCount = 12
	MaxQuickReplyItemCount     = 13
	MaxQuickReplyLabel         = 20
)
