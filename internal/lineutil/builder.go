// Package lineutil provides utility functions for building LINE messages and actions.
package lineutil

import (
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// CarouselColumn represents a column in a carousel template.
type CarouselColumn struct {
	ThumbnailImageURL    string
	ImageBackgroundColor string
	Title                string
	Text                 string
	Actions              []messaging_api.ActionInterface
}

// QuickReplyItem represents an item in a quick reply.
type QuickReplyItem struct {
	ImageURL string
	Action   messaging_api.ActionInterface
}

// Action is an alias for the LINE SDK action interface for convenience.
type Action = messaging_api.ActionInterface

// NewImageMessage creates an image message. LINE requires both URLs to be HTTPS.
func NewImageMessage(originalContentURL, previewImageURL string) *messaging_api.ImageMessage {
	return &messaging_api.ImageMessage{
		OriginalContentUrl: originalContentURL,
		PreviewImageUrl:    previewImageURL,
	}
}

// NewTextMessage creates a text message without sender information.
// Text longer than MaxTextMessageLength runes is truncated.
func NewTextMessage(text string) *messaging_api.TextMessage {
	return &messaging_api.TextMessage{
		Text: TruncateRunes(text, MaxTextMessageLength),
	}
}

// NewCarouselTemplate creates a carousel template message.
// LINE API limits: max 10 columns, each with max 4 actions
func NewCarouselTemplate(altText string, columns []CarouselColumn) *messaging_api.TemplateMessage {
	if len(columns) > MaxCarouselColumnCount {
		columns = columns[:MaxCarouselColumnCount]
	}

	templateColumns := make([]messaging_api.CarouselColumn, len(columns))
	for i, col := range columns {
		actions := col.Actions
		if len(actions) > MaxTemplateActionCount {
			actions = actions[:MaxTemplateActionCount]
		}
		templateColumns[i] = messaging_api.CarouselColumn{
			ThumbnailImageUrl:    col.ThumbnailImageURL,
			ImageBackgroundColor: col.ImageBackgroundColor,
			Title:                TruncateRunes(col.Title, MaxTemplateTitleLength),
			Text:                 TruncateRunes(col.Text, MaxCarouselTemplateText),
			Actions:              actions,
		}
	}

	return &messaging_api.TemplateMessage{
		AltText: TruncateRunes(altText, MaxAltTextLength),
		Template: &messaging_api.CarouselTemplate{
			Columns: templateColumns,
		},
	}
}

// NewButtonsTemplate creates a buttons template message.
func NewButtonsTemplate(altText, title, text string, actions []Action) *messaging_api.TemplateMessage {
	return NewButtonsTemplateWithImage(altText, title, text, "", actions)
}

// NewButtonsTemplateWithImage creates a buttons template message with an optional thumbnail image.
// LINE API limits: max 4 actions, text max 60 chars (with image) or 160 chars (no image)
func NewButtonsTemplateWithImage(altText, title, text, thumbnailImageURL string, actions []Action) *messaging_api.TemplateMessage {
	if len(actions) > MaxTemplateActionCount {
		actions = actions[:MaxTemplateActionCount]
	}

	maxTextLen := MaxTemplateTextNoImage
	if thumbnailImageURL != "" {
		maxTextLen = MaxTemplateTextWithImage
	}

	return &messaging_api.TemplateMessage{
		AltText: TruncateRunes(altText, MaxAltTextLength),
		Template: &messaging_api.ButtonsTemplate{
			Title:             TruncateRunes(title, MaxTemplateTitleLength),
			Text:              TruncateRunes(text, maxTextLen),
			ThumbnailImageUrl: thumbnailImageURL,
			Actions:           actions,
		},
	}
}

// NewConfirmTemplate creates a confirmation template with Yes/No buttons.
func NewConfirmTemplate(altText, text string, yesAction, noAction Action) *messaging_api.TemplateMessage {
	return &messaging_api.TemplateMessage{
		AltText: TruncateRunes(altText, MaxAltTextLength),
		Template: &messaging_api.ConfirmTemplate{
			Text:    TruncateRunes(text, MaxTemplateTextNoImage),
			Actions: []messaging_api.ActionInterface{yesAction, noAction},
		},
	}
}

// NewQuickReply creates a quick reply component. Items beyond the LINE
// limit of 13 are dropped.
func NewQuickReply(items []QuickReplyItem) *messaging_api.QuickReply {
	if len(items) > MaxQuickReplyItemCount {
		items = items[:MaxQuickReplyItemCount]
	}

	quickReplyItems := make([]messaging_api.QuickReplyItem, len(items))
	for i, item := range items {
		quickReplyItems[i] = messaging_api.QuickReplyItem{
			ImageUrl: item.ImageURL,
			Action:   item.Action,
		}
	}

	return &messaging_api.QuickReply{
		Items: quickReplyItems,
	}
}

// NewMessageAction creates a message action that sends text when clicked.
func NewMessageAction(label, text string) Action {
	return &messaging_api.MessageAction{
		Label: TruncateRunes(label, MaxQuickReplyLabel),
		Text:  text,
	}
}

// NewPostbackAction creates a postback action that sends data to the bot when clicked.
func NewPostbackAction(label, data string) Action {
	return &messaging_api.PostbackAction{
		Label: TruncateRunes(label, MaxQuickReplyLabel),
		Data:  data,
	}
}

// NewPostbackActionWithDisplayText creates a postback action that also shows
// displayText in the chat as if the user had typed it.
func NewPostbackActionWithDisplayText(label, displayText, data string) Action {
	return &messaging_api.PostbackAction{
		Label:       TruncateRunes(label, MaxQuickReplyLabel),
		DisplayText: displayText,
		Data:        data,
	}
}

// NewURIAction creates a URI action that opens a URL when clicked.
func NewURIAction(label, uri string) Action {
	return &messaging_api.UriAction{
		Label: TruncateRunes(label, MaxQuickReplyLabel),
		Uri:   uri,
	}
}

// NewClipboardAction creates a clipboard action that copies text when clicked.
func NewClipboardAction(label, clipboardText string) Action {
	return &messaging_api.ClipboardAction{
		Label:         TruncateRunes(label, MaxQuickReplyLabel),
		ClipboardText: clipboardText,
	}
}

// NewFlexMessage creates a flex message with the given alt text and container.
func NewFlexMessage(altText string, contents messaging_api.FlexContainerInterface) *messaging_api.FlexMessage {
	return &messaging_api.FlexMessage{
		AltText:  TruncateRunes(altText, MaxAltTextLength),
		Contents: contents,
	}
}

// SetSender sets the Sender field on a message and returns it.
// Supports: TextMessage, FlexMessage, TemplateMessage, ImageMessage
func SetSender(msg messaging_api.MessageInterface, sender *messaging_api.Sender) messaging_api.MessageInterface {
	if sender == nil {
		return msg
	}

	switch m := msg.(type) {
	case *messaging_api.TextMessage:
		m.Sender = sender
	case *messaging_api.FlexMessage:
		m.Sender = sender
	case *messaging_api.TemplateMessage:
		m.Sender = sender
	case *messaging_api.ImageMessage:
		m.Sender = sender
	}

	return msg
}

// SplitText splits text on line boundaries into chunks of at most limit
// runes. A single line longer than limit is truncated.
func SplitText(text string, limit int) []string {
	if limit <= 0 {
		limit = TextListSafeBuffer
	}

	var (
		chunks []string
		b      strings.Builder
		n      int
	)
	flush := func() {
		if b.Len() > 0 {
			chunks = append(chunks, b.String())
			b.Reset()
			n = 0
		}
	}

	for line := range strings.SplitSeq(text, "\n") {
		line = TruncateRunes(line, limit)
		size := len([]rune(line))
		if n > 0 && n+1+size > limit {
			flush()
		}
		if n > 0 {
			b.WriteByte('\n')
			n++
		}
		b.WriteString(line)
		n += size
	}
	flush()
	return chunks
}

// ================================================
// Common QuickReply Actions
// ================================================

// QuickReplyHelpAction returns a "使用說明" quick reply item
func QuickReplyHelpAction() QuickReplyItem {
	return QuickReplyItem{Action: NewMessageAction("📖 使用說明", "使用說明")}
}

// QuickReplyStudentAction returns a "學號" quick reply item
func QuickReplyStudentAction() QuickReplyItem {
	return QuickReplyItem{Action: NewMessageAction("🎓 學號", "學號")}
}

// QuickReplyYearAction returns a "學年" quick reply item
func QuickReplyYearAction() QuickReplyItem {
	return QuickReplyItem{Action: NewMessageAction("📅 學年", "學年")}
}

// QuickReplyDeptCodeAction returns a "所有系代碼" quick reply item
func QuickReplyDeptCodeAction() QuickReplyItem {
	return QuickReplyItem{Action: NewMessageAction("📋 所有系代碼", "所有系代碼")}
}

// QuickReplyRetryAction creates a retry quick reply item with custom text
func QuickReplyRetryAction(retryText string) QuickReplyItem {
	return QuickReplyItem{Action: NewMessageAction("🔄 重試", retryText)}
}

// ================================================
// Message Helper Functions
// ================================================

// NewTextMessageWithQuickReply creates a text message with sender and quick reply items.
func NewTextMessageWithQuickReply(text string, sender *messaging_api.Sender, items ...QuickReplyItem) *messaging_api.TextMessage {
	msg := NewTextMessageWithConsistentSender(text, sender)
	if len(items) > 0 {
		msg.QuickReply = NewQuickReply(items)
	}
	return msg
}

// NewFlexMessageWithQuickReply creates a flex message with sender and quick reply items.
func NewFlexMessageWithQuickReply(altText string, contents messaging_api.FlexContainerInterface, sender *messaging_api.Sender, items ...QuickReplyItem) *messaging_api.FlexMessage {
	msg := NewFlexMessage(altText, contents)
	msg.Sender = sender
	if len(items) > 0 {
		msg.QuickReply = NewQuickReply(items)
	}
	return msg
}

// AddQuickReplyToMessages attaches quick reply items to the last message.
// LINE only shows the quick reply of the final message in a reply.
func AddQuickReplyToMessages(messages []messaging_api.MessageInterface, items ...QuickReplyItem) {
	if len(messages) == 0 || len(items) == 0 {
		return
	}
	qr := NewQuickReply(items)
	switch m := messages[len(messages)-1].(type) {
	case *messaging_api.TextMessage:
		m.QuickReply = qr
	case *messaging_api.FlexMessage:
		m.QuickReply = qr
	case *messaging_api.TemplateMessage:
		m.QuickReply = qr
	case *messaging_api.ImageMessage:
		m.QuickReply = qr
	}
}
