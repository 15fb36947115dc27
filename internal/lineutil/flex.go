package lineutil

import (
	"fmt"
	"math"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// FlexBubble wraps messaging_api.FlexBubble.
type FlexBubble struct {
	*messaging_api.FlexBubble
}

// NewFlexBubble creates a bubble. Any section may be nil.
func NewFlexBubble(header *FlexBox, hero messaging_api.FlexComponentInterface, body *FlexBox, footer *FlexBox) *FlexBubble {
	bubble := &messaging_api.FlexBubble{}
	if header != nil {
		bubble.Header = header.FlexBox
	}
	if hero != nil {
		bubble.Hero = hero
	}
	if body != nil {
		bubble.Body = body.FlexBox
	}
	if footer != nil {
		bubble.Footer = footer.FlexBox
	}
	return &FlexBubble{bubble}
}

// NewFlexCarousel creates a Flex Carousel from bubbles.
func NewFlexCarousel(bubbles []messaging_api.FlexBubble) *messaging_api.FlexCarousel {
	return &messaging_api.FlexCarousel{
		Contents: bubbles,
	}
}

// BuildCarouselMessages splits bubbles into carousels of at most
// MaxFlexCarouselBubbleCount and applies sender to each message.
// Later carousels get a range suffix on their alt text.
func BuildCarouselMessages(altText string, bubbles []messaging_api.FlexBubble, sender *messaging_api.Sender) []messaging_api.MessageInterface {
	if len(bubbles) == 0 {
		return nil
	}

	var messages []messaging_api.MessageInterface
	for i := 0; i < len(bubbles); i += MaxFlexCarouselBubbleCount {
		end := min(i+MaxFlexCarouselBubbleCount, len(bubbles))

		msgAltText := altText
		if i > 0 {
			msgAltText = fmt.Sprintf("%s (%d-%d)", altText, i+1, end)
		}

		msg := NewFlexMessage(msgAltText, NewFlexCarousel(bubbles[i:end]))
		msg.Sender = sender
		messages = append(messages, msg)
	}
	return messages
}

// FlexBox wraps messaging_api.FlexBox with a fluent API.
type FlexBox struct {
	*messaging_api.FlexBox
}

// NewFlexBox creates a box with the given layout (vertical, horizontal, baseline).
func NewFlexBox(layout string, contents ...messaging_api.FlexComponentInterface) *FlexBox {
	return &FlexBox{&messaging_api.FlexBox{
		Layout:   messaging_api.FlexBoxLAYOUT(layout),
		Contents: contents,
	}}
}

// WithSpacing sets the spacing between components.
func (b *FlexBox) WithSpacing(spacing string) *FlexBox {
	b.Spacing = spacing
	return b
}

// WithMargin sets the margin of the box.
func (b *FlexBox) WithMargin(margin string) *FlexBox {
	b.Margin = margin
	return b
}

// WithPaddingAll sets the padding for all sides of the box.
func (b *FlexBox) WithPaddingAll(padding string) *FlexBox {
	b.PaddingAll = padding
	return b
}

// WithBackgroundColor sets the background color of the box.
func (b *FlexBox) WithBackgroundColor(color string) *FlexBox {
	b.BackgroundColor = color
	return b
}

// FlexText wraps messaging_api.FlexText with a fluent API.
type FlexText struct {
	*messaging_api.FlexText
}

// NewFlexText creates a text component.
func NewFlexText(text string) *FlexText {
	return &FlexText{&messaging_api.FlexText{
		Text: text,
	}}
}

// WithWeight sets the font weight (regular/bold).
func (t *FlexText) WithWeight(weight string) *FlexText {
	t.Weight = messaging_api.FlexTextWEIGHT(weight)
	return t
}

// WithSize sets the font size.
func (t *FlexText) WithSize(size string) *FlexText {
	t.Size = size
	return t
}

// WithColor sets the text color.
func (t *FlexText) WithColor(color string) *FlexText {
	t.Color = color
	return t
}

// WithWrap enables or disables wrapping.
func (t *FlexText) WithWrap(wrap bool) *FlexText {
	t.Wrap = wrap
	return t
}

// WithFlex sets the flex factor, clamped to the int32 range.
func (t *FlexText) WithFlex(flex int) *FlexText {
	t.Flex = clampInt32(flex)
	return t
}

// WithAlign sets the alignment (start/end/center).
func (t *FlexText) WithAlign(align string) *FlexText {
	t.Align = messaging_api.FlexTextALIGN(align)
	return t
}

// WithMargin sets the margin of the text.
func (t *FlexText) WithMargin(margin string) *FlexText {
	t.Margin = margin
	return t
}

// WithMaxLines sets the maximum number of displayed lines.
func (t *FlexText) WithMaxLines(lines int) *FlexText {
	t.MaxLines = clampInt32(lines)
	return t
}

// WithLineSpacing sets the spacing between lines.
func (t *FlexText) WithLineSpacing(spacing string) *FlexText {
	t.LineSpacing = spacing
	return t
}

// FlexButton wraps messaging_api.FlexButton with a fluent API.
type FlexButton struct {
	*messaging_api.FlexButton
}

// NewFlexButton creates a button for action.
func NewFlexButton(action messaging_api.ActionInterface) *FlexButton {
	return &FlexButton{&messaging_api.FlexButton{
		Action: action,
	}}
}

// WithStyle sets the button style (link/primary/secondary).
func (b *FlexButton) WithStyle(style string) *FlexButton {
	b.Style = messaging_api.FlexButtonSTYLE(style)
	return b
}

// WithColor sets the button color.
func (b *FlexButton) WithColor(color string) *FlexButton {
	b.Color = color
	return b
}

// WithHeight sets the button height (sm/md).
func (b *FlexButton) WithHeight(height string) *FlexButton {
	b.Height = messaging_api.FlexButtonHEIGHT(height)
	return b
}

// FlexSeparator wraps messaging_api.FlexSeparator.
type FlexSeparator struct {
	*messaging_api.FlexSeparator
}

// NewFlexSeparator creates a separator.
func NewFlexSeparator() *FlexSeparator {
	return &FlexSeparator{&messaging_api.FlexSeparator{}}
}

// WithMargin sets the margin of the separator.
func (s *FlexSeparator) WithMargin(margin string) *FlexSeparator {
	s.Margin = margin
	return s
}

func clampInt32(n int) int32 {
	return int32(min(max(n, 0), math.MaxInt32)) //nolint:gosec // clamped above
}

// TruncateRunes truncates text by rune count so multi-byte characters are
// never split. Truncated text ends with "...".
func TruncateRunes(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	if maxRunes <= 3 {
		return string(runes[:max(maxRunes, 0)])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// NewHeroBox creates the green title box shared by every module.
// The subtitle is omitted when empty since LINE rejects empty text.
func NewHeroBox(title, subtitle string) *FlexBox {
	contents := []messaging_api.FlexComponentInterface{
		NewFlexText(title).WithWeight("bold").WithSize("xl").WithColor(ColorHeroText).WithWrap(true).WithLineSpacing(LineSpacingLarge).FlexText,
	}
	if subtitle != "" {
		contents = append(contents, NewFlexText(subtitle).WithSize("xs").WithColor(ColorHeroText).WithMargin("md").WithWrap(true).FlexText)
	}
	box := NewFlexBox("vertical", contents...)
	box.BackgroundColor = ColorHeroBg
	box.PaddingAll = SpacingXXL
	box.PaddingBottom = SpacingXL
	return box
}

// InfoRowStyle controls how the value of an info row is rendered.
type InfoRowStyle struct {
	ValueSize   string
	ValueWeight string
	ValueColor  string
	Wrap        bool
}

// DefaultInfoRowStyle returns the standard info row style.
func DefaultInfoRowStyle() InfoRowStyle {
	return InfoRowStyle{
		ValueSize:   "sm",
		ValueWeight: "regular",
		ValueColor:  ColorText,
		Wrap:        true,
	}
}

// BoldInfoRowStyle returns a style for values the user will copy, such as IDs.
func BoldInfoRowStyle() InfoRowStyle {
	return InfoRowStyle{
		ValueSize:   "md",
		ValueWeight: "bold",
		ValueColor:  ColorText,
	}
}

// NewInfoRow creates a row with an emoji and label above the value.
//
//	┌─────────────────────────────┐
//	│ [emoji] [label]             │
//	│ [value text with wrap]      │
//	└─────────────────────────────┘
func NewInfoRow(emoji, label, value string, style InfoRowStyle) *FlexBox {
	valueText := NewFlexText(value).WithColor(style.ValueColor).WithSize(style.ValueSize).WithMargin("sm")
	if style.ValueWeight == "bold" {
		valueText = valueText.WithWeight("bold")
	}
	if style.Wrap {
		valueText = valueText.WithWrap(true).WithLineSpacing(SpacingXS)
	}

	return NewFlexBox("vertical",
		NewFlexBox("horizontal",
			NewFlexText(emoji).WithSize("sm").WithFlex(0).FlexText,
			NewFlexText(label).WithColor(ColorLabel).WithSize("xs").WithFlex(0).WithMargin("sm").FlexText,
		).WithSpacing("sm").FlexBox,
		valueText.FlexText,
	)
}

// NewButtonRow lays buttons out horizontally with equal widths. Nil
// buttons are skipped.
func NewButtonRow(buttons ...*FlexButton) *FlexBox {
	contents := make([]messaging_api.FlexComponentInterface, 0, len(buttons))
	for _, btn := range buttons {
		if btn == nil {
			continue
		}
		btnBox := NewFlexBox("vertical", btn.FlexButton)
		btnBox.Flex = 1
		contents = append(contents, btnBox.FlexBox)
	}
	return NewFlexBox("horizontal", contents...).WithSpacing("sm")
}

// BodyContentBuilder collects body rows and inserts separators between them.
type BodyContentBuilder struct {
	contents []messaging_api.FlexComponentInterface
}

// NewBodyContentBuilder creates an empty builder.
func NewBodyContentBuilder() *BodyContentBuilder {
	return &BodyContentBuilder{}
}

// AddInfoRow appends an info row.
func (b *BodyContentBuilder) AddInfoRow(emoji, label, value string, style InfoRowStyle) *BodyContentBuilder {
	return b.AddComponent(NewInfoRow(emoji, label, value, style).WithMargin("sm").FlexBox)
}

// AddInfoRowIf appends an info row only when value is not empty.
func (b *BodyContentBuilder) AddInfoRowIf(emoji, label, value string, style InfoRowStyle) *BodyContentBuilder {
	if value == "" {
		return b
	}
	return b.AddInfoRow(emoji, label, value, style)
}

// AddComponent appends a raw component.
func (b *BodyContentBuilder) AddComponent(component messaging_api.FlexComponentInterface) *BodyContentBuilder {
	if len(b.contents) > 0 {
		b.contents = append(b.contents, NewFlexSeparator().WithMargin("sm").FlexSeparator)
	}
	b.contents = append(b.contents, component)
	return b
}

// Build returns the body box.
func (b *BodyContentBuilder) Build() *FlexBox {
	return NewFlexBox("vertical", b.contents...).WithSpacing("sm")
}
