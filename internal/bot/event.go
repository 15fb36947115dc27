package bot

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// EventKind is the variant tag of an inbound event.
type EventKind int

const (
	EventUnsupported EventKind = iota
	EventText
	EventSticker
	EventPostback
	EventFollow
	EventJoin
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventSticker:
		return "sticker"
	case EventPostback:
		return "postback"
	case EventFollow:
		return "follow"
	case EventJoin:
		return "join"
	default:
		return "unsupported"
	}
}

// Event is an inbound LINE event reduced to what the processor needs.
type Event struct {
	Kind       EventKind
	ID         string // webhook event ID
	ReplyToken string
	ChatID     string // user, group or room ID
	UserID     string
	Personal   bool // one-on-one chat

	Text      string           // EventText
	Mention   *webhook.Mention // EventText
	Mentioned bool             // EventText: the bot itself is mentioned
	Data      string           // EventPostback

	Timestamp  int64
	Redelivery bool
}

// FromWebhook converts a webhook event. Unsupported events and message
// types other than text and sticker get Kind EventUnsupported.
func FromWebhook(event webhook.EventInterface) Event {
	var ev Event
	var source webhook.SourceInterface
	var delivery *webhook.DeliveryContext

	switch e := event.(type) {
	case webhook.MessageEvent:
		ev.ID, ev.ReplyToken, ev.Timestamp = e.WebhookEventId, e.ReplyToken, e.Timestamp
		source, delivery = e.Source, e.DeliveryContext
		switch m := e.Message.(type) {
		case webhook.TextMessageContent:
			ev.Kind = EventText
			ev.Text = m.Text
			ev.Mention = m.Mention
			ev.Mentioned = IsBotMentioned(m.Mention)
		case webhook.StickerMessageContent:
			ev.Kind = EventSticker
		}
	case webhook.PostbackEvent:
		ev.Kind = EventPostback
		ev.ID, ev.ReplyToken, ev.Timestamp = e.WebhookEventId, e.ReplyToken, e.Timestamp
		source, delivery = e.Source, e.DeliveryContext
		if e.Postback != nil {
			ev.Data = e.Postback.Data
		}
	case webhook.FollowEvent:
		ev.Kind = EventFollow
		ev.ID, ev.ReplyToken, ev.Timestamp = e.WebhookEventId, e.ReplyToken, e.Timestamp
		source, delivery = e.Source, e.DeliveryContext
	case webhook.JoinEvent:
		ev.Kind = EventJoin
		ev.ID, ev.ReplyToken, ev.Timestamp = e.WebhookEventId, e.ReplyToken, e.Timestamp
		source, delivery = e.Source, e.DeliveryContext
	}

	if source != nil {
		ev.ChatID, ev.UserID, ev.Personal = sourceIDs(source)
	}
	if delivery != nil {
		ev.Redelivery = delivery.IsRedelivery
	}
	return ev
}

// ExpectsReply reports whether the processor will answer the event, which
// decides whether a loading animation is worth showing. Group chats only get
// answers to postbacks, joins and texts that mention the bot.
func (e Event) ExpectsReply() bool {
	switch e.Kind {
	case EventPostback, EventFollow, EventJoin:
		return true
	case EventText:
		return e.Personal || e.Mentioned
	case EventSticker:
		return e.Personal
	default:
		return false
	}
}

// sourceIDs returns the chat ID (user, group or room ID), the sender's user
// ID and whether the source is a one-on-one chat.
func sourceIDs(source webhook.SourceInterface) (chatID, userID string, personal bool) {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId, s.UserId, true
	case webhook.GroupSource:
		return s.GroupId, s.UserId, false
	case webhook.RoomSource:
		return s.RoomId, s.UserId, false
	}
	return "", "", false
}
