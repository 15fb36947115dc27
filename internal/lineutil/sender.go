package lineutil

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// IconSource supplies sender avatar URLs. *sticker.Manager implements it.
type IconSource interface {
	GetRandomSticker() string
}

// GetSender creates a sender with one random avatar for a whole reply, so
// every message in the reply shows the same icon.
//
//	sender := lineutil.GetSender("學號魔法師", stickerManager)
//	msg1 := lineutil.NewTextMessageWithConsistentSender("訊息1", sender)
//	msg2 := lineutil.NewTextMessageWithConsistentSender("訊息2", sender)
func GetSender(name string, icons IconSource) *messaging_api.Sender {
	sender := &messaging_api.Sender{Name: name}
	if icons != nil {
		sender.IconUrl = icons.GetRandomSticker()
	}
	return sender
}

// NewTextMessageWithConsistentSender creates a text message using a pre-created sender.
func NewTextMessageWithConsistentSender(text string, sender *messaging_api.Sender) *messaging_api.TextMessage {
	msg := NewTextMessage(text)
	msg.Sender = sender
	return msg
}

// ErrorMessageWithSender creates the generic failure reply.
func ErrorMessageWithSender(sender *messaging_api.Sender) *messaging_api.TextMessage {
	return NewTextMessageWithConsistentSender("❌ 系統暫時無法處理您的請求\n\n請稍後再試，或聯絡管理員協助。", sender)
}

// ErrorMessageWithDetailAndSender creates a failure reply with a specific reason.
func ErrorMessageWithDetailAndSender(userMessage string, sender *messaging_api.Sender) *messaging_api.TextMessage {
	return NewTextMessageWithConsistentSender("❌ "+userMessage+"\n\n請稍後再試，或聯絡管理員協助。", sender)
}
