// Package bot turns inbound LINE events into replies. Feature modules
// implement Handler and are dispatched through a Registry; the Processor
// adds input sanitising, rate limiting, help and welcome messages.
package bot

import (
	"context"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Handler is implemented by every feature module.
type Handler interface {
	// Name identifies the module in logs and metrics.
	Name() string

	// PostbackPrefix is the prefix of postbacks owned by the module, e.g.
	// "id:". The registry strips it before calling HandlePostback.
	PostbackPrefix() string

	// CanHandle reports whether the module recognises the text.
	CanHandle(text string) bool

	// HandleMessage answers a text message. At most five messages are
	// delivered per reply.
	HandleMessage(ctx context.Context, text string) []messaging_api.MessageInterface

	// HandlePostback answers a postback whose prefix has been stripped.
	// Postback data is at most 300 bytes.
	HandlePostback(ctx context.Context, data string) []messaging_api.MessageInterface
}

type addressedKey struct{}

func withAddressed(ctx context.Context, addressed bool) context.Context {
	return context.WithValue(ctx, addressedKey{}, addressed)
}

// Addressed reports whether the text being handled was sent in a personal
// chat or mentions the bot. Handlers use it to stay quiet on loose matches
// in group chats. It defaults to true outside the processor.
func Addressed(ctx context.Context) bool {
	v, ok := ctx.Value(addressedKey{}).(bool)
	return !ok || v
}
