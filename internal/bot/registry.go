package bot

import (
	"context"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Registry manages bot handlers and dispatches messages/postbacks through
// its middleware chain.
type Registry struct {
	handlers []Handler
	dispatch DispatchFunc
}

// NewRegistry creates a registry. The first middleware is the outermost.
func NewRegistry(mw ...Middleware) *Registry {
	dispatch := DispatchFunc(invoke)
	for i := len(mw) - 1; i >= 0; i-- {
		dispatch = mw[i](dispatch)
	}
	return &Registry{dispatch: dispatch}
}

// Register adds a handler to the registry. Handlers are tried in
// registration order.
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

// DispatchMessage dispatches a text message to the first handler that can handle it.
func (r *Registry) DispatchMessage(ctx context.Context, text string) []messaging_api.MessageInterface {
	for _, h := range r.handlers {
		if h.CanHandle(text) {
			return r.dispatch(ctx, Invocation{Handler: h, Input: text})
		}
	}
	return nil
}

// DispatchPostback dispatches a postback to the handler owning its prefix.
func (r *Registry) DispatchPostback(ctx context.Context, data string) []messaging_api.MessageInterface {
	for _, h := range r.handlers {
		prefix := h.PostbackPrefix()
		if rest, ok := strings.CutPrefix(data, prefix); prefix != "" && ok {
			return r.dispatch(ctx, Invocation{Handler: h, Input: rest, Postback: true})
		}
	}
	return nil
}

// GetHandler returns a handler by name.
func (r *Registry) GetHandler(name string) Handler {
	for _, h := range r.handlers {
		if h.Name() == name {
			return h
		}
	}
	return nil
}
