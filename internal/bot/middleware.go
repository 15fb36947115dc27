package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/lineutil"
	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
	"github.com/garyellow/ntpu-directory-bot/internal/sentry"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Invocation is one call into a handler.
type Invocation struct {
	Handler  Handler
	Input    string // message text, or postback data without the prefix
	Postback bool
}

// DispatchFunc runs an invocation.
type DispatchFunc func(ctx context.Context, inv Invocation) []messaging_api.MessageInterface

// Middleware wraps a DispatchFunc.
type Middleware func(next DispatchFunc) DispatchFunc

func invoke(ctx context.Context, inv Invocation) []messaging_api.MessageInterface {
	if inv.Postback {
		return inv.Handler.HandlePostback(ctx, inv.Input)
	}
	return inv.Handler.HandleMessage(ctx, inv.Input)
}

// LoggingMiddleware logs handler execution with timing and result info.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, inv Invocation) []messaging_api.MessageInterface {
			start := time.Now()
			msgs := next(ctx, inv)
			log.WithModule(inv.Handler.Name()).
				WithField("postback", inv.Postback).
				WithField("input_length", len(inv.Input)).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				WithField("msg_count", len(msgs)).
				Debug("Handler completed")
			return msgs
		}
	}
}

// RecoveryMiddleware turns a handler panic into the generic error reply. The
// panic is logged with its stack and reported to Sentry.
func RecoveryMiddleware(log *logger.Logger, m *metrics.Metrics, icons lineutil.IconSource) Middleware {
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, inv Invocation) (msgs []messaging_api.MessageInterface) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				name := inv.Handler.Name()
				log.WithModule(name).
					WithField("panic", r).
					WithField("stack", string(debug.Stack())).
					Error("Handler panicked")
				if m != nil {
					m.RecordHTTPError("panic", name)
				}
				sentry.CaptureExceptionWithContext(ctx, fmt.Errorf("handler %s panicked: %v", name, r), map[string]string{"module": name})

				sender := lineutil.GetSender("系統小幫手", icons)
				msgs = []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
			}()
			return next(ctx, inv)
		}
	}
}
