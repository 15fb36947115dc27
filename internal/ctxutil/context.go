// Package ctxutil provides type-safe context value management for tracing
// values carried through webhook processing.
package ctxutil

import (
	"context"
)

type contextKey string

const (
	userIDKey    contextKey = "ctxutil.userID"
	chatIDKey    contextKey = "ctxutil.chatID"
	requestIDKey contextKey = "ctxutil.requestID"
	eventIDKey   contextKey = "ctxutil.eventID"
)

func getString(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithUserID adds the LINE user ID of the event source.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the user ID, or "" when absent.
func GetUserID(ctx context.Context) string {
	return getString(ctx, userIDKey)
}

// WithChatID adds the chat ID (user, group, or room) the reply goes to.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey, chatID)
}

// GetChatID returns the chat ID, or "" when absent.
func GetChatID(ctx context.Context) string {
	return getString(ctx, chatIDKey)
}

// WithRequestID adds a per-webhook request ID for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID and whether one was set.
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok && requestID != ""
}

// WithEventID adds the LINE webhook event ID.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDKey, eventID)
}

// GetEventID returns the webhook event ID, or "" when absent.
func GetEventID(ctx context.Context) string {
	return getString(ctx, eventIDKey)
}

// PreserveTracing returns a fresh background context carrying only the
// tracing values of ctx. Event processing outlives the HTTP request that
// delivered it, so it must not inherit the request's cancellation.
func PreserveTracing(ctx context.Context) context.Context {
	newCtx := context.Background()

	if userID := GetUserID(ctx); userID != "" {
		newCtx = WithUserID(newCtx, userID)
	}
	if chatID := GetChatID(ctx); chatID != "" {
		newCtx = WithChatID(newCtx, chatID)
	}
	if requestID, ok := GetRequestID(ctx); ok {
		newCtx = WithRequestID(newCtx, requestID)
	}
	if eventID := GetEventID(ctx); eventID != "" {
		newCtx = WithEventID(newCtx, eventID)
	}

	return newCtx
}
