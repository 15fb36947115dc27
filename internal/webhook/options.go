package webhook

import (
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/ratelimit"
)

// HandlerOption configures a Handler after NewHandler has applied the
// bot config.
type HandlerOption func(*Handler)

// WithWebhookTimeout sets how long one webhook batch may take.
func WithWebhookTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.webhookTimeout = timeout
	}
}

// WithGlobalLimiter replaces the limiter on outgoing API calls.
func WithGlobalLimiter(limiter *ratelimit.Limiter) HandlerOption {
	return func(h *Handler) {
		h.rateLimiter = limiter
	}
}

func withSender(s sender) HandlerOption {
	return func(h *Handler) {
		h.client = s
	}
}
