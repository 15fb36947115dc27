// Package webhook receives LINE webhook callbacks, verifies their signature
// and hands each event to the bot processor, replying with what it returns.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/bot"
	"github.com/garyellow/ntpu-directory-bot/internal/config"
	"github.com/garyellow/ntpu-directory-bot/internal/ctxutil"
	"github.com/garyellow/ntpu-directory-bot/internal/lineutil"
	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
	"github.com/garyellow/ntpu-directory-bot/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

const (
	truncatedSender = "學號小幫手"
	truncatedText   = "ℹ️ 由於訊息數量限制，部分內容未完整顯示\n\n💡 請使用更具體的關鍵字縮小查詢範圍"

	// LINE accepts 5-60 seconds in steps of 5.
	loadingSeconds int32 = 60
)

// sender is the part of the Messaging API the handler talks to.
type sender interface {
	Reply(replyToken string, messages []messaging_api.MessageInterface) error
	ShowLoading(chatID string) error
}

type apiSender struct {
	client *messaging_api.MessagingApiAPI
}

func (s apiSender) Reply(replyToken string, messages []messaging_api.MessageInterface) error {
	_, err := s.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	return err
}

func (s apiSender) ShowLoading(chatID string) error {
	_, err := s.client.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: loadingSeconds,
	})
	return err
}

// Handler handles LINE webhook events
type Handler struct {
	channelSecret string
	client        sender
	metrics       *metrics.Metrics
	logger        *logger.Logger
	processor     *bot.Processor
	rateLimiter   *ratelimit.Limiter // global limit on outgoing API calls
	icons         lineutil.IconSource
	wg            sync.WaitGroup

	webhookTimeout      time.Duration
	maxMessagesPerReply int
	maxEventsPerWebhook int
	minReplyTokenLength int
}

// HandlerConfig holds configuration for creating a new Handler
type HandlerConfig struct {
	ChannelSecret string
	ChannelToken  string
	BotConfig     *config.BotConfig
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
	Processor     *bot.Processor
	Icons         lineutil.IconSource
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig, opts ...HandlerOption) (*Handler, error) {
	if cfg.BotConfig == nil {
		return nil, errors.New("webhook: bot config is required")
	}
	client, err := messaging_api.NewMessagingApiAPI(cfg.ChannelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}

	h := &Handler{
		channelSecret:       cfg.ChannelSecret,
		client:              apiSender{client: client},
		metrics:             cfg.Metrics,
		logger:              cfg.Logger,
		processor:           cfg.Processor,
		icons:               cfg.Icons,
		rateLimiter:         ratelimit.New(cfg.BotConfig.GlobalRateLimitRPS, cfg.BotConfig.GlobalRateLimitRPS),
		webhookTimeout:      cfg.BotConfig.WebhookTimeout,
		maxMessagesPerReply: cfg.BotConfig.MaxMessagesPerReply,
		maxEventsPerWebhook: cfg.BotConfig.MaxEventsPerWebhook,
		minReplyTokenLength: cfg.BotConfig.MinReplyTokenLength,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle is the Gin handler for the webhook endpoint. It answers 200 as
// soon as the signature checks out and processes the events afterwards.
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.Status(http.StatusOK)

	events := cb.Events
	if h.maxEventsPerWebhook > 0 && len(events) > h.maxEventsPerWebhook {
		h.logger.WithField("event_count", len(events)).
			WithField("limit", h.maxEventsPerWebhook).
			Warn("Too many events in webhook batch; truncating")
		events = events[:h.maxEventsPerWebhook]
	}

	converted := make([]bot.Event, 0, len(events))
	for _, e := range events {
		converted = append(converted, bot.FromWebhook(e))
	}
	h.Dispatch(converted)
}

// Dispatch processes events in the background, in order. Shutdown waits
// for every dispatched batch.
func (h *Handler) Dispatch(events []bot.Event) {
	if len(events) == 0 {
		return
	}
	start := time.Now()
	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.WithField("panic", r).Error("Panic in async event processing")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), h.webhookTimeout)
		defer cancel()
		for _, ev := range events {
			h.processEvent(ctx, ev, start)
		}
	})
}

func (h *Handler) processEvent(ctx context.Context, ev bot.Event, batchStart time.Time) {
	eventStart := time.Now()
	eventType := ev.Kind.String()

	log := h.logger.WithField("event_type", eventType)
	if ev.ID != "" {
		ctx = ctxutil.WithRequestID(ctx, ev.ID)
		log = log.WithRequestID(ev.ID)
	}
	if ev.Redelivery {
		log = log.WithField("is_redelivery", true)
	}
	if ev.Timestamp > 0 {
		log = log.WithField("event_timestamp_ms", ev.Timestamp)
	}

	if ev.Kind == bot.EventUnsupported {
		log.Debug("Unsupported event type")
		return
	}

	if ev.ExpectsReply() && ev.ChatID != "" {
		if err := h.client.ShowLoading(ev.ChatID); err != nil {
			log.WithError(err).Warn("Failed to show loading animation")
		}
	}

	messages, err := h.processor.Process(ctx, ev)
	status := "success"
	if err != nil {
		status = "error"
		log.WithError(err).Error("Failed to handle event")
	}
	h.recordWebhook(eventType, status, time.Since(eventStart).Seconds())

	if err == nil && len(messages) > 0 {
		h.reply(ctx, log, ev, h.capMessages(log, messages))
	}

	log.WithField("event_duration_ms", time.Since(eventStart).Milliseconds()).
		WithField("batch_duration_ms", time.Since(batchStart).Milliseconds()).
		Info("Event processed")
}

// capMessages keeps a reply within the per-reply message limit, replacing
// the overflow with a notice.
func (h *Handler) capMessages(log *logger.Logger, messages []messaging_api.MessageInterface) []messaging_api.MessageInterface {
	if h.maxMessagesPerReply <= 0 || len(messages) <= h.maxMessagesPerReply {
		return messages
	}
	log.WithField("message_count", len(messages)).
		WithField("limit", h.maxMessagesPerReply).
		Warn("Message count exceeds limit; truncating")

	capped := make([]messaging_api.MessageInterface, 0, h.maxMessagesPerReply)
	capped = append(capped, messages[:h.maxMessagesPerReply-1]...)
	notice := lineutil.NewTextMessageWithQuickReply(
		truncatedText,
		lineutil.GetSender(truncatedSender, h.icons),
		lineutil.QuickReplyHelpAction(),
	)
	return append(capped, notice)
}

func (h *Handler) reply(ctx context.Context, log *logger.Logger, ev bot.Event, messages []messaging_api.MessageInterface) {
	if ev.ReplyToken == "" {
		log.Debug("Empty reply token, skipping reply")
		return
	}
	if len(ev.ReplyToken) < h.minReplyTokenLength {
		log.WithField("token_length", len(ev.ReplyToken)).Debug("Invalid reply token format")
		return
	}

	if !h.rateLimiter.Allow() {
		log.Warn("Global rate limit exceeded; waiting")
		h.recordDrop()
		waitStart := time.Now()
		if err := h.rateLimiter.Wait(ctx); err != nil {
			log.WithError(err).Warn("Gave up waiting for global rate limit")
			return
		}
		if h.metrics != nil {
			h.metrics.RecordRateLimiterWait("global", time.Since(waitStart).Seconds())
		}
	}

	if err := h.client.Reply(ev.ReplyToken, messages); err != nil {
		errMsg := err.Error()
		switch {
		case strings.Contains(errMsg, "Invalid reply token"):
			log.WithError(err).Debug("Reply token already used or invalid")
		case strings.Contains(errMsg, "rate limit"):
			log.WithError(err).Error("Rate limit exceeded")
		default:
			log.WithError(err).WithField("reply_token", ev.ReplyToken[:min(8, len(ev.ReplyToken))]+"...").
				Error("Failed to send reply")
		}
		h.recordWebhook(ev.Kind.String(), "reply_error", 0)
	}
}

func (h *Handler) recordWebhook(eventType, status string, seconds float64) {
	if h.metrics != nil {
		h.metrics.RecordWebhook(eventType, status, seconds)
	}
}

func (h *Handler) recordDrop() {
	if h.metrics != nil {
		h.metrics.RecordRateLimiterDrop("global")
	}
}

// Shutdown waits for all async event processing to complete.
// It returns an error if the context is canceled before completion.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
