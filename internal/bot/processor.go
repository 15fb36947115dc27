package bot

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/config"
	"github.com/garyellow/ntpu-directory-bot/internal/ctxutil"
	"github.com/garyellow/ntpu-directory-bot/internal/lineutil"
	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/ratelimit"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	systemSender  = "系統小幫手"
	helpSender    = "幫助小幫手"
	welcomeSender = "初階小幫手"
	stickerSender = "貼圖小幫手"
)

// Processor turns one Event into reply messages. It sanitises input,
// enforces per-chat rate limits, answers help, sticker and welcome events
// itself and dispatches everything else through the Registry.
type Processor struct {
	registry    *Registry
	userLimiter *ratelimit.KeyedLimiter
	icons       lineutil.IconSource
	logger      *logger.Logger

	webhookTimeout   time.Duration
	maxMessageLength int
	maxPostbackSize  int
}

// ProcessorConfig holds configuration for creating a new Processor.
// UserLimiter and Icons may be nil.
type ProcessorConfig struct {
	Registry    *Registry
	UserLimiter *ratelimit.KeyedLimiter
	Icons       lineutil.IconSource
	Logger      *logger.Logger
	BotConfig   *config.BotConfig
}

// NewProcessor creates a new event processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		registry:         cfg.Registry,
		userLimiter:      cfg.UserLimiter,
		icons:            cfg.Icons,
		logger:           cfg.Logger,
		webhookTimeout:   config.WebhookProcessing,
		maxMessageLength: config.LINEMaxTextMessageLength,
		maxPostbackSize:  config.LINEMaxPostbackDataLength,
	}
	if bc := cfg.BotConfig; bc != nil {
		if bc.WebhookTimeout > 0 {
			p.webhookTimeout = bc.WebhookTimeout
		}
		if bc.MaxMessageLength > 0 {
			p.maxMessageLength = bc.MaxMessageLength
		}
		if bc.MaxPostbackDataSize > 0 {
			p.maxPostbackSize = bc.MaxPostbackDataSize
		}
	}
	return p
}

// Process answers ev. A nil slice means no reply. The returned error is
// only set when processing was cut short by ctx.
func (p *Processor) Process(ctx context.Context, ev Event) ([]messaging_api.MessageInterface, error) {
	ctx = ctxutil.WithChatID(ctx, ev.ChatID)
	ctx = ctxutil.WithUserID(ctx, ev.UserID)
	ctx = ctxutil.WithEventID(ctx, ev.ID)

	switch ev.Kind {
	case EventText:
		if msgs, ok := p.checkUserRateLimit(ev); !ok {
			return msgs, nil
		}
		return p.processText(ctx, ev)
	case EventSticker:
		if !ev.Personal {
			return nil, nil
		}
		if msgs, ok := p.checkUserRateLimit(ev); !ok {
			return msgs, nil
		}
		return p.stickerReply(), nil
	case EventPostback:
		if msgs, ok := p.checkUserRateLimit(ev); !ok {
			return msgs, nil
		}
		return p.processPostback(ctx, ev)
	case EventFollow:
		p.logger.Info("New user followed the bot")
		return welcomeMessages(lineutil.GetSender(welcomeSender, p.icons), false), nil
	case EventJoin:
		p.logger.Info("Bot joined a group")
		return welcomeMessages(lineutil.GetSender(welcomeSender, p.icons), true), nil
	default:
		return nil, nil
	}
}

func (p *Processor) processText(ctx context.Context, ev Event) ([]messaging_api.MessageInterface, error) {
	if ev.Text == "" {
		return nil, nil
	}
	if len([]rune(ev.Text)) > p.maxMessageLength {
		p.logger.Warnf("Text message too long: %d bytes", len(ev.Text))
		if !ev.Personal && !ev.Mentioned {
			return nil, nil
		}
		return p.systemReply(tooLongText), nil
	}

	raw := ev.Text
	if !ev.Personal && ev.Mentioned {
		raw = RemoveBotMentions(raw, ev.Mention)
	}
	text := SanitizeText(raw)
	if text == "" {
		if ev.Personal || ev.Mentioned {
			return helpMessages(lineutil.GetSender(helpSender, p.icons)), nil
		}
		return nil, nil
	}

	if isHelpKeyword(text) {
		p.logger.Info("User requested help/instruction")
		return instructionMessages(lineutil.GetSender(helpSender, p.icons)), nil
	}

	processCtx, cancel := context.WithTimeout(ctxutil.PreserveTracing(ctx), p.webhookTimeout)
	defer cancel()
	processCtx = withAddressed(processCtx, ev.Personal || ev.Mentioned)

	if msgs := p.registry.DispatchMessage(processCtx, text); len(msgs) > 0 {
		return msgs, nil
	}
	if err := processCtx.Err(); err != nil {
		return nil, err
	}

	// Unmatched text only gets help where the bot is clearly addressed.
	if ev.Personal || ev.Mentioned {
		return helpMessages(lineutil.GetSender(helpSender, p.icons)), nil
	}
	return nil, nil
}

func (p *Processor) processPostback(ctx context.Context, ev Event) ([]messaging_api.MessageInterface, error) {
	data := strings.TrimSpace(ev.Data)
	if data == "" {
		p.logger.Warn("Empty postback data")
		return nil, nil
	}
	if len(data) > p.maxPostbackSize {
		p.logger.Warnf("Postback data too long: %d bytes", len(data))
		return p.systemReply(badPostbackText), nil
	}

	p.logger.WithField("data", data).Debug("Received postback")

	if isHelpKeyword(data) {
		return instructionMessages(lineutil.GetSender(helpSender, p.icons)), nil
	}

	processCtx, cancel := context.WithTimeout(ctxutil.PreserveTracing(ctx), p.webhookTimeout)
	defer cancel()

	if msgs := p.registry.DispatchPostback(processCtx, data); len(msgs) > 0 {
		return msgs, nil
	}
	if err := processCtx.Err(); err != nil {
		return nil, err
	}
	return p.systemReply(expiredActionText), nil
}

// checkUserRateLimit consumes one token for the chat. Over the limit, only
// personal chats get a notice so groups are not spammed.
func (p *Processor) checkUserRateLimit(ev Event) ([]messaging_api.MessageInterface, bool) {
	if p.userLimiter == nil || ev.ChatID == "" {
		return nil, true
	}
	if p.userLimiter.Allow(ev.ChatID) {
		return nil, true
	}

	logChatID := ev.ChatID
	if len(logChatID) > 8 {
		logChatID = logChatID[:8] + "..."
	}
	p.logger.WithField("chat_id", logChatID).Warn("User rate limit exceeded")

	if ev.Personal {
		return p.systemReply(rateLimitedText), false
	}
	return nil, false
}

func (p *Processor) stickerReply() []messaging_api.MessageInterface {
	if p.icons == nil {
		return nil
	}
	url := p.icons.GetRandomSticker()
	img := lineutil.NewImageMessage(url, url)
	img.Sender = lineutil.GetSender(stickerSender, p.icons)
	return []messaging_api.MessageInterface{img}
}

func (p *Processor) systemReply(text string) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(systemSender, p.icons)
	return []messaging_api.MessageInterface{lineutil.NewTextMessageWithConsistentSender(text, sender)}
}

func isHelpKeyword(text string) bool {
	return slices.ContainsFunc(helpKeywords, func(k string) bool {
		return strings.EqualFold(text, k)
	})
}
