package bot

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/ratelimit"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

type stubHandler struct {
	mu        sync.Mutex
	lastInput string
	addressed bool
	panics    bool
}

func (h *stubHandler) Name() string           { return "stub" }
func (h *stubHandler) PostbackPrefix() string { return "stub:" }
func (h *stubHandler) CanHandle(text string) bool {
	return strings.HasPrefix(text, "查")
}

func (h *stubHandler) HandleMessage(ctx context.Context, text string) []messaging_api.MessageInterface {
	if h.panics {
		panic("boom")
	}
	h.mu.Lock()
	h.lastInput, h.addressed = text, Addressed(ctx)
	h.mu.Unlock()
	if !Addressed(ctx) && text == "查 安靜" {
		return nil
	}
	return []messaging_api.MessageInterface{&messaging_api.TextMessage{Text: "msg:" + text}}
}

func (h *stubHandler) HandlePostback(_ context.Context, data string) []messaging_api.MessageInterface {
	h.mu.Lock()
	h.lastInput = data
	h.mu.Unlock()
	if data == "stale" {
		return nil
	}
	return []messaging_api.MessageInterface{&messaging_api.TextMessage{Text: "pb:" + data}}
}

type fixedIcons string

func (f fixedIcons) GetRandomSticker() string { return string(f) }

func newTestProcessor(t *testing.T, h Handler, limiter *ratelimit.KeyedLimiter) *Processor {
	t.Helper()
	log := logger.NewWithWriter("error", io.Discard)
	reg := NewRegistry(RecoveryMiddleware(log, nil, nil), LoggingMiddleware(log))
	reg.Register(h)
	return NewProcessor(ProcessorConfig{
		Registry:    reg,
		UserLimiter: limiter,
		Icons:       fixedIcons("https://example.com/icon.png"),
		Logger:      log,
	})
}

func texts(msgs []messaging_api.MessageInterface) []string {
	var out []string
	for _, m := range msgs {
		if tm, ok := m.(*messaging_api.TextMessage); ok {
			out = append(out, tm.Text)
		}
	}
	return out
}

func TestProcess_Text(t *testing.T) {
	t.Parallel()

	personal := Event{Kind: EventText, ChatID: "U1", UserID: "U1", Personal: true}
	group := Event{Kind: EventText, ChatID: "G1", UserID: "U1"}

	tests := []struct {
		name       string
		ev         Event
		wantPrefix string // first message text prefix; "" means no reply
		wantCount  int
	}{
		{"matched", withText(personal, "查 王小明！"), "msg:查 王小明", 1},
		{"unmatched personal gets help", withText(personal, "你好"), "🔍 北大學號查詢小工具", 1},
		{"help keyword", withText(personal, "使用說明"), "📖 使用說明", 4},
		{"help keyword any case", withText(personal, "HELP"), "📖 使用說明", 4},
		{"punctuation only", withText(personal, "？？"), "🔍 北大學號查詢小工具", 1},
		{"empty", withText(personal, ""), "", 0},
		{"too long", withText(personal, strings.Repeat("字", 5001)), "❌ 訊息內容過長", 1},
		{"group unmatched is silent", withText(group, "你好"), "", 0},
		{"group matched keyword", withText(group, "查 王小明"), "msg:查 王小明", 1},
		{"group loose match stays quiet", withText(group, "查 安靜"), "", 0},
		{"group too long is silent", withText(group, strings.Repeat("字", 5001)), "", 0},
		{
			"group mention only gets help",
			Event{Kind: EventText, ChatID: "G1", Text: "@Bot", Mention: selfMention(0, 4), Mentioned: true},
			"🔍 北大學號查詢小工具", 1,
		},
		{
			"group mention stripped before dispatch",
			Event{Kind: EventText, ChatID: "G1", Text: "@Bot 查 安靜", Mention: selfMention(0, 4), Mentioned: true},
			"msg:查 安靜", 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProcessor(t, &stubHandler{}, nil)
			msgs, err := p.Process(t.Context(), tt.ev)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if len(msgs) != tt.wantCount {
				t.Fatalf("got %d messages (%q), want %d", len(msgs), texts(msgs), tt.wantCount)
			}
			if tt.wantCount > 0 && !strings.HasPrefix(texts(msgs)[0], tt.wantPrefix) {
				t.Errorf("first message = %q, want prefix %q", texts(msgs)[0], tt.wantPrefix)
			}
		})
	}
}

func withText(ev Event, text string) Event {
	ev.Text = text
	return ev
}

func TestProcess_AddressedFlag(t *testing.T) {
	t.Parallel()

	h := &stubHandler{}
	p := newTestProcessor(t, h, nil)

	if _, err := p.Process(t.Context(), Event{Kind: EventText, ChatID: "G1", Text: "查 王"}); err != nil {
		t.Fatal(err)
	}
	if h.addressed {
		t.Error("group text without mention should not be addressed")
	}

	if _, err := p.Process(t.Context(), Event{Kind: EventText, ChatID: "U1", Personal: true, Text: "查 王"}); err != nil {
		t.Fatal(err)
	}
	if !h.addressed {
		t.Error("personal text should be addressed")
	}
}

func TestProcess_Postback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		data  string
		want  string
		input string
	}{
		{"dispatched without prefix", "stub:x$90$85", "pb:x$90$85", "x$90$85"},
		{"stale postback", "stub:stale", expiredActionText, "stale"},
		{"unknown prefix", "other:1", expiredActionText, ""},
		{"help", "使用說明", "📖 使用說明", ""},
		{"too long", "stub:" + strings.Repeat("a", 300), badPostbackText, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := &stubHandler{}
			p := newTestProcessor(t, h, nil)
			msgs, err := p.Process(t.Context(), Event{Kind: EventPostback, ChatID: "G1", Data: tt.data})
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if got := texts(msgs); len(got) == 0 || !strings.HasPrefix(got[0], tt.want) {
				t.Errorf("reply = %q, want prefix %q", got, tt.want)
			}
			if h.lastInput != tt.input {
				t.Errorf("handler input = %q, want %q", h.lastInput, tt.input)
			}
		})
	}

	p := newTestProcessor(t, &stubHandler{}, nil)
	if msgs, _ := p.Process(t.Context(), Event{Kind: EventPostback, Data: "  "}); msgs != nil {
		t.Errorf("empty postback reply = %v", msgs)
	}
}

func TestProcess_Sticker(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t, &stubHandler{}, nil)

	msgs, err := p.Process(t.Context(), Event{Kind: EventSticker, ChatID: "U1", Personal: true})
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Process() = %v, %v", msgs, err)
	}
	img, ok := msgs[0].(*messaging_api.ImageMessage)
	if !ok {
		t.Fatalf("message type = %T", msgs[0])
	}
	if img.OriginalContentUrl != "https://example.com/icon.png" || img.Sender == nil {
		t.Errorf("image = %+v", img)
	}

	if msgs, _ := p.Process(t.Context(), Event{Kind: EventSticker, ChatID: "G1"}); msgs != nil {
		t.Error("group sticker should be ignored")
	}
}

func TestProcess_Welcome(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t, &stubHandler{}, nil)

	follow, _ := p.Process(t.Context(), Event{Kind: EventFollow, ChatID: "U1", Personal: true})
	join, _ := p.Process(t.Context(), Event{Kind: EventJoin, ChatID: "G1"})

	if got := texts(follow); len(got) != 5 || got[0] != welcomeText {
		t.Errorf("follow = %q", got)
	}
	if got := texts(join); len(got) != 5 || got[0] != joinText {
		t.Errorf("join = %q", got)
	}
	last := follow[len(follow)-1].(*messaging_api.TextMessage)
	if last.QuickReply == nil {
		t.Error("welcome should end with quick replies")
	}

	if msgs, err := p.Process(t.Context(), Event{Kind: EventUnsupported}); msgs != nil || err != nil {
		t.Errorf("unsupported = %v, %v", msgs, err)
	}
}

func TestProcess_RateLimit(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{Name: "user", Burst: 1, RefillRate: 0.0001})
	t.Cleanup(limiter.Stop)
	p := newTestProcessor(t, &stubHandler{}, limiter)

	ev := Event{Kind: EventText, ChatID: "U1", Personal: true, Text: "查 王"}
	if got := texts(mustProcess(t, p, ev)); len(got) != 1 || got[0] != "msg:查 王" {
		t.Fatalf("first = %q", got)
	}
	if got := texts(mustProcess(t, p, ev)); len(got) != 1 || got[0] != rateLimitedText {
		t.Errorf("second = %q, want rate limit notice", got)
	}

	group := Event{Kind: EventText, ChatID: "G1", Text: "查 王"}
	mustProcess(t, p, group)
	if msgs := mustProcess(t, p, group); msgs != nil {
		t.Errorf("group over limit should be silent, got %q", texts(msgs))
	}
}

func TestProcess_HandlerPanicRecovered(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t, &stubHandler{panics: true}, nil)

	got := texts(mustProcess(t, p, Event{Kind: EventText, ChatID: "U1", Personal: true, Text: "查 王"}))
	if len(got) != 1 || !strings.HasPrefix(got[0], "❌") {
		t.Errorf("reply after panic = %q", got)
	}
}

func mustProcess(t *testing.T, p *Processor, ev Event) []messaging_api.MessageInterface {
	t.Helper()
	msgs, err := p.Process(t.Context(), ev)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	return msgs
}
