// Package id implements the student directory module for the LINE bot.
// It answers student ID lookups, name searches, department code queries
// and the year → college → department roster menu.
package id

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garyellow/ntpu-directory-bot/internal/bot"
	"github.com/garyellow/ntpu-directory-bot/internal/department"
	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	"github.com/garyellow/ntpu-directory-bot/internal/lineutil"
	"github.com/garyellow/ntpu-directory-bot/internal/logger"
	"github.com/garyellow/ntpu-directory-bot/internal/metrics"
	"github.com/garyellow/ntpu-directory-bot/internal/search"
	"github.com/garyellow/ntpu-directory-bot/internal/studentid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// ID handler constants.
const (
	ModuleName     = "id" // Module identifier for registration
	PostbackPrefix = "id:"
	senderName     = "學號小幫手"

	// maxLooseQueryRunes bounds free text that is treated as a name.
	maxLooseQueryRunes = 20
)

// Valid keywords for directory queries
var (
	validStudentKeywords = []string{
		"學號", "學生", "姓名", "學生姓名", "學生編號",
		"student", "id",
	}
	validDepartmentKeywords = []string{
		"系", "所", "系所", "科系", "系名", "系所名", "科系名", "系所名稱", "科系名稱",
		"dep", "department",
	}
	validDepartmentCodeKeywords = []string{
		"系代碼", "系所代碼", "科系代碼", "系編號", "系所編號", "科系編號",
		"depCode", "departmentCode",
	}
	validYearKeywords = []string{
		"學年", "年份", "年度", "學年度", "入學年", "入學學年", "入學年度",
		"year",
	}

	studentRegex    = bot.BuildKeywordRegex(validStudentKeywords)
	departmentRegex = bot.BuildKeywordRegex(validDepartmentKeywords)
	deptCodeRegex   = bot.BuildKeywordRegex(validDepartmentCodeKeywords)
	yearRegex       = bot.BuildKeywordRegex(validYearKeywords)
	allDeptCodeText = "所有系代碼"
)

// Handler answers directory queries from the in-memory index.
type Handler struct {
	index   *directory.Index
	search  *search.Engine
	metrics *metrics.Metrics
	logger  *logger.Logger
	icons   lineutil.IconSource
	now     func() time.Time
}

// NewHandler creates a new ID handler. metrics and icons may be nil.
func NewHandler(
	index *directory.Index,
	metrics *metrics.Metrics,
	logger *logger.Logger,
	icons lineutil.IconSource,
) *Handler {
	return &Handler{
		index:   index,
		search:  search.New(index),
		metrics: metrics,
		logger:  logger,
		icons:   icons,
		now:     time.Now,
	}
}

// Name returns the module name
func (h *Handler) Name() string {
	return ModuleName
}

// PostbackPrefix returns the prefix of menu postbacks.
func (h *Handler) PostbackPrefix() string {
	return PostbackPrefix
}

// CanHandle checks if the message is for the ID module. Besides keywords it
// accepts IDs, 2-4 digit years or codes, digit fragments and short free text,
// which is searched as a name.
func (h *Handler) CanHandle(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	if text == allDeptCodeText || studentid.IsCandidate(text) {
		return true
	}

	if studentRegex.MatchString(text) || yearRegex.MatchString(text) ||
		departmentRegex.MatchString(text) || deptCodeRegex.MatchString(text) {
		return true
	}

	if isDigits(text) {
		return len(text) >= 2
	}

	return utf8.RuneCountInString(text) <= maxLooseQueryRunes
}

// HandleMessage handles text messages for the ID module
func (h *Handler) HandleMessage(ctx context.Context, text string) []messaging_api.MessageInterface {
	log := h.logger.WithModule(ModuleName)
	text = strings.TrimSpace(text)

	log.Debugf("Handling ID message: %s", text)

	if text == allDeptCodeText {
		return h.handleAllDepartmentCodes()
	}

	if studentid.IsCandidate(text) {
		return h.handleStudentIDQuery(ctx, text)
	}

	// Longer keywords first: "系代碼" must win over "系".
	if match := bot.MatchKeyword(deptCodeRegex, text); match != "" {
		return h.handleDepartmentCodeQuery(bot.ExtractSearchTerm(text, match))
	}

	if match := bot.MatchKeyword(departmentRegex, text); match != "" {
		return h.handleDepartmentNameQuery(bot.ExtractSearchTerm(text, match))
	}

	if match := bot.MatchKeyword(yearRegex, text); match != "" {
		if term := bot.ExtractSearchTerm(text, match); term != "" {
			return h.handleYearQuery(term)
		}
		return h.yearGuidance()
	}

	if match := bot.MatchKeyword(studentRegex, text); match != "" {
		term := bot.ExtractSearchTerm(text, match)
		switch {
		case term == "":
			return h.studentGuidance()
		case studentid.IsCandidate(term):
			return h.handleStudentIDQuery(ctx, term)
		default:
			return h.handleStudentNameQuery(ctx, term, true)
		}
	}

	return h.handleLooseText(ctx, text)
}

// handleLooseText answers text without a keyword. Only IDs are answered
// in group chats that do not mention the bot.
func (h *Handler) handleLooseText(ctx context.Context, text string) []messaging_api.MessageInterface {
	if !bot.Addressed(ctx) {
		return nil
	}

	// Short digits are a year when in range, then a department code, and
	// otherwise an ID fragment ("8512").
	if isDigits(text) && len(text) <= 4 {
		c := studentid.ClassifyAt(text, h.now())
		if c.Kind == studentid.KindYear {
			return h.handleYearQuery(text)
		}
		if _, ok := department.Name(text); ok {
			return h.handleDepartmentCodeQuery(text)
		}
	}

	if !isDigits(text) {
		if _, ok := department.CodeOf(text); ok {
			return h.handleDepartmentNameQuery(text)
		}
	}

	return h.handleStudentNameQuery(ctx, text, false)
}

// HandlePostback handles menu postbacks. data is an encoded menu token or
// the "兇" easter egg; anything else is re-classified as free text.
func (h *Handler) HandlePostback(ctx context.Context, data string) []messaging_api.MessageInterface {
	log := h.logger.WithModule(ModuleName)
	log.Debugf("Handling ID postback: %s", data)

	data = strings.TrimPrefix(data, PostbackPrefix)
	if data == easterEggData {
		sender := lineutil.GetSender(senderName, h.icons)
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithConsistentSender(easterEggText, sender),
		}
	}

	return h.handleMenuPostback(ctx, data)
}

func (h *Handler) recordSearch(kind string, n int) {
	if h.metrics != nil {
		h.metrics.RecordSearch(kind, n)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
