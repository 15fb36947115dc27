package id

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyellow/ntpu-directory-bot/internal/bot"
	"github.com/garyellow/ntpu-directory-bot/internal/config"
	"github.com/garyellow/ntpu-directory-bot/internal/department"
	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	"github.com/garyellow/ntpu-directory-bot/internal/lineutil"
	"github.com/garyellow/ntpu-directory-bot/internal/search"
	"github.com/garyellow/ntpu-directory-bot/internal/studentid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	loadingText  = "⏳ 學生名單仍在載入中\n\n請稍後再試一次。"
	inferredNote = "ℹ️ 入學學年與系所由學號推算，僅供參考"
)

// collegeEmoji decorates college headings in the department code list.
var collegeEmoji = map[string]string{
	"hum":  "📖",
	"law":  "⚖️",
	"bus":  "💼",
	"pub":  "🏛️",
	"soc":  "👥",
	"eecs": "💻",
}

// handleAllDepartmentCodes lists every department code by college.
func (h *Handler) handleAllDepartmentCodes() []messaging_api.MessageInterface {
	var builder strings.Builder
	builder.WriteString("📋 所有系代碼一覽\n")

	for _, g := range department.Groups {
		for _, c := range g.Colleges {
			fmt.Fprintf(&builder, "\n%s %s", collegeEmoji[c.Key], c.Name)
			for _, code := range c.Departments {
				for _, member := range familyMembers(code) {
					name, _ := department.Name(member)
					suffix := "系"
					if department.IsLaw(member) {
						suffix = "組"
					}
					fmt.Fprintf(&builder, "\n  %s%s → %s", name, suffix, member)
				}
			}
			builder.WriteString("\n")
		}
	}

	builder.WriteString("\n💡 使用方式：學年 112 後選擇科系")

	sender := lineutil.GetSender(senderName, h.icons)
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithQuickReply(builder.String(), sender,
			lineutil.QuickReplyYearAction(),
			lineutil.QuickReplyStudentAction(),
			lineutil.QuickReplyHelpAction(),
		),
	}
}

// familyMembers expands a family base into its member codes.
func familyMembers(code string) []string {
	base, suffixes, ok := department.ResolveFamily(code)
	if !ok || base != code {
		return []string{code}
	}
	members := make([]string, len(suffixes))
	for i, s := range suffixes {
		members[i] = base + s
	}
	return members
}

// handleDepartmentNameQuery resolves a department name to its code.
// Exact short and full names are tried first, then every full name that
// contains all runes of the query ("資工" → "資訊工程學系").
func (h *Handler) handleDepartmentNameQuery(deptName string) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, h.icons)
	deptName = strings.TrimSpace(deptName)
	if deptName == "" {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply("🏫 請在關鍵字後輸入系名\n\n例如：系 資工、系 法律", sender,
				lineutil.QuickReplyDeptCodeAction(),
				lineutil.QuickReplyHelpAction(),
			),
		}
	}

	if code, ok := department.CodeOf(deptName); ok {
		text := fmt.Sprintf("%s的系代碼是：%s", displayDepartment(code), code)
		if members := familyMembers(code); len(members) > 1 {
			parts := make([]string, len(members))
			for i, m := range members {
				name, _ := department.Name(m)
				parts[i] = fmt.Sprintf("%s %s", name, m)
			}
			text += "\n\n各組代碼：" + strings.Join(parts, "、")
		}
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(text, sender, lineutil.QuickReplyDeptCodeAction()),
		}
	}

	trimmed := strings.TrimSuffix(deptName, "系")
	var matches []department.Department
	for _, d := range department.All() {
		if search.ContainsAllRunes(d.FullName, trimmed) {
			matches = append(matches, d)
		}
	}

	switch {
	case len(matches) == 1:
		text := fmt.Sprintf("🔍「%s」→ %s\n\n系代碼是：%s", deptName, matches[0].FullName, matches[0].Code)
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(text, sender, lineutil.QuickReplyDeptCodeAction()),
		}
	case len(matches) > 1:
		var builder strings.Builder
		fmt.Fprintf(&builder, "🔍「%s」找到多個符合的系所：\n\n", deptName)
		for _, m := range matches {
			fmt.Fprintf(&builder, "• %s → %s\n", m.FullName, m.Code)
		}
		builder.WriteString("\n💡 請輸入更完整的系名以縮小範圍")
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(builder.String(), sender, lineutil.QuickReplyDeptCodeAction()),
		}
	}

	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithQuickReply("🔍 查無該系所\n\n請輸入正確的系名\n例如：資工、法律、企管", sender,
			lineutil.QuickReplyDeptCodeAction(),
			lineutil.QuickReplyHelpAction(),
		),
	}
}

// handleDepartmentCodeQuery resolves a department code to its name.
func (h *Handler) handleDepartmentCodeQuery(code string) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, h.icons)
	code = strings.TrimSpace(code)

	if _, ok := department.Name(code); ok {
		text := fmt.Sprintf("系代碼 %s 是：%s", code, displayDepartment(code))
		if full, ok := department.FullName(code); ok {
			text += fmt.Sprintf("\n（%s）", full)
		}
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(text, sender, lineutil.QuickReplyDeptCodeAction()),
		}
	}

	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithQuickReply("🔍 查無該系代碼\n\n請輸入正確的系代碼\n例如：85（資工系）", sender,
			lineutil.QuickReplyDeptCodeAction(),
			lineutil.QuickReplyHelpAction(),
		),
	}
}

// displayDepartment names a code the way users say it: "資工系",
// "法律系", "法學組".
func displayDepartment(code string) string {
	name, ok := department.Name(code)
	if !ok {
		return code
	}
	if department.IsLaw(code) && !department.IsFamilyBase(code) {
		return name + "組"
	}
	return name + "系"
}

// handleStudentIDQuery looks an ID up, fetching its cohort on demand when
// the index has never loaded it.
func (h *Handler) handleStudentIDQuery(ctx context.Context, studentID string) []messaging_api.MessageInterface {
	log := h.logger.WithModule(ModuleName)
	sender := lineutil.GetSender(senderName, h.icons)

	result, ok := h.search.LookupByID(studentID)
	if !ok && h.fetchCohortOf(ctx, studentID) {
		result, ok = h.search.LookupByID(studentID)
	}

	if !ok {
		h.recordSearch("id", 0)
		if !h.index.IsReady() {
			return []messaging_api.MessageInterface{
				lineutil.NewTextMessageWithQuickReply(loadingText, sender,
					lineutil.QuickReplyRetryAction(studentID),
				),
			}
		}
		log.Debugf("Student ID not found: %s", studentID)
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(
				fmt.Sprintf("🔍 查無此學號\n\n學號：%s\n請確認學號格式是否正確", studentID), sender,
				lineutil.QuickReplyStudentAction(),
				lineutil.QuickReplyDeptCodeAction(),
				lineutil.QuickReplyHelpAction(),
			),
		}
	}

	h.recordSearch("id", 1)
	return h.formatStudentResponse(result, h.cohortTime(studentID))
}

// fetchCohortOf loads the undergraduate cohort an ID belongs to when it was
// never fetched. It reports whether a fetch happened.
func (h *Handler) fetchCohortOf(ctx context.Context, studentID string) bool {
	c, ok := cohortOf(studentID)
	if !ok || h.index.IsFetched(c) {
		return false
	}
	if c.Year < config.LMSLaunchYear || c.Year > config.IDDataCutoffYear {
		return false
	}
	if _, err := department.Resolve(c.Department); err != nil {
		return false
	}

	if _, err := h.index.FetchCohort(ctx, c); err != nil {
		h.logger.WithModule(ModuleName).WithError(err).
			WithField("cohort", c.String()).Warn("On-demand cohort fetch failed")
		return false
	}
	return true
}

func (h *Handler) cohortTime(studentID string) time.Time {
	c, ok := cohortOf(studentID)
	if !ok {
		return time.Time{}
	}
	t, _ := h.index.FetchedAt(c)
	return t
}

func cohortOf(studentID string) (directory.Cohort, bool) {
	sid, err := studentid.Decode(studentID)
	if err != nil || !sid.IsUndergraduate() {
		return directory.Cohort{}, false
	}
	year, dept := sid.Cohort()
	return directory.Cohort{Year: year, Department: dept}, true
}

// formatStudentResponse renders one student as a Flex card.
func (h *Handler) formatStudentResponse(result search.Result, fetchedAt time.Time) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, h.icons)

	hero := lineutil.NewHeroBox(result.Name, "國立臺北大學")

	body := lineutil.NewBodyContentBuilder()
	body.AddInfoRow("🆔", "學號", result.ID, lineutil.BoldInfoRowStyle())
	body.AddInfoRowIf("🏫", "系所", result.Department, lineutil.BoldInfoRowStyle())
	if result.Year > 0 {
		body.AddInfoRow("📅", "入學學年", fmt.Sprintf("%d 學年度", result.Year), lineutil.BoldInfoRowStyle())
	}
	if result.Inferred {
		body.AddComponent(lineutil.NewFlexText(inferredNote).
			WithSize("xxs").WithColor(lineutil.ColorSubtext).WithWrap(true).FlexText)
	}
	if hint := lineutil.NewCacheTimeHint(fetchedAt); hint != nil {
		body.AddComponent(hint.FlexText)
	}
	floor, ceiling := h.index.Scope()
	body.AddComponent(lineutil.NewDataRangeHint(floor, ceiling).FlexText)

	footer := lineutil.NewFlexBox("vertical",
		lineutil.NewFlexButton(
			lineutil.NewClipboardAction("📋 複製學號", result.ID),
		).WithStyle("primary").WithColor(lineutil.ColorPrimary).WithHeight("sm").FlexButton,
		lineutil.NewFlexButton(
			lineutil.NewMessageAction("🔍 查詢其他學號", "學號"),
		).WithStyle("secondary").WithHeight("sm").FlexButton,
	).WithSpacing("sm")

	bubble := lineutil.NewFlexBubble(nil, hero.FlexBox, body.Build(), footer)

	msg := lineutil.NewFlexMessageWithQuickReply(
		fmt.Sprintf("學生資訊 - %s", result.Name), bubble.FlexBubble, sender,
		lineutil.QuickReplyDeptCodeAction(),
		lineutil.QuickReplyYearAction(),
		lineutil.QuickReplyHelpAction(),
	)
	return []messaging_api.MessageInterface{msg}
}

// handleStudentNameQuery searches names, or IDs for short digit strings.
// Results are sent 100 per message, at most five messages; the warning
// about dropped older matches goes at the end of the last one. explicit
// is false for free text, which stays quiet when nothing matches.
func (h *Handler) handleStudentNameQuery(ctx context.Context, name string, explicit bool) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, h.icons)

	kind := "name"
	if search.IsFragmentQuery(name) {
		kind = "fragment"
	}
	matches := h.search.SearchByNameOrFragment(name)
	h.recordSearch(kind, len(matches.Results))

	if len(matches.Results) == 0 {
		if !h.index.IsReady() {
			return []messaging_api.MessageInterface{
				lineutil.NewTextMessageWithQuickReply(loadingText, sender,
					lineutil.QuickReplyRetryAction("學號 "+name),
				),
			}
		}
		if !explicit && !bot.Addressed(ctx) {
			return nil
		}
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(fmt.Sprintf(config.IDNotFoundWithCutoffHint, name), sender,
				lineutil.QuickReplyStudentAction(),
				lineutil.QuickReplyYearAction(),
				lineutil.QuickReplyHelpAction(),
			),
		}
	}

	pages := search.Paginate(matches.Results, search.PageSize)
	messages := make([]messaging_api.MessageInterface, 0, len(pages))
	start := 1
	for _, page := range pages {
		var builder strings.Builder
		fmt.Fprintf(&builder, "📋 搜尋結果（第 %d-%d 筆，共 %d 筆）\n\n",
			start, start+len(page)-1, len(matches.Results))
		builder.WriteString(search.FullLayout.Lines(page))
		messages = append(messages, lineutil.NewTextMessageWithConsistentSender(builder.String(), sender))
		start += len(page)
	}

	last := messages[len(messages)-1].(*messaging_api.TextMessage)
	last.Text += lineutil.FormatCacheTimeFooter(h.index.Stats().LastRefresh.Finished)
	if matches.Truncated() {
		last.Text += fmt.Sprintf("\n\n⚠️ 共找到 %d 筆，僅顯示最新的 %d 筆\n"+
			"建議輸入更完整的姓名，或使用「學年」功能按年度查詢", matches.Total, search.MaxResults)
	}

	lineutil.AddQuickReplyToMessages(messages,
		lineutil.QuickReplyStudentAction(),
		lineutil.QuickReplyDeptCodeAction(),
	)
	return messages
}

// studentGuidance explains the student keyword when no term follows it.
func (h *Handler) studentGuidance() []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, h.icons)
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithQuickReply(
			"🎓 請在關鍵字後輸入查詢內容\n\n例如：\n• 學號 小明\n• 學號 412345678\n\n💡 也可直接輸入 8-9 位學號", sender,
			lineutil.QuickReplyYearAction(),
			lineutil.QuickReplyHelpAction(),
		),
	}
}
