package id

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/garyellow/ntpu-directory-bot/internal/config"
	"github.com/garyellow/ntpu-directory-bot/internal/department"
	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	"github.com/garyellow/ntpu-directory-bot/internal/lineutil"
	"github.com/garyellow/ntpu-directory-bot/internal/menu"
	"github.com/garyellow/ntpu-directory-bot/internal/search"
	"github.com/garyellow/ntpu-directory-bot/internal/studentid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	easterEggData = "兇"
	easterEggText = "泥好兇喔～～(⊙﹏⊙)"

	ripImageURL  = "https://raw.githubusercontent.com/garyellow/ntpu-directory-bot/main/assets/rip.png"
	logoImageURL = "https://new.ntpu.edu.tw/assets/logo/ntpu_logo.png"
)

// collegeImages are the thumbnails of the department pickers.
var collegeImages = map[string]string{
	"hum":  "https://walkinto.in/upload/-192z7YDP8-JlchfXtDvI.JPG",
	"law":  "https://walkinto.in/upload/byupdk9PvIZyxupOy9Dw8.JPG",
	"bus":  "https://walkinto.in/upload/ZJum7EYwPUZkedmXNtvPL.JPG",
	"pub":  "https://walkinto.in/upload/ZJhs4wEaDIWklhiVwV6DI.jpg",
	"soc":  "https://walkinto.in/upload/WyPbshN6DIZ1gvZo2NTvU.JPG",
	"eecs": "https://walkinto.in/upload/bJ9zWWHaPLWJg9fW-STD8.png",
}

// groupSummaries describe the colleges of each group on the picker.
var groupSummaries = map[string]string{
	"hlb": "📖 人文：中文、應外、歷史\n⚖️ 法律：法學、司法、財法\n💼 商學：企管、金融、會計、統計、休運",
	"pse": "🏛️ 公共事務：公行、不動、財政\n👥 社科：經濟、社學、社工\n💻 電資：電機、資工、通訊",
}

// handleYearQuery validates a year and asks for confirmation before the
// roster menu starts. Checks run from the most specific answer down.
func (h *Handler) handleYearQuery(yearStr string) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, h.icons)
	now := h.now()
	c := studentid.ClassifyAt(yearStr, now)
	if !c.IsYear() {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply("📅 年份格式不正確\n\n請輸入 2-4 位數字\n例如：112 或 2023", sender,
				lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("📅 查詢 112 學年度", "學年 112")},
				lineutil.QuickReplyHelpAction(),
			),
		}
	}
	year := c.Year

	switch {
	case c.Kind == studentid.KindYearTooFuture:
		latest := min(studentid.CurrentYear(now), config.IDDataYearEnd)
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(config.IDYearFutureMessage, sender,
				yearQuickReply(latest),
				lineutil.QuickReplyStudentAction(),
				lineutil.QuickReplyHelpAction(),
			),
		}

	case year > config.IDDataCutoffYear:
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(config.IDLMSDeprecatedMessage, sender,
				yearQuickReply(config.IDDataCutoffYear),
				yearQuickReply(config.IDDataYearEnd),
				lineutil.QuickReplyStudentAction(),
				lineutil.QuickReplyHelpAction(),
			),
			lineutil.NewImageMessage(ripImageURL, ripImageURL),
		}

	case c.Kind == studentid.KindYearTooEarly:
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(config.IDYearBeforeNTPUMessage, sender,
				yearQuickReply(config.LMSLaunchYear),
				lineutil.QuickReplyStudentAction(),
				lineutil.QuickReplyHelpAction(),
			),
		}

	case year < config.LMSLaunchYear:
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(config.IDYearTooOldMessage, sender,
				yearQuickReply(config.LMSLaunchYear),
				lineutil.QuickReplyStudentAction(),
				lineutil.QuickReplyHelpAction(),
			),
		}
	}

	confirmText := fmt.Sprintf("📅 %d 學年度學生查詢\n\n📋 查詢流程：\n1️⃣ 選擇學院群\n2️⃣ 選擇學院\n3️⃣ 選擇系所\n\n確定要開始查詢？", year)
	confirmMsg := lineutil.NewConfirmTemplate(
		"確認學年度",
		confirmText,
		lineutil.NewPostbackActionWithDisplayText("哪次不是", "哪次不是", PostbackPrefix+menu.Encode(menu.Start(year))),
		lineutil.NewPostbackActionWithDisplayText("我在想想", "再啦乾ಠ_ಠ", PostbackPrefix+easterEggData),
	)
	return []messaging_api.MessageInterface{lineutil.SetSender(confirmMsg, sender)}
}

func yearQuickReply(year int) lineutil.QuickReplyItem {
	return lineutil.QuickReplyItem{
		Action: lineutil.NewMessageAction(fmt.Sprintf("📅 查詢 %d 學年度", year), fmt.Sprintf("學年 %d", year)),
	}
}

// yearGuidance explains the year keyword when no year follows it.
func (h *Handler) yearGuidance() []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, h.icons)
	text := fmt.Sprintf("📅 按學年度查詢學生\n\n請輸入學年度進行查詢\n例如：學年 112、學年 110\n\n"+
		"📋 查詢流程：\n1️⃣ 選擇學院群（文法商/公社電資）\n2️⃣ 選擇學院\n3️⃣ 選擇系所\n4️⃣ 查看該系所所有學生\n\n"+
		"⚠️ 僅提供 %d-%d 學年度資料", config.LMSLaunchYear, config.IDDataCutoffYear)
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithQuickReply(text, sender,
			yearQuickReply(112),
			yearQuickReply(111),
			yearQuickReply(110),
		),
	}
}

// handleMenuPostback advances the roster menu. Payloads that are not a
// menu token are handled as if the user had typed them.
func (h *Handler) handleMenuPostback(ctx context.Context, data string) []messaging_api.MessageInterface {
	tok, err := menu.Decode(data)
	if err != nil {
		h.logger.WithModule(ModuleName).WithError(err).Debug("Postback is not a menu token")
		if h.CanHandle(data) {
			return h.HandleMessage(ctx, data)
		}
		return nil
	}
	if !menuYearInRange(tok.Year) {
		h.logger.WithModule(ModuleName).WithField("year", tok.Year).Debug("Menu token year out of range")
		return h.yearGuidance()
	}

	// A college with a single family (law) skips straight to its groups.
	for {
		if year, dept, ok := tok.Resolved(); ok {
			return h.handleRoster(ctx, year, dept)
		}
		choices := menu.Choices(tok)
		if len(choices) != 1 {
			return h.renderChoices(tok, choices)
		}
		tok = choices[0].Next
	}
}

// menuYearInRange reports whether a token year can name a real cohort.
// Anything else would send a roster fetch to the LMS for nothing.
func menuYearInRange(year string) bool {
	y, err := strconv.Atoi(year)
	return err == nil && y >= config.NTPUFoundedYear && y <= config.IDDataCutoffYear
}

// renderChoices shows the branches of a menu state as template buttons,
// or as a carousel of three per column when there are more than four.
func (h *Handler) renderChoices(tok menu.Token, choices []menu.Choice) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, h.icons)
	if len(choices) == 0 {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply("❌ 無效的選擇\n\n請重新選擇學年度後操作", sender,
				lineutil.QuickReplyYearAction(),
				lineutil.QuickReplyHelpAction(),
			),
		}
	}

	actions := make([]lineutil.Action, len(choices))
	for i, ch := range choices {
		actions[i] = lineutil.NewPostbackActionWithDisplayText(
			choiceLabel(tok, ch),
			choiceDisplayText(tok, ch),
			PostbackPrefix+menu.Encode(ch.Next),
		)
	}

	switch tok.State {
	case menu.StateRoot:
		msg := lineutil.NewButtonsTemplateWithImage(
			fmt.Sprintf("%s 學年度學生查詢", tok.Year),
			fmt.Sprintf("%s 學年度", tok.Year),
			"請選擇科系所屬學院群\n\n📚 文法商：人文、法律、商學院\n🏛️ 公社電資：公共、社科、電資學院",
			logoImageURL,
			actions,
		)
		return []messaging_api.MessageInterface{lineutil.SetSender(msg, sender)}

	case menu.StateCollegeGroup:
		g, _ := department.FindGroup(tok.Arg)
		msg := lineutil.NewButtonsTemplate(
			fmt.Sprintf("%s 學年度 %s", tok.Year, g.Name),
			fmt.Sprintf("%s 學年度・%s", tok.Year, g.Name),
			"請選擇學院\n\n"+groupSummaries[g.Key],
			actions,
		)
		return []messaging_api.MessageInterface{lineutil.SetSender(msg, sender)}
	}

	class, image := "科系", collegeImages[tok.Arg]
	if tok.State == menu.StateDepartmentChoice {
		class = "組別"
		if department.IsLaw(tok.Arg) {
			image = collegeImages["law"]
		} else {
			image = collegeImages["soc"]
		}
	}
	title := "選擇" + class
	text := "請選擇要查詢的" + class

	if len(actions) <= lineutil.MaxTemplateActionCount {
		msg := lineutil.NewButtonsTemplateWithImage(title, title, text, image, actions)
		return []messaging_api.MessageInterface{lineutil.SetSender(msg, sender)}
	}

	// Carousel columns must all have the same number of actions.
	const perColumn = 3
	var columns []lineutil.CarouselColumn
	for i := 0; i < len(actions); i += perColumn {
		columnActions := append([]lineutil.Action(nil), actions[i:min(i+perColumn, len(actions))]...)
		for len(columnActions) < perColumn {
			columnActions = append(columnActions, lineutil.NewPostbackAction("　", "　"))
		}
		columns = append(columns, lineutil.CarouselColumn{
			ThumbnailImageURL: image,
			Title:             title,
			Text:              text,
			Actions:           columnActions,
		})
	}
	msg := lineutil.NewCarouselTemplate(title, columns)
	return []messaging_api.MessageInterface{lineutil.SetSender(msg, sender)}
}

func choiceLabel(tok menu.Token, ch menu.Choice) string {
	switch tok.State {
	case menu.StateCollegeGroup:
		if c, ok := department.FindCollege(ch.Key); ok {
			return collegeEmoji[c.Key] + " " + ch.Label
		}
	case menu.StateCollege:
		if department.IsFamilyBase(ch.Key) {
			return ch.Label + "系"
		}
	case menu.StateDepartmentChoice:
		return displayDepartment(ch.Key)
	}
	return ch.Label
}

func choiceDisplayText(tok menu.Token, ch menu.Choice) string {
	switch ch.Next.State {
	case menu.StateCollegeGroup:
		return fmt.Sprintf("搜尋 %s 學年度%s學院群", tok.Year, ch.Label)
	case menu.StateCollege:
		return fmt.Sprintf("搜尋 %s 學年度%s", tok.Year, ch.Label)
	case menu.StateResolved:
		return fmt.Sprintf("搜尋%s學年度%s", tok.Year, rosterName(ch.Next.Arg))
	}
	return fmt.Sprintf("搜尋 %s 學年度%s", tok.Year, ch.Label)
}

// rosterName is the heading name of a cohort: "資工系", "法律系法學組".
func rosterName(code string) string {
	if department.IsLaw(code) && !department.IsFamilyBase(code) {
		name, _ := department.Name(code)
		return "法律系" + name + "組"
	}
	return displayDepartment(code)
}

// handleRoster lists every student of a cohort, fetching the cohort on
// demand. A failed fetch falls back to whatever the index already holds.
func (h *Handler) handleRoster(ctx context.Context, year int, code string) []messaging_api.MessageInterface {
	log := h.logger.WithModule(ModuleName)
	sender := lineutil.GetSender(senderName, h.icons)
	cohort := directory.Cohort{Year: year, Department: code}
	name := rosterName(code)

	if _, err := h.index.FetchCohort(ctx, cohort); err != nil {
		entry := log.WithError(err).WithField("cohort", cohort.String())
		var fetchErr *directory.CohortFetchError
		if errors.As(err, &fetchErr) && h.index.IsUnreachable(fetchErr.Err) {
			entry.Warn("Directory service unreachable during roster fetch")
		} else {
			entry.Error("Failed to fetch cohort for roster")
		}
	}

	results := h.search.LookupByCohort(year, code)
	h.recordSearch("cohort", len(results))

	if len(results) == 0 {
		text := fmt.Sprintf("🤔 %d 學年度%s好像沒有人耶", year, name)
		if year == config.IDDataCutoffYear {
			text = fmt.Sprintf(config.ID113YearEmptyMessage, name)
		}
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(text, sender,
				lineutil.QuickReplyYearAction(),
				lineutil.QuickReplyStudentAction(),
				lineutil.QuickReplyHelpAction(),
			),
		}
	}

	fetchedAt, _ := h.index.FetchedAt(cohort)

	var builder strings.Builder
	fmt.Fprintf(&builder, "%d學年度%s學生名單：\n\n", year, name)
	builder.WriteString(search.RosterLayout.Lines(results))
	fmt.Fprintf(&builder, "\n\n%d學年度%s共有%d位學生", year, name, len(results))
	builder.WriteString(lineutil.FormatCacheTimeFooter(fetchedAt))

	chunks := lineutil.SplitText(builder.String(), lineutil.TextListSafeBuffer)
	if len(chunks) > config.LINEMaxMessagesPerReply {
		chunks = chunks[:config.LINEMaxMessagesPerReply]
	}
	messages := make([]messaging_api.MessageInterface, len(chunks))
	for i, chunk := range chunks {
		messages[i] = lineutil.NewTextMessageWithConsistentSender(chunk, sender)
	}
	lineutil.AddQuickReplyToMessages(messages,
		lineutil.QuickReplyYearAction(),
		lineutil.QuickReplyDeptCodeAction(),
		lineutil.QuickReplyHelpAction(),
	)
	return messages
}
