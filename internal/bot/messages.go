package bot

import (
	"github.com/garyellow/ntpu-directory-bot/internal/lineutil"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// helpKeywords trigger the detailed instructions.
var helpKeywords = []string{"使用說明", "help"}

const (
	helpText = "🔍 北大學號查詢小工具\n\n" +
		"🎓 學號查詢\n" +
		"• 「412345678」（直接輸入學號）\n" +
		"• 「學號 王小明」「小明」\n\n" +
		"📅 系級名單\n" +
		"• 「112」或「學年 112」\n\n" +
		"🏫 系所代碼\n" +
		"• 「系 資工」「系代碼 85」\n" +
		"• 「所有系代碼」\n\n" +
		"💡 輸入「使用說明」查看完整說明"

	instructionIDText = "📖 使用說明\n\n" +
		"🎓 學號查詢\n" +
		"• 直接輸入學號\n" +
		"  例：412345678\n" +
		"• 姓名查詢：學號 [姓名]\n" +
		"  例：學號 王小明\n" +
		"• 直接輸入名字（可只輸入部分）\n" +
		"  例：小明"

	instructionYearText = "📅 系級名單\n" +
		"• 輸入入學年度，再依序選擇學院與科系\n" +
		"  例：112 或 2023\n" +
		"  例：學年 112\n" +
		"• 名單依學號排序，並標示人數"

	instructionDeptText = "🏫 系所代碼\n" +
		"• 系名查代碼：系 [名稱]\n" +
		"  例：系 資工\n" +
		"• 代碼查系名：系代碼 [代碼]\n" +
		"  例：系代碼 85\n" +
		"• 列出全部：所有系代碼"

	instructionTipsText = "💡 使用提示\n" +
		"• 關鍵字必須在句首，之後加空格\n" +
		"• 群組中請先 @我 再輸入\n" +
		"• 年份與系所由學號推斷，僅供參考"

	welcomeText    = "泥好~~我是北大學號查詢小工具🔍"
	joinText       = "大家好～我是北大學號查詢小工具🔍\n\n在群組中請先 @我 再輸入查詢內容"
	featureHint    = "使用方式請看下方選單\n或輸入「使用說明」查看完整說明"
	feedbackText   = "有疑問可以先去看常見問題\n若無法解決或有發現 Bug\n歡迎到 GitHub 提出"
	inferredText   = "部分內容是由學號推斷\n不一定為正確資訊"
	dataSourceText = "資料來源：國立臺北大學\n數位學苑 2.0（已無新資料）"

	rateLimitedText   = "⏳ 訊息過於頻繁，請稍後再試"
	tooLongText       = "❌ 訊息內容過長\n\n請縮短後重試。"
	badPostbackText   = "❌ 操作資料異常\n\n請重新使用功能。"
	expiredActionText = "操作已過期或無效"
)

func helpQuickReply() []lineutil.QuickReplyItem {
	return []lineutil.QuickReplyItem{
		lineutil.QuickReplyStudentAction(),
		lineutil.QuickReplyYearAction(),
		lineutil.QuickReplyDeptCodeAction(),
		lineutil.QuickReplyHelpAction(),
	}
}

func helpMessages(sender *messaging_api.Sender) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithQuickReply(helpText, sender, helpQuickReply()...),
	}
}

func instructionMessages(sender *messaging_api.Sender) []messaging_api.MessageInterface {
	msgs := []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithConsistentSender(instructionIDText, sender),
		lineutil.NewTextMessageWithConsistentSender(instructionYearText, sender),
		lineutil.NewTextMessageWithConsistentSender(instructionDeptText, sender),
		lineutil.NewTextMessageWithConsistentSender(instructionTipsText, sender),
	}
	lineutil.AddQuickReplyToMessages(msgs, helpQuickReply()...)
	return msgs
}

func welcomeMessages(sender *messaging_api.Sender, group bool) []messaging_api.MessageInterface {
	greeting := welcomeText
	if group {
		greeting = joinText
	}
	msgs := []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithConsistentSender(greeting, sender),
		lineutil.NewTextMessageWithConsistentSender(featureHint, sender),
		lineutil.NewTextMessageWithConsistentSender(feedbackText, sender),
		lineutil.NewTextMessageWithConsistentSender(inferredText, sender),
		lineutil.NewTextMessageWithConsistentSender(dataSourceText, sender),
	}
	lineutil.AddQuickReplyToMessages(msgs, helpQuickReply()...)
	return msgs
}
