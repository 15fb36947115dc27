// Package config provides data availability constants and the user-facing
// messages that explain them.
//
// The LMS (數位學苑 2.0) was retired in 2024:
//   - Student data: 94-112 complete, 113 sparse
//   - Year 114+: no data (LMS 3.0 only)
package config

// LINE Messaging API limits.
const (
	LINEMaxMessagesPerReply   = 5
	LINEMaxTextMessageLength  = 5000
	LINEMaxPostbackDataLength = 300
)

const (
	// IDDataYearStart is the default oldest cohort year loaded into the directory (101 = 2012).
	IDDataYearStart = 101

	// IDDataYearEnd is the latest academic year with complete student data (112 = 2023).
	IDDataYearEnd = 112

	// IDDataCutoffYear is the first year with incomplete data (113 = 2024).
	IDDataCutoffYear = 113

	// LMSLaunchYear is the earliest year with complete data in LMS (94 = 2005).
	LMSLaunchYear = 94

	// NTPUFoundedYear is when NTPU was established (89 = 2000).
	NTPUFoundedYear = 89
)

// Messages for year and name queries.
const (
	// IDLMSDeprecatedMessage answers year queries for 114 and later.
	IDLMSDeprecatedMessage = "😢 數位學苑 2.0 已於 113 學年度起停用\n\n" +
		"113 學年度起新生使用數位學苑 3.0，僅少數學生有建立數位學苑 2.0 帳號。\n\n" +
		"📅 完整資料範圍：\n" +
		"• 學年度/學號查詢：94-112 學年度\n" +
		"• 姓名查詢：101-112 學年度\n\n" +
		"⚠️ 113 學年度資料不完整"

	// IDNotFoundWithCutoffHint is shown when a name search finds nothing.
	IDNotFoundWithCutoffHint = "🔍 查無「%s」的學號資料\n\n" +
		"📊 姓名查詢範圍\n" +
		"• 學士班：101-112 學年度（完整）\n" +
		"• 113 學年度資料不完整（僅極少數學生）\n" +
		"• 114 學年度起無資料（數位學苑 2.0 停用）\n\n" +
		"💡 建議：\n" +
		"• 確認姓名拼寫是否正確\n" +
		"• 使用「學年」功能按年度查詢"

	// ID113YearEmptyMessage is shown when a 113 cohort query returns nothing.
	ID113YearEmptyMessage = "🔍 查無 113 學年度「%s」的學生資料\n\n" +
		"⚠️ 113 學年度資料不完整\n" +
		"僅極少數手動建立數位學苑 2.0 帳號的學生有資料。\n\n" +
		"📅 完整資料範圍：94-112 學年度"

	// IDYearTooOldMessage is for years before the LMS had complete data (89-93).
	IDYearTooOldMessage = "📚 這個年份的資料不完整喔\n\n" +
		"數位學苑資料從民國 94 年起較完整，\n" +
		"請輸入 94-112 學年度的年份。"

	// IDYearBeforeNTPUMessage is for years before NTPU existed (< 89).
	IDYearBeforeNTPUMessage = "🏫 學校都還沒蓋好啦\n\n" +
		"臺北大學於民國 89 年成立。"

	// IDYearFutureMessage is for years after the current academic year.
	IDYearFutureMessage = "🔮 哎呀～你是未來人嗎？"
)
