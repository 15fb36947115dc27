package department

import "github.com/garyellow/ntpu-directory-bot/internal/studentid"

var masterPrograms = map[string]string{
	"31": "企業管理學系碩士班",
	"32": "會計學系碩士班",
	"33": "統計學系碩士班",
	"34": "金融與合作經營學系碩士班",
	"35": "國際企業研究所碩士班",
	"36": "資訊管理研究所",
	"37": "財務金融英語碩士學位學程",
	"41": "民俗藝術與文化資產研究所",
	"42": "古典文獻學研究所",
	"43": "中國文學系碩士班",
	"44": "歷史學系碩士班",
	"51": "法律學系碩士班一般生組",
	"52": "法律學系碩士班法律專業組",
	"61": "經濟學系碩士班",
	"62": "社會學系碩士班",
	"63": "社會工作學系碩士班",
	"64": "犯罪學研究所",
	"71": "公共行政暨政策學系碩士班",
	"72": "財政學系碩士班",
	"73": "不動產與城鄉環境學系碩士班",
	"74": "都市計劃研究所碩士班",
	"75": "自然資源與環境管理研究所碩士班",
	"76": "城市治理英語碩士學位學程",
	"77": "會計學系碩士在職專班",
	"78": "統計學系碩士在職專班",
	"79": "企業管理學系碩士在職專班",
	"81": "通訊工程學系碩士班",
	"82": "電機工程學系碩士班",
	"83": "資訊工程學系碩士班",
	"91": "智慧醫療管理英語碩士學位學程",
}

var doctoralPrograms = map[string]string{
	"31": "企業管理學系博士班",
	"32": "會計學系博士班",
	"51": "法律學系博士班",
	"61": "經濟學系博士班",
	"71": "公共行政暨政策學系博士班",
	"73": "不動產與城鄉環境學系博士班",
	"74": "都市計劃研究所博士班",
	"75": "自然資源與環境管理研究所博士班",
	"76": "電機資訊學院博士班",
}

// ProgramName returns the graduate program name for a master's or doctoral
// department code.
func ProgramName(degree int, code string) (string, bool) {
	var name string
	var ok bool
	switch degree {
	case studentid.DegreeMaster:
		name, ok = masterPrograms[code]
	case studentid.DegreeDoctoral:
		name, ok = doctoralPrograms[code]
	}
	return name, ok
}

// Describe returns the display name of the department a decoded ID belongs
// to, using the graduate program tables for master's and doctoral IDs.
func Describe(id studentid.StudentID) string {
	if name, ok := ProgramName(id.Degree, id.Department); ok {
		return name
	}
	switch id.Degree {
	case studentid.DegreeMaster:
		return "未知碩士班"
	case studentid.DegreeDoctoral:
		return "未知博士班"
	default:
		return DisplayName(id.Department)
	}
}
