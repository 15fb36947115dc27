package lineutil

import (
	"fmt"
	"time"
)

// Taipei timezone for consistent time display and scheduling
var taipeiTZ *time.Location

func init() {
	var err error
	taipeiTZ, err = time.LoadLocation("Asia/Taipei")
	if err != nil {
		// Fallback to UTC+8 if timezone data is not available
		taipeiTZ = time.FixedZone("Asia/Taipei", 8*60*60)
	}
}

// GetTaipeiLocation returns the Asia/Taipei location.
func GetTaipeiLocation() *time.Location {
	return taipeiTZ
}

// FormatCacheTime formats a fetch time relative to now in Taipei time:
//
//	FormatCacheTime(t) -> "今天 14:30"   (today)
//	FormatCacheTime(t) -> "昨天 09:15"   (yesterday)
//	FormatCacheTime(t) -> "11/26 18:00"  (older)
//
// A zero time formats as "".
func FormatCacheTime(t time.Time) string {
	return formatCacheTimeAt(t, time.Now())
}

func formatCacheTimeAt(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	t = t.In(taipeiTZ)
	now = now.In(taipeiTZ)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, taipeiTZ)
	yesterdayStart := todayStart.AddDate(0, 0, -1)

	clock := t.Format("15:04")
	switch {
	case !t.Before(todayStart):
		return "今天 " + clock
	case !t.Before(yesterdayStart):
		return "昨天 " + clock
	default:
		return t.Format("01/02 15:04")
	}
}

// NewCacheTimeHint creates the small right-aligned "updated at" line for
// Flex bodies. It returns nil for a zero time.
func NewCacheTimeHint(t time.Time) *FlexText {
	timeStr := FormatCacheTime(t)
	if timeStr == "" {
		return nil
	}

	return NewFlexText(fmt.Sprintf("🕐 %s 更新", timeStr)).
		WithSize("xxs").
		WithColor(ColorGray400).
		WithAlign("end").
		WithMargin("lg")
}

// FormatCacheTimeFooter formats a fetch time for the end of a text message.
//
//	FormatCacheTimeFooter(t) -> "\n\n🕐 資料更新於 今天 14:30"
func FormatCacheTimeFooter(t time.Time) string {
	timeStr := FormatCacheTime(t)
	if timeStr == "" {
		return ""
	}
	return "\n\n🕐 資料更新於 " + timeStr
}

// NewDataRangeHint creates the hint about which entry years the directory
// covers.
func NewDataRangeHint(floor, ceiling int) *FlexText {
	return NewFlexText(fmt.Sprintf("📊 資料範圍：%d-%d 學年度", floor, ceiling)).
		WithSize("xxs").
		WithColor(ColorGray400).
		WithAlign("end").
		WithMargin("sm")
}
