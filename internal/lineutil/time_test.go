package lineutil

import (
	"strings"
	"testing"
	"time"
)

func TestFormatCacheTimeAt(t *testing.T) {
	t.Parallel()

	loc := GetTaipeiLocation()
	now := time.Date(2024, 11, 28, 15, 0, 0, 0, loc)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"zero", time.Time{}, ""},
		{"today", time.Date(2024, 11, 28, 12, 30, 0, 0, loc), "今天 12:30"},
		{"midnight today", time.Date(2024, 11, 28, 0, 0, 0, 0, loc), "今天 00:00"},
		{"yesterday", time.Date(2024, 11, 27, 18, 45, 0, 0, loc), "昨天 18:45"},
		{"older", time.Date(2024, 11, 25, 9, 15, 0, 0, loc), "11/25 09:15"},
		// 16:00 UTC on the 27th is already the 28th in Taipei.
		{"utc input", time.Date(2024, 11, 27, 16, 0, 0, 0, time.UTC), "今天 00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatCacheTimeAt(tt.at, now); got != tt.want {
				t.Errorf("formatCacheTimeAt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatCacheTimeFooter(t *testing.T) {
	t.Parallel()

	if got := FormatCacheTimeFooter(time.Time{}); got != "" {
		t.Errorf("zero footer = %q", got)
	}
	got := FormatCacheTimeFooter(time.Now())
	if !strings.HasPrefix(got, "\n\n🕐 資料更新於 今天") {
		t.Errorf("footer = %q", got)
	}
}

func TestNewCacheTimeHint(t *testing.T) {
	t.Parallel()

	if NewCacheTimeHint(time.Time{}) != nil {
		t.Error("zero time should give nil hint")
	}
	if hint := NewCacheTimeHint(time.Now()); hint == nil || !strings.Contains(hint.Text, "更新") {
		t.Errorf("hint = %+v", hint)
	}
}

func TestNewDataRangeHint(t *testing.T) {
	t.Parallel()

	if got := NewDataRangeHint(101, 112).Text; got != "📊 資料範圍：101-112 學年度" {
		t.Errorf("range hint = %q", got)
	}
}

func TestGetTaipeiLocation(t *testing.T) {
	t.Parallel()

	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, GetTaipeiLocation()).Zone()
	if offset != 8*60*60 {
		t.Errorf("offset = %d, want UTC+8", offset)
	}
}
