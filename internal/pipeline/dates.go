package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
)

var daysAgoPattern = regexp.MustCompile(`(\d+)\s*일\s*전`)

// absoluteLayouts are the date forms accepted verbatim before any relative rule runs.
var absoluteLayouts = []string{
	domain.DateLayout,
	"2006/01/02",
	"2006.01.02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01-02-06",
	"1/2/06",
	"2006년 1월 2일",
	"20060102",
}

// ResolveDate turns a date phrase into an absolute calendar date relative to ref.
//
// Absolute dates are returned as-is. Otherwise the first matching rule wins:
// 오늘 (today), 어제 (yesterday), 그저께 or 그제 (two days ago), "N일 전"
// (N days ago). Anything else, including weekday-relative phrases such as
// "지난주 화요일", resolves to ref.
func ResolveDate(text string, ref time.Time) time.Time {
	trimmed := strings.TrimSpace(text)
	ref = truncateDay(ref)

	if t, ok := parseAbsolute(trimmed, ref.Location()); ok {
		return t
	}

	s := strings.ToLower(trimmed)

	switch {
	case strings.Contains(s, "오늘"):
		return ref
	case strings.Contains(s, "어제"):
		return ref.AddDate(0, 0, -1)
	case strings.Contains(s, "그저께"), strings.Contains(s, "그제"):
		return ref.AddDate(0, 0, -2)
	}

	if m := daysAgoPattern.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return ref.AddDate(0, 0, -n)
		}
	}

	return ref
}

// FormatDate renders t in the wire date layout.
func FormatDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}

func parseAbsolute(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
