package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type temporalPattern struct {
	re     *regexp.Regexp
	offset int  // used when the pattern has no captured count
	hasN   bool // true when group 1 is the numeric count
	unit   string
}

var timeSuffixRe = regexp.MustCompile(`(?i)at (\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)

var temporalPatterns = []temporalPattern{
	{regexp.MustCompile(`(?i)\btomorrow\b`), 1, false, "day"},
	{regexp.MustCompile(`(?i)\btoday\b`), 0, false, "day"},
	{regexp.MustCompile(`(?i)\byesterday\b`), -1, false, "day"},
	{regexp.MustCompile(`(?i)\bnext week\b`), 7, false, "day"},
	{regexp.MustCompile(`(?i)\bnext month\b`), 1, false, "month"},
	{regexp.MustCompile(`(?i)\bin (\d+) days?\b`), 0, true, "day"},
	{regexp.MustCompile(`(?i)\bin (\d+) weeks?\b`), 0, true, "week"},
	{regexp.MustCompile(`(?i)\bin (\d+) months?\b`), 0, true, "month"},
}

// ParseTemporalReference tries the relative-date patterns (tomorrow, today,
// yesterday, next week, ..., in N days/weeks/months) in that table order and
// rewrites the first occurrence of the first pattern that matches into
// "<match> (<absolute date>)" relative to reference, returning the enhanced
// text alongside the parsed absolute time, if any pattern matched.
func ParseTemporalReference(text string, reference time.Time) (string, *time.Time) {
	for _, p := range temporalPatterns {
		loc := p.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		matched := text[loc[0]:loc[1]]

		offset := p.offset
		if p.hasN {
			n, err := strconv.Atoi(text[loc[2]:loc[3]])
			if err == nil {
				offset = n
			}
		}

		var target time.Time
		switch p.unit {
		case "day":
			target = reference.AddDate(0, 0, offset)
		case "week":
			target = reference.AddDate(0, 0, offset*7)
		case "month":
			target = reference.AddDate(0, 0, offset*30)
		default:
			target = reference
		}

		hasTime := false
		if tm := timeSuffixRe.FindStringSubmatch(text); tm != nil {
			hour, _ := strconv.Atoi(tm[1])
			minute := 0
			if tm[2] != "" {
				minute, _ = strconv.Atoi(tm[2])
			}
			switch strings.ToLower(tm[3]) {
			case "pm":
				if hour < 12 {
					hour += 12
				}
			case "am":
				if hour == 12 {
					hour = 0
				}
			}
			target = time.Date(target.Year(), target.Month(), target.Day(), hour, minute, 0, 0, target.Location())
			hasTime = true
		}

		dateStr := target.Format("January 02, 2006")
		timeStr := ""
		if hasTime {
			timeStr = " at " + target.Format("3:04 PM")
		}

		replacement := fmt.Sprintf("%s (%s%s)", matched, dateStr, timeStr)
		enhanced := text[:loc[0]] + replacement + text[loc[1]:]
		result := target
		return enhanced, &result
	}
	return text, nil
}
