package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Natural-language time parsing for reminders and flow schedules.
// Covers the formats users actually type in chat: relative offsets,
// day words with clock times, bare clock times that roll to tomorrow
// when already past, weekday names, and a few absolute layouts.

var (
	reDottedTime   = regexp.MustCompile(`(?i)\b(\d{1,2})\.(\d{2})(\s*[ap]m\b)?`)
	reTimeTonight  = regexp.MustCompile(`(?i)^\s*(\d{1,2}:\d{2}\s*[ap]m)\s+tonight\s*$`)
	reTonightTime  = regexp.MustCompile(`(?i)^\s*tonight(?:\s+at)?\s+(\d{1,2}:\d{2}\s*[ap]m)\s*$`)
	reTimeOnly     = regexp.MustCompile(`(?i)^(at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	reRelative     = regexp.MustCompile(`(?i)^in\s+(\d+|an?)\s*(minutes?|mins?|hours?|hrs?|days?|weeks?|months?)$`)
	reDayWord      = regexp.MustCompile(`(?i)^(today|tonight|tomorrow|yesterday)(?:\s+(?:at\s+)?(.+))?$`)
	reNextWeekday  = regexp.MustCompile(`(?i)^next\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)(?:\s+at\s+(.+))?$`)
	reBareWeekday  = regexp.MustCompile(`(?i)^(?:this\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)(?:\s+at\s+(.+))?$`)
	reMilitaryHr   = regexp.MustCompile(`(\d{4})hr\b`)
	reMilitaryBare = regexp.MustCompile(`^\d{4}$`)
)

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// absoluteLayouts are tried in order. Textual months and am/pm match
// case-insensitively in time.Parse.
var absoluteLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 3:04PM",
	"2006-01-02 3PM",
	"2006-01-02",
	"2006/01/02 15:04",
	"2006/01/02",
	"2 Jan 2006 15:04",
	"2 Jan 2006 3:04PM",
	"2 Jan 2006 3PM",
	"2 Jan 2006",
	"Jan 2 2006 15:04",
	"Jan 2, 2006",
	"Jan 2 2006",
}

// ParseTimeExpression resolves expr relative to the current time. An
// IANA timezone name interprets the expression in that zone; invalid or
// empty names fall back to the process zone.
func ParseTimeExpression(expr, timezone string) (time.Time, error) {
	return ParseTimeExpressionAt(expr, timezone, time.Now())
}

// ParseTimeExpressionAt is ParseTimeExpression with an explicit clock.
func ParseTimeExpressionAt(expr, timezone string, now time.Time) (time.Time, error) {
	normalized := normalizeTimeExpression(expr)

	loc := now.Location()
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}
	now = now.In(loc)

	if t, ok := parseWeekdayExpression(normalized, now); ok {
		return t, nil
	}
	if t, ok := parseRelativeExpression(normalized, now); ok {
		return t, nil
	}
	if t, ok := parseDayWordExpression(normalized, now); ok {
		return t, nil
	}
	if t, ok := parseAbsoluteExpression(normalized, loc); ok {
		return t, nil
	}
	if t, ok := parseClockExpression(normalized, now); ok {
		return t, nil
	}
	if t, ok := parseMilitaryExpression(normalized, now); ok {
		return t, nil
	}

	return time.Time{}, fmt.Errorf(
		"Could not parse time expression '%s'. Try formats like: 'in 30 minutes', 'in 2 hours', "+
			"'today at 1:30pm', 'tomorrow at 9am', 'next monday', '1:30pm', '15:30', '2025-01-15 14:00'",
		expr)
}

// normalizeTimeExpression rewrites common chat variants before parsing:
// dotted clock times become colons and "tonight" phrasings become
// "today at".
func normalizeTimeExpression(expr string) string {
	s := strings.TrimSpace(expr)
	s = reDottedTime.ReplaceAllString(s, "$1:$2$3")
	s = reTimeTonight.ReplaceAllString(s, "today at $1")
	s = reTonightTime.ReplaceAllString(s, "today at $1")
	return s
}

// parseClock reads a clock time such as "1:30pm", "9am", "15:30", or a
// bare hour.
func parseClock(s string) (hour, minute int, ok bool) {
	m := reTimeOnly.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	if m[3] != "" {
		minute, err = strconv.Atoi(m[3])
		if err != nil || minute > 59 {
			return 0, 0, false
		}
	}
	switch strings.ToLower(m[4]) {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return 0, 0, false
		}
	}
	return hour, minute, true
}

func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func parseWeekdayExpression(expr string, now time.Time) (time.Time, bool) {
	var name, timePart string
	next := false

	if m := reNextWeekday.FindStringSubmatch(expr); m != nil {
		name, timePart, next = strings.ToLower(m[1]), m[2], true
	} else if m := reBareWeekday.FindStringSubmatch(expr); m != nil {
		name, timePart = strings.ToLower(m[1]), m[2]
	} else {
		return time.Time{}, false
	}

	hour, minute := 9, 0
	if strings.TrimSpace(timePart) != "" {
		var ok bool
		hour, minute, ok = parseClock(timePart)
		if !ok {
			return time.Time{}, false
		}
	}

	target := weekdayNames[name]
	daysAhead := (int(target) - int(now.Weekday()) + 7) % 7
	if next && daysAhead == 0 {
		daysAhead = 7
	}
	candidate := atClock(now.AddDate(0, 0, daysAhead), hour, minute)
	if !next && !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate, true
}

func parseRelativeExpression(expr string, now time.Time) (time.Time, bool) {
	lowered := strings.ToLower(strings.TrimSpace(expr))
	switch lowered {
	case "next week":
		return now.AddDate(0, 0, 7), true
	case "next month":
		return now.AddDate(0, 1, 0), true
	}

	m := reRelative.FindStringSubmatch(expr)
	if m == nil {
		return time.Time{}, false
	}
	n := 1
	if m[1] != "a" && m[1] != "an" {
		var err error
		n, err = strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return time.Time{}, false
		}
	}
	unit := strings.ToLower(m[2])
	switch {
	case strings.HasPrefix(unit, "min"):
		return now.Add(time.Duration(n) * time.Minute), true
	case strings.HasPrefix(unit, "h"):
		return now.Add(time.Duration(n) * time.Hour), true
	case strings.HasPrefix(unit, "day"):
		return now.AddDate(0, 0, n), true
	case strings.HasPrefix(unit, "week"):
		return now.AddDate(0, 0, 7*n), true
	case strings.HasPrefix(unit, "month"):
		return now.AddDate(0, n, 0), true
	}
	return time.Time{}, false
}

func parseDayWordExpression(expr string, now time.Time) (time.Time, bool) {
	m := reDayWord.FindStringSubmatch(expr)
	if m == nil {
		return time.Time{}, false
	}
	word := strings.ToLower(m[1])
	timePart := strings.TrimSpace(m[2])

	day := now
	switch word {
	case "tomorrow":
		day = now.AddDate(0, 0, 1)
	case "yesterday":
		day = now.AddDate(0, 0, -1)
	}

	if timePart == "" {
		if word == "tonight" {
			return atClock(now, 21, 0), true
		}
		// Bare day word keeps the current wall-clock time.
		return day, true
	}

	hour, minute, ok := parseClock(timePart)
	if !ok {
		return time.Time{}, false
	}
	return atClock(day, hour, minute), true
}

func parseAbsoluteExpression(expr string, loc *time.Location) (time.Time, bool) {
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, expr, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseClockExpression handles bare clock times, rolling to tomorrow
// when the time already passed today.
func parseClockExpression(expr string, now time.Time) (time.Time, bool) {
	hour, minute, ok := parseClock(expr)
	if !ok {
		return time.Time{}, false
	}
	candidate := atClock(now, hour, minute)
	if candidate.Before(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, true
}

// parseMilitaryExpression handles "1130hr" anywhere in the string and
// bare 4-digit clock values.
func parseMilitaryExpression(expr string, now time.Time) (time.Time, bool) {
	digits := ""
	if m := reMilitaryHr.FindStringSubmatch(expr); m != nil {
		digits = m[1]
	} else if reMilitaryBare.MatchString(strings.TrimSpace(expr)) {
		digits = strings.TrimSpace(expr)
	}
	if digits == "" {
		return time.Time{}, false
	}

	hour, _ := strconv.Atoi(digits[:2])
	minute, _ := strconv.Atoi(digits[2:])
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	candidate := atClock(now, hour, minute)
	if candidate.Before(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, true
}
