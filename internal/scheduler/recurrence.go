package scheduler

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// Recurrence specs accept friendly names ("daily", "every monday at
// 9am") and raw cron expressions. Successor times are computed strictly
// after a reference time so a firing reminder never reschedules itself
// into the past.

var (
	reEveryN       = regexp.MustCompile(`(?i)^every\s+(\d+)\s*(minutes?|mins?|hours?|hrs?|days?|weeks?)$`)
	reDailyAt      = regexp.MustCompile(`(?i)^daily\s+at\s+(.+)$`)
	reRecurWeekday = regexp.MustCompile(`(?i)^(?:every|weekly\s+on)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)(?:\s+at\s+(.+))?$`)
)

// ValidateRecurrence rejects specs that NextOccurrence cannot schedule.
func ValidateRecurrence(spec string) error {
	s := strings.TrimSpace(spec)
	if s == "" {
		return fmt.Errorf("empty recurrence")
	}
	switch strings.ToLower(s) {
	case "hourly", "daily", "weekly", "monthly",
		"every hour", "every day", "every week", "every month":
		return nil
	}
	if reEveryN.MatchString(s) {
		return nil
	}
	if m := reDailyAt.FindStringSubmatch(s); m != nil {
		if _, _, ok := parseClock(m[1]); ok {
			return nil
		}
	}
	if m := reRecurWeekday.FindStringSubmatch(s); m != nil {
		if strings.TrimSpace(m[2]) == "" {
			return nil
		}
		if _, _, ok := parseClock(m[2]); ok {
			return nil
		}
	}
	if gronx.New().IsValid(s) {
		return nil
	}
	return fmt.Errorf("invalid recurrence '%s' (use 'daily', 'weekly', 'daily at 9am', 'every monday at 9am', or a cron expression)", spec)
}

// NextOccurrence computes the next due time for spec, strictly after
// the given time.
func NextOccurrence(spec string, after time.Time) (time.Time, error) {
	s := strings.TrimSpace(spec)

	switch strings.ToLower(s) {
	case "hourly", "every hour":
		return after.Add(time.Hour), nil
	case "daily", "every day":
		return after.AddDate(0, 0, 1), nil
	case "weekly", "every week":
		return after.AddDate(0, 0, 7), nil
	case "monthly", "every month":
		return after.AddDate(0, 1, 0), nil
	}

	if m := reEveryN.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("invalid recurrence '%s'", spec)
		}
		switch unit := strings.ToLower(m[2]); {
		case strings.HasPrefix(unit, "min"):
			return after.Add(time.Duration(n) * time.Minute), nil
		case strings.HasPrefix(unit, "h"):
			return after.Add(time.Duration(n) * time.Hour), nil
		case strings.HasPrefix(unit, "day"):
			return after.AddDate(0, 0, n), nil
		case strings.HasPrefix(unit, "week"):
			return after.AddDate(0, 0, 7*n), nil
		}
	}

	if m := reDailyAt.FindStringSubmatch(s); m != nil {
		hour, minute, ok := parseClock(m[1])
		if !ok {
			return time.Time{}, fmt.Errorf("invalid recurrence '%s'", spec)
		}
		candidate := atClock(after, hour, minute)
		if !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil
	}

	if m := reRecurWeekday.FindStringSubmatch(s); m != nil {
		hour, minute := 9, 0
		if strings.TrimSpace(m[2]) != "" {
			var ok bool
			hour, minute, ok = parseClock(m[2])
			if !ok {
				return time.Time{}, fmt.Errorf("invalid recurrence '%s'", spec)
			}
		}
		target := weekdayNames[strings.ToLower(m[1])]
		daysAhead := (int(target) - int(after.Weekday()) + 7) % 7
		candidate := atClock(after.AddDate(0, 0, daysAhead), hour, minute)
		if !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate, nil
	}

	next, err := gronx.NextTickAfter(s, after, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid recurrence '%s': %w", spec, err)
	}
	return next, nil
}

// NextOccurrenceOrDaily resolves spec like NextOccurrence, degrading an
// unparseable stored spec to the next 09:00 instead of erroring. A
// recurrence that validated when set can stop parsing after an upgrade;
// the series then keeps firing daily rather than dying.
func NextOccurrenceOrDaily(spec string, after time.Time) time.Time {
	next, err := NextOccurrence(spec, after)
	if err == nil {
		return next
	}
	slog.Warn("scheduler: unknown recurrence pattern, degrading to daily at 09:00",
		"recurrence", spec, "error", err)
	next = atClock(after, 9, 0)
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
