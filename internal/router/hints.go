package router

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Provider-supplied retry hints take precedence over configured cooldown
// defaults. Matching is deliberately permissive: a hint we fail to parse
// just falls back to the vendor default.

var (
	reRetryAfter = regexp.MustCompile(`retry[- ]after:?\s*(\d+)\s*(ms|s|sec|seconds?|m|min|minutes?|h|hours?)?`)
	reTryAgainIn = regexp.MustCompile(`(?:try\s+)?again\s+in\s+(\d+)\s*(ms|s|sec|seconds?|m|min|minutes?|h|hours?)?`)
	reEpochMS    = regexp.MustCompile(`\b(1\d{12})\b`)
	reEpochS     = regexp.MustCompile(`\b(1\d{9})\b`)
	reISO        = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(?::\d{2})?(?:Z|[+-]\d{2}:?\d{2})?`)
	reClock      = regexp.MustCompile(`(?:again\s+)?at\s+(\d{1,2}):(\d{2})\s*(am|pm)?`)
)

// ParseRetryHint extracts a retry hint from an error message and returns
// the wait duration relative to now. ok is false when no usable hint is
// present. Durations are clamped to a sane window so a garbled timestamp
// cannot freeze a route for days.
func ParseRetryHint(msg string, now time.Time) (time.Duration, bool) {
	if msg == "" {
		return 0, false
	}
	lower := strings.ToLower(msg)

	if m := reRetryAfter.FindStringSubmatch(lower); m != nil {
		if d, ok := unitDuration(m[1], m[2]); ok {
			return clampHint(d), true
		}
	}
	if m := reTryAgainIn.FindStringSubmatch(lower); m != nil {
		if d, ok := unitDuration(m[1], m[2]); ok {
			return clampHint(d), true
		}
	}
	if m := reEpochMS.FindStringSubmatch(lower); m != nil {
		if ms, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			if d := time.UnixMilli(ms).Sub(now); d > 0 {
				return clampHint(d), true
			}
		}
	}
	if m := reEpochS.FindStringSubmatch(lower); m != nil {
		if sec, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			if d := time.Unix(sec, 0).Sub(now); d > 0 {
				return clampHint(d), true
			}
		}
	}
	if m := reISO.FindString(msg); m != "" {
		if t, ok := parseISO(m); ok {
			if d := t.Sub(now); d > 0 {
				return clampHint(d), true
			}
		}
	}
	if m := reClock.FindStringSubmatch(lower); m != nil {
		if t, ok := clockToday(m[1], m[2], m[3], now); ok {
			return clampHint(t.Sub(now)), true
		}
	}

	return 0, false
}

func unitDuration(value, unit string) (time.Duration, bool) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, false
	}
	switch {
	case unit == "ms":
		return time.Duration(n) * time.Millisecond, true
	case unit == "" || strings.HasPrefix(unit, "s"):
		return time.Duration(n) * time.Second, true
	case strings.HasPrefix(unit, "m"):
		return time.Duration(n) * time.Minute, true
	case strings.HasPrefix(unit, "h"):
		return time.Duration(n) * time.Hour, true
	}
	return 0, false
}

func parseISO(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// clockToday resolves "at 3:04 pm" to the next occurrence of that wall
// time: today if still ahead, otherwise tomorrow.
func clockToday(hh, mm, meridiem string, now time.Time) (time.Time, bool) {
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, false
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, false
	}
	switch meridiem {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = t.Add(24 * time.Hour)
	}
	return t, true
}

// maxHint caps how long a parsed hint can push a cooldown out.
const maxHint = 24 * time.Hour

func clampHint(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > maxHint {
		return maxHint
	}
	return d
}
