package router

import (
	"strconv"
	"testing"
	"time"
)

func TestParseRetryHintDurations(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  string
		want time.Duration
		ok   bool
	}{
		{"retry-after seconds", "429 too many requests, retry-after: 30", 30 * time.Second, true},
		{"retry after bare number", "rate limited, retry after 45", 45 * time.Second, true},
		{"retry after minutes", "please retry after 5 minutes", 5 * time.Minute, true},
		{"try again in", "overloaded, try again in 2m", 2 * time.Minute, true},
		{"again in hours", "quota exceeded, again in 1 hour", time.Hour, true},
		{"milliseconds", "retry-after: 1500 ms", 1500 * time.Millisecond, true},
		{"no hint", "rate limit exceeded", 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryHint(tt.msg, now)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("duration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRetryHintEpoch(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Epoch milliseconds ten minutes out.
	target := now.Add(10 * time.Minute)
	msg := "rate limited until " + formatInt(target.UnixMilli())
	d, ok := ParseRetryHint(msg, now)
	if !ok {
		t.Fatal("expected a hint from epoch ms")
	}
	if d < 9*time.Minute || d > 11*time.Minute {
		t.Errorf("duration = %v, want ~10m", d)
	}

	// Epoch seconds.
	msg = "reset at " + formatInt(target.Unix())
	d, ok = ParseRetryHint(msg, now)
	if !ok {
		t.Fatal("expected a hint from epoch seconds")
	}
	if d < 9*time.Minute || d > 11*time.Minute {
		t.Errorf("duration = %v, want ~10m", d)
	}

	// An epoch in the past is not a usable hint.
	past := now.Add(-time.Hour)
	if _, ok := ParseRetryHint("reset at "+formatInt(past.UnixMilli()), now); ok {
		t.Error("past epoch should not produce a hint")
	}
}

func TestParseRetryHintClock(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	d, ok := ParseRetryHint("your limit will reset at 11:30 am", now)
	if !ok {
		t.Fatal("expected a clock hint")
	}
	if d != 90*time.Minute {
		t.Errorf("duration = %v, want 1h30m", d)
	}

	// A wall time already behind now resolves to tomorrow.
	d, ok = ParseRetryHint("try again at 9:00 am", now)
	if !ok {
		t.Fatal("expected a clock hint")
	}
	if d != 23*time.Hour {
		t.Errorf("duration = %v, want 23h", d)
	}
}

func TestParseRetryHintClamped(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	d, ok := ParseRetryHint("retry after 172800 seconds", now)
	if !ok {
		t.Fatal("expected a hint")
	}
	if d != maxHint {
		t.Errorf("duration = %v, want clamp at %v", d, maxHint)
	}
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
