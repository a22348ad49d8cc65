package scheduler

import (
	"testing"
	"time"
)

// Wednesday, 2025-06-11 10:00 local.
var parseNow = time.Date(2025, 6, 11, 10, 0, 0, 0, time.Local)

func TestParseTimeExpressionRelative(t *testing.T) {
	cases := []struct {
		expr string
		want time.Time
	}{
		{"in 30 minutes", parseNow.Add(30 * time.Minute)},
		{"in 2 hours", parseNow.Add(2 * time.Hour)},
		{"in an hour", parseNow.Add(time.Hour)},
		{"in 3 days", parseNow.AddDate(0, 0, 3)},
		{"in 1 week", parseNow.AddDate(0, 0, 7)},
		{"next week", parseNow.AddDate(0, 0, 7)},
	}
	for _, tc := range cases {
		got, err := ParseTimeExpressionAt(tc.expr, "", parseNow)
		if err != nil {
			t.Errorf("%q: %v", tc.expr, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("%q = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestParseTimeExpressionDayWords(t *testing.T) {
	cases := []struct {
		expr string
		want time.Time
	}{
		{"tomorrow at 9am", time.Date(2025, 6, 12, 9, 0, 0, 0, time.Local)},
		{"today at 1:30pm", time.Date(2025, 6, 11, 13, 30, 0, 0, time.Local)},
		{"tonight", time.Date(2025, 6, 11, 21, 0, 0, 0, time.Local)},
		{"tomorrow", parseNow.AddDate(0, 0, 1)},
	}
	for _, tc := range cases {
		got, err := ParseTimeExpressionAt(tc.expr, "", parseNow)
		if err != nil {
			t.Errorf("%q: %v", tc.expr, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("%q = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestParseTimeExpressionDottedTonight(t *testing.T) {
	// "11.22pm tonight" is chat shorthand for "today at 11:22pm".
	got, err := ParseTimeExpressionAt("11.22pm tonight", "", parseNow)
	if err != nil {
		t.Fatalf("ParseTimeExpressionAt: %v", err)
	}
	want := time.Date(2025, 6, 11, 23, 22, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseTimeExpressionClockRollsForward(t *testing.T) {
	// 9am already passed at 10:00, so it means tomorrow 9am.
	got, err := ParseTimeExpressionAt("9am", "", parseNow)
	if err != nil {
		t.Fatalf("ParseTimeExpressionAt: %v", err)
	}
	want := time.Date(2025, 6, 12, 9, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// 3pm has not passed yet, stays today.
	got, err = ParseTimeExpressionAt("3pm", "", parseNow)
	if err != nil {
		t.Fatalf("ParseTimeExpressionAt: %v", err)
	}
	want = time.Date(2025, 6, 11, 15, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseTimeExpressionMilitary(t *testing.T) {
	got, err := ParseTimeExpressionAt("1130hr", "", parseNow)
	if err != nil {
		t.Fatalf("ParseTimeExpressionAt: %v", err)
	}
	want := time.Date(2025, 6, 11, 11, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("1130hr = %v, want %v", got, want)
	}

	got, err = ParseTimeExpressionAt("0930", "", parseNow)
	if err != nil {
		t.Fatalf("ParseTimeExpressionAt: %v", err)
	}
	// 09:30 already passed, rolls to tomorrow.
	want = time.Date(2025, 6, 12, 9, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("0930 = %v, want %v", got, want)
	}
}

func TestParseTimeExpressionWeekdays(t *testing.T) {
	// parseNow is a Wednesday.
	got, err := ParseTimeExpressionAt("next monday at 9am", "", parseNow)
	if err != nil {
		t.Fatalf("ParseTimeExpressionAt: %v", err)
	}
	want := time.Date(2025, 6, 16, 9, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("next monday at 9am = %v, want %v", got, want)
	}

	// "friday" without "next" picks the coming Friday.
	got, err = ParseTimeExpressionAt("friday at 5pm", "", parseNow)
	if err != nil {
		t.Fatalf("ParseTimeExpressionAt: %v", err)
	}
	want = time.Date(2025, 6, 13, 17, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("friday at 5pm = %v, want %v", got, want)
	}
}

func TestParseTimeExpressionISO(t *testing.T) {
	got, err := ParseTimeExpressionAt("2025-07-01 14:00", "", parseNow)
	if err != nil {
		t.Fatalf("ParseTimeExpressionAt: %v", err)
	}
	want := time.Date(2025, 7, 1, 14, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseTimeExpressionTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		t.Skip("tzdata not available")
	}
	got, err := ParseTimeExpressionAt("tomorrow at 9am", "Asia/Ho_Chi_Minh", parseNow)
	if err != nil {
		t.Fatalf("ParseTimeExpressionAt: %v", err)
	}
	nowThere := parseNow.In(loc)
	want := time.Date(nowThere.Year(), nowThere.Month(), nowThere.Day()+1, 9, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseTimeExpressionRejectsGarbage(t *testing.T) {
	for _, expr := range []string{"", "whenever", "25:99", "in -5 minutes"} {
		if _, err := ParseTimeExpressionAt(expr, "", parseNow); err == nil {
			t.Errorf("%q parsed, want error", expr)
		}
	}
}
