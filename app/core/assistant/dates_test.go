package assistant

import (
	"testing"
	"time"
)

func TestResolveDatesDayAnchors(t *testing.T) {
	now := time.Date(2026, 8, 26, 15, 30, 0, 0, time.Local) // Wednesday
	d := ResolveDates(now)

	if d.Today != "2026-08-26" {
		t.Fatalf("Today = %s", d.Today)
	}
	if d.Tomorrow != "2026-08-27" || d.DayAfterTomorrow != "2026-08-28" {
		t.Fatalf("forward anchors: %s %s", d.Tomorrow, d.DayAfterTomorrow)
	}
	if d.Yesterday != "2026-08-25" || d.DayBeforeYesterday != "2026-08-24" {
		t.Fatalf("backward anchors: %s %s", d.Yesterday, d.DayBeforeYesterday)
	}
}

func TestResolveDatesWeeksStartMonday(t *testing.T) {
	now := time.Date(2026, 8, 26, 15, 30, 0, 0, time.Local) // Wednesday
	d := ResolveDates(now)

	if d.ThisWeek.Start != "2026-08-24" || d.ThisWeek.End != "2026-08-30" {
		t.Fatalf("ThisWeek = %+v", d.ThisWeek)
	}
	if d.LastWeek.Start != "2026-08-17" || d.LastWeek.End != "2026-08-23" {
		t.Fatalf("LastWeek = %+v", d.LastWeek)
	}
	if d.NextWeek.Start != "2026-08-31" || d.NextWeek.End != "2026-09-06" {
		t.Fatalf("NextWeek = %+v", d.NextWeek)
	}
}

func TestResolveDatesSundayBelongsToCurrentWeek(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.Local) // Sunday
	d := ResolveDates(now)

	if d.ThisWeek.Start != "2026-08-24" || d.ThisWeek.End != "2026-08-30" {
		t.Fatalf("ThisWeek = %+v", d.ThisWeek)
	}
}

func TestResolveDatesMonthWindows(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.Local)
	d := ResolveDates(now)

	if d.ThisMonth.Start != "2026-01-01" || d.ThisMonth.End != "2026-01-31" {
		t.Fatalf("ThisMonth = %+v", d.ThisMonth)
	}
	if d.LastMonth.Start != "2025-12-01" || d.LastMonth.End != "2025-12-31" {
		t.Fatalf("LastMonth crosses the year wrong: %+v", d.LastMonth)
	}
	if d.NextMonth.Start != "2026-02-01" || d.NextMonth.End != "2026-02-28" {
		t.Fatalf("NextMonth = %+v", d.NextMonth)
	}
}

func TestDayLabel(t *testing.T) {
	d := ResolveDates(time.Date(2026, 8, 26, 15, 30, 0, 0, time.Local))

	cases := map[string]string{
		"2026-08-26": "今天",
		"2026-08-27": "明天",
		"2026-08-28": "后天",
		"2026-08-25": "昨天",
		"2026-08-24": "前天",
		"2026-09-15": "2026-09-15",
	}
	for day, want := range cases {
		if got := d.DayLabel(day); got != want {
			t.Errorf("DayLabel(%s) = %s, want %s", day, got, want)
		}
	}
}
