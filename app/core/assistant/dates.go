package assistant

import "time"

const (
	dayLayout    = "2006-01-02"
	minuteLayout = "2006-01-02T15:04"
)

// DateRange is an inclusive [Start, End] window of calendar days.
type DateRange struct {
	Start string
	End   string
}

// DateInfo is the fixed snapshot of named date anchors for one
// request. It is computed once per request so date comparisons stay
// consistent even if real time advances during the model call.
type DateInfo struct {
	Now time.Time

	Today              string
	Tomorrow           string
	DayAfterTomorrow   string
	Yesterday          string
	DayBeforeYesterday string

	ThisWeek DateRange
	LastWeek DateRange
	NextWeek DateRange

	ThisMonth DateRange
	LastMonth DateRange
	NextMonth DateRange
}

// ResolveDates computes the anchor snapshot from now. Pure function,
// Monday-start weeks.
func ResolveDates(now time.Time) DateInfo {
	day := func(offset int) string {
		return now.AddDate(0, 0, offset).Format(dayLayout)
	}

	// Monday = 0 ... Sunday = 6.
	weekdayOffset := (int(now.Weekday()) + 6) % 7
	weekStart := now.AddDate(0, 0, -weekdayOffset)
	week := func(weeks int) DateRange {
		start := weekStart.AddDate(0, 0, 7*weeks)
		return DateRange{
			Start: start.Format(dayLayout),
			End:   start.AddDate(0, 0, 6).Format(dayLayout),
		}
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	month := func(months int) DateRange {
		start := monthStart.AddDate(0, months, 0)
		return DateRange{
			Start: start.Format(dayLayout),
			End:   start.AddDate(0, 1, -1).Format(dayLayout),
		}
	}

	return DateInfo{
		Now:                now,
		Today:              day(0),
		Tomorrow:           day(1),
		DayAfterTomorrow:   day(2),
		Yesterday:          day(-1),
		DayBeforeYesterday: day(-2),
		ThisWeek:           week(0),
		LastWeek:           week(-1),
		NextWeek:           week(1),
		ThisMonth:          month(0),
		LastMonth:          month(-1),
		NextMonth:          month(1),
	}
}

// DayLabel maps a YYYY-MM-DD day to its relative Chinese label, or
// returns the day unchanged when it has no named anchor.
func (d DateInfo) DayLabel(day string) string {
	switch day {
	case d.Today:
		return "今天"
	case d.Tomorrow:
		return "明天"
	case d.DayAfterTomorrow:
		return "后天"
	case d.Yesterday:
		return "昨天"
	case d.DayBeforeYesterday:
		return "前天"
	}
	return day
}
