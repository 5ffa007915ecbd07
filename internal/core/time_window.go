package core

import "time"

// TimeWindow selects the token accounting span of a snapshot.
type TimeWindow string

const (
	TimeWindowAll TimeWindow = "all"
	TimeWindow1d  TimeWindow = "1d"
	TimeWindow3d  TimeWindow = "3d"
	TimeWindow7d  TimeWindow = "7d"
	TimeWindow30d TimeWindow = "30d"
)

var ValidTimeWindows = []TimeWindow{
	TimeWindowAll,
	TimeWindow1d,
	TimeWindow3d,
	TimeWindow7d,
	TimeWindow30d,
}

// Days returns the window size in calendar days, 0 for the unbounded window.
func (tw TimeWindow) Days() int {
	switch tw {
	case TimeWindow1d:
		return 1
	case TimeWindow3d:
		return 3
	case TimeWindow7d:
		return 7
	case TimeWindow30d:
		return 30
	default:
		return 0
	}
}

func (tw TimeWindow) Label() string {
	switch tw {
	case TimeWindow1d:
		return "Today"
	case TimeWindow3d:
		return "3 Days"
	case TimeWindow7d:
		return "7 Days"
	case TimeWindow30d:
		return "30 Days"
	default:
		return "All Time"
	}
}

func ParseTimeWindow(s string) TimeWindow {
	for _, tw := range ValidTimeWindows {
		if string(tw) == s {
			return tw
		}
	}
	return TimeWindowAll
}

const DateLayout = "2006-01-02"

// DateKey formats t as a calendar date in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// WindowStart returns the first instant of a window spanning days calendar
// days ending today. days <= 0 yields the zero time (unbounded).
func WindowStart(now time.Time, days int, loc *time.Location) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return StartOfDay(now, loc).AddDate(0, 0, -(days - 1))
}
