package regular

import (
	"time"
)

// NextFire computes the next fire time for an entry, strictly after now.
// All calendar arithmetic happens in loc because the user-facing start
// date and time of day are civil values.
//
// The catch-up policy after downtime is "skip to the next occurrence":
// an entry overdue by many periods yields exactly one future fire time,
// never a burst of missed sends.
func NextFire(e *Entry, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	if e.Period.IsInterval() {
		return nextInterval(e, now, loc)
	}
	return nextCalendar(e, now, loc)
}

func nextInterval(e *Entry, now time.Time, loc *time.Location) time.Time {
	sec := e.Period.Seconds
	if sec <= 0 {
		sec = 60
	}
	step := time.Duration(sec) * time.Second

	var next time.Time
	if e.LastSentAt > 0 {
		next = time.Unix(e.LastSentAt, 0).In(loc).Add(step)
	} else {
		anchor, ok := civilDate(now.Year(), e.StartMonth, e.StartDay, 0, 0, loc)
		switch {
		case !ok:
			// unanchorable start date, count from now
			next = now.Add(step)
		case anchor.Before(now):
			if sec >= 86400 {
				// long intervals keep the start-date phase
				next = anchor
			} else {
				next = now
			}
		default:
			next = anchor
		}
	}

	// Collapse any backlog to the single first occurrence after now.
	if !next.After(now) {
		behind := now.Unix() - next.Unix()
		steps := behind/sec + 1
		next = next.Add(time.Duration(steps) * step)
	}
	return next
}

func nextCalendar(e *Entry, now time.Time, loc *time.Location) time.Time {
	hour, minute := now.Hour(), now.Minute()
	if e.Time != nil {
		hour, minute = e.Time.Hour, e.Time.Minute
	}

	base := calendarBase(e, now, hour, minute, loc)

	switch e.Period.Kind {
	case PeriodDaily:
		if !base.After(now) {
			base = time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
			if !base.After(now) {
				base = base.AddDate(0, 0, 1)
			}
		}

	case PeriodWeekly:
		// keep the start date's weekday, stepping whole weeks
		for !base.After(now) {
			base = base.AddDate(0, 0, 7)
		}

	case PeriodWeeklyDay:
		if !base.After(now) {
			base = time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		}
		ahead := (e.Period.Weekday - mondayWeekday(base) + 7) % 7
		if ahead == 0 && !base.After(now) {
			ahead = 7
		}
		base = base.AddDate(0, 0, ahead)

	case PeriodMonthly:
		for !base.After(now) {
			base = addMonthsClamped(base, 1, e.StartDay)
		}

	case PeriodMonthlyDay:
		base = setMonthClamped(base, e.Period.Month, e.StartDay)
		for !base.After(now) {
			base = setYearClamped(base, base.Year()+1, e.StartDay)
		}

	case PeriodYearly:
		for !base.After(now) {
			base = setYearClamped(base, base.Year()+1, e.StartDay)
		}

	case PeriodWeeks:
		weeks := e.Period.Weeks
		if weeks < 1 {
			weeks = 1
		}
		for !base.After(now) {
			base = base.AddDate(0, 0, 7*weeks)
		}

	default:
		for !base.After(now) {
			base = base.AddDate(0, 0, 1)
		}
	}

	// postcondition: strictly in the future
	for !base.After(now) {
		base = base.AddDate(0, 0, 1)
	}
	return base
}

// calendarBase anchors the recurrence on the start date in the current year,
// falling back to next year when the date does not exist this year
// (e.g. 29.02).
func calendarBase(e *Entry, now time.Time, hour, minute int, loc *time.Location) time.Time {
	if b, ok := civilDate(now.Year(), e.StartMonth, e.StartDay, hour, minute, loc); ok {
		return b
	}
	if b, ok := civilDate(now.Year()+1, e.StartMonth, e.StartDay, hour, minute, loc); ok {
		return b
	}
	// 29.02 can miss both years; clamp within the current year
	d := clampDay(now.Year(), e.StartMonth, e.StartDay)
	return time.Date(now.Year(), time.Month(e.StartMonth), d, hour, minute, 0, 0, loc)
}

// civilDate builds a date and reports whether it exists on the real calendar
// (time.Date silently normalizes 30.02 into March, which must be rejected).
func civilDate(year, month, day, hour, minute int, loc *time.Location) (time.Time, bool) {
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// mondayWeekday converts Go's Sunday=0 weekday to Monday=0.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func daysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func clampDay(year, month, day int) int {
	if max := daysInMonth(year, month); day > max {
		return max
	}
	if day < 1 {
		return 1
	}
	return day
}

// addMonthsClamped advances by n months, placing the result on the anchor
// day-of-month clamped to the target month's length (31 -> 28.02 or 29.02,
// never 02.03). The anchor is always the entry's start day, not the
// previous step's day, so a February clamp never sticks for later months.
func addMonthsClamped(t time.Time, n, day int) time.Time {
	y := t.Year()
	m := int(t.Month()) + n
	for m > 12 {
		m -= 12
		y++
	}
	for m < 1 {
		m += 12
		y--
	}
	d := clampDay(y, m, day)
	return time.Date(y, time.Month(m), d, t.Hour(), t.Minute(), 0, 0, t.Location())
}

func setMonthClamped(t time.Time, month, day int) time.Time {
	d := clampDay(t.Year(), month, day)
	return time.Date(t.Year(), time.Month(month), d, t.Hour(), t.Minute(), 0, 0, t.Location())
}

func setYearClamped(t time.Time, year, day int) time.Time {
	d := clampDay(year, int(t.Month()), day)
	return time.Date(year, t.Month(), d, t.Hour(), t.Minute(), 0, 0, t.Location())
}
