package regular

import (
	"errors"
	"fmt"
)

// PeriodKind discriminates the PeriodSpec union. The string values are part
// of the persisted format, do not rename.
type PeriodKind string

const (
	PeriodInterval   PeriodKind = "interval"    // every Seconds seconds
	PeriodDaily      PeriodKind = "daily"       // once per day at a given time
	PeriodWeekly     PeriodKind = "weekly"      // weekly, weekday taken from the start date
	PeriodWeeklyDay  PeriodKind = "weekly_day"  // weekly on Weekday
	PeriodMonthly    PeriodKind = "monthly"     // monthly on the start day-of-month
	PeriodMonthlyDay PeriodKind = "monthly_day" // yearly in month Month, day from start date
	PeriodYearly     PeriodKind = "yearly"      // yearly on start month+day
	PeriodWeeks      PeriodKind = "weeks"       // every Weeks weeks
)

// PeriodSpec describes how often an entry recurs. Exactly the fields for the
// given Kind are meaningful; the rest stay zero.
type PeriodSpec struct {
	Kind    PeriodKind `json:"kind"`
	Seconds int64      `json:"seconds,omitempty"` // Kind==interval, > 0
	Weekday int        `json:"weekday,omitempty"` // Kind==weekly_day, 0..6, Monday=0
	Month   int        `json:"month,omitempty"`   // Kind==monthly_day, 1..12
	Weeks   int        `json:"weeks,omitempty"`   // Kind==weeks, 1..52
}

// IsInterval reports whether the period is duration-based rather than
// calendar-based.
func (p PeriodSpec) IsInterval() bool { return p.Kind == PeriodInterval }

// Validate checks the per-variant field invariants.
func (p PeriodSpec) Validate() error {
	switch p.Kind {
	case PeriodInterval:
		if p.Seconds <= 0 {
			return fmt.Errorf("%w: interval must be > 0 seconds", ErrInvalidPeriod)
		}
	case PeriodWeeklyDay:
		if p.Weekday < 0 || p.Weekday > 6 {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidPeriod, p.Weekday)
		}
	case PeriodMonthlyDay:
		if p.Month < 1 || p.Month > 12 {
			return fmt.Errorf("%w: month %d out of range", ErrInvalidPeriod, p.Month)
		}
	case PeriodWeeks:
		if p.Weeks < 1 || p.Weeks > 52 {
			return fmt.Errorf("%w: weeks %d out of range", ErrInvalidPeriod, p.Weeks)
		}
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPeriod, p.Kind)
	}
	return nil
}

// ClockTime is a civil time of day.
type ClockTime struct {
	Hour   int `json:"hour"`   // 0..23
	Minute int `json:"minute"` // 0..59
}

func (t ClockTime) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Entry is one scheduled recurring message.
//
// Timestamps are unix seconds; 0 means "not set". Time is nil for interval
// periods and optional for calendar periods (nil means "current hour:minute
// at resolve time").
type Entry struct {
	ID        uint64 `json:"id"`
	ChatID    int64  `json:"chat_id"`
	ChatTitle string `json:"chat_title,omitempty"`

	Period PeriodSpec `json:"period"`
	Time   *ClockTime `json:"time,omitempty"`

	// StartDay/StartMonth anchor the recurrence (DD.MM, current year).
	StartDay   int `json:"start_day"`
	StartMonth int `json:"start_month"`

	Text  string `json:"text"`
	Photo []byte `json:"photo,omitempty"` // raw image bytes; Text becomes the caption

	Enabled bool `json:"enabled"`

	CreatedAt  int64 `json:"created_at"`
	LastSentAt int64 `json:"last_sent_at,omitempty"`
	NextFireAt int64 `json:"next_fire_at,omitempty"`

	// ErrorCount is the consecutive delivery failure count; the entry is
	// auto-disabled when it reaches MaxConsecutiveErrors.
	ErrorCount int `json:"error_count,omitempty"`
}

// MaxConsecutiveErrors is the auto-disable threshold.
const MaxConsecutiveErrors = 5

// HasPhoto reports whether the payload is media with a caption.
func (e *Entry) HasPhoto() bool { return len(e.Photo) > 0 }

var (
	ErrInvalidPeriod   = errors.New("invalid period")
	ErrInvalidTime     = errors.New("invalid time, expected HH:MM")
	ErrInvalidDate     = errors.New("invalid date, expected DD.MM")
	ErrInvalidArgCount = errors.New("invalid argument count")
	ErrNotFound        = errors.New("entry not found")
)
