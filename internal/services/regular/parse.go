package regular

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// weekdays maps Russian weekday names (full and abbreviated) to Monday=0.
var weekdays = map[string]int{
	"понедельник": 0, "вторник": 1, "среда": 2,
	"четверг": 3, "пятница": 4, "суббота": 5, "воскресенье": 6,
	"пн": 0, "вт": 1, "ср": 2, "чт": 3, "пт": 4, "сб": 5, "вс": 6,
}

// months maps Russian month names to 1..12.
var months = map[string]int{
	"январь": 1, "февраль": 2, "март": 3, "апрель": 4,
	"май": 5, "июнь": 6, "июль": 7, "август": 8,
	"сентябрь": 9, "октябрь": 10, "ноябрь": 11, "декабрь": 12,
}

// MonthName returns the Russian name for month 1..12 (lowercase).
func MonthName(m int) string {
	for name, n := range months {
		if n == m {
			return name
		}
	}
	return ""
}

// WeekdayNames are the full Russian weekday names indexed Monday=0.
var WeekdayNames = [7]string{
	"Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота", "Воскресенье",
}

// WeekdayShort are the abbreviated weekday names indexed Monday=0.
var WeekdayShort = [7]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

var (
	// intervalRe matches concatenated duration tokens: "2ч15м", "30м", "1д".
	// Units: д=day, ч=hour, м=minute.
	intervalRe      = regexp.MustCompile(`^\d+[чмд](\d+[чмд])*$`)
	intervalTokenRe = regexp.MustCompile(`(\d+)([чмд])`)

	weeksRe = regexp.MustCompile(`^(\d+)\s*недел[яьи]?$`)
	timeRe  = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)
	dateRe  = regexp.MustCompile(`^([0-2]?[0-9]|3[01])\.(0?[1-9]|1[0-2])$`)
)

// ParsePeriod parses a human-entered period expression.
//
// Grammar, tried in order:
//   - interval tokens: "2ч15м" -> every 2h15m, "30м", "1д"
//   - single-letter codes: "д" daily, "н" weekly, "м" monthly, "г" yearly
//   - a weekday name ("суббота", "сб") -> weekly on that day
//   - a month name ("декабрь") -> yearly in that month
//   - "N недель" with 1 <= N <= 52 -> every N weeks
func ParsePeriod(text string) (PeriodSpec, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	compact := strings.ReplaceAll(s, " ", "")

	if intervalRe.MatchString(compact) {
		return parseIntervalPeriod(compact)
	}

	switch s {
	case "д":
		return PeriodSpec{Kind: PeriodDaily}, nil
	case "н":
		return PeriodSpec{Kind: PeriodWeekly}, nil
	case "м":
		return PeriodSpec{Kind: PeriodMonthly}, nil
	case "г":
		return PeriodSpec{Kind: PeriodYearly}, nil
	}

	if day, ok := weekdays[s]; ok {
		return PeriodSpec{Kind: PeriodWeeklyDay, Weekday: day}, nil
	}
	if month, ok := months[s]; ok {
		return PeriodSpec{Kind: PeriodMonthlyDay, Month: month}, nil
	}

	if m := weeksRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 1 && n <= 52 {
			return PeriodSpec{Kind: PeriodWeeks, Weeks: n}, nil
		}
	}

	return PeriodSpec{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, text)
}

func parseIntervalPeriod(s string) (PeriodSpec, error) {
	var total int64
	for _, m := range intervalTokenRe.FindAllStringSubmatch(s, -1) {
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return PeriodSpec{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
		switch m[2] {
		case "д":
			total += v * 24 * 3600
		case "ч":
			total += v * 3600
		case "м":
			total += v * 60
		}
	}
	if total == 0 {
		return PeriodSpec{}, fmt.Errorf("%w: zero interval", ErrInvalidPeriod)
	}
	return PeriodSpec{Kind: PeriodInterval, Seconds: total}, nil
}

// ParseTimeOfDay parses strict 24-hour "HH:MM". An empty string means
// "no explicit time" and returns nil.
func ParseTimeOfDay(text string) (*ClockTime, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, nil
	}
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTime, text)
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	return &ClockTime{Hour: h, Minute: mi}, nil
}

// ParseStartDate parses strict "DD.MM" and validates it against the real
// calendar of the current year. An empty string means "today".
func ParseStartDate(text string, now time.Time) (day, month int, err error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return now.Day(), int(now.Month()), nil
	}
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidDate, text)
	}
	day, _ = strconv.Atoi(m[1])
	month, _ = strconv.Atoi(m[2])

	d := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return 0, 0, fmt.Errorf("%w: no such date %02d.%02d", ErrInvalidDate, day, month)
	}
	return day, month, nil
}

// SplitArgs splits a comma-separated argument string, keeping empty slots
// (".regmes 30м, , text" yields ["30м", "", "text"]) and not splitting
// inside single or double quotes. Each part is trimmed.
func SplitArgs(raw string) []string {
	var (
		parts    []string
		cur      strings.Builder
		inQuotes bool
	)
	for _, r := range raw {
		switch {
		case r == '"' || r == '\'':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, strings.TrimSpace(cur.String()))
	}
	return parts
}

// CreateArgs is a fully parsed entry-creation request.
type CreateArgs struct {
	Period     PeriodSpec
	Time       *ClockTime // always nil for interval periods
	StartDay   int
	StartMonth int
	Text       string
}

// ParseCreateArgs parses the creation command's argument string.
//
// Interval periods take 3 or 4 comma-separated fields
// ("period, [time,] date, message" - the time slot is accepted for symmetry
// but discarded), calendar periods take exactly 4
// ("period, time, date, message"). Empty time/date slots fall back to
// defaults.
func ParseCreateArgs(raw string, now time.Time) (CreateArgs, error) {
	parts := SplitArgs(raw)
	if len(parts) < 3 || len(parts) > 4 {
		return CreateArgs{}, fmt.Errorf("%w: got %d fields", ErrInvalidArgCount, len(parts))
	}

	period, err := ParsePeriod(parts[0])
	if err != nil {
		return CreateArgs{}, err
	}

	var (
		timeStr string
		dateStr string
		text    string
	)
	if period.IsInterval() {
		if len(parts) == 3 {
			dateStr, text = parts[1], parts[2]
		} else {
			timeStr, dateStr, text = parts[1], parts[2], parts[3]
		}
	} else {
		if len(parts) != 4 {
			return CreateArgs{}, fmt.Errorf("%w: calendar period needs 4 fields", ErrInvalidArgCount)
		}
		timeStr, dateStr, text = parts[1], parts[2], parts[3]
	}

	tod, err := ParseTimeOfDay(timeStr)
	if err != nil {
		return CreateArgs{}, err
	}
	if period.IsInterval() {
		// interval entries never carry a time of day
		tod = nil
	}

	day, month, err := ParseStartDate(dateStr, now)
	if err != nil {
		return CreateArgs{}, err
	}

	return CreateArgs{
		Period:     period,
		Time:       tod,
		StartDay:   day,
		StartMonth: month,
		Text:       text,
	}, nil
}
