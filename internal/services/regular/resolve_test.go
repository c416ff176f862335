package regular

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("bad test time %q: %v", value, err)
	}
	return ts
}

func TestNextFireDaily(t *testing.T) {
	t.Parallel()

	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodDaily},
		Time:       &ClockTime{Hour: 9},
		StartDay:   1,
		StartMonth: 1,
	}
	now := mustTime(t, "2024-03-01 10:00")

	got := NextFire(e, now, time.UTC)
	want := mustTime(t, "2024-03-02 09:00")
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
}

func TestNextFireDailyLaterToday(t *testing.T) {
	t.Parallel()

	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodDaily},
		Time:       &ClockTime{Hour: 23},
		StartDay:   1,
		StartMonth: 1,
	}
	now := mustTime(t, "2024-03-01 10:00")

	got := NextFire(e, now, time.UTC)
	want := mustTime(t, "2024-03-01 23:00")
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v (today at 23:00)", got, want)
	}
}

func TestNextFireWeeklyOnDay(t *testing.T) {
	t.Parallel()

	// Saturday=5 at 20:15, asked on a Tuesday morning: same-week Saturday.
	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodWeeklyDay, Weekday: 5},
		Time:       &ClockTime{Hour: 20, Minute: 15},
		StartDay:   1,
		StartMonth: 1,
	}
	now := mustTime(t, "2024-03-05 10:00") // Tuesday

	got := NextFire(e, now, time.UTC)
	want := mustTime(t, "2024-03-09 20:15") // Saturday, same week
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
	if got.Weekday() != time.Saturday {
		t.Fatalf("weekday = %v, want Saturday", got.Weekday())
	}
}

func TestNextFireWeeklyOnDaySameDayPast(t *testing.T) {
	t.Parallel()

	// Tuesday=1 at 08:00, asked on a Tuesday after 08:00: next week.
	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodWeeklyDay, Weekday: 1},
		Time:       &ClockTime{Hour: 8},
		StartDay:   1,
		StartMonth: 1,
	}
	now := mustTime(t, "2024-03-05 10:00") // Tuesday 10:00

	got := NextFire(e, now, time.UTC)
	want := mustTime(t, "2024-03-12 08:00") // next Tuesday
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
}

func TestNextFireWeeklyKeepsStartWeekday(t *testing.T) {
	t.Parallel()

	// 2024-01-01 is a Monday; plain weekly must stay on Mondays.
	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodWeekly},
		Time:       &ClockTime{Hour: 12},
		StartDay:   1,
		StartMonth: 1,
	}
	now := mustTime(t, "2024-03-06 10:00") // Wednesday

	got := NextFire(e, now, time.UTC)
	want := mustTime(t, "2024-03-11 12:00") // Monday
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
	if got.Weekday() != time.Monday {
		t.Fatalf("weekday = %v, want Monday (start-date weekday)", got.Weekday())
	}
}

func TestNextFireMonthlyClampsDay(t *testing.T) {
	t.Parallel()

	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodMonthly},
		Time:       &ClockTime{Hour: 10},
		StartDay:   31,
		StartMonth: 1,
	}
	now := mustTime(t, "2024-01-31 12:00")

	got := NextFire(e, now, time.UTC)
	want := mustTime(t, "2024-02-29 10:00") // leap February, clamped from 31
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
}

func TestNextFireMonthlyReturnsToStartDayAfterClamp(t *testing.T) {
	t.Parallel()

	// Anchored on the 31st: February clamps to the 28th, but March must be
	// back on the 31st, not stuck on the clamped day.
	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodMonthly},
		Time:       &ClockTime{Hour: 10},
		StartDay:   31,
		StartMonth: 1,
	}
	now := mustTime(t, "2023-03-15 12:00")

	got := NextFire(e, now, time.UTC)
	want := mustTime(t, "2023-03-31 10:00")
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v (day must not stay clamped after February)", got, want)
	}

	// and the month after that stays on the 31st too
	got2 := NextFire(e, got, time.UTC)
	if got2.Day() != 30 { // April has 30 days
		t.Fatalf("NextFire from %v = %v, want day 30 (April clamp of 31)", got, got2)
	}
	got3 := NextFire(e, got2, time.UTC)
	if got3.Day() != 31 { // May recovers the anchor day
		t.Fatalf("NextFire from %v = %v, want day 31", got2, got3)
	}
}

func TestNextFireMonthlyOnMonthRecoversLeapDay(t *testing.T) {
	t.Parallel()

	// Yearly-in-February anchored on the 31st: 2023 clamps to the 28th,
	// 2024 must use the 29th, not carry the 28 from the clamped base.
	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodMonthlyDay, Month: 2},
		Time:       &ClockTime{Hour: 8},
		StartDay:   31,
		StartMonth: 1,
	}
	now := mustTime(t, "2023-06-01 00:00")

	got := NextFire(e, now, time.UTC)
	want := mustTime(t, "2024-02-29 08:00")
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v (leap February takes the 29th)", got, want)
	}
}

func TestNextFireYearlyLeapDay(t *testing.T) {
	t.Parallel()

	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodYearly},
		Time:       &ClockTime{Hour: 10},
		StartDay:   29,
		StartMonth: 2,
	}

	t.Run("non-leap years clamp to the 28th", func(t *testing.T) {
		now := mustTime(t, "2024-03-01 00:00")
		got := NextFire(e, now, time.UTC)
		want := mustTime(t, "2025-02-28 10:00")
		if !got.Equal(want) {
			t.Fatalf("NextFire = %v, want %v", got, want)
		}
	})

	t.Run("next leap year recovers the 29th", func(t *testing.T) {
		now := mustTime(t, "2027-03-01 00:00")
		got := NextFire(e, now, time.UTC)
		want := mustTime(t, "2028-02-29 10:00")
		if !got.Equal(want) {
			t.Fatalf("NextFire = %v, want %v", got, want)
		}
	})
}

func TestNextFireMonthlyOnMonth(t *testing.T) {
	t.Parallel()

	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodMonthlyDay, Month: 5},
		Time:       &ClockTime{Hour: 9},
		StartDay:   10,
		StartMonth: 1,
	}

	t.Run("target month already past", func(t *testing.T) {
		now := mustTime(t, "2024-06-15 00:00")
		got := NextFire(e, now, time.UTC)
		want := mustTime(t, "2025-05-10 09:00")
		if !got.Equal(want) {
			t.Fatalf("NextFire = %v, want %v", got, want)
		}
	})

	t.Run("target month ahead", func(t *testing.T) {
		now := mustTime(t, "2024-02-15 00:00")
		got := NextFire(e, now, time.UTC)
		want := mustTime(t, "2024-05-10 09:00")
		if !got.Equal(want) {
			t.Fatalf("NextFire = %v, want %v", got, want)
		}
	})
}

func TestNextFireYearly(t *testing.T) {
	t.Parallel()

	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodYearly},
		Time:       &ClockTime{Hour: 0},
		StartDay:   1,
		StartMonth: 3,
	}
	now := mustTime(t, "2024-03-15 00:00")

	got := NextFire(e, now, time.UTC)
	want := mustTime(t, "2025-03-01 00:00")
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
}

func TestNextFireWeeksN(t *testing.T) {
	t.Parallel()

	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodWeeks, Weeks: 2},
		Time:       &ClockTime{Hour: 8},
		StartDay:   1,
		StartMonth: 3,
	}
	now := mustTime(t, "2024-03-10 09:00")

	got := NextFire(e, now, time.UTC)
	want := mustTime(t, "2024-03-15 08:00") // 01.03 + 14 days
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
}

func TestNextFireIntervalFromLastSent(t *testing.T) {
	t.Parallel()

	// Due 5400s ago with a 1800s interval: exactly one fire in
	// (now, now+1800], not a backlog.
	now := mustTime(t, "2024-03-01 12:00")
	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodInterval, Seconds: 1800},
		LastSentAt: now.Unix() - 5400,
	}

	got := NextFire(e, now, time.UTC)
	if !got.After(now) || got.Unix() > now.Unix()+1800 {
		t.Fatalf("NextFire = %v, want in (now, now+1800]", got)
	}
	if got.Unix() != now.Unix()+1800 {
		t.Fatalf("NextFire = %v, want now+1800 (last+1800 lands exactly on now)", got)
	}
}

func TestNextFireIntervalShortAnchorsOnNow(t *testing.T) {
	t.Parallel()

	now := mustTime(t, "2024-03-01 12:00")
	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodInterval, Seconds: 1800},
		StartDay:   1,
		StartMonth: 1, // long past
	}

	got := NextFire(e, now, time.UTC)
	want := now.Add(30 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
}

func TestNextFireIntervalLongKeepsPhase(t *testing.T) {
	t.Parallel()

	// Every 2 days anchored on 01.01: fire times stay on the 2-day grid
	// counted from the start date.
	now := mustTime(t, "2024-03-06 10:00")
	e := &Entry{
		Period:     PeriodSpec{Kind: PeriodInterval, Seconds: 2 * 86400},
		StartDay:   1,
		StartMonth: 1,
	}

	got := NextFire(e, now, time.UTC)
	want := mustTime(t, "2024-03-07 00:00") // Jan 1 + 33*2 days
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
	anchor := mustTime(t, "2024-01-01 00:00")
	if (got.Unix()-anchor.Unix())%(2*86400) != 0 {
		t.Fatalf("NextFire = %v is off the 2-day grid from %v", got, anchor)
	}
}

func TestNextFireAlwaysInFuture(t *testing.T) {
	t.Parallel()

	entries := []*Entry{
		{Period: PeriodSpec{Kind: PeriodInterval, Seconds: 60}},
		{Period: PeriodSpec{Kind: PeriodInterval, Seconds: 3 * 86400}, StartDay: 1, StartMonth: 1},
		{Period: PeriodSpec{Kind: PeriodDaily}, Time: &ClockTime{Hour: 9}, StartDay: 1, StartMonth: 1},
		{Period: PeriodSpec{Kind: PeriodDaily}, StartDay: 15, StartMonth: 6},
		{Period: PeriodSpec{Kind: PeriodWeekly}, Time: &ClockTime{Hour: 12}, StartDay: 1, StartMonth: 1},
		{Period: PeriodSpec{Kind: PeriodWeeklyDay, Weekday: 3}, Time: &ClockTime{}, StartDay: 5, StartMonth: 5},
		{Period: PeriodSpec{Kind: PeriodMonthly}, Time: &ClockTime{Hour: 10}, StartDay: 31, StartMonth: 1},
		{Period: PeriodSpec{Kind: PeriodMonthlyDay, Month: 2}, Time: &ClockTime{Hour: 8}, StartDay: 29, StartMonth: 2},
		{Period: PeriodSpec{Kind: PeriodYearly}, Time: &ClockTime{Hour: 1}, StartDay: 29, StartMonth: 2},
		{Period: PeriodSpec{Kind: PeriodWeeks, Weeks: 52}, Time: &ClockTime{Hour: 23, Minute: 59}, StartDay: 31, StartMonth: 12},
	}
	nows := []time.Time{
		mustTime(t, "2023-01-01 00:00"),
		mustTime(t, "2024-02-29 23:59"),
		mustTime(t, "2024-06-15 12:34"),
		mustTime(t, "2024-12-31 23:59"),
		mustTime(t, "2025-03-01 09:00"),
	}
	locs := []*time.Location{time.UTC, time.FixedZone("UTC+5", 5*3600)}

	for _, e := range entries {
		for _, now := range nows {
			for _, loc := range locs {
				if got := NextFire(e, now, loc); !got.After(now) {
					t.Fatalf("NextFire(%+v, %v, %v) = %v, not after now", e.Period, now, loc, got)
				}
			}
		}
	}
}

func TestResolveLocation(t *testing.T) {
	t.Parallel()

	t.Run("empty is local", func(t *testing.T) {
		loc, err := ResolveLocation("")
		if err != nil || loc != time.Local {
			t.Fatalf("got (%v, %v), want local", loc, err)
		}
	})

	t.Run("iana name", func(t *testing.T) {
		loc, err := ResolveLocation("Europe/Moscow")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loc.String() != "Europe/Moscow" {
			t.Fatalf("loc = %v", loc)
		}
	})

	t.Run("numeric offset is relative to Moscow", func(t *testing.T) {
		loc, err := ResolveLocation("2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, off := time.Now().In(loc).Zone()
		if off != 5*3600 {
			t.Fatalf("offset = %d, want UTC+5 (Moscow+2)", off)
		}
	})

	t.Run("negative offset", func(t *testing.T) {
		loc, err := ResolveLocation("-3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, off := time.Now().In(loc).Zone()
		if off != 0 {
			t.Fatalf("offset = %d, want UTC", off)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := ResolveLocation("Atlantis/Lost"); err == nil {
			t.Fatal("want error for unknown timezone")
		}
	})
}
