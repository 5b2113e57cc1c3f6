// Package timeunit holds the wall-clock primitives shared by the availability engine:
// minutes since local midnight, calendar dates, and their conversion to absolute instants
// through the IANA timezone database.
package timeunit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a Minute used as a start and the inclusive
// upper bound of a Minute used as an end.
const MinutesPerDay = 24 * 60

const dateLayout = "2006-01-02"

var (
	ErrInvalidMinute = errors.New("minute of day out of range")
	ErrInvalidDate   = errors.New("invalid calendar date")
	ErrInvalidClock  = errors.New("invalid clock time")
)

// Minute is a wall-clock time expressed as minutes since local midnight.
type Minute int

// ValidRange reports whether [start, end) is a non-empty range inside one day.
func ValidRange(start, end Minute) bool {
	return start >= 0 && end <= MinutesPerDay && start < end
}

// Clock formats m as HH:MM. 1440 renders as 24:00.
func (m Minute) Clock() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// ParseClock parses HH:MM, accepting 24:00 as end of day.
func ParseClock(s string) (Minute, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return MinutesPerDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Minute(t.Hour()*60 + t.Minute()), nil
}

// Date is a calendar date with no time or location attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses YYYY-MM-DD and rejects dates that do not exist (2026-02-30).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateOf returns the calendar date of instant t as seen in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// civil anchors the date at UTC midnight. Only used for calendar arithmetic, never as an instant.
func (d Date) civil() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Weekday returns the day of week, Sunday = 0.
func (d Date) Weekday() time.Weekday {
	return d.civil().Weekday()
}

func (d Date) AddDays(n int) Date {
	y, m, day := d.civil().AddDate(0, 0, n).Date()
	return Date{Year: y, Month: m, Day: day}
}

func (d Date) Before(o Date) bool { return d.civil().Before(o.civil()) }
func (d Date) After(o Date) bool  { return d.civil().After(o.civil()) }

// DaysUntil returns the number of calendar days from d to o (negative if o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.civil().Sub(d.civil()).Hours() / 24)
}

// Instant converts the wall-clock tuple (d, m) in loc to an absolute time.
//
// Minute 1440 is midnight of the following date. A wall time that does not exist because clocks
// jumped forward resolves past the gap (02:30 on a spring-forward day becomes 03:30 of the new
// offset). A wall time that occurs twice resolves to the first occurrence.
func Instant(d Date, m Minute, loc *time.Location) time.Time {
	hour, minute := int(m)/60, int(m)%60
	t := time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, loc)

	// time.Date places gap times before the transition; detect that by reading the wall clock back.
	want := time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, time.UTC)
	if skew := want.Sub(wallClock(t, loc)); skew > 0 {
		return t.Add(skew)
	}

	// For an overlap time.Date may return the later occurrence (zones east of UTC do).
	// Offset transitions are at most a couple of hours apart, so one lookup finds the earlier offset.
	_, off := t.Zone()
	_, prevOff := t.Add(-3 * time.Hour).In(loc).Zone()
	if prevOff > off {
		earlier := t.Add(-time.Duration(prevOff-off) * time.Second)
		if wallClock(earlier, loc).Equal(want) {
			return earlier
		}
	}
	return t
}

// wallClock re-expresses the local wall time of t as a UTC value so wall times can be compared.
func wallClock(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute(), 0, 0, time.UTC)
}

// MinuteOf returns the local minute of day of t in loc.
func MinuteOf(t time.Time, loc *time.Location) Minute {
	lt := t.In(loc)
	return Minute(lt.Hour()*60 + lt.Minute())
}
