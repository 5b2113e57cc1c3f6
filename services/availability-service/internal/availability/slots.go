// Package availability turns weekly rules, date exceptions and busy intervals into bookable slots.
//
// Generation is a pure function of its Input: no clock reads, no I/O, no shared state. Callers fetch
// the inputs and pass the current instant explicitly.
package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
)

const (
	DefaultSlotDurationMinutes = 60
	DefaultHorizonDays         = 14
	MaxHorizonDays             = 366
	DefaultTimezone            = "UTC"
)

var ErrInvalidInput = errors.New("invalid slot generation input")

type Input struct {
	MentorID string
	// SlotDurationMinutes and HorizonDays fall back to the defaults when zero.
	SlotDurationMinutes int
	HorizonDays         int
	Now                 time.Time
	Rules               []model.AvailabilityRule
	Exceptions          []model.AvailabilityException
	Busy                []model.BusyInterval
	// ViewerTimezone only affects labels. Empty means DefaultTimezone.
	ViewerTimezone string
	// DefaultTimezone frames open-extra exceptions when the mentor has no usable rule.
	DefaultTimezone string
	// IncludeUnavailable keeps busy-conflicting slots in the output with Available=false.
	IncludeUnavailable bool
}

type Result struct {
	MentorID string
	// MentorTimezone is the frame used for exceptions without their own timezone.
	MentorTimezone    string
	Slots             []model.Slot
	SkippedRules      []string
	SkippedExceptions []string
}

// Normalize applies defaults and rejects out-of-range durations and horizons.
func (in Input) Normalize() (Input, error) {
	if in.SlotDurationMinutes == 0 {
		in.SlotDurationMinutes = DefaultSlotDurationMinutes
	}
	if in.HorizonDays == 0 {
		in.HorizonDays = DefaultHorizonDays
	}
	if in.DefaultTimezone == "" {
		in.DefaultTimezone = DefaultTimezone
	}
	if in.ViewerTimezone == "" {
		in.ViewerTimezone = in.DefaultTimezone
	}
	if in.SlotDurationMinutes < 0 || in.SlotDurationMinutes > timeunit.MinutesPerDay {
		return in, fmt.Errorf("%w: slot duration must be 1-%d minutes (got %d)", ErrInvalidInput, timeunit.MinutesPerDay, in.SlotDurationMinutes)
	}
	if in.HorizonDays < 0 || in.HorizonDays > MaxHorizonDays {
		return in, fmt.Errorf("%w: horizon must be 1-%d days (got %d)", ErrInvalidInput, MaxHorizonDays, in.HorizonDays)
	}
	if in.Now.IsZero() {
		return in, fmt.Errorf("%w: now is required", ErrInvalidInput)
	}
	return in, nil
}

type ruleFrame struct {
	rule model.AvailabilityRule
	loc  *time.Location
}

// exceptionFrame carries the exception's own location, nil when it inherits the frame it is tested in.
type exceptionFrame struct {
	ex  model.AvailabilityException
	loc *time.Location
}

type windowKey struct {
	start, end int64
}

// Generate computes the available slots for in.MentorID.
//
// Per local date of each active rule's timezone within the horizon, the rule range is cut into
// consecutive windows of the slot duration (a short trailing window is dropped). Block exceptions
// remove any window they touch, open-extra exceptions add windows of their own, duplicate absolute
// windows collapse, windows whose real length differs from the duration across a DST transition
// are dropped, busy intervals mark windows unavailable, and windows starting at or before Now
// are discarded. The result is sorted by start.
func Generate(in Input) (Result, error) {
	in, err := in.Normalize()
	if err != nil {
		return Result{}, err
	}
	if _, err := timeunit.LoadLocation(in.ViewerTimezone); err != nil {
		return Result{}, fmt.Errorf("viewer timezone: %w", err)
	}
	res := Result{MentorID: in.MentorID}

	var rules []ruleFrame
	for _, r := range in.Rules {
		if !r.IsActive {
			continue
		}
		if !r.ValidShape() {
			res.SkippedRules = append(res.SkippedRules, r.ID)
			continue
		}
		loc, err := timeunit.LoadLocation(r.Timezone)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		rules = append(rules, ruleFrame{rule: r, loc: loc})
	}

	res.MentorTimezone = in.DefaultTimezone
	if len(rules) > 0 {
		res.MentorTimezone = rules[0].rule.Timezone
	}
	fallback, err := timeunit.LoadLocation(res.MentorTimezone)
	if err != nil {
		return Result{}, fmt.Errorf("default timezone: %w", err)
	}

	var blocks, extras []exceptionFrame
	for _, ex := range in.Exceptions {
		if !ex.ValidShape() {
			res.SkippedExceptions = append(res.SkippedExceptions, ex.ID)
			continue
		}
		f := exceptionFrame{ex: ex}
		if ex.Timezone != "" {
			if f.loc, err = timeunit.LoadLocation(ex.Timezone); err != nil {
				return Result{}, fmt.Errorf("exception %s: %w", ex.ID, err)
			}
		}
		if ex.IsBlock() {
			blocks = append(blocks, f)
		} else {
			extras = append(extras, f)
		}
	}

	duration := timeunit.Minute(in.SlotDurationMinutes)
	length := time.Duration(in.SlotDurationMinutes) * time.Minute
	seen := make(map[windowKey]struct{})
	var windows []model.Slot
	add := func(d timeunit.Date, start, end timeunit.Minute, loc *time.Location, origin model.SlotOrigin) {
		for s := start; s+duration <= end; s += duration {
			e := s + duration
			startAt := timeunit.Instant(d, s, loc)
			endAt := timeunit.Instant(d, e, loc)
			// Across a DST transition the wall-clock window can shrink to nothing (spring forward)
			// or swallow the repeated hour (fall back). Slots keep their exact length.
			if endAt.Sub(startAt) != length {
				continue
			}
			if isBlocked(blocks, d, s, e, startAt, endAt) {
				continue
			}
			key := windowKey{start: startAt.UnixNano(), end: endAt.UnixNano()}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			windows = append(windows, model.Slot{Start: startAt.UTC(), End: endAt.UTC(), Origin: origin, Timezone: loc.String()})
		}
	}

	for _, rf := range rules {
		today := timeunit.DateOf(in.Now, rf.loc)
		for i := 0; i < in.HorizonDays; i++ {
			d := today.AddDays(i)
			if d.Weekday() != rf.rule.Weekday {
				continue
			}
			add(d, rf.rule.StartMinute, rf.rule.EndMinute, rf.loc, model.SlotFromRule)
		}
	}

	for _, xf := range extras {
		loc := xf.loc
		if loc == nil {
			loc = fallback
		}
		today := timeunit.DateOf(in.Now, loc)
		if offset := today.DaysUntil(xf.ex.Date); offset < 0 || offset >= in.HorizonDays {
			continue
		}
		add(xf.ex.Date, xf.ex.StartMinute, xf.ex.EndMinute, loc, model.SlotFromException)
	}

	busy := usableBusy(in.Busy)
	out := windows[:0]
	for _, w := range windows {
		if !w.Start.After(in.Now) {
			continue
		}
		w.Available = !overlapsAny(w.Start, w.End, busy)
		if !w.Available && !in.IncludeUnavailable {
			continue
		}
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].End.Before(out[j].End)
	})
	res.Slots = out
	return res, nil
}

// isBlocked reports whether any block exception touches the window. Blocks without their own
// timezone compare by local date and minute in the window's frame; blocks with one compare as
// absolute intervals.
func isBlocked(blocks []exceptionFrame, d timeunit.Date, s, e timeunit.Minute, startAt, endAt time.Time) bool {
	for _, b := range blocks {
		if b.loc == nil {
			if b.ex.Date == d && minuteOverlap(b.ex.StartMinute, b.ex.EndMinute, s, e) > 0 {
				return true
			}
			continue
		}
		bs := timeunit.Instant(b.ex.Date, b.ex.StartMinute, b.loc)
		be := timeunit.Instant(b.ex.Date, b.ex.EndMinute, b.loc)
		if bs.Before(endAt) && be.After(startAt) {
			return true
		}
	}
	return false
}

func minuteOverlap(aStart, aEnd, bStart, bEnd timeunit.Minute) timeunit.Minute {
	return max(0, min(aEnd, bEnd)-max(aStart, bStart))
}

func usableBusy(in []model.BusyInterval) []model.BusyInterval {
	out := make([]model.BusyInterval, 0, len(in))
	for _, b := range in {
		if b.End.After(b.Start) {
			out = append(out, b)
		}
	}
	return out
}

func overlapsAny(start, end time.Time, busy []model.BusyInterval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
