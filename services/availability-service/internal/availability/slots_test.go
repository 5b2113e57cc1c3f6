package availability

import (
	"errors"
	"reflect"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
)

const newYork = "America/New_York"

func date(t *testing.T, s string) timeunit.Date {
	t.Helper()
	d, err := timeunit.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %s: %v", s, err)
	}
	return d
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

// mondayMorning is one active rule: Monday 09:00-12:00 New York.
func mondayMorning() model.AvailabilityRule {
	return model.AvailabilityRule{ID: "r-1", MentorID: "m-1", Weekday: time.Monday, StartMinute: 540, EndMinute: 720, Timezone: newYork, IsActive: true}
}

// baseInput asks on Thursday 2026-10-15 for a week, which covers Monday 2026-10-19 (EDT, UTC-4).
func baseInput() Input {
	return Input{
		MentorID:            "m-1",
		SlotDurationMinutes: 60,
		HorizonDays:         7,
		Now:                 utc(2026, 10, 15, 12, 0),
		Rules:               []model.AvailabilityRule{mondayMorning()},
	}
}

func starts(slots []model.Slot) []time.Time {
	out := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start)
	}
	return out
}

func expectStarts(t *testing.T, slots []model.Slot, want ...time.Time) {
	t.Helper()
	got := starts(slots)
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i].Format(time.RFC3339), got[i].Format(time.RFC3339))
		}
	}
}

func TestGenerate_SingleRule(t *testing.T) {
	res, err := Generate(baseInput())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	expectStarts(t, res.Slots, utc(2026, 10, 19, 13, 0), utc(2026, 10, 19, 14, 0), utc(2026, 10, 19, 15, 0))
	for _, s := range res.Slots {
		if !s.Available || s.Origin != model.SlotFromRule {
			t.Fatalf("unexpected slot %+v", s)
		}
		if s.End.Sub(s.Start) != time.Hour {
			t.Fatalf("expected 60 minute slot, got %s", s.End.Sub(s.Start))
		}
	}
	if res.MentorTimezone != newYork {
		t.Fatalf("expected mentor timezone %s, got %s", newYork, res.MentorTimezone)
	}
}

func TestGenerate_BlockException(t *testing.T) {
	in := baseInput()
	in.Exceptions = []model.AvailabilityException{
		{ID: "x-1", MentorID: "m-1", Date: date(t, "2026-10-19"), StartMinute: 600, EndMinute: 660},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	expectStarts(t, res.Slots, utc(2026, 10, 19, 13, 0), utc(2026, 10, 19, 15, 0))
}

func TestGenerate_PartialBlockDropsWholeWindow(t *testing.T) {
	in := baseInput()
	in.Exceptions = []model.AvailabilityException{
		{ID: "x-1", MentorID: "m-1", Date: date(t, "2026-10-19"), StartMinute: 659, EndMinute: 661},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	expectStarts(t, res.Slots, utc(2026, 10, 19, 13, 0))
}

func TestGenerate_BlockWithOwnTimezoneIsAbsolute(t *testing.T) {
	in := baseInput()
	// 14:00-15:00 UTC is 10:00-11:00 in New York.
	in.Exceptions = []model.AvailabilityException{
		{ID: "x-1", MentorID: "m-1", Date: date(t, "2026-10-19"), StartMinute: 840, EndMinute: 900, Timezone: "UTC"},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	expectStarts(t, res.Slots, utc(2026, 10, 19, 13, 0), utc(2026, 10, 19, 15, 0))
}

func TestGenerate_WholeDayBlock(t *testing.T) {
	in := baseInput()
	start, end := model.WholeDay()
	in.Exceptions = []model.AvailabilityException{
		{ID: "x-1", MentorID: "m-1", Date: date(t, "2026-10-19"), StartMinute: start, EndMinute: end},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(res.Slots))
	}
}

func TestGenerate_BusyBooking(t *testing.T) {
	in := baseInput()
	in.Busy = []model.BusyInterval{
		{Start: utc(2026, 10, 19, 13, 30), End: utc(2026, 10, 19, 14, 30), Origin: model.OriginBooking},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	expectStarts(t, res.Slots, utc(2026, 10, 19, 15, 0))
	for _, s := range res.Slots {
		for _, b := range in.Busy {
			if s.Available && b.Overlaps(s.Start, s.End) {
				t.Fatalf("available slot %s overlaps busy interval", s.Start)
			}
		}
	}
}

func TestGenerate_IncludeUnavailable(t *testing.T) {
	in := baseInput()
	in.IncludeUnavailable = true
	in.Busy = []model.BusyInterval{
		{Start: utc(2026, 10, 19, 13, 30), End: utc(2026, 10, 19, 14, 30), Origin: model.OriginExternalCalendar},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(res.Slots))
	}
	want := []bool{false, false, true}
	for i, s := range res.Slots {
		if s.Available != want[i] {
			t.Fatalf("slot %d: expected available=%v", i, want[i])
		}
	}
}

func TestGenerate_AbuttingBusyDoesNotConflict(t *testing.T) {
	in := baseInput()
	in.Busy = []model.BusyInterval{
		{Start: utc(2026, 10, 19, 12, 0), End: utc(2026, 10, 19, 13, 0)},
		{Start: utc(2026, 10, 19, 16, 0), End: utc(2026, 10, 19, 17, 0)},
		// Inverted intervals are ignored.
		{Start: utc(2026, 10, 19, 15, 0), End: utc(2026, 10, 19, 13, 0)},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(res.Slots))
	}
}

func TestGenerate_OpenExtraWithoutRules(t *testing.T) {
	in := Input{
		MentorID:    "m-2",
		HorizonDays: 14,
		Now:         utc(2026, 10, 15, 12, 0),
		Exceptions: []model.AvailabilityException{
			{ID: "x-1", MentorID: "m-2", Date: date(t, "2026-10-21"), StartMinute: 840, EndMinute: 900, IsAvailable: true},
		},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	expectStarts(t, res.Slots, utc(2026, 10, 21, 14, 0))
	if res.Slots[0].Origin != model.SlotFromException {
		t.Fatalf("expected exception origin, got %s", res.Slots[0].Origin)
	}
	if res.MentorTimezone != DefaultTimezone {
		t.Fatalf("expected default timezone, got %s", res.MentorTimezone)
	}
}

func TestGenerate_OpenExtraUsesRuleTimezone(t *testing.T) {
	in := baseInput()
	in.Exceptions = []model.AvailabilityException{
		// Tuesday 14:00-15:00, no rule covers it; framed in the rule's New York zone.
		{ID: "x-1", MentorID: "m-1", Date: date(t, "2026-10-20"), StartMinute: 840, EndMinute: 900, IsAvailable: true},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	last := res.Slots[len(res.Slots)-1]
	if !last.Start.Equal(utc(2026, 10, 20, 18, 0)) {
		t.Fatalf("expected open-extra at 18:00Z, got %s", last.Start.Format(time.RFC3339))
	}
}

func TestGenerate_OpenExtraOutsideHorizon(t *testing.T) {
	in := baseInput()
	in.Exceptions = []model.AvailabilityException{
		{ID: "past", MentorID: "m-1", Date: date(t, "2026-10-14"), StartMinute: 840, EndMinute: 900, IsAvailable: true},
		{ID: "far", MentorID: "m-1", Date: date(t, "2026-10-22"), StartMinute: 840, EndMinute: 900, IsAvailable: true},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Slots) != 3 {
		t.Fatalf("expected only the rule slots, got %d", len(res.Slots))
	}
}

func TestGenerate_BlockBeatsOpenExtraInAnyOrder(t *testing.T) {
	open := model.AvailabilityException{ID: "open", MentorID: "m-2", Date: date(t, "2026-10-21"), StartMinute: 840, EndMinute: 960, IsAvailable: true}
	block := model.AvailabilityException{ID: "block", MentorID: "m-2", Date: date(t, "2026-10-21"), StartMinute: 900, EndMinute: 960}

	orders := [][]model.AvailabilityException{{open, block}, {block, open}}
	for _, exs := range orders {
		res, err := Generate(Input{MentorID: "m-2", Now: utc(2026, 10, 15, 12, 0), Exceptions: exs})
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		expectStarts(t, res.Slots, utc(2026, 10, 21, 14, 0))
	}
}

func TestGenerate_DeduplicatesRuleAndOpenExtra(t *testing.T) {
	in := baseInput()
	in.Exceptions = []model.AvailabilityException{
		{ID: "x-1", MentorID: "m-1", Date: date(t, "2026-10-19"), StartMinute: 540, EndMinute: 780, IsAvailable: true, Timezone: newYork},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	expectStarts(t, res.Slots, utc(2026, 10, 19, 13, 0), utc(2026, 10, 19, 14, 0), utc(2026, 10, 19, 15, 0), utc(2026, 10, 19, 16, 0))
	if res.Slots[0].Origin != model.SlotFromRule || res.Slots[3].Origin != model.SlotFromException {
		t.Fatalf("unexpected origins: %s %s", res.Slots[0].Origin, res.Slots[3].Origin)
	}
}

func TestGenerate_DropsTrailingPartialWindow(t *testing.T) {
	in := baseInput()
	in.SlotDurationMinutes = 50
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// 180 minutes fit three 50 minute windows; the trailing 30 minutes are dropped.
	expectStarts(t, res.Slots, utc(2026, 10, 19, 13, 0), utc(2026, 10, 19, 13, 50), utc(2026, 10, 19, 14, 40))
}

func TestGenerate_NoPastSlots(t *testing.T) {
	in := baseInput()
	in.Now = utc(2026, 10, 19, 14, 0)
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	expectStarts(t, res.Slots, utc(2026, 10, 19, 15, 0))
	for _, s := range res.Slots {
		if !s.Start.After(in.Now) {
			t.Fatalf("slot %s is not in the future", s.Start)
		}
	}
}

func TestGenerate_SpringForwardKeepsWallClock(t *testing.T) {
	in := Input{
		MentorID:    "m-3",
		HorizonDays: 14,
		Now:         utc(2026, 3, 1, 12, 0),
		Rules: []model.AvailabilityRule{
			{ID: "r", MentorID: "m-3", Weekday: time.Sunday, StartMinute: 540, EndMinute: 1020, Timezone: newYork, IsActive: true},
		},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Slots) != 16 {
		t.Fatalf("expected 16 slots over two Sundays, got %d", len(res.Slots))
	}
	before, after := res.Slots[0].Start, res.Slots[8].Start
	if !before.Equal(utc(2026, 3, 1, 14, 0)) || !after.Equal(utc(2026, 3, 8, 13, 0)) {
		t.Fatalf("unexpected first slots %s and %s", before.Format(time.RFC3339), after.Format(time.RFC3339))
	}
	if diff := after.Sub(before); diff != 7*24*time.Hour-time.Hour {
		t.Fatalf("expected a week minus one hour between the 09:00 slots, got %s", diff)
	}
	loc, _ := timeunit.LoadLocation(newYork)
	for _, s := range res.Slots[8:] {
		if h := s.Start.In(loc).Hour(); h < 9 || h > 16 {
			t.Fatalf("slot %s drifted outside 09:00-17:00 local", s.Start.In(loc))
		}
	}
}

func TestGenerate_SpringForwardGapCollapses(t *testing.T) {
	in := Input{
		MentorID:    "m-3",
		HorizonDays: 2,
		Now:         utc(2026, 3, 7, 12, 0),
		Rules: []model.AvailabilityRule{
			{ID: "r", MentorID: "m-3", Weekday: time.Sunday, StartMinute: 60, EndMinute: 240, Timezone: newYork, IsActive: true},
		},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// 01:00 EST, then the 02:00 window vanishes, then 03:00 EDT.
	expectStarts(t, res.Slots, utc(2026, 3, 8, 6, 0), utc(2026, 3, 8, 7, 0))
}

func TestGenerate_FallBackKeepsFixedLength(t *testing.T) {
	in := Input{
		MentorID:            "m-3",
		SlotDurationMinutes: 30,
		HorizonDays:         2,
		Now:                 utc(2026, 10, 31, 12, 0),
		Rules: []model.AvailabilityRule{
			{ID: "r", MentorID: "m-3", Weekday: time.Sunday, StartMinute: 0, EndMinute: 180, Timezone: newYork, IsActive: true},
		},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, s := range res.Slots {
		if got := s.End.Sub(s.Start); got != 30*time.Minute {
			t.Fatalf("slot %s lasts %s", s.Start.Format(time.RFC3339), got)
		}
	}
	// 00:00-01:30 EDT, then the 01:30 window that would span the repeated hour is dropped,
	// then 02:00-03:00 EST.
	expectStarts(t, res.Slots,
		utc(2026, 11, 1, 4, 0), utc(2026, 11, 1, 4, 30), utc(2026, 11, 1, 5, 0),
		utc(2026, 11, 1, 7, 0), utc(2026, 11, 1, 7, 30))
}

func TestGenerate_DeterministicAcrossInputOrder(t *testing.T) {
	a := baseInput()
	a.Rules = append(a.Rules, model.AvailabilityRule{ID: "r-2", MentorID: "m-1", Weekday: time.Friday, StartMinute: 780, EndMinute: 900, Timezone: newYork, IsActive: true})
	a.Exceptions = []model.AvailabilityException{
		{ID: "x-1", MentorID: "m-1", Date: date(t, "2026-10-20"), StartMinute: 600, EndMinute: 720, IsAvailable: true},
		{ID: "x-2", MentorID: "m-1", Date: date(t, "2026-10-20"), StartMinute: 660, EndMinute: 720},
	}
	b := a
	b.Rules = []model.AvailabilityRule{a.Rules[1], a.Rules[0]}
	b.Exceptions = []model.AvailabilityException{a.Exceptions[1], a.Exceptions[0]}

	ra, err := Generate(a)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rb, err := Generate(b)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !reflect.DeepEqual(ra.Slots, rb.Slots) {
		t.Fatalf("slot output depends on input order:\n%v\n%v", ra.Slots, rb.Slots)
	}
	again, _ := Generate(a)
	if !reflect.DeepEqual(ra.Slots, again.Slots) {
		t.Fatalf("repeated generation differs")
	}
}

func TestGenerate_SkipsMalformedRecords(t *testing.T) {
	in := baseInput()
	in.Rules = append(in.Rules,
		model.AvailabilityRule{ID: "bad-weekday", Weekday: 9, StartMinute: 0, EndMinute: 60, Timezone: newYork, IsActive: true},
		model.AvailabilityRule{ID: "inactive", Weekday: time.Monday, StartMinute: 0, EndMinute: 60, Timezone: "Nowhere/City"},
	)
	in.Exceptions = []model.AvailabilityException{
		{ID: "bad-range", Date: date(t, "2026-10-19"), StartMinute: 700, EndMinute: 600},
	}
	res, err := Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(res.Slots))
	}
	if !reflect.DeepEqual(res.SkippedRules, []string{"bad-weekday"}) {
		t.Fatalf("unexpected skipped rules %v", res.SkippedRules)
	}
	if !reflect.DeepEqual(res.SkippedExceptions, []string{"bad-range"}) {
		t.Fatalf("unexpected skipped exceptions %v", res.SkippedExceptions)
	}
}

func TestGenerate_UnknownTimezoneFails(t *testing.T) {
	in := baseInput()
	in.Rules[0].Timezone = "Mars/Olympus"
	if _, err := Generate(in); !errors.Is(err, timeunit.ErrUnknownTimezone) {
		t.Fatalf("expected ErrUnknownTimezone for rule, got %v", err)
	}

	in = baseInput()
	in.ViewerTimezone = "Mars/Olympus"
	if _, err := Generate(in); !errors.Is(err, timeunit.ErrUnknownTimezone) {
		t.Fatalf("expected ErrUnknownTimezone for viewer, got %v", err)
	}

	in = baseInput()
	in.Exceptions = []model.AvailabilityException{
		{ID: "x", Date: date(t, "2026-10-19"), StartMinute: 0, EndMinute: 60, Timezone: "Mars/Olympus"},
	}
	if _, err := Generate(in); !errors.Is(err, timeunit.ErrUnknownTimezone) {
		t.Fatalf("expected ErrUnknownTimezone for exception, got %v", err)
	}
}

func TestGenerate_InvalidInput(t *testing.T) {
	cases := map[string]func(*Input){
		"duration too long": func(in *Input) { in.SlotDurationMinutes = 1441 },
		"negative duration": func(in *Input) { in.SlotDurationMinutes = -15 },
		"horizon too long":  func(in *Input) { in.HorizonDays = MaxHorizonDays + 1 },
		"missing now":       func(in *Input) { in.Now = time.Time{} },
	}
	for name, mutate := range cases {
		in := baseInput()
		mutate(&in)
		if _, err := Generate(in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestGenerate_EmptyMentor(t *testing.T) {
	res, err := Generate(Input{MentorID: "m-9", Now: utc(2026, 10, 15, 12, 0)})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(res.Slots))
	}
}
