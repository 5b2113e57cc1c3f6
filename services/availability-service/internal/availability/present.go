package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
)

const (
	dateLayout      = "2006-01-02"
	dayLabelLayout  = "Mon, Jan 2"
	timeLabelLayout = "3:04 PM"
)

// Label is the human-readable rendering of a slot in one timezone. It is display only.
type Label struct {
	Date     string
	DayLabel string
	Start    string
	End      string
	Timezone string
	Text     string
}

type LabeledSlot struct {
	model.Slot
	Viewer Label
	Mentor Label
}

// Day groups slots by their calendar date in the viewer's timezone.
type Day struct {
	Date     string
	DayLabel string
	Slots    []LabeledSlot
}

type Output struct {
	Result
	ViewerTimezone string
	Labeled        []LabeledSlot
	Days           []Day
}

func label(s model.Slot, loc *time.Location) Label {
	start, end := s.Start.In(loc), s.End.In(loc)
	l := Label{
		Date:     start.Format(dateLayout),
		DayLabel: start.Format(dayLabelLayout),
		Start:    start.Format(timeLabelLayout),
		End:      end.Format(timeLabelLayout),
		Timezone: loc.String(),
	}
	l.Text = fmt.Sprintf("%s, %s-%s (%s)", l.DayLabel, l.Start, l.End, l.Timezone)
	return l
}

// Present labels slots for the viewer and the mentor. The mentor label uses the zone the slot was
// defined in, falling back to mentor. Slot instants are left untouched.
func Present(slots []model.Slot, viewer, mentor *time.Location) []LabeledSlot {
	out := make([]LabeledSlot, 0, len(slots))
	for _, s := range slots {
		out = append(out, LabeledSlot{Slot: s, Viewer: label(s, viewer), Mentor: label(s, sourceLocation(s, mentor))})
	}
	return out
}

func sourceLocation(s model.Slot, fallback *time.Location) *time.Location {
	if s.Timezone == "" || s.Timezone == fallback.String() {
		return fallback
	}
	loc, err := timeunit.LoadLocation(s.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// GroupByDate buckets labeled slots by viewer date, keeping input order within and across days.
func GroupByDate(slots []LabeledSlot) []Day {
	var days []Day
	for _, s := range slots {
		if n := len(days); n > 0 && days[n-1].Date == s.Viewer.Date {
			days[n-1].Slots = append(days[n-1].Slots, s)
			continue
		}
		days = append(days, Day{Date: s.Viewer.Date, DayLabel: s.Viewer.DayLabel, Slots: []LabeledSlot{s}})
	}
	return days
}

// GenerateSlots runs Generate and labels the result in the viewer's timezone.
func GenerateSlots(in Input) (Output, error) {
	in, err := in.Normalize()
	if err != nil {
		return Output{}, err
	}
	res, err := Generate(in)
	if err != nil {
		return Output{}, err
	}
	viewer, err := timeunit.LoadLocation(in.ViewerTimezone)
	if err != nil {
		return Output{}, fmt.Errorf("viewer timezone: %w", err)
	}
	mentor, err := timeunit.LoadLocation(res.MentorTimezone)
	if err != nil {
		return Output{}, fmt.Errorf("mentor timezone: %w", err)
	}
	labeled := Present(res.Slots, viewer, mentor)
	return Output{
		Result:         res,
		ViewerTimezone: viewer.String(),
		Labeled:        labeled,
		Days:           GroupByDate(labeled),
	}, nil
}
