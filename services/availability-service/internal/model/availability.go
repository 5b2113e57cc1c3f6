package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
)

// ErrValidation marks a record rejected at write time.
var ErrValidation = errors.New("validation failed")

const maxNotesLen = 500

// AvailabilityRule is a recurring weekly template: every Weekday, [StartMinute, EndMinute) in Timezone.
type AvailabilityRule struct {
	ID          string
	MentorID    string
	Weekday     time.Weekday
	StartMinute timeunit.Minute
	EndMinute   timeunit.Minute
	Timezone    string
	IsActive    bool
	CreatedAt   time.Time
}

// ValidShape checks weekday and minute range without resolving the timezone.
func (r AvailabilityRule) ValidShape() bool {
	return r.Weekday >= time.Sunday && r.Weekday <= time.Saturday &&
		timeunit.ValidRange(r.StartMinute, r.EndMinute)
}

func (r AvailabilityRule) Validate() error {
	if strings.TrimSpace(r.MentorID) == "" {
		return fmt.Errorf("%w: mentor_id is required", ErrValidation)
	}
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return fmt.Errorf("%w: weekday must be 0-6 (got %d)", ErrValidation, r.Weekday)
	}
	if !timeunit.ValidRange(r.StartMinute, r.EndMinute) {
		return fmt.Errorf("%w: start_minute must be before end_minute within 0-1440 (got %d-%d)", ErrValidation, r.StartMinute, r.EndMinute)
	}
	if _, err := timeunit.LoadLocation(r.Timezone); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// AvailabilityException overrides one calendar date. IsAvailable=false blocks the range,
// IsAvailable=true opens it even when no rule covers it.
//
// Timezone is optional. Without it the exception is read in the local frame of whatever
// it is compared against, and open-extra ranges use the mentor's fallback timezone.
type AvailabilityException struct {
	ID          string
	MentorID    string
	Date        timeunit.Date
	StartMinute timeunit.Minute
	EndMinute   timeunit.Minute
	IsAvailable bool
	Notes       string
	Timezone    string
	CreatedAt   time.Time
}

func (e AvailabilityException) IsBlock() bool { return !e.IsAvailable }

func (e AvailabilityException) ValidShape() bool {
	return !e.Date.IsZero() && timeunit.ValidRange(e.StartMinute, e.EndMinute)
}

func (e AvailabilityException) Validate() error {
	if strings.TrimSpace(e.MentorID) == "" {
		return fmt.Errorf("%w: mentor_id is required", ErrValidation)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: date is required (YYYY-MM-DD)", ErrValidation)
	}
	if _, err := timeunit.ParseDate(e.Date.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !timeunit.ValidRange(e.StartMinute, e.EndMinute) {
		return fmt.Errorf("%w: start_minute must be before end_minute within 0-1440 (got %d-%d)", ErrValidation, e.StartMinute, e.EndMinute)
	}
	if len(e.Notes) > maxNotesLen {
		return fmt.Errorf("%w: notes longer than %d characters", ErrValidation, maxNotesLen)
	}
	if e.Timezone != "" {
		if _, err := timeunit.LoadLocation(e.Timezone); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return nil
}

// WholeDay returns the minute range used when a stored exception has no explicit range.
func WholeDay() (timeunit.Minute, timeunit.Minute) {
	return 0, timeunit.MinutesPerDay
}
