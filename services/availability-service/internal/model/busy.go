package model

import "time"

type BusyOrigin string

const (
	OriginBooking          BusyOrigin = "booking"
	OriginExternalCalendar BusyOrigin = "external-calendar"
)

// BusyInterval is an absolute range the mentor cannot be booked in.
type BusyInterval struct {
	Start    time.Time
	End      time.Time
	Origin   BusyOrigin
	SourceID string
}

// Overlaps uses half-open semantics: abutting intervals do not conflict.
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}

// CalendarSyncStatus is what the slot consumer needs to surface sync staleness.
type CalendarSyncStatus struct {
	AccountID    string
	Provider     string
	Email        string
	SyncEnabled  bool
	LastSyncedAt *time.Time
	LastError    string
	Stale        bool
}

// CalendarAccount is an external calendar connected by a mentor. Tokens are sealed at rest.
type CalendarAccount struct {
	ID           string
	MentorID     string
	Provider     string
	Email        string
	SyncEnabled  bool
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	LastSyncedAt *time.Time
	LastError    string
	CreatedAt    time.Time
}

// ExternalBusyEvent is one busy block reported by the calendar sync collaborator.
type ExternalBusyEvent struct {
	ExternalID string
	Start      time.Time
	End        time.Time
	Title      string
}
