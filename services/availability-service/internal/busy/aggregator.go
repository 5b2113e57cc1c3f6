// Package busy unions booking and external calendar busy intervals for a mentor.
package busy

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"golang.org/x/sync/errgroup"
)

const DefaultStaleAfter = 30 * time.Minute

type BookingSource interface {
	ListBusyBookings(ctx context.Context, mentorID string, from, to time.Time) ([]model.BusyInterval, error)
}

type CalendarSource interface {
	ListExternalBusy(ctx context.Context, mentorID string, from, to time.Time) ([]model.BusyInterval, error)
	ListAccounts(ctx context.Context, mentorID string) ([]model.CalendarAccount, error)
}

// Busy is the unmerged union of all busy intervals plus the sync state behind the external ones.
type Busy struct {
	Intervals []model.BusyInterval
	Accounts  []model.CalendarSyncStatus
}

type Aggregator struct {
	bookings   BookingSource
	calendars  CalendarSource
	staleAfter time.Duration
}

// NewAggregator accepts a nil calendar source for deployments without calendar sync.
func NewAggregator(bookings BookingSource, calendars CalendarSource, staleAfter time.Duration) *Aggregator {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Aggregator{bookings: bookings, calendars: calendars, staleAfter: staleAfter}
}

// Collect reads all sources concurrently. Any read failure fails the call; overlapping
// intervals are returned as they are.
func (a *Aggregator) Collect(ctx context.Context, mentorID string, from, to, now time.Time) (Busy, error) {
	var (
		bookings, external []model.BusyInterval
		accounts           []model.CalendarAccount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if bookings, err = a.bookings.ListBusyBookings(gctx, mentorID, from, to); err != nil {
			return fmt.Errorf("booking busy intervals: %w", err)
		}
		return nil
	})
	if a.calendars != nil {
		g.Go(func() error {
			var err error
			if external, err = a.calendars.ListExternalBusy(gctx, mentorID, from, to); err != nil {
				return fmt.Errorf("calendar busy intervals: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			if accounts, err = a.calendars.ListAccounts(gctx, mentorID); err != nil {
				return fmt.Errorf("calendar accounts: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Busy{}, err
	}

	out := Busy{Intervals: make([]model.BusyInterval, 0, len(bookings)+len(external))}
	out.Intervals = append(out.Intervals, bookings...)
	out.Intervals = append(out.Intervals, external...)
	for _, acct := range accounts {
		out.Accounts = append(out.Accounts, a.Status(acct, now))
	}
	return out, nil
}

// Status summarizes an account's sync state. An enabled account is stale when it never synced,
// its last sync is older than the threshold, or the last attempt failed.
func (a *Aggregator) Status(acct model.CalendarAccount, now time.Time) model.CalendarSyncStatus {
	s := model.CalendarSyncStatus{
		AccountID:    acct.ID,
		Provider:     acct.Provider,
		Email:        acct.Email,
		SyncEnabled:  acct.SyncEnabled,
		LastSyncedAt: acct.LastSyncedAt,
		LastError:    acct.LastError,
	}
	if acct.SyncEnabled {
		s.Stale = acct.LastSyncedAt == nil || now.Sub(*acct.LastSyncedAt) > a.staleAfter || acct.LastError != ""
	}
	return s
}
