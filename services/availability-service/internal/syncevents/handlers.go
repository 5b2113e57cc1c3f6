// Package syncevents applies events from the calendar sync and booking collaborators.
package syncevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/mentorslots/libs/kafkax"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const (
	TopicCalendarBusySynced = "calendar.busy.synced.v1"
	TopicAppointmentBooked  = "booking.appointment.booked.v1"
	TopicAppointmentCancel  = "booking.appointment.cancelled.v1"
)

// maxSyncErrorLen bounds the stored provider error message.
const maxSyncErrorLen = 500

type CalendarStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	AccountMentor(ctx context.Context, tx pgx.Tx, accountID string) (string, error)
	ReplaceBusyEvents(ctx context.Context, tx pgx.Tx, accountID string, windowStart, windowEnd time.Time, events []model.ExternalBusyEvent, syncedAt time.Time) error
	RecordSyncError(ctx context.Context, tx pgx.Tx, accountID, message string) error
}

type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	RecordTx(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error)
}

type Invalidator interface {
	Bump(ctx context.Context, mentorID string) error
}

// CalendarSynced is published by the calendar sync collaborator after reading one account's
// calendar. Events replace everything stored for the account inside [window_start, window_end).
// A non-empty error means the provider read failed and nothing is replaced.
type CalendarSynced struct {
	AccountID   string      `json:"account_id"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	SyncedAt    time.Time   `json:"synced_at"`
	Events      []BusyEvent `json:"events"`
	Error       string      `json:"error,omitempty"`
}

type BusyEvent struct {
	ExternalID string    `json:"external_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Title      string    `json:"title,omitempty"`
}

// AppointmentChanged is the subset of booking events the slot cache cares about.
type AppointmentChanged struct {
	AppointmentID string `json:"appointment_id"`
	MentorID      string `json:"mentor_id"`
}

type Handlers struct {
	calendars CalendarStore
	inbox     Inbox
	cache     Invalidator
	logger    *slog.Logger
	now       func() time.Time
}

func New(calendars CalendarStore, inbox Inbox, cache Invalidator, logger *slog.Logger) *Handlers {
	return &Handlers{calendars: calendars, inbox: inbox, cache: cache, logger: logger, now: time.Now}
}

// Routes maps each consumed topic to its handler.
func (h *Handlers) Routes() map[string]consumer.Handler {
	return map[string]consumer.Handler{
		TopicCalendarBusySynced: h.CalendarBusySynced,
		TopicAppointmentBooked:  h.AppointmentChanged,
		TopicAppointmentCancel:  h.AppointmentChanged,
	}
}

// CalendarBusySynced stores the synced busy events, or the sync error, together with the inbox row.
// Malformed payloads are logged and dropped; store failures are returned.
func (h *Handlers) CalendarBusySynced(ctx context.Context, meta kafkax.EventMeta, msg kafka.Message) error {
	var p CalendarSynced
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		h.logger.Error("invalid calendar sync payload", "event_id", meta.EventID, "err", err)
		return nil
	}
	p.AccountID = strings.TrimSpace(p.AccountID)
	if p.AccountID == "" {
		h.logger.Error("calendar sync payload missing account_id", "event_id", meta.EventID)
		return nil
	}
	if p.Error == "" && !p.WindowEnd.After(p.WindowStart) {
		h.logger.Error("calendar sync payload has an empty window", "event_id", meta.EventID, "account_id", p.AccountID)
		return nil
	}
	if p.SyncedAt.IsZero() {
		p.SyncedAt = h.now()
	}

	tx, err := h.calendars.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := h.inbox.RecordTx(ctx, tx, meta.EventID, meta.EventType)
	if err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	if !fresh {
		h.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}

	mentorID, err := h.calendars.AccountMentor(ctx, tx, p.AccountID)
	if err != nil {
		if storage.IsNotFound(err) {
			h.logger.Warn("calendar sync for unknown account", "event_id", meta.EventID, "account_id", p.AccountID)
			return nil
		}
		return err
	}

	if p.Error != "" {
		if err := h.calendars.RecordSyncError(ctx, tx, p.AccountID, truncateSyncError(p.Error)); err != nil {
			return err
		}
	} else {
		events, dropped := busyEvents(p)
		if dropped > 0 {
			h.logger.Warn("calendar sync events dropped", "account_id", p.AccountID, "dropped", dropped)
		}
		if err := h.calendars.ReplaceBusyEvents(ctx, tx, p.AccountID, p.WindowStart, p.WindowEnd, events, p.SyncedAt); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	h.bump(ctx, mentorID)
	return nil
}

// busyEvents keeps well-formed events, last one wins per external id.
func busyEvents(p CalendarSynced) ([]model.ExternalBusyEvent, int) {
	index := make(map[string]int, len(p.Events))
	out := make([]model.ExternalBusyEvent, 0, len(p.Events))
	dropped := 0
	for _, e := range p.Events {
		id := strings.TrimSpace(e.ExternalID)
		if id == "" || !e.EndTime.After(e.StartTime) {
			dropped++
			continue
		}
		ev := model.ExternalBusyEvent{ExternalID: id, Start: e.StartTime.UTC(), End: e.EndTime.UTC(), Title: e.Title}
		if i, ok := index[id]; ok {
			out[i] = ev
			dropped++
			continue
		}
		index[id] = len(out)
		out = append(out, ev)
	}
	return out, dropped
}

// AppointmentChanged invalidates cached slots of the mentor whose booking changed.
func (h *Handlers) AppointmentChanged(ctx context.Context, meta kafkax.EventMeta, msg kafka.Message) error {
	var p AppointmentChanged
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		h.logger.Error("invalid appointment payload", "event_id", meta.EventID, "err", err)
		return nil
	}
	if strings.TrimSpace(p.MentorID) == "" {
		h.logger.Error("appointment payload missing mentor_id", "event_id", meta.EventID)
		return nil
	}

	fresh, err := h.inbox.Record(ctx, meta.EventID, meta.EventType)
	if err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	if !fresh {
		h.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}
	h.bump(ctx, p.MentorID)
	return nil
}

func (h *Handlers) bump(ctx context.Context, mentorID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Bump(ctx, mentorID); err != nil {
		h.logger.Warn("slot cache invalidation failed", "mentor_id", mentorID, "err", err)
	}
}

// truncateSyncError cuts msg to at most maxSyncErrorLen bytes on a rune boundary, so the stored
// text stays valid UTF-8.
func truncateSyncError(msg string) string {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if len(msg) <= maxSyncErrorLen {
		return msg
	}
	cut := maxSyncErrorLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
