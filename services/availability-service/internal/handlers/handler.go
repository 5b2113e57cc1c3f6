package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/resolver"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
)

type SlotResolver interface {
	Resolve(ctx context.Context, req resolver.Request) (resolver.Response, error)
	ValidateSlot(ctx context.Context, mentorID string, start, end time.Time) error
}

type RuleStore interface {
	ListByMentor(ctx context.Context, mentorID string, activeOnly bool) ([]model.AvailabilityRule, error)
	Get(ctx context.Context, id string) (model.AvailabilityRule, error)
	Create(ctx context.Context, rule model.AvailabilityRule) (model.AvailabilityRule, error)
	SetActive(ctx context.Context, id string, active bool) (model.AvailabilityRule, error)
	Delete(ctx context.Context, id string) (model.AvailabilityRule, error)
}

type ExceptionStore interface {
	ListByMentorInRange(ctx context.Context, mentorID string, from, to timeunit.Date) ([]model.AvailabilityException, error)
	Get(ctx context.Context, id string) (model.AvailabilityException, error)
	Create(ctx context.Context, ex model.AvailabilityException) (model.AvailabilityException, error)
	Delete(ctx context.Context, id string) (model.AvailabilityException, error)
}

type CalendarStore interface {
	ListAccounts(ctx context.Context, mentorID string) ([]model.CalendarAccount, error)
	GetAccount(ctx context.Context, id string) (model.CalendarAccount, error)
	CreateAccount(ctx context.Context, acct model.CalendarAccount) (model.CalendarAccount, error)
	SetSyncEnabled(ctx context.Context, id string, enabled bool) (model.CalendarAccount, error)
	DeleteAccount(ctx context.Context, id string) (model.CalendarAccount, error)
	RequestSync(ctx context.Context, id string, now time.Time) (model.CalendarAccount, error)
}

// Invalidator drops cached slot responses of a mentor after a write.
type Invalidator interface {
	Bump(ctx context.Context, mentorID string) error
}

type Deps struct {
	Resolver    SlotResolver
	Rules       RuleStore
	Exceptions  ExceptionStore
	Calendars   CalendarStore
	Invalidator Invalidator
	// SyncStatus summarizes an account; busy.Aggregator.Status in production.
	SyncStatus func(model.CalendarAccount, time.Time) model.CalendarSyncStatus
	Logger     *slog.Logger
	Now        func() time.Time
}

type Handler struct {
	Deps
}

func New(deps Deps) *Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{Deps: deps}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/mentors/slots", h.ListSlots)
	mux.HandleFunc("/api/v1/mentors/slots/validate", h.ValidateSlot)
	mux.HandleFunc("/api/v1/mentors/availability/rules", h.ManageRules)
	mux.HandleFunc("/api/v1/mentors/availability/exceptions", h.ManageExceptions)
	if h.Calendars != nil {
		mux.HandleFunc("/api/v1/mentors/calendar-accounts", h.ManageCalendarAccounts)
		mux.HandleFunc("/api/v1/mentors/calendar-accounts/sync", h.SyncCalendarAccount)
	}
}

// Identity headers are set by the upstream gateway after authentication.
const (
	headerMentorID = "X-Mentor-Id"
	headerRole     = "X-Role"
	roleAdmin      = "admin"
)

// canWrite reports whether the caller may change mentorID's records.
func canWrite(r *http.Request, mentorID string) bool {
	if strings.EqualFold(strings.TrimSpace(r.Header.Get(headerRole)), roleAdmin) {
		return true
	}
	caller := strings.TrimSpace(r.Header.Get(headerMentorID))
	return caller != "" && caller == mentorID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// afterWrite invalidates cached slots; a failure only delays visibility until the cache TTL.
func (h *Handler) afterWrite(ctx context.Context, mentorID string) {
	if h.Invalidator == nil {
		return
	}
	if err := h.Invalidator.Bump(ctx, mentorID); err != nil {
		h.Logger.Warn("slot cache invalidation failed", "mentor_id", mentorID, "err", err)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
