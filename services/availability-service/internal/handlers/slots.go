package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/resolver"
)

type labelItem struct {
	Date     string `json:"date"`
	DayLabel string `json:"day_label"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
	Text     string `json:"text"`
}

type slotItem struct {
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Available bool      `json:"available"`
	Origin    string    `json:"origin"`
	Viewer    labelItem `json:"viewer"`
	Mentor    labelItem `json:"mentor"`
}

type dayItem struct {
	Date     string     `json:"date"`
	DayLabel string     `json:"day_label"`
	Slots    []slotItem `json:"slots"`
}

type syncStatusItem struct {
	AccountID    string `json:"account_id"`
	Provider     string `json:"provider"`
	Email        string `json:"email"`
	SyncEnabled  bool   `json:"sync_enabled"`
	LastSyncedAt string `json:"last_synced_at,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	Stale        bool   `json:"stale"`
}

type slotsResponse struct {
	MentorID       string           `json:"mentor_id"`
	MentorTimezone string           `json:"mentor_timezone"`
	ViewerTimezone string           `json:"viewer_timezone"`
	GeneratedAt    string           `json:"generated_at"`
	Slots          []slotItem       `json:"slots"`
	Days           []dayItem        `json:"days"`
	Calendar       []syncStatusItem `json:"calendar"`
}

type unknownAvailability struct {
	Error        string `json:"error"`
	Availability string `json:"availability"`
}

// writeResolveError maps resolver failures. Anything but a bad request tells the client that
// availability is unknown, never that the mentor is free or fully booked.
func (h *Handler) writeResolveError(w http.ResponseWriter, mentorID string, err error) {
	switch {
	case errors.Is(err, availability.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, resolver.ErrUpstream):
		h.Logger.Error("slot resolution upstream failure", "mentor_id", mentorID, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, unknownAvailability{Error: "availability data unavailable", Availability: "unknown"})
	default:
		h.Logger.Error("slot resolution failed", "mentor_id", mentorID, "err", err)
		writeJSON(w, http.StatusBadGateway, unknownAvailability{Error: "availability could not be computed", Availability: "unknown"})
	}
}

func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	req := resolver.Request{
		MentorID:       strings.TrimSpace(q.Get("mentor_id")),
		ViewerTimezone: strings.TrimSpace(q.Get("viewer_timezone")),
	}
	if req.MentorID == "" {
		http.Error(w, "mentor_id is required", http.StatusBadRequest)
		return
	}
	var err error
	if req.DurationMinutes, err = intParam(q.Get("duration_minutes")); err != nil {
		http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
		return
	}
	if req.HorizonDays, err = intParam(q.Get("horizon_days")); err != nil {
		http.Error(w, "invalid horizon_days", http.StatusBadRequest)
		return
	}
	if v := q.Get("include_unavailable"); v != "" {
		if req.IncludeUnavailable, err = strconv.ParseBool(v); err != nil {
			http.Error(w, "invalid include_unavailable", http.StatusBadRequest)
			return
		}
	}

	resp, err := h.Resolver.Resolve(r.Context(), req)
	if err != nil {
		h.writeResolveError(w, req.MentorID, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotsResponse(resp))
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	return n, nil
}

func toSlotsResponse(resp resolver.Response) slotsResponse {
	out := slotsResponse{
		MentorID:       resp.MentorID,
		MentorTimezone: resp.MentorTimezone,
		ViewerTimezone: resp.ViewerTimezone,
		GeneratedAt:    formatTime(resp.GeneratedAt),
		Slots:          make([]slotItem, 0, len(resp.Slots)),
		Days:           make([]dayItem, 0, len(resp.Days)),
		Calendar:       make([]syncStatusItem, 0, len(resp.Calendar)),
	}
	for _, s := range resp.Slots {
		out.Slots = append(out.Slots, toSlotItem(s))
	}
	for _, d := range resp.Days {
		day := dayItem{Date: d.Date, DayLabel: d.DayLabel, Slots: make([]slotItem, 0, len(d.Slots))}
		for _, s := range d.Slots {
			day.Slots = append(day.Slots, toSlotItem(s))
		}
		out.Days = append(out.Days, day)
	}
	for _, c := range resp.Calendar {
		out.Calendar = append(out.Calendar, toSyncStatusItem(c))
	}
	return out
}

func toSlotItem(s availability.LabeledSlot) slotItem {
	return slotItem{
		StartTime: formatTime(s.Start),
		EndTime:   formatTime(s.End),
		Available: s.Available,
		Origin:    string(s.Origin),
		Viewer:    labelItem(s.Viewer),
		Mentor:    labelItem(s.Mentor),
	}
}

func toSyncStatusItem(c model.CalendarSyncStatus) syncStatusItem {
	return syncStatusItem{
		AccountID:    c.AccountID,
		Provider:     c.Provider,
		Email:        c.Email,
		SyncEnabled:  c.SyncEnabled,
		LastSyncedAt: formatTimePtr(c.LastSyncedAt),
		LastError:    c.LastError,
		Stale:        c.Stale,
	}
}

type validateSlotRequest struct {
	MentorID  string `json:"mentor_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ValidateSlot answers whether an interval is currently a free slot. The booking collaborator
// calls it before reserving; the reservation itself must still be atomic on its side.
func (h *Handler) ValidateSlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req validateSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.MentorID = strings.TrimSpace(req.MentorID)
	if req.MentorID == "" {
		http.Error(w, "mentor_id is required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}

	err = h.Resolver.ValidateSlot(r.Context(), req.MentorID, start, end)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"available": true})
	case errors.Is(err, resolver.ErrSlotUnavailable):
		writeJSON(w, http.StatusConflict, map[string]bool{"available": false})
	default:
		h.writeResolveError(w, req.MentorID, err)
	}
}
