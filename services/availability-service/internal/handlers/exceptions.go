package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
)

// defaultExceptionWindowDays bounds GET without an explicit to date.
const defaultExceptionWindowDays = 90

type exceptionItem struct {
	ID          string `json:"id"`
	MentorID    string `json:"mentor_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
	Notes       string `json:"notes,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toExceptionItem(ex model.AvailabilityException) exceptionItem {
	return exceptionItem{
		ID:          ex.ID,
		MentorID:    ex.MentorID,
		Date:        ex.Date.String(),
		StartTime:   ex.StartMinute.Clock(),
		EndTime:     ex.EndMinute.Clock(),
		IsAvailable: ex.IsAvailable,
		Notes:       ex.Notes,
		Timezone:    ex.Timezone,
		CreatedAt:   formatTime(ex.CreatedAt),
	}
}

type createExceptionRequest struct {
	MentorID    string `json:"mentor_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
	Notes       string `json:"notes"`
	Timezone    string `json:"timezone"`
}

// ManageExceptions serves GET (?mentor_id&from&to), POST and DELETE (?id=).
func (h *Handler) ManageExceptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listExceptions(w, r)
	case http.MethodPost:
		h.createException(w, r)
	case http.MethodDelete:
		h.deleteException(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listExceptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mentorID := strings.TrimSpace(q.Get("mentor_id"))
	if mentorID == "" {
		http.Error(w, "mentor_id is required", http.StatusBadRequest)
		return
	}
	from := timeunit.DateOf(h.Now(), time.UTC)
	if v := q.Get("from"); v != "" {
		d, err := timeunit.ParseDate(v)
		if err != nil {
			http.Error(w, "invalid from (YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		from = d
	}
	to := from.AddDays(defaultExceptionWindowDays)
	if v := q.Get("to"); v != "" {
		d, err := timeunit.ParseDate(v)
		if err != nil {
			http.Error(w, "invalid to (YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		to = d
	}
	if to.Before(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return
	}

	exs, err := h.Exceptions.ListByMentorInRange(r.Context(), mentorID, from, to)
	if err != nil {
		http.Error(w, "failed to list exceptions", http.StatusInternalServerError)
		return
	}
	items := make([]exceptionItem, 0, len(exs))
	for _, ex := range exs {
		items = append(items, toExceptionItem(ex))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createException(w http.ResponseWriter, r *http.Request) {
	var req createExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.MentorID = strings.TrimSpace(req.MentorID)
	if req.MentorID == "" {
		http.Error(w, "mentor_id is required", http.StatusBadRequest)
		return
	}
	if !canWrite(r, req.MentorID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	date, err := timeunit.ParseDate(req.Date)
	if err != nil {
		http.Error(w, "invalid date (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	// Omitted times mean the whole day.
	start, end := model.WholeDay()
	if req.StartTime != "" || req.EndTime != "" {
		if start, err = timeunit.ParseClock(req.StartTime); err != nil {
			http.Error(w, "invalid start_time (HH:MM)", http.StatusBadRequest)
			return
		}
		if end, err = timeunit.ParseClock(req.EndTime); err != nil {
			http.Error(w, "invalid end_time (HH:MM)", http.StatusBadRequest)
			return
		}
	}

	ex, err := h.Exceptions.Create(r.Context(), model.AvailabilityException{
		MentorID:    req.MentorID,
		Date:        date,
		StartMinute: start,
		EndMinute:   end,
		IsAvailable: req.IsAvailable,
		Notes:       strings.TrimSpace(req.Notes),
		Timezone:    strings.TrimSpace(req.Timezone),
	})
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.Logger.Error("create exception failed", "mentor_id", req.MentorID, "err", err)
		http.Error(w, "failed to create exception", http.StatusInternalServerError)
		return
	}
	h.afterWrite(r.Context(), ex.MentorID)
	writeJSON(w, http.StatusCreated, toExceptionItem(ex))
}

func (h *Handler) deleteException(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	existing, err := h.Exceptions.Get(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "exception not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load exception", http.StatusInternalServerError)
		return
	}
	if !canWrite(r, existing.MentorID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ex, err := h.Exceptions.Delete(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "exception not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete exception", http.StatusInternalServerError)
		return
	}
	h.afterWrite(r.Context(), ex.MentorID)
	w.WriteHeader(http.StatusNoContent)
}
