package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
)

type ruleItem struct {
	ID          string `json:"id"`
	MentorID    string `json:"mentor_id"`
	Weekday     int    `json:"weekday"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Timezone    string `json:"timezone"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at"`
}

func toRuleItem(r model.AvailabilityRule) ruleItem {
	return ruleItem{
		ID:          r.ID,
		MentorID:    r.MentorID,
		Weekday:     int(r.Weekday),
		StartTime:   r.StartMinute.Clock(),
		EndTime:     r.EndMinute.Clock(),
		StartMinute: int(r.StartMinute),
		EndMinute:   int(r.EndMinute),
		Timezone:    r.Timezone,
		IsActive:    r.IsActive,
		CreatedAt:   formatTime(r.CreatedAt),
	}
}

type createRuleRequest struct {
	MentorID  string `json:"mentor_id"`
	Weekday   *int   `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Timezone  string `json:"timezone"`
	IsActive  *bool  `json:"is_active"`
}

type patchRuleRequest struct {
	ID       string `json:"id"`
	IsActive *bool  `json:"is_active"`
}

// ManageRules serves GET (list), POST (create), PATCH (toggle is_active) and DELETE (?id=).
func (h *Handler) ManageRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listRules(w, r)
	case http.MethodPost:
		h.createRule(w, r)
	case http.MethodPatch:
		h.patchRule(w, r)
	case http.MethodDelete:
		h.deleteRule(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	mentorID := strings.TrimSpace(r.URL.Query().Get("mentor_id"))
	if mentorID == "" {
		http.Error(w, "mentor_id is required", http.StatusBadRequest)
		return
	}
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active_only"))

	rules, err := h.Rules.ListByMentor(r.Context(), mentorID, activeOnly)
	if err != nil {
		http.Error(w, "failed to list rules", http.StatusInternalServerError)
		return
	}
	items := make([]ruleItem, 0, len(rules))
	for _, rule := range rules {
		items = append(items, toRuleItem(rule))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.MentorID = strings.TrimSpace(req.MentorID)
	if req.MentorID == "" || req.Weekday == nil {
		http.Error(w, "mentor_id and weekday are required", http.StatusBadRequest)
		return
	}
	if !canWrite(r, req.MentorID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	start, err := timeunit.ParseClock(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time (HH:MM)", http.StatusBadRequest)
		return
	}
	end, err := timeunit.ParseClock(req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time (HH:MM)", http.StatusBadRequest)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	rule, err := h.Rules.Create(r.Context(), model.AvailabilityRule{
		MentorID:    req.MentorID,
		Weekday:     time.Weekday(*req.Weekday),
		StartMinute: start,
		EndMinute:   end,
		Timezone:    strings.TrimSpace(req.Timezone),
		IsActive:    active,
	})
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.Logger.Error("create rule failed", "mentor_id", req.MentorID, "err", err)
		http.Error(w, "failed to create rule", http.StatusInternalServerError)
		return
	}
	h.afterWrite(r.Context(), rule.MentorID)
	writeJSON(w, http.StatusCreated, toRuleItem(rule))
}

func (h *Handler) patchRule(w http.ResponseWriter, r *http.Request) {
	var req patchRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || req.IsActive == nil {
		http.Error(w, "id and is_active are required", http.StatusBadRequest)
		return
	}
	if !h.ownsRule(w, r, req.ID) {
		return
	}

	rule, err := h.Rules.SetActive(r.Context(), req.ID, *req.IsActive)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update rule", http.StatusInternalServerError)
		return
	}
	h.afterWrite(r.Context(), rule.MentorID)
	writeJSON(w, http.StatusOK, toRuleItem(rule))
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if !h.ownsRule(w, r, id) {
		return
	}

	rule, err := h.Rules.Delete(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete rule", http.StatusInternalServerError)
		return
	}
	h.afterWrite(r.Context(), rule.MentorID)
	w.WriteHeader(http.StatusNoContent)
}

// ownsRule loads the rule and writes 404/403 itself when the caller may not change it.
func (h *Handler) ownsRule(w http.ResponseWriter, r *http.Request, id string) bool {
	rule, err := h.Rules.Get(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return false
		}
		http.Error(w, "failed to load rule", http.StatusInternalServerError)
		return false
	}
	if !canWrite(r, rule.MentorID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}
