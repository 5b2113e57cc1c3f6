package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/storage"
)

var calendarProviders = map[string]bool{
	"google":    true,
	"microsoft": true,
}

type calendarAccountItem struct {
	syncStatusItem
	MentorID  string `json:"mentor_id"`
	ExpiresAt string `json:"expires_at,omitempty"`
	CreatedAt string `json:"created_at"`
}

type createCalendarAccountRequest struct {
	MentorID     string `json:"mentor_id"`
	Provider     string `json:"provider"`
	Email        string `json:"email"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
	SyncEnabled  *bool  `json:"sync_enabled"`
}

type patchCalendarAccountRequest struct {
	ID          string `json:"id"`
	SyncEnabled *bool  `json:"sync_enabled"`
}

// ManageCalendarAccounts serves GET (?mentor_id, sync status per account), POST (register account),
// PATCH (toggle sync) and DELETE (?id, disconnect).
func (h *Handler) ManageCalendarAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listCalendarAccounts(w, r)
	case http.MethodPost:
		h.createCalendarAccount(w, r)
	case http.MethodPatch:
		h.patchCalendarAccount(w, r)
	case http.MethodDelete:
		h.deleteCalendarAccount(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listCalendarAccounts(w http.ResponseWriter, r *http.Request) {
	mentorID := strings.TrimSpace(r.URL.Query().Get("mentor_id"))
	if mentorID == "" {
		http.Error(w, "mentor_id is required", http.StatusBadRequest)
		return
	}
	if !canWrite(r, mentorID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	accounts, err := h.Calendars.ListAccounts(r.Context(), mentorID)
	if err != nil {
		http.Error(w, "failed to list calendar accounts", http.StatusInternalServerError)
		return
	}
	now := h.Now()
	items := make([]calendarAccountItem, 0, len(accounts))
	for _, a := range accounts {
		items = append(items, h.toCalendarAccountItem(a, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createCalendarAccount(w http.ResponseWriter, r *http.Request) {
	var req createCalendarAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.MentorID = strings.TrimSpace(req.MentorID)
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	req.Email = strings.TrimSpace(req.Email)
	if req.MentorID == "" {
		http.Error(w, "mentor_id is required", http.StatusBadRequest)
		return
	}
	if !canWrite(r, req.MentorID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if !calendarProviders[req.Provider] {
		http.Error(w, "provider must be google or microsoft", http.StatusBadRequest)
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	acct := model.CalendarAccount{
		MentorID:     req.MentorID,
		Provider:     req.Provider,
		Email:        req.Email,
		SyncEnabled:  true,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	}
	if req.SyncEnabled != nil {
		acct.SyncEnabled = *req.SyncEnabled
	}
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			http.Error(w, "invalid expires_at", http.StatusBadRequest)
			return
		}
		acct.ExpiresAt = &t
	}

	created, err := h.Calendars.CreateAccount(r.Context(), acct)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "calendar account already connected", http.StatusConflict)
			return
		}
		h.Logger.Error("create calendar account failed", "mentor_id", req.MentorID, "err", err)
		http.Error(w, "failed to create calendar account", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, h.toCalendarAccountItem(created, h.Now()))
}

func (h *Handler) patchCalendarAccount(w http.ResponseWriter, r *http.Request) {
	var req patchCalendarAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || req.SyncEnabled == nil {
		http.Error(w, "id and sync_enabled are required", http.StatusBadRequest)
		return
	}
	if !h.ownsCalendarAccount(w, r, req.ID) {
		return
	}

	acct, err := h.Calendars.SetSyncEnabled(r.Context(), req.ID, *req.SyncEnabled)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "calendar account not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("update calendar account failed", "account_id", req.ID, "err", err)
		http.Error(w, "failed to update calendar account", http.StatusInternalServerError)
		return
	}
	h.afterWrite(r.Context(), acct.MentorID)
	writeJSON(w, http.StatusOK, h.toCalendarAccountItem(acct, h.Now()))
}

func (h *Handler) deleteCalendarAccount(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if !h.ownsCalendarAccount(w, r, id) {
		return
	}

	acct, err := h.Calendars.DeleteAccount(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "calendar account not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("delete calendar account failed", "account_id", id, "err", err)
		http.Error(w, "failed to delete calendar account", http.StatusInternalServerError)
		return
	}
	h.afterWrite(r.Context(), acct.MentorID)
	w.WriteHeader(http.StatusNoContent)
}

// SyncCalendarAccount serves POST ?id and asks the sync collaborator to refresh the account now.
func (h *Handler) SyncCalendarAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if !h.ownsCalendarAccount(w, r, id) {
		return
	}

	acct, err := h.Calendars.RequestSync(r.Context(), id, h.Now().UTC())
	switch {
	case err == nil:
	case storage.IsNotFound(err):
		http.Error(w, "calendar account not found", http.StatusNotFound)
		return
	case errors.Is(err, storage.ErrSyncDisabled):
		http.Error(w, "calendar sync is disabled for this account", http.StatusConflict)
		return
	case errors.Is(err, storage.ErrTokensUnreadable):
		h.afterWrite(r.Context(), acct.MentorID)
		http.Error(w, "calendar account must be reconnected", http.StatusConflict)
		return
	default:
		h.Logger.Error("calendar sync request failed", "account_id", id, "err", err)
		http.Error(w, "failed to request calendar sync", http.StatusInternalServerError)
		return
	}
	h.afterWrite(r.Context(), acct.MentorID)
	writeJSON(w, http.StatusAccepted, h.toCalendarAccountItem(acct, h.Now()))
}

// ownsCalendarAccount loads the account and writes 404/403 itself when the caller may not change it.
func (h *Handler) ownsCalendarAccount(w http.ResponseWriter, r *http.Request, id string) bool {
	acct, err := h.Calendars.GetAccount(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "calendar account not found", http.StatusNotFound)
			return false
		}
		http.Error(w, "failed to load calendar account", http.StatusInternalServerError)
		return false
	}
	if !canWrite(r, acct.MentorID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (h *Handler) toCalendarAccountItem(a model.CalendarAccount, now time.Time) calendarAccountItem {
	status := model.CalendarSyncStatus{
		AccountID:    a.ID,
		Provider:     a.Provider,
		Email:        a.Email,
		SyncEnabled:  a.SyncEnabled,
		LastSyncedAt: a.LastSyncedAt,
		LastError:    a.LastError,
	}
	if h.SyncStatus != nil {
		status = h.SyncStatus(a, now)
	}
	return calendarAccountItem{
		syncStatusItem: toSyncStatusItem(status),
		MentorID:       a.MentorID,
		ExpiresAt:      formatTimePtr(a.ExpiresAt),
		CreatedAt:      formatTime(a.CreatedAt),
	}
}
