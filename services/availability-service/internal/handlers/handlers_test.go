package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/resolver"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
)

type fakeResolver struct {
	resp        resolver.Response
	err         error
	validateErr error
	lastReq     resolver.Request
}

func (f *fakeResolver) Resolve(ctx context.Context, req resolver.Request) (resolver.Response, error) {
	f.lastReq = req
	return f.resp, f.err
}

func (f *fakeResolver) ValidateSlot(ctx context.Context, mentorID string, start, end time.Time) error {
	return f.validateErr
}

type fakeRuleStore struct {
	rules   map[string]model.AvailabilityRule
	created []model.AvailabilityRule
}

func (f *fakeRuleStore) ListByMentor(ctx context.Context, mentorID string, activeOnly bool) ([]model.AvailabilityRule, error) {
	var out []model.AvailabilityRule
	for _, r := range f.rules {
		if r.MentorID == mentorID && (r.IsActive || !activeOnly) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleStore) Get(ctx context.Context, id string) (model.AvailabilityRule, error) {
	r, ok := f.rules[id]
	if !ok {
		return model.AvailabilityRule{}, pgx.ErrNoRows
	}
	return r, nil
}

func (f *fakeRuleStore) Create(ctx context.Context, rule model.AvailabilityRule) (model.AvailabilityRule, error) {
	if err := rule.Validate(); err != nil {
		return model.AvailabilityRule{}, err
	}
	rule.ID = fmt.Sprintf("r-%d", len(f.created)+1)
	f.created = append(f.created, rule)
	return rule, nil
}

func (f *fakeRuleStore) SetActive(ctx context.Context, id string, active bool) (model.AvailabilityRule, error) {
	r, err := f.Get(ctx, id)
	if err != nil {
		return r, err
	}
	r.IsActive = active
	f.rules[id] = r
	return r, nil
}

func (f *fakeRuleStore) Delete(ctx context.Context, id string) (model.AvailabilityRule, error) {
	r, err := f.Get(ctx, id)
	if err != nil {
		return r, err
	}
	delete(f.rules, id)
	return r, nil
}

type fakeExceptionStore struct {
	created []model.AvailabilityException
	from    timeunit.Date
	to      timeunit.Date
}

func (f *fakeExceptionStore) ListByMentorInRange(ctx context.Context, mentorID string, from, to timeunit.Date) ([]model.AvailabilityException, error) {
	f.from, f.to = from, to
	return f.created, nil
}

func (f *fakeExceptionStore) Get(ctx context.Context, id string) (model.AvailabilityException, error) {
	return model.AvailabilityException{}, pgx.ErrNoRows
}

func (f *fakeExceptionStore) Create(ctx context.Context, ex model.AvailabilityException) (model.AvailabilityException, error) {
	if err := ex.Validate(); err != nil {
		return model.AvailabilityException{}, err
	}
	ex.ID = "x-1"
	f.created = append(f.created, ex)
	return ex, nil
}

func (f *fakeExceptionStore) Delete(ctx context.Context, id string) (model.AvailabilityException, error) {
	return model.AvailabilityException{}, pgx.ErrNoRows
}

type fakeCalendarStore struct {
	accounts      []model.CalendarAccount
	err           error
	syncRequested []string
	requestedAt   time.Time
}

func (f *fakeCalendarStore) ListAccounts(ctx context.Context, mentorID string) ([]model.CalendarAccount, error) {
	return f.accounts, nil
}

func (f *fakeCalendarStore) find(id string) int {
	for i, a := range f.accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeCalendarStore) GetAccount(ctx context.Context, id string) (model.CalendarAccount, error) {
	i := f.find(id)
	if i < 0 {
		return model.CalendarAccount{}, pgx.ErrNoRows
	}
	return f.accounts[i], nil
}

func (f *fakeCalendarStore) SetSyncEnabled(ctx context.Context, id string, enabled bool) (model.CalendarAccount, error) {
	i := f.find(id)
	if i < 0 {
		return model.CalendarAccount{}, pgx.ErrNoRows
	}
	f.accounts[i].SyncEnabled = enabled
	return f.accounts[i], nil
}

func (f *fakeCalendarStore) DeleteAccount(ctx context.Context, id string) (model.CalendarAccount, error) {
	i := f.find(id)
	if i < 0 {
		return model.CalendarAccount{}, pgx.ErrNoRows
	}
	a := f.accounts[i]
	f.accounts = append(f.accounts[:i], f.accounts[i+1:]...)
	return a, nil
}

func (f *fakeCalendarStore) RequestSync(ctx context.Context, id string, now time.Time) (model.CalendarAccount, error) {
	i := f.find(id)
	if i < 0 {
		return model.CalendarAccount{}, pgx.ErrNoRows
	}
	a := f.accounts[i]
	if !a.SyncEnabled {
		return a, storage.ErrSyncDisabled
	}
	f.syncRequested = append(f.syncRequested, id)
	f.requestedAt = now
	return a, nil
}

func (f *fakeCalendarStore) CreateAccount(ctx context.Context, acct model.CalendarAccount) (model.CalendarAccount, error) {
	if f.err != nil {
		return model.CalendarAccount{}, f.err
	}
	acct.ID = "acct-1"
	acct.AccessToken, acct.RefreshToken = "", ""
	return acct, nil
}

type countingInvalidator struct {
	bumped []string
}

func (c *countingInvalidator) Bump(ctx context.Context, mentorID string) error {
	c.bumped = append(c.bumped, mentorID)
	return nil
}

type fixture struct {
	mux        *http.ServeMux
	resolver   *fakeResolver
	rules      *fakeRuleStore
	exceptions *fakeExceptionStore
	calendars  *fakeCalendarStore
	inv        *countingInvalidator
}

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		mux:        http.NewServeMux(),
		resolver:   &fakeResolver{},
		rules:      &fakeRuleStore{rules: map[string]model.AvailabilityRule{}},
		exceptions: &fakeExceptionStore{},
		calendars:  &fakeCalendarStore{},
		inv:        &countingInvalidator{},
	}
	New(Deps{
		Resolver:    f.resolver,
		Rules:       f.rules,
		Exceptions:  f.exceptions,
		Calendars:   f.calendars,
		Invalidator: f.inv,
		Logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Now:         func() time.Time { return fixedNow },
	}).Register(f.mux)
	return f
}

func (f *fixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func asMentor(id string) map[string]string { return map[string]string{"X-Mentor-Id": id} }

func TestListSlots(t *testing.T) {
	f := newFixture()
	start := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)
	synced := fixedNow.Add(-5 * time.Minute)
	slot := availability.LabeledSlot{
		Slot:   model.Slot{Start: start, End: start.Add(time.Hour), Available: true, Origin: model.SlotFromRule},
		Viewer: availability.Label{Date: "2026-10-19", DayLabel: "Mon, Oct 19", Start: "10:00 PM", End: "11:00 PM", Timezone: "Asia/Tokyo"},
	}
	f.resolver.resp = resolver.Response{
		MentorID:       "m-1",
		ViewerTimezone: "Asia/Tokyo",
		GeneratedAt:    fixedNow,
		Slots:          []availability.LabeledSlot{slot},
		Days:           []availability.Day{{Date: "2026-10-19", DayLabel: "Mon, Oct 19", Slots: []availability.LabeledSlot{slot}}},
		Calendar:       []model.CalendarSyncStatus{{AccountID: "a-1", Provider: "google", SyncEnabled: true, LastSyncedAt: &synced}},
	}

	rec := f.do(http.MethodGet, "/api/v1/mentors/slots?mentor_id=m-1&duration_minutes=30&horizon_days=7&viewer_timezone=Asia/Tokyo&include_unavailable=true", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	want := resolver.Request{MentorID: "m-1", DurationMinutes: 30, HorizonDays: 7, ViewerTimezone: "Asia/Tokyo", IncludeUnavailable: true}
	if f.resolver.lastReq != want {
		t.Fatalf("unexpected request %+v", f.resolver.lastReq)
	}

	var body slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Slots) != 1 || body.Slots[0].StartTime != "2026-10-19T13:00:00Z" || body.Slots[0].Viewer.Start != "10:00 PM" {
		t.Fatalf("unexpected slots %+v", body.Slots)
	}
	if len(body.Days) != 1 || len(body.Calendar) != 1 || body.Calendar[0].LastSyncedAt != "2026-10-15T11:55:00Z" {
		t.Fatalf("unexpected days/calendar %+v %+v", body.Days, body.Calendar)
	}
}

func TestListSlotsErrorsReportUnknownAvailability(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: rules: timeout", resolver.ErrUpstream), http.StatusServiceUnavailable},
		{fmt.Errorf("rule r-1: %w", timeunit.ErrUnknownTimezone), http.StatusBadGateway},
	}
	for _, tc := range cases {
		f := newFixture()
		f.resolver.err = tc.err
		rec := f.do(http.MethodGet, "/api/v1/mentors/slots?mentor_id=m-1", "", nil)
		if rec.Code != tc.status {
			t.Fatalf("expected %d, got %d", tc.status, rec.Code)
		}
		var body unknownAvailability
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Availability != "unknown" || body.Error == "" {
			t.Fatalf("unexpected body %+v", body)
		}
	}

	f := newFixture()
	f.resolver.err = fmt.Errorf("%w: horizon too long", availability.ErrInvalidInput)
	if rec := f.do(http.MethodGet, "/api/v1/mentors/slots?mentor_id=m-1", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/mentors/slots?mentor_id=m-1&horizon_days=-1", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative horizon, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/mentors/slots", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without mentor_id, got %d", rec.Code)
	}
}

func TestValidateSlot(t *testing.T) {
	body := `{"mentor_id":"m-1","start_time":"2026-10-19T13:00:00Z","end_time":"2026-10-19T14:00:00Z"}`

	f := newFixture()
	if rec := f.do(http.MethodPost, "/api/v1/mentors/slots/validate", body, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	f.resolver.validateErr = resolver.ErrSlotUnavailable
	rec := f.do(http.MethodPost, "/api/v1/mentors/slots/validate", body, nil)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), `"available":false`) {
		t.Fatalf("expected 409 unavailable, got %d %s", rec.Code, rec.Body.String())
	}

	if rec := f.do(http.MethodPost, "/api/v1/mentors/slots/validate", `{"mentor_id":"m-1","start_time":"soon"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/mentors/slots/validate", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestCreateRule(t *testing.T) {
	f := newFixture()
	body := `{"mentor_id":"m-1","weekday":1,"start_time":"09:00","end_time":"12:00","timezone":"America/New_York"}`

	if rec := f.do(http.MethodPost, "/api/v1/mentors/availability/rules", body, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without identity, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/v1/mentors/availability/rules", body, asMentor("m-2")); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another mentor, got %d", rec.Code)
	}

	rec := f.do(http.MethodPost, "/api/v1/mentors/availability/rules", body, asMentor("m-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var item ruleItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.StartMinute != 540 || item.EndMinute != 720 || !item.IsActive || item.StartTime != "09:00" {
		t.Fatalf("unexpected rule %+v", item)
	}
	if len(f.inv.bumped) != 1 || f.inv.bumped[0] != "m-1" {
		t.Fatalf("expected cache bump for m-1, got %v", f.inv.bumped)
	}

	bad := `{"mentor_id":"m-1","weekday":1,"start_time":"12:00","end_time":"09:00","timezone":"America/New_York"}`
	if rec := f.do(http.MethodPost, "/api/v1/mentors/availability/rules", bad, asMentor("m-1")); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", rec.Code)
	}
	badZone := `{"mentor_id":"m-1","weekday":1,"start_time":"09:00","end_time":"12:00","timezone":"Mars/Olympus"}`
	if rec := f.do(http.MethodPost, "/api/v1/mentors/availability/rules", badZone, asMentor("m-1")); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown timezone, got %d", rec.Code)
	}
	endOfDay := `{"mentor_id":"m-1","weekday":5,"start_time":"20:00","end_time":"24:00","timezone":"UTC"}`
	if rec := f.do(http.MethodPost, "/api/v1/mentors/availability/rules", endOfDay, map[string]string{"X-Role": "admin"}); rec.Code != http.StatusCreated {
		t.Fatalf("expected admin to create a rule ending at 24:00, got %d", rec.Code)
	}
}

func TestPatchAndDeleteRule(t *testing.T) {
	f := newFixture()
	f.rules.rules["r-9"] = model.AvailabilityRule{ID: "r-9", MentorID: "m-1", Weekday: time.Monday, StartMinute: 540, EndMinute: 600, Timezone: "UTC", IsActive: true}

	rec := f.do(http.MethodPatch, "/api/v1/mentors/availability/rules", `{"id":"r-9","is_active":false}`, asMentor("m-1"))
	if rec.Code != http.StatusOK || f.rules.rules["r-9"].IsActive {
		t.Fatalf("expected rule deactivated, got %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/api/v1/mentors/availability/rules?id=r-9", "", asMentor("m-2")); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/api/v1/mentors/availability/rules?id=r-9", "", asMentor("m-1")); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/api/v1/mentors/availability/rules?id=r-9", "", asMentor("m-1")); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	if len(f.inv.bumped) != 2 {
		t.Fatalf("expected two cache bumps, got %v", f.inv.bumped)
	}
}

func TestExceptions(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/v1/mentors/availability/exceptions", `{"mentor_id":"m-1","date":"2026-10-19","is_available":false,"notes":"conference"}`, asMentor("m-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	got := f.exceptions.created[0]
	if got.StartMinute != 0 || got.EndMinute != timeunit.MinutesPerDay || got.IsAvailable {
		t.Fatalf("expected whole-day block, got %+v", got)
	}

	if rec := f.do(http.MethodPost, "/api/v1/mentors/availability/exceptions", `{"mentor_id":"m-1","date":"2026-02-30"}`, asMentor("m-1")); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for impossible date, got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/v1/mentors/availability/exceptions?mentor_id=m-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.exceptions.from.String() != "2026-10-15" || f.exceptions.to.String() != "2027-01-13" {
		t.Fatalf("unexpected default window %s..%s", f.exceptions.from, f.exceptions.to)
	}
	if rec := f.do(http.MethodGet, "/api/v1/mentors/availability/exceptions?mentor_id=m-1&from=2026-10-20&to=2026-10-01", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/api/v1/mentors/availability/exceptions?id=missing", "", asMentor("m-1")); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCalendarAccounts(t *testing.T) {
	f := newFixture()
	body := `{"mentor_id":"m-1","provider":"Google","email":"mentor@example.com","access_token":"at","refresh_token":"rt"}`
	rec := f.do(http.MethodPost, "/api/v1/mentors/calendar-accounts", body, asMentor("m-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "token") {
		t.Fatalf("tokens must not be echoed: %s", rec.Body.String())
	}

	bad := `{"mentor_id":"m-1","provider":"yahoo","email":"mentor@example.com"}`
	if rec := f.do(http.MethodPost, "/api/v1/mentors/calendar-accounts", bad, asMentor("m-1")); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for provider, got %d", rec.Code)
	}

	f.calendars.err = &pgconn.PgError{Code: "23505"}
	if rec := f.do(http.MethodPost, "/api/v1/mentors/calendar-accounts", body, asMentor("m-1")); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	f.calendars.accounts = []model.CalendarAccount{{ID: "acct-1", MentorID: "m-1", Provider: "google", Email: "mentor@example.com", SyncEnabled: true}}
	if rec := f.do(http.MethodGet, "/api/v1/mentors/calendar-accounts?mentor_id=m-1", "", asMentor("m-2")); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	rec = f.do(http.MethodGet, "/api/v1/mentors/calendar-accounts?mentor_id=m-1", "", asMentor("m-1"))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"account_id":"acct-1"`) {
		t.Fatalf("unexpected list %d %s", rec.Code, rec.Body.String())
	}
}

func TestCalendarAccountLifecycle(t *testing.T) {
	f := newFixture()
	f.calendars.accounts = []model.CalendarAccount{
		{ID: "acct-1", MentorID: "m-1", Provider: "google", Email: "mentor@example.com", SyncEnabled: true},
		{ID: "acct-2", MentorID: "m-1", Provider: "microsoft", Email: "mentor@example.com", SyncEnabled: true},
	}
	const path = "/api/v1/mentors/calendar-accounts"

	if rec := f.do(http.MethodPatch, path, `{"id":"acct-1","sync_enabled":false}`, asMentor("m-2")); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another mentor, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPatch, path, `{"id":"acct-1"}`, asMentor("m-1")); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without sync_enabled, got %d", rec.Code)
	}
	rec := f.do(http.MethodPatch, path, `{"id":"acct-1","sync_enabled":false}`, asMentor("m-1"))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"sync_enabled":false`) {
		t.Fatalf("unexpected patch %d %s", rec.Code, rec.Body.String())
	}
	if f.calendars.accounts[0].SyncEnabled {
		t.Fatalf("sync should be disabled")
	}

	if rec := f.do(http.MethodPost, path+"/sync?id=acct-1", "", asMentor("m-1")); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a disabled account, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, path+"/sync?id=acct-2", "", asMentor("m-1")); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, path+"/sync?id=acct-2", "", asMentor("m-2")); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another mentor, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, path+"/sync?id=acct-2", "", asMentor("m-1")); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(f.calendars.syncRequested) != 1 || f.calendars.syncRequested[0] != "acct-2" || !f.calendars.requestedAt.Equal(fixedNow) {
		t.Fatalf("unexpected sync requests %v at %s", f.calendars.syncRequested, f.calendars.requestedAt)
	}

	if rec := f.do(http.MethodDelete, path+"?id=acct-2", "", asMentor("m-2")); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another mentor, got %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, path+"?id=acct-2", "", asMentor("m-1")); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, path+"?id=acct-2", "", asMentor("m-1")); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	if len(f.calendars.accounts) != 1 {
		t.Fatalf("expected one account left, got %d", len(f.calendars.accounts))
	}

	// patch, sync and delete each invalidate m-1's cached slots.
	if len(f.inv.bumped) != 3 {
		t.Fatalf("expected 3 cache bumps, got %v", f.inv.bumped)
	}
	for _, m := range f.inv.bumped {
		if m != "m-1" {
			t.Fatalf("unexpected bump for %s", m)
		}
	}
}

func TestCanWrite(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if canWrite(r, "m-1") {
		t.Fatalf("anonymous callers cannot write")
	}
	r.Header.Set("X-Role", "Admin")
	if !canWrite(r, "m-1") {
		t.Fatalf("admins can write any mentor")
	}
	r.Header.Del("X-Role")
	r.Header.Set("X-Mentor-Id", "m-2")
	if canWrite(r, "m-1") {
		t.Fatalf("mentors cannot write for each other")
	}
}
