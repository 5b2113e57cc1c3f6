package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/mentorslots/libs/db"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/secrets"
)

// CalendarRepository owns calendar accounts and the busy events synced from them.
type CalendarRepository struct {
	pool   *db.Pool
	box    *secrets.Box
	outbox *outbox.Repository
}

func NewCalendarRepository(pool *db.Pool, box *secrets.Box, ob *outbox.Repository) *CalendarRepository {
	return &CalendarRepository{pool: pool, box: box, outbox: ob}
}

func (r *CalendarRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// ListExternalBusy returns busy events of the mentor's enabled accounts that intersect [from, to).
func (r *CalendarRepository) ListExternalBusy(ctx context.Context, mentorID string, from, to time.Time) ([]model.BusyInterval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id::text, e.start_time, e.end_time
		FROM external_busy_events e
		JOIN calendar_accounts a ON a.id = e.account_id
		WHERE a.mentor_id = $1
			AND a.sync_enabled
			AND e.start_time < $3
			AND e.end_time > $2
		ORDER BY e.start_time ASC
	`, mentorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BusyInterval
	for rows.Next() {
		b := model.BusyInterval{Origin: model.OriginExternalCalendar}
		if err := rows.Scan(&b.SourceID, &b.Start, &b.End); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

const accountColumns = `id::text, mentor_id, provider, email, sync_enabled, expires_at, last_synced_at,
	COALESCE(last_sync_error, ''), created_at`

// scanAccount reads accountColumns, then any extra destinations selected after them.
func scanAccount(row pgx.Row, extra ...any) (model.CalendarAccount, error) {
	var a model.CalendarAccount
	dest := append([]any{&a.ID, &a.MentorID, &a.Provider, &a.Email, &a.SyncEnabled, &a.ExpiresAt, &a.LastSyncedAt, &a.LastError, &a.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.CalendarAccount{}, err
	}
	return a, nil
}

// ListAccounts returns the mentor's accounts without tokens.
func (r *CalendarRepository) ListAccounts(ctx context.Context, mentorID string) ([]model.CalendarAccount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM calendar_accounts
		WHERE mentor_id = $1
		ORDER BY created_at
	`, mentorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *CalendarRepository) GetAccount(ctx context.Context, id string) (model.CalendarAccount, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM calendar_accounts WHERE id = $1`, id))
}

// SetSyncEnabled turns syncing of an account on or off. Busy events of a disabled account stop
// counting at once; a re-enabled account is picked up by the next staleness sweep.
func (r *CalendarRepository) SetSyncEnabled(ctx context.Context, id string, enabled bool) (model.CalendarAccount, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.CalendarAccount{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := scanAccount(tx.QueryRow(ctx, `
		UPDATE calendar_accounts
		SET sync_enabled = $2,
			sync_requested_at = NULL
		WHERE id = $1
		RETURNING `+accountColumns, id, enabled))
	if err != nil {
		return model.CalendarAccount{}, err
	}
	if err := r.emitChange(ctx, tx, outbox.EventCalendarUpdated, a); err != nil {
		return model.CalendarAccount{}, err
	}
	return a, tx.Commit(ctx)
}

// DeleteAccount disconnects an account. Its busy events go with it (ON DELETE CASCADE).
func (r *CalendarRepository) DeleteAccount(ctx context.Context, id string) (model.CalendarAccount, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.CalendarAccount{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := scanAccount(tx.QueryRow(ctx, `
		DELETE FROM calendar_accounts
		WHERE id = $1
		RETURNING `+accountColumns, id))
	if err != nil {
		return model.CalendarAccount{}, err
	}
	if err := r.emitChange(ctx, tx, outbox.EventCalendarDeleted, a); err != nil {
		return model.CalendarAccount{}, err
	}
	return a, tx.Commit(ctx)
}

// RequestSync asks the sync collaborator to refresh one account now, through the same
// calendar.sync.requested.v1 event the staleness sweep emits.
func (r *CalendarRepository) RequestSync(ctx context.Context, id string, now time.Time) (model.CalendarAccount, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.CalendarAccount{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var access, refresh []byte
	a, err := scanAccount(tx.QueryRow(ctx, `
		SELECT `+accountColumns+`, access_token_sealed, refresh_token_sealed
		FROM calendar_accounts
		WHERE id = $1
		FOR UPDATE
	`, id), &access, &refresh)
	if err != nil {
		return model.CalendarAccount{}, err
	}
	if !a.SyncEnabled {
		return a, ErrSyncDisabled
	}
	if !r.tokensReadable(access, refresh) {
		if err := r.RecordSyncError(ctx, tx, a.ID, unreadableTokensError); err != nil {
			return model.CalendarAccount{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return model.CalendarAccount{}, err
		}
		a.LastError = unreadableTokensError
		return a, ErrTokensUnreadable
	}

	if _, err := tx.Exec(ctx, `UPDATE calendar_accounts SET sync_requested_at = $2 WHERE id = $1`, a.ID, now); err != nil {
		return model.CalendarAccount{}, err
	}
	if err := r.emitSyncRequest(ctx, tx, a, now); err != nil {
		return model.CalendarAccount{}, err
	}
	return a, tx.Commit(ctx)
}

func (r *CalendarRepository) emitChange(ctx context.Context, tx pgx.Tx, eventType string, a model.CalendarAccount) error {
	evt, err := outbox.NewEvent(outbox.AggregateCalendarAccount, a.ID, eventType, outbox.ChangePayload{
		MentorID:   a.MentorID,
		RecordID:   a.ID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("outbox %s: %w", eventType, err)
	}
	return nil
}

func (r *CalendarRepository) emitSyncRequest(ctx context.Context, tx pgx.Tx, a model.CalendarAccount, now time.Time) error {
	evt, err := outbox.NewEvent(outbox.AggregateCalendarAccount, a.ID, outbox.EventCalendarSyncRequest, outbox.SyncRequestPayload{
		AccountID:    a.ID,
		MentorID:     a.MentorID,
		Provider:     a.Provider,
		LastSyncedAt: a.LastSyncedAt,
		RequestedAt:  now,
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("outbox %s: %w", outbox.EventCalendarSyncRequest, err)
	}
	return nil
}

// CreateAccount seals the provider tokens and stores the account. A repeat of the same
// (mentor, provider, email) is reported by IsConflict.
func (r *CalendarRepository) CreateAccount(ctx context.Context, a model.CalendarAccount) (model.CalendarAccount, error) {
	access, err := r.box.Seal(a.AccessToken)
	if err != nil {
		return model.CalendarAccount{}, err
	}
	refresh, err := r.box.Seal(a.RefreshToken)
	if err != nil {
		return model.CalendarAccount{}, err
	}
	a.ID = uuid.NewString()
	err = r.pool.QueryRow(ctx, `
		INSERT INTO calendar_accounts
			(id, mentor_id, provider, email, sync_enabled, access_token_sealed, refresh_token_sealed, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, a.ID, a.MentorID, a.Provider, a.Email, a.SyncEnabled, access, refresh, a.ExpiresAt).Scan(&a.CreatedAt)
	if err != nil {
		return model.CalendarAccount{}, err
	}
	a.AccessToken, a.RefreshToken = "", ""
	return a, nil
}

// AccountMentor resolves the mentor owning an account.
func (r *CalendarRepository) AccountMentor(ctx context.Context, tx pgx.Tx, accountID string) (string, error) {
	var mentorID string
	err := tx.QueryRow(ctx, `SELECT mentor_id FROM calendar_accounts WHERE id = $1`, accountID).Scan(&mentorID)
	return mentorID, err
}

// ReplaceBusyEvents swaps the account's events intersecting [windowStart, windowEnd) for events
// and records a successful sync at syncedAt.
func (r *CalendarRepository) ReplaceBusyEvents(ctx context.Context, tx pgx.Tx, accountID string, windowStart, windowEnd time.Time, events []model.ExternalBusyEvent, syncedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM external_busy_events
		WHERE account_id = $1
			AND start_time < $3
			AND end_time > $2
	`, accountID, windowStart, windowEnd)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO external_busy_events (account_id, external_id, start_time, end_time, title)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (account_id, external_id) DO UPDATE
			SET start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				title = EXCLUDED.title,
				updated_at = now()
		`, accountID, e.ExternalID, e.Start, e.End, e.Title)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert busy events: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE calendar_accounts
		SET last_synced_at = $2,
			last_sync_error = NULL,
			sync_requested_at = NULL
		WHERE id = $1
	`, accountID, syncedAt)
	return err
}

// RecordSyncError keeps the previous events and last_synced_at; the account turns stale on its own.
func (r *CalendarRepository) RecordSyncError(ctx context.Context, tx pgx.Tx, accountID, message string) error {
	_, err := tx.Exec(ctx, `
		UPDATE calendar_accounts
		SET last_sync_error = $2
		WHERE id = $1
	`, accountID, message)
	return err
}

// unreadableTokensError is recorded for accounts whose tokens no longer open, typically after the
// sealing secret changed. The mentor has to reconnect the account.
const unreadableTokensError = "stored provider tokens cannot be opened; reconnect the calendar account"

// tokensReadable reports whether both sealed tokens open with the current secret.
func (r *CalendarRepository) tokensReadable(access, refresh []byte) bool {
	if _, err := r.box.Open(access); err != nil {
		return false
	}
	_, err := r.box.Open(refresh)
	return err == nil
}

// ClaimStaleAccounts claims enabled accounts not synced since olderThan and not already asked for a
// sync since then. Each claimed account with readable tokens gets one calendar.sync.requested.v1 and
// is returned; the others get a sync error instead.
func (r *CalendarRepository) ClaimStaleAccounts(ctx context.Context, olderThan, now time.Time, limit int) ([]model.CalendarAccount, error) {
	if limit <= 0 {
		limit = 100
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE calendar_accounts
		SET sync_requested_at = $2
		WHERE id IN (
			SELECT id
			FROM calendar_accounts
			WHERE sync_enabled
				AND (last_synced_at IS NULL OR last_synced_at < $1)
				AND (sync_requested_at IS NULL OR sync_requested_at < $1)
			ORDER BY last_synced_at NULLS FIRST
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id::text, mentor_id, provider, email, last_synced_at, access_token_sealed, refresh_token_sealed
	`, olderThan, now, limit)
	if err != nil {
		return nil, err
	}
	var accounts []model.CalendarAccount
	var unreadable []string
	for rows.Next() {
		a := model.CalendarAccount{SyncEnabled: true}
		var access, refresh []byte
		if err := rows.Scan(&a.ID, &a.MentorID, &a.Provider, &a.Email, &a.LastSyncedAt, &access, &refresh); err != nil {
			rows.Close()
			return nil, err
		}
		if !r.tokensReadable(access, refresh) {
			unreadable = append(unreadable, a.ID)
			continue
		}
		accounts = append(accounts, a)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for _, id := range unreadable {
		if err := r.RecordSyncError(ctx, tx, id, unreadableTokensError); err != nil {
			return nil, err
		}
	}

	for _, a := range accounts {
		if err := r.emitSyncRequest(ctx, tx, a, now); err != nil {
			return nil, err
		}
	}
	return accounts, tx.Commit(ctx)
}
