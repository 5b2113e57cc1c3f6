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
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
)

const exceptionColumns = `id::text, mentor_id, exception_date, start_minute, end_minute, is_available,
	COALESCE(notes, ''), COALESCE(timezone, ''), created_at`

type ExceptionRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewExceptionRepository(pool *db.Pool, ob *outbox.Repository) *ExceptionRepository {
	return &ExceptionRepository{pool: pool, outbox: ob}
}

// ListByMentorInRange returns exceptions with from <= date <= to, ordered by date then creation.
func (r *ExceptionRepository) ListByMentorInRange(ctx context.Context, mentorID string, from, to timeunit.Date) ([]model.AvailabilityException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+exceptionColumns+`
		FROM availability_exceptions
		WHERE mentor_id = $1
			AND exception_date BETWEEN $2::date AND $3::date
		ORDER BY exception_date, created_at, id
	`, mentorID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityException
	for rows.Next() {
		ex, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ExceptionRepository) Get(ctx context.Context, id string) (model.AvailabilityException, error) {
	return scanException(r.pool.QueryRow(ctx, `
		SELECT `+exceptionColumns+`
		FROM availability_exceptions
		WHERE id = $1
	`, id))
}

func (r *ExceptionRepository) Create(ctx context.Context, ex model.AvailabilityException) (model.AvailabilityException, error) {
	if err := ex.Validate(); err != nil {
		return model.AvailabilityException{}, err
	}
	ex.ID = uuid.NewString()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.AvailabilityException{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO availability_exceptions
			(id, mentor_id, exception_date, start_minute, end_minute, is_available, notes, timezone)
		VALUES ($1, $2, $3::date, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		RETURNING created_at
	`, ex.ID, ex.MentorID, ex.Date.String(), int(ex.StartMinute), int(ex.EndMinute), ex.IsAvailable, ex.Notes, ex.Timezone).Scan(&ex.CreatedAt)
	if err != nil {
		return model.AvailabilityException{}, err
	}
	if err := r.emit(ctx, tx, outbox.EventExceptionCreated, ex); err != nil {
		return model.AvailabilityException{}, err
	}
	return ex, tx.Commit(ctx)
}

func (r *ExceptionRepository) Delete(ctx context.Context, id string) (model.AvailabilityException, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.AvailabilityException{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ex, err := scanException(tx.QueryRow(ctx, `
		DELETE FROM availability_exceptions
		WHERE id = $1
		RETURNING `+exceptionColumns, id))
	if err != nil {
		return model.AvailabilityException{}, err
	}
	if err := r.emit(ctx, tx, outbox.EventExceptionDeleted, ex); err != nil {
		return model.AvailabilityException{}, err
	}
	return ex, tx.Commit(ctx)
}

func (r *ExceptionRepository) emit(ctx context.Context, tx pgx.Tx, eventType string, ex model.AvailabilityException) error {
	evt, err := outbox.NewEvent(outbox.AggregateException, ex.ID, eventType, outbox.ChangePayload{
		MentorID:   ex.MentorID,
		RecordID:   ex.ID,
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

// scanException maps NULL minute columns to the whole day.
func scanException(row pgx.Row) (model.AvailabilityException, error) {
	var (
		ex         model.AvailabilityException
		day        time.Time
		start, end *int16
	)
	err := row.Scan(&ex.ID, &ex.MentorID, &day, &start, &end, &ex.IsAvailable, &ex.Notes, &ex.Timezone, &ex.CreatedAt)
	if err != nil {
		return model.AvailabilityException{}, err
	}
	y, m, d := day.Date()
	ex.Date = timeunit.Date{Year: y, Month: m, Day: d}
	ex.StartMinute, ex.EndMinute = model.WholeDay()
	if start != nil {
		ex.StartMinute = timeunit.Minute(*start)
	}
	if end != nil {
		ex.EndMinute = timeunit.Minute(*end)
	}
	return ex, nil
}
