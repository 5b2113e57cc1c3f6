package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/mentorslots/libs/db"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
)

// BookingBusyRepository reads the booking collaborator's table. Only pending and confirmed
// bookings hold the mentor's time.
type BookingBusyRepository struct {
	pool *db.Pool
}

func NewBookingBusyRepository(pool *db.Pool) *BookingBusyRepository {
	return &BookingBusyRepository{pool: pool}
}

func (r *BookingBusyRepository) ListBusyBookings(ctx context.Context, mentorID string, from, to time.Time) ([]model.BusyInterval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, start_time, end_time
		FROM bookings
		WHERE mentor_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, mentorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BusyInterval
	for rows.Next() {
		b := model.BusyInterval{Origin: model.OriginBooking}
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
