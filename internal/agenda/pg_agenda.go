// Package agenda is the boundary to the practice's calendar of real
// commitments. The booking engine reads busy intervals from it and writes
// one record per confirmed booking so the rest of the scheduling surface
// sees the commitment.
package agenda

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/booking-engine/internal/booking"
)

type PgAgenda struct {
	pool *pgxpool.Pool
}

func NewPgAgenda(pool *pgxpool.Pool) *PgAgenda {
	return &PgAgenda{pool: pool}
}

// BusyIntervals returns every non-cancelled commitment overlapping
// [from, to) for the practitioner.
func (a *PgAgenda) BusyIntervals(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]booking.Interval, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT start_at, end_at
		FROM agenda_events
		WHERE practitioner_id = $1
		  AND status <> 'cancelled'
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, practitionerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list busy intervals: %w", err)
	}
	defer rows.Close()

	var out []booking.Interval
	for rows.Next() {
		var iv booking.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (a *PgAgenda) CreateRecord(ctx context.Context, rec booking.AgendaRecord) (uuid.UUID, error) {
	id := uuid.New()

	_, err := a.pool.Exec(ctx, `
		INSERT INTO agenda_events (id, practitioner_id, service_id, start_at, end_at,
			patient_name, patient_email, patient_phone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'booked', now(), now())
	`, id, rec.PractitionerID, rec.ServiceID, rec.Start, rec.End,
		rec.Patient.Name, rec.Patient.Email, rec.Patient.Phone)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create agenda record: %w", err)
	}
	return id, nil
}

func (a *PgAgenda) CancelRecord(ctx context.Context, id uuid.UUID) error {
	_, err := a.pool.Exec(ctx, `
		UPDATE agenda_events
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("cancel agenda record: %w", err)
	}
	return nil
}
