// Package schedule reads the practitioner catalog and weekly working-hours
// configuration. Both are external inputs to the booking engine: nothing
// here is ever written by the booking flows (cmd/seed populates them for
// development).
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/booking-engine/internal/booking"
)

type PgSource struct {
	pool *pgxpool.Pool
}

func NewPgSource(pool *pgxpool.Pool) *PgSource {
	return &PgSource{pool: pool}
}

func (s *PgSource) ActivePractitioners(ctx context.Context) ([]booking.Practitioner, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name
		FROM practitioners
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Practitioner
	for rows.Next() {
		var p booking.Practitioner
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PgSource) ActiveServices(ctx context.Context, practitionerID uuid.UUID) ([]booking.ServiceDef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, duration_min, buffer_min
		FROM services
		WHERE practitioner_id = $1
		  AND active
		ORDER BY name
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.ServiceDef
	for rows.Next() {
		var svc booking.ServiceDef
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.DurationMin, &svc.BufferMin); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

type weeklyWindow struct {
	weekday  time.Weekday
	startMin int // minutes from midnight
	endMin   int
}

// WorkingWindows expands the practitioner's weekly schedule rows into
// concrete per-day instants over [from, to). The practice runs in a single
// implicit timezone, the server's local one.
func (s *PgSource) WorkingWindows(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]booking.Interval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT weekday, start_min, end_min
		FROM practitioner_schedules
		WHERE practitioner_id = $1
		ORDER BY weekday, start_min
	`, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("load weekly schedule: %w", err)
	}
	defer rows.Close()

	var weekly []weeklyWindow
	for rows.Next() {
		var w weeklyWindow
		var weekday int
		if err := rows.Scan(&weekday, &w.startMin, &w.endMin); err != nil {
			return nil, err
		}
		w.weekday = time.Weekday(weekday)
		weekly = append(weekly, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return expandWeekly(weekly, from, to), nil
}

// expandWeekly walks each day in [from, to) and materializes the weekly
// windows falling on that day's weekday.
func expandWeekly(weekly []weeklyWindow, from, to time.Time) []booking.Interval {
	var out []booking.Interval

	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, w := range weekly {
			if day.Weekday() != w.weekday {
				continue
			}
			iv := booking.Interval{
				Start: day.Add(time.Duration(w.startMin) * time.Minute),
				End:   day.Add(time.Duration(w.endMin) * time.Minute),
			}
			if !iv.IsValid() {
				continue
			}
			if !iv.End.After(from) || !iv.Start.Before(to) {
				continue
			}
			out = append(out, iv)
		}
	}
	return out
}
