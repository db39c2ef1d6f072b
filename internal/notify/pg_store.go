package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgTaskStore struct {
	pool *pgxpool.Pool
}

func NewPgTaskStore(pool *pgxpool.Pool) *PgTaskStore {
	return &PgTaskStore{pool: pool}
}

func (s *PgTaskStore) Enqueue(ctx context.Context, task Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_tasks (id, appointment_id, type, channel, recipient,
			subject, body, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, task.ID, task.AppointmentID, task.Type, task.Channel, task.Recipient,
		task.Subject, task.Body, task.ScheduledAt, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue notification task: %w", err)
	}
	return nil
}

// ClaimDue flips claimed_at on a batch of due tasks so concurrent notify
// workers never pick up the same one; SKIP LOCKED keeps racing claims from
// blocking each other. A claim left dangling by a crashed worker goes
// stale after five minutes and becomes claimable again; the sent_at guard
// in MarkSent still prevents double delivery stamps.
func (s *PgTaskStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE notification_tasks
		SET claimed_at = $1
		WHERE id IN (
			SELECT id
			FROM notification_tasks
			WHERE sent_at IS NULL
			  AND last_error IS NULL
			  AND (claimed_at IS NULL OR claimed_at < $1 - interval '5 minutes')
			  AND scheduled_at <= $1
			ORDER BY scheduled_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, appointment_id, type, channel, recipient, subject, body,
			scheduled_at, sent_at, last_error, created_at
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		err := rows.Scan(&t.ID, &t.AppointmentID, &t.Type, &t.Channel, &t.Recipient,
			&t.Subject, &t.Body, &t.ScheduledAt, &t.SentAt, &t.LastError, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PgTaskStore) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_tasks
		SET sent_at = $2
		WHERE id = $1
		  AND sent_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark task sent: %w", err)
	}
	return nil
}

func (s *PgTaskStore) MarkFailed(ctx context.Context, id uuid.UUID, deliveryErr string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_tasks
		SET last_error = $2
		WHERE id = $1
		  AND sent_at IS NULL
	`, id, deliveryErr)
	if err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	return nil
}
