package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres-backed Store. Row locks taken by
// GetSlotForUpdate make each WithTx unit a serialized critical section
// per slot id.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const slotColumns = `id, tenant_id, practitioner_id, service_id, start_at, end_at, status, held_until, created_at, updated_at`

const appointmentColumns = `id, tenant_id, practitioner_id, service_id, start_at, end_at,
	patient_name, patient_email, patient_phone, status, source, agenda_event_id,
	cancel_reason, cancelled_at, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var heldUntil *time.Time

	err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.PractitionerID,
		&s.ServiceID,
		&s.StartAt,
		&s.EndAt,
		&s.Status,
		&heldUntil,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, E(KindNotFound, "slot not found")
		}
		return nil, err
	}

	s.HeldUntil = heldUntil
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var email, phone, reason *string
	var cancelledAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.PractitionerID,
		&a.ServiceID,
		&a.StartAt,
		&a.EndAt,
		&a.Patient.Name,
		&email,
		&phone,
		&a.Status,
		&a.Source,
		&a.AgendaEventID,
		&reason,
		&cancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, E(KindNotFound, "appointment not found")
		}
		return nil, err
	}

	a.Patient.Email = email
	a.Patient.Phone = phone
	a.CancelReason = reason
	a.CancelledAt = cancelledAt
	return &a, nil
}

func (r *PgStore) GetSlot(ctx context.Context, id string) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgStore) InsertFreeSlot(ctx context.Context, slot Slot) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO slots (id, tenant_id, practitioner_id, service_id, start_at, end_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'free', now(), now())
		ON CONFLICT (id) DO NOTHING
	`, slot.ID, slot.TenantID, slot.PractitionerID, slot.ServiceID, slot.StartAt, slot.EndAt)
	if err != nil {
		return fmt.Errorf("insert free slot: %w", err)
	}
	return nil
}

func (r *PgStore) ListFreeSlots(ctx context.Context, practitionerID, serviceID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE practitioner_id = $1
		  AND service_id = $2
		  AND status = 'free'
		  AND start_at >= $3
		  AND start_at < $4
		ORDER BY start_at
	`, practitionerID, serviceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *PgStore) ReleaseSlot(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET status = 'free',
		    held_until = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('held', 'booked')
	`, id)
	if err != nil {
		return false, fmt.Errorf("release slot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgStore) DeletePastSlots(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE start_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("delete past slots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgStore) ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET status = 'free',
		    held_until = NULL,
		    updated_at = now()
		WHERE status = 'held'
		  AND held_until < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("release expired holds: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgStore) DeleteExpiredHoldRecords(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM holds
		WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired hold records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgStore) CancelAppointment(ctx context.Context, id uuid.UUID, reason *string, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancel_reason = $2,
		    cancelled_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING `+appointmentColumns+`
	`, id, reason, at)

	appt, err := scanAppointment(row)
	if err != nil {
		if IsKind(err, KindNotFound) {
			// Either the row vanished or another actor moved it to a
			// terminal status; both read as FailedPrecondition here.
			return nil, E(KindFailedPrecondition, "appointment is not cancellable")
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Wrap(KindInternal, "begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return Wrap(KindInternal, "commit transaction", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetSlotForUpdate(ctx context.Context, id string) (*Slot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanSlot(row)
}

func (t *pgTx) SaveSlot(ctx context.Context, slot *Slot) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE slots
		SET status = $2,
		    held_until = $3,
		    updated_at = now()
		WHERE id = $1
	`, slot.ID, slot.Status, slot.HeldUntil)
	if err != nil {
		return fmt.Errorf("save slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return E(KindNotFound, "slot not found")
	}
	return nil
}

func (t *pgTx) CreateHold(ctx context.Context, hold Hold) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO holds (id, slot_id, patient_temp_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, hold.ID, hold.SlotID, hold.PatientTempID, hold.ExpiresAt, hold.CreatedAt)
	if err != nil {
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

func (t *pgTx) CreateAppointment(ctx context.Context, appt Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (id, tenant_id, practitioner_id, service_id, start_at, end_at,
			patient_name, patient_email, patient_phone, status, source, agenda_event_id,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`, appt.ID, appt.TenantID, appt.PractitionerID, appt.ServiceID, appt.StartAt, appt.EndAt,
		appt.Patient.Name, appt.Patient.Email, appt.Patient.Phone, appt.Status, appt.Source,
		appt.AgendaEventID, appt.CreatedAt)
	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}
