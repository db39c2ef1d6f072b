package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary for slots, holds and appointments.
// Reads and single-row writes go through the plain methods; the hold and
// booking flows run their check-then-act sequences inside WithTx so the
// whole unit commits or aborts as one.
type Store interface {
	GetSlot(ctx context.Context, id string) (*Slot, error)

	// InsertFreeSlot creates the slot if no row with its id exists yet.
	// An existing row, whatever its status, is left untouched.
	InsertFreeSlot(ctx context.Context, slot Slot) error

	ListFreeSlots(ctx context.Context, practitionerID, serviceID uuid.UUID, from, to time.Time) ([]Slot, error)

	// ReleaseSlot resets a held or booked slot to free, clearing HeldUntil.
	// Returns false when no such slot exists; that is not an error.
	ReleaseSlot(ctx context.Context, id string) (bool, error)

	// Cleanup sweeps, run by the generator after each pass.
	DeletePastSlots(ctx context.Context, now time.Time) (int64, error)
	ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredHoldRecords(ctx context.Context, now time.Time) (int64, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CancelAppointment flips confirmed to cancelled, compare-and-swap on
	// status. A vanished or already-terminal row yields FailedPrecondition.
	CancelAppointment(ctx context.Context, id uuid.UUID, reason *string, at time.Time) (*Appointment, error)

	// WithTx runs fn inside a single all-or-nothing transaction. Any error
	// from fn rolls the whole unit back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the unit-of-work handle passed to WithTx callbacks.
type Tx interface {
	// GetSlotForUpdate reads the slot and locks its row for the remainder
	// of the transaction.
	GetSlotForUpdate(ctx context.Context, id string) (*Slot, error)
	SaveSlot(ctx context.Context, slot *Slot) error
	CreateHold(ctx context.Context, hold Hold) error
	CreateAppointment(ctx context.Context, appt Appointment) error
}

// AgendaSource is the external agenda/commitment collaborator. Busy
// intervals returned here are the authority the booking transaction checks
// against; the generator's earlier check is only advisory.
type AgendaSource interface {
	BusyIntervals(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Interval, error)
	CreateRecord(ctx context.Context, rec AgendaRecord) (uuid.UUID, error)
	CancelRecord(ctx context.Context, id uuid.UUID) error
}

// ScheduleSource exposes a practitioner's concrete working windows over a
// date range, expanded from their weekly schedule configuration.
type ScheduleSource interface {
	WorkingWindows(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Interval, error)
}

// Catalog is the read-only practitioner/service catalog.
type Catalog interface {
	ActivePractitioners(ctx context.Context) ([]Practitioner, error)
	ActiveServices(ctx context.Context, practitionerID uuid.UUID) ([]ServiceDef, error)
}

// Notifier receives appointment lifecycle events and enqueues delivery
// tasks. Implementations must swallow their own failures; a notification
// problem never fails the booking or cancellation that raised it.
type Notifier interface {
	AppointmentConfirmed(ctx context.Context, appt *Appointment)
	AppointmentCancelled(ctx context.Context, appt *Appointment)
}
