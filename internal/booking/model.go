package booking

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotFree   SlotStatus = "free"
	SlotHeld   SlotStatus = "held"
	SlotBooked SlotStatus = "booked"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

type AppointmentSource string

const (
	SourceOnline AppointmentSource = "online"
	SourceStaff  AppointmentSource = "staff"
)

// Slot is one bookable interval for a (practitioner, service) pair.
// Its id is derived deterministically from the pair and the start instant,
// which is what makes generator reruns idempotent.
type Slot struct {
	ID             string
	TenantID       uuid.UUID
	PractitionerID uuid.UUID
	ServiceID      uuid.UUID
	StartAt        time.Time
	EndAt          time.Time
	Status         SlotStatus
	HeldUntil      *time.Time // set iff Status == SlotHeld
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Hold is the audit record of a hold request. The authoritative state is
// the slot's own Status/HeldUntil pair; holds are never consulted for
// authorization and may be swept once expired.
type Hold struct {
	ID            uuid.UUID
	SlotID        string
	PatientTempID string
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// PatientInfo is the contact snapshot embedded in an appointment.
// Online bookings carry no separate patient identity.
type PatientInfo struct {
	Name  string
	Email *string
	Phone *string
}

type Appointment struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	PractitionerID uuid.UUID
	ServiceID      uuid.UUID
	StartAt        time.Time
	EndAt          time.Time
	Patient        PatientInfo
	Status         AppointmentStatus
	Source         AppointmentSource
	AgendaEventID  uuid.UUID // external agenda record created at confirmation
	CancelReason   *string
	CancelledAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Practitioner and ServiceDef are read-only catalog inputs.

type Practitioner struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
}

type ServiceDef struct {
	ID          uuid.UUID
	Name        string
	DurationMin int // 0 means use the configured default
	BufferMin   int
}

// AgendaRecord is the payload handed to the external agenda collaborator
// when a booking is confirmed.
type AgendaRecord struct {
	PractitionerID uuid.UUID
	ServiceID      uuid.UUID
	Start          time.Time
	End            time.Time
	Patient        PatientInfo
}
