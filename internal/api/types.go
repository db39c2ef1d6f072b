package api

import (
	"time"

	"github.com/google/uuid"
)

type HoldSlotRequest struct {
	PatientTempID string `json:"patient_temp_id"`
}

type HoldSlotResponse struct {
	HeldUntil time.Time `json:"held_until"`
}

type PatientPayload struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

type CreateBookingRequest struct {
	SlotID         string         `json:"slot_id"`
	PatientTempID  string         `json:"patient_temp_id"`
	Patient        PatientPayload `json:"patient"`
	ServiceID      string         `json:"service_id"`
	AntiAbuseToken string         `json:"anti_abuse_token"`
}

type CreateBookingResponse struct {
	AppointmentID   uuid.UUID `json:"appointment_id"`
	AgendaEventID   uuid.UUID `json:"agenda_event_id"`
	CalendarFileURL string    `json:"calendar_file_url"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty"`
}

type SlotResponse struct {
	ID      string    `json:"id"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

type ListSlotsResponse struct {
	Slots []SlotResponse `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
