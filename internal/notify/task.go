// Package notify owns the deferred delivery tasks tied to appointment
// lifecycle events. Bookings and cancellations enqueue tasks; the notify
// worker claims due ones and hands them to a Sender. Actual transport is
// an external concern behind that interface.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TypeConfirm    TaskType = "confirm"
	TypeReminder   TaskType = "reminder"
	TypeCancel     TaskType = "cancel"
	TypeReschedule TaskType = "reschedule"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Task is one deferred delivery. Recipient and content are materialized at
// enqueue time so the dispatcher needs no joins. SentAt set exactly once
// guards against re-delivery; a delivery failure is recorded in LastError
// and the task is terminal.
type Task struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Type          TaskType
	Channel       Channel
	Recipient     string
	Subject       string
	Body          string
	ScheduledAt   time.Time
	SentAt        *time.Time
	LastError     *string
	CreatedAt     time.Time
}

type TaskStore interface {
	Enqueue(ctx context.Context, task Task) error

	// ClaimDue returns up to limit unsent, unerrored tasks whose
	// ScheduledAt has passed. Claims must be safe under concurrent
	// workers: a task is handed to at most one of them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error)

	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, deliveryErr string) error
}
