package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/booking-engine/internal/booking"
)

const (
	emailReminderLead = 24 * time.Hour
	smsReminderLead   = 2 * time.Hour
)

// Scheduler turns appointment lifecycle events into queued delivery tasks.
// Enqueueing is best-effort by contract: every failure is logged and
// swallowed so the triggering booking or cancellation never fails.
type Scheduler struct {
	tasks TaskStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewScheduler(tasks TaskStore, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		tasks: tasks,
		log:   log.With().Str("component", "notify-scheduler").Logger(),
		now:   time.Now,
	}
}

func (s *Scheduler) AppointmentConfirmed(ctx context.Context, appt *booking.Appointment) {
	now := s.now()
	when := appt.StartAt.Format("Mon 2 Jan 2006 15:04")

	if appt.Patient.Email != nil {
		s.enqueue(ctx, Task{
			AppointmentID: appt.ID,
			Type:          TypeConfirm,
			Channel:       ChannelEmail,
			Recipient:     *appt.Patient.Email,
			Subject:       "Your appointment is confirmed",
			Body:          fmt.Sprintf("Hi %s, your appointment on %s is confirmed.", appt.Patient.Name, when),
			ScheduledAt:   now,
		})

		if at := appt.StartAt.Add(-emailReminderLead); at.After(now) {
			s.enqueue(ctx, Task{
				AppointmentID: appt.ID,
				Type:          TypeReminder,
				Channel:       ChannelEmail,
				Recipient:     *appt.Patient.Email,
				Subject:       "Appointment reminder",
				Body:          fmt.Sprintf("Hi %s, a reminder for your appointment on %s.", appt.Patient.Name, when),
				ScheduledAt:   at,
			})
		}
	}

	if appt.Patient.Phone != nil {
		if at := appt.StartAt.Add(-smsReminderLead); at.After(now) {
			s.enqueue(ctx, Task{
				AppointmentID: appt.ID,
				Type:          TypeReminder,
				Channel:       ChannelSMS,
				Recipient:     *appt.Patient.Phone,
				Body:          fmt.Sprintf("Reminder: appointment at %s.", appt.StartAt.Format("15:04")),
				ScheduledAt:   at,
			})
		}
	}
}

func (s *Scheduler) AppointmentCancelled(ctx context.Context, appt *booking.Appointment) {
	if appt.Patient.Email == nil {
		return
	}
	when := appt.StartAt.Format("Mon 2 Jan 2006 15:04")
	s.enqueue(ctx, Task{
		AppointmentID: appt.ID,
		Type:          TypeCancel,
		Channel:       ChannelEmail,
		Recipient:     *appt.Patient.Email,
		Subject:       "Your appointment was cancelled",
		Body:          fmt.Sprintf("Hi %s, your appointment on %s has been cancelled.", appt.Patient.Name, when),
		ScheduledAt:   s.now(),
	})
}

func (s *Scheduler) enqueue(ctx context.Context, task Task) {
	task.ID = uuid.New()
	task.CreatedAt = s.now()

	if err := s.tasks.Enqueue(ctx, task); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", task.AppointmentID.String()).
			Str("type", string(task.Type)).
			Str("channel", string(task.Channel)).
			Msg("failed to enqueue notification task")
	}
}
