package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/carebook/booking-engine/internal/redis"
)

// collisionMargin widens the busy-interval re-check around the slot window
// so a commitment created between slot generation and booking is caught
// even when clocks between systems disagree slightly.
const collisionMargin = time.Minute

// Service implements the hold, book and cancel operations. Hold and Book
// run their check-then-act sequences under a per-slot lock plus a store
// transaction; two callers racing on the same slot cannot both win.
type Service struct {
	store    Store
	agenda   AgendaSource
	notifier Notifier
	locker   redisclient.Locker
	log      zerolog.Logger

	holdTTL time.Duration
	now     func() time.Time
}

func NewService(store Store, agenda AgendaSource, notifier Notifier, locker redisclient.Locker, log zerolog.Logger, holdTTL time.Duration) *Service {
	return &Service{
		store:    store,
		agenda:   agenda,
		notifier: notifier,
		locker:   locker,
		log:      log.With().Str("component", "booking").Logger(),
		holdTTL:  holdTTL,
		now:      time.Now,
	}
}

// Hold places a soft reservation on a free slot for the hold TTL. A held
// slot whose previous hold has lapsed counts as free again and can be
// reclaimed by a new caller.
func (s *Service) Hold(ctx context.Context, slotID, patientTempID string) (time.Time, error) {
	if slotID == "" {
		return time.Time{}, E(KindInvalidArgument, "slot id is required")
	}
	if patientTempID == "" {
		return time.Time{}, E(KindInvalidArgument, "patient temp id is required")
	}

	var heldUntil time.Time

	err := s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		return s.store.WithTx(lockCtx, func(tx Tx) error {
			slot, err := tx.GetSlotForUpdate(lockCtx, slotID)
			if err != nil {
				return err
			}

			now := s.now()
			reclaimable := slot.Status == SlotHeld && slot.HeldUntil != nil && slot.HeldUntil.Before(now)
			if slot.Status != SlotFree && !reclaimable {
				return E(KindConflict, "slot is not available")
			}

			hu := now.Add(s.holdTTL)
			slot.Status = SlotHeld
			slot.HeldUntil = &hu
			if err := tx.SaveSlot(lockCtx, slot); err != nil {
				return err
			}

			err = tx.CreateHold(lockCtx, Hold{
				ID:            uuid.New(),
				SlotID:        slotID,
				PatientTempID: patientTempID,
				ExpiresAt:     hu,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}

			heldUntil = hu
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return time.Time{}, E(KindConflict, "slot is being processed, retry shortly")
		}
		return time.Time{}, err
	}

	s.log.Debug().Str("slot_id", slotID).Time("held_until", heldUntil).Msg("slot held")
	return heldUntil, nil
}

type BookResult struct {
	AppointmentID uuid.UUID
	AgendaEventID uuid.UUID
}

// Book converts a live hold into a confirmed appointment. The busy-interval
// re-check against the agenda is the decisive collision control; a conflict
// found here leaves the slot held, not booked. The agenda record is created
// between the validation and commit transactions so the store unit stays
// short; a commit failure after the agenda write is compensated by
// cancelling the record.
func (s *Service) Book(ctx context.Context, slotID, patientTempID string, patient PatientInfo, serviceID uuid.UUID) (*BookResult, error) {
	if slotID == "" {
		return nil, E(KindInvalidArgument, "slot id is required")
	}
	if patientTempID == "" {
		return nil, E(KindInvalidArgument, "patient temp id is required")
	}
	if patient.Name == "" {
		return nil, E(KindInvalidArgument, "patient name is required")
	}
	if patient.Email == nil && patient.Phone == nil {
		return nil, E(KindInvalidArgument, "patient email or phone is required")
	}

	var (
		result *BookResult
		appt   *Appointment
	)

	err := s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		slot, err := s.store.GetSlot(lockCtx, slotID)
		if err != nil {
			return err
		}
		if err := s.requireLiveHold(slot); err != nil {
			return err
		}
		if slot.ServiceID != serviceID {
			return E(KindInvalidArgument, "service does not match slot")
		}

		// Decisive re-check: the generator's collision scan was only
		// advisory, a commitment may have landed since.
		busy, err := s.agenda.BusyIntervals(lockCtx, slot.PractitionerID,
			slot.StartAt.Add(-collisionMargin), slot.EndAt.Add(collisionMargin))
		if err != nil {
			return Wrap(KindInternal, "load busy intervals", err)
		}
		window := Interval{Start: slot.StartAt, End: slot.EndAt}
		if window.OverlapsAny(busy) {
			return E(KindConflict, "slot collides with an existing commitment")
		}

		agendaID, err := s.agenda.CreateRecord(lockCtx, AgendaRecord{
			PractitionerID: slot.PractitionerID,
			ServiceID:      slot.ServiceID,
			Start:          slot.StartAt,
			End:            slot.EndAt,
			Patient:        patient,
		})
		if err != nil {
			return Wrap(KindInternal, "create agenda record", err)
		}

		txErr := s.store.WithTx(lockCtx, func(tx Tx) error {
			current, err := tx.GetSlotForUpdate(lockCtx, slotID)
			if err != nil {
				return err
			}
			// The hold may have lapsed and been reclaimed by the cleanup
			// sweep while the agenda write was in flight.
			if err := s.requireLiveHold(current); err != nil {
				return err
			}

			now := s.now()
			current.Status = SlotBooked
			current.HeldUntil = nil
			if err := tx.SaveSlot(lockCtx, current); err != nil {
				return err
			}

			a := Appointment{
				ID:             uuid.New(),
				TenantID:       current.TenantID,
				PractitionerID: current.PractitionerID,
				ServiceID:      current.ServiceID,
				StartAt:        current.StartAt,
				EndAt:          current.EndAt,
				Patient:        patient,
				Status:         StatusConfirmed,
				Source:         SourceOnline,
				AgendaEventID:  agendaID,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.CreateAppointment(lockCtx, a); err != nil {
				return err
			}

			appt = &a
			return nil
		})
		if txErr != nil {
			// Compensate the agenda write so the external calendar does
			// not keep a commitment the booking never produced.
			if cErr := s.agenda.CancelRecord(lockCtx, agendaID); cErr != nil {
				s.log.Error().Err(cErr).
					Str("agenda_event_id", agendaID.String()).
					Msg("failed to cancel agenda record after aborted booking")
			}
			return txErr
		}

		result = &BookResult{AppointmentID: appt.ID, AgendaEventID: agendaID}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, E(KindConflict, "slot is being processed, retry shortly")
		}
		return nil, err
	}

	// Best-effort: notification problems never fail a booking.
	s.notifier.AppointmentConfirmed(ctx, appt)

	s.log.Info().
		Str("slot_id", slotID).
		Str("appointment_id", result.AppointmentID.String()).
		Msg("booking confirmed")
	return result, nil
}

func (s *Service) requireLiveHold(slot *Slot) error {
	switch slot.Status {
	case SlotBooked:
		return E(KindConflict, "slot is already booked")
	case SlotHeld:
		if slot.HeldUntil == nil || slot.HeldUntil.Before(s.now()) {
			return E(KindExpired, "hold on slot has expired")
		}
		return nil
	default:
		return E(KindExpired, "no active hold on slot")
	}
}

// Cancel reverses a confirmed appointment. The slot release is looked up by
// re-deriving the deterministic slot id from the appointment's own fields;
// if generation parameters changed since the slot was created the derived
// id matches nothing and the release is a silent no-op.
func (s *Service) Cancel(ctx context.Context, appointmentID uuid.UUID, reason string) error {
	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if appt.Status != StatusConfirmed {
		return Ef(KindFailedPrecondition, "appointment is already %s", appt.Status)
	}

	// Best-effort: the external calendar lagging behind must not block
	// the cancellation itself.
	if appt.AgendaEventID != uuid.Nil {
		if err := s.agenda.CancelRecord(ctx, appt.AgendaEventID); err != nil {
			s.log.Error().Err(err).
				Str("agenda_event_id", appt.AgendaEventID.String()).
				Msg("failed to cancel agenda record")
		}
	}

	now := s.now()
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	cancelled, err := s.store.CancelAppointment(ctx, appointmentID, reasonPtr, now)
	if err != nil {
		return err
	}

	if cancelled.StartAt.After(now) {
		slotID := DeriveSlotID(cancelled.PractitionerID, cancelled.ServiceID, cancelled.StartAt)
		released, err := s.store.ReleaseSlot(ctx, slotID)
		if err != nil {
			s.log.Error().Err(err).Str("slot_id", slotID).Msg("failed to release slot")
		} else if !released {
			s.log.Debug().Str("slot_id", slotID).Msg("no slot to release")
		}
	}

	s.notifier.AppointmentCancelled(ctx, cancelled)

	s.log.Info().
		Str("appointment_id", appointmentID.String()).
		Msg("appointment cancelled")
	return nil
}
