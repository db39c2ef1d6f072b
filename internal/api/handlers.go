package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carebook/booking-engine/internal/abuse"
	"github.com/carebook/booking-engine/internal/booking"
)

type handlers struct {
	svc           *booking.Service
	store         booking.Store
	verifier      abuse.Verifier
	publicBaseURL string
}

func (h *handlers) holdSlot(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slotID")

	var req HoldSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	heldUntil, err := h.svc.Hold(r.Context(), slotID, req.PatientTempID)
	if err != nil {
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, HoldSlotResponse{HeldUntil: heldUntil})
}

func (h *handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
		return
	}

	// The challenge check runs before the booking transaction is even
	// attempted; a failed check never touches slot state.
	ok, err := h.verifier.Verify(r.Context(), req.AntiAbuseToken, "book")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "verification_unavailable", "could not verify challenge token")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "verification_failed", "challenge verification failed")
		return
	}

	result, err := h.svc.Book(r.Context(), req.SlotID, req.PatientTempID, booking.PatientInfo{
		Name:  req.Patient.Name,
		Email: req.Patient.Email,
		Phone: req.Patient.Phone,
	}, serviceID)
	if err != nil {
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateBookingResponse{
		AppointmentID:   result.AppointmentID,
		AgendaEventID:   result.AgendaEventID,
		CalendarFileURL: fmt.Sprintf("%s/api/v1/appointments/%s/calendar.ics", h.publicBaseURL, result.AppointmentID),
	})
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	var req CancelAppointmentRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
	}

	if err := h.svc.Cancel(r.Context(), id, req.Reason); err != nil {
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
		return
	}

	serviceID, err := uuid.Parse(r.URL.Query().Get("service_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
		return
	}

	slots, err := h.store.ListFreeSlots(r.Context(), practitionerID, serviceID, from, to)
	if err != nil {
		writeKindError(w, err)
		return
	}

	resp := ListSlotsResponse{Slots: make([]SlotResponse, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, SlotResponse{ID: s.ID, StartAt: s.StartAt, EndAt: s.EndAt})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) calendarFile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	appt, err := h.store.GetAppointment(r.Context(), id)
	if err != nil {
		writeKindError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="appointment.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(renderICS(appt)))
}

// parseRange reads optional from/to query params (RFC 3339); defaults to
// the next 45 days.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	from, to := now, now.Add(45*24*time.Hour)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %v", err)
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %v", err)
		}
		to = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must be before to")
	}
	return from, to, nil
}
