package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/carebook/booking-engine/internal/redis"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeAgenda struct {
	mu        sync.Mutex
	busy      []Interval
	created   []AgendaRecord
	cancelled []uuid.UUID

	// onCreate, when set, runs just before CreateRecord returns. Tests use
	// it to mutate state between the validation and commit transactions.
	onCreate func()
}

func (f *fakeAgenda) BusyIntervals(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	window := Interval{Start: from, End: to}
	var out []Interval
	for _, b := range f.busy {
		if window.Overlaps(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeAgenda) CreateRecord(ctx context.Context, rec AgendaRecord) (uuid.UUID, error) {
	f.mu.Lock()
	f.created = append(f.created, rec)
	hook := f.onCreate
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return uuid.New(), nil
}

func (f *fakeAgenda) CancelRecord(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeAgenda) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeAgenda) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelled)
}

type fakeNotifier struct {
	mu        sync.Mutex
	confirmed []*Appointment
	cancelled []*Appointment
}

func (f *fakeNotifier) AppointmentConfirmed(ctx context.Context, appt *Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, appt)
}

func (f *fakeNotifier) AppointmentCancelled(ctx context.Context, appt *Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, appt)
}

type serviceFixture struct {
	svc      *Service
	store    *MemStore
	agenda   *fakeAgenda
	notifier *fakeNotifier
	clock    *fakeClock

	practitionerID uuid.UUID
	serviceID      uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	clock := newFakeClock(mustTime(t, "2026-09-01T08:00:00Z"))
	store := NewMemStore()
	agenda := &fakeAgenda{}
	notifier := &fakeNotifier{}

	svc := NewService(store, agenda, notifier, redisclient.NewLocalSlotLocker(), zerolog.Nop(), 10*time.Minute)
	svc.now = clock.Now

	return &serviceFixture{
		svc:            svc,
		store:          store,
		agenda:         agenda,
		notifier:       notifier,
		clock:          clock,
		practitionerID: uuid.New(),
		serviceID:      uuid.New(),
	}
}

// addSlot inserts a free slot starting the given offset after the fixture
// clock and returns its derived id.
func (f *serviceFixture) addSlot(t *testing.T, startIn time.Duration) string {
	t.Helper()

	start := f.clock.Now().Add(startIn)
	id := DeriveSlotID(f.practitionerID, f.serviceID, start)
	err := f.store.InsertFreeSlot(context.Background(), Slot{
		ID:             id,
		TenantID:       uuid.New(),
		PractitionerID: f.practitionerID,
		ServiceID:      f.serviceID,
		StartAt:        start,
		EndAt:          start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("insert slot: %v", err)
	}
	return id
}

func (f *serviceFixture) mustGetSlot(t *testing.T, id string) *Slot {
	t.Helper()
	slot, err := f.store.GetSlot(context.Background(), id)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	return slot
}

func testPatient() PatientInfo {
	email := "ada@example.com"
	phone := "+33600000001"
	return PatientInfo{Name: "Ada Lovelace", Email: &email, Phone: &phone}
}

func TestHold(t *testing.T) {
	ctx := context.Background()

	t.Run("holds a free slot for the TTL", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID := f.addSlot(t, 48*time.Hour)

		heldUntil, err := f.svc.Hold(ctx, slotID, "tmp-1")
		if err != nil {
			t.Fatalf("Hold: %v", err)
		}
		if want := f.clock.Now().Add(10 * time.Minute); !heldUntil.Equal(want) {
			t.Errorf("heldUntil = %v, want %v", heldUntil, want)
		}

		slot := f.mustGetSlot(t, slotID)
		if slot.Status != SlotHeld {
			t.Errorf("slot status = %s, want held", slot.Status)
		}
		if slot.HeldUntil == nil || !slot.HeldUntil.Equal(heldUntil) {
			t.Errorf("slot HeldUntil = %v, want %v", slot.HeldUntil, heldUntil)
		}
		if f.store.HoldCount() != 1 {
			t.Errorf("hold records = %d, want 1", f.store.HoldCount())
		}
	})

	t.Run("second hold on a live hold conflicts", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID := f.addSlot(t, 48*time.Hour)

		if _, err := f.svc.Hold(ctx, slotID, "tmp-1"); err != nil {
			t.Fatalf("first Hold: %v", err)
		}
		_, err := f.svc.Hold(ctx, slotID, "tmp-2")
		if !IsKind(err, KindConflict) {
			t.Fatalf("second Hold err = %v, want conflict", err)
		}
	})

	t.Run("lapsed hold is reclaimable", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID := f.addSlot(t, 48*time.Hour)

		if _, err := f.svc.Hold(ctx, slotID, "tmp-1"); err != nil {
			t.Fatalf("first Hold: %v", err)
		}
		f.clock.Advance(11 * time.Minute)

		heldUntil, err := f.svc.Hold(ctx, slotID, "tmp-2")
		if err != nil {
			t.Fatalf("reclaim Hold: %v", err)
		}
		if want := f.clock.Now().Add(10 * time.Minute); !heldUntil.Equal(want) {
			t.Errorf("heldUntil = %v, want %v", heldUntil, want)
		}
	})

	t.Run("unknown slot", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Hold(ctx, "0000000000000000000000000000", "tmp-1")
		if !IsKind(err, KindNotFound) {
			t.Fatalf("err = %v, want not_found", err)
		}
	})

	t.Run("missing arguments", func(t *testing.T) {
		f := newServiceFixture(t)
		if _, err := f.svc.Hold(ctx, "", "tmp-1"); !IsKind(err, KindInvalidArgument) {
			t.Errorf("empty slot id err = %v, want invalid_argument", err)
		}
		if _, err := f.svc.Hold(ctx, "abc", ""); !IsKind(err, KindInvalidArgument) {
			t.Errorf("empty patient temp id err = %v, want invalid_argument", err)
		}
	})
}

func TestBook(t *testing.T) {
	ctx := context.Background()

	t.Run("confirms a held slot", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID := f.addSlot(t, 48*time.Hour)
		if _, err := f.svc.Hold(ctx, slotID, "tmp-1"); err != nil {
			t.Fatalf("Hold: %v", err)
		}

		result, err := f.svc.Book(ctx, slotID, "tmp-1", testPatient(), f.serviceID)
		if err != nil {
			t.Fatalf("Book: %v", err)
		}

		slot := f.mustGetSlot(t, slotID)
		if slot.Status != SlotBooked {
			t.Errorf("slot status = %s, want booked", slot.Status)
		}
		if slot.HeldUntil != nil {
			t.Errorf("slot HeldUntil = %v, want nil", slot.HeldUntil)
		}

		appt, err := f.store.GetAppointment(ctx, result.AppointmentID)
		if err != nil {
			t.Fatalf("get appointment: %v", err)
		}
		if appt.Status != StatusConfirmed {
			t.Errorf("appointment status = %s, want confirmed", appt.Status)
		}
		if appt.AgendaEventID != result.AgendaEventID {
			t.Errorf("agenda event id mismatch: %s vs %s", appt.AgendaEventID, result.AgendaEventID)
		}
		if !appt.StartAt.Equal(slot.StartAt) || !appt.EndAt.Equal(slot.EndAt) {
			t.Errorf("appointment window %v-%v does not match slot", appt.StartAt, appt.EndAt)
		}
		if f.agenda.createCount() != 1 {
			t.Errorf("agenda records created = %d, want 1", f.agenda.createCount())
		}
		if len(f.notifier.confirmed) != 1 {
			t.Errorf("confirmed notifications = %d, want 1", len(f.notifier.confirmed))
		}
	})

	t.Run("no hold means expired", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID := f.addSlot(t, 48*time.Hour)

		_, err := f.svc.Book(ctx, slotID, "tmp-1", testPatient(), f.serviceID)
		if !IsKind(err, KindExpired) {
			t.Fatalf("err = %v, want expired", err)
		}
	})

	t.Run("lapsed hold means expired", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID := f.addSlot(t, 48*time.Hour)
		if _, err := f.svc.Hold(ctx, slotID, "tmp-1"); err != nil {
			t.Fatalf("Hold: %v", err)
		}
		f.clock.Advance(11 * time.Minute)

		_, err := f.svc.Book(ctx, slotID, "tmp-1", testPatient(), f.serviceID)
		if !IsKind(err, KindExpired) {
			t.Fatalf("err = %v, want expired", err)
		}
	})

	t.Run("booked slot conflicts", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID := f.addSlot(t, 48*time.Hour)
		if _, err := f.svc.Hold(ctx, slotID, "tmp-1"); err != nil {
			t.Fatalf("Hold: %v", err)
		}
		if _, err := f.svc.Book(ctx, slotID, "tmp-1", testPatient(), f.serviceID); err != nil {
			t.Fatalf("Book: %v", err)
		}

		_, err := f.svc.Book(ctx, slotID, "tmp-2", testPatient(), f.serviceID)
		if !IsKind(err, KindConflict) {
			t.Fatalf("err = %v, want conflict", err)
		}
	})

	t.Run("service mismatch", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID := f.addSlot(t, 48*time.Hour)
		if _, err := f.svc.Hold(ctx, slotID, "tmp-1"); err != nil {
			t.Fatalf("Hold: %v", err)
		}

		_, err := f.svc.Book(ctx, slotID, "tmp-1", testPatient(), uuid.New())
		if !IsKind(err, KindInvalidArgument) {
			t.Fatalf("err = %v, want invalid_argument", err)
		}
	})

	t.Run("agenda collision leaves slot held", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID := f.addSlot(t, 48*time.Hour)
		if _, err := f.svc.Hold(ctx, slotID, "tmp-1"); err != nil {
			t.Fatalf("Hold: %v", err)
		}

		// A commitment landed in the agenda after the slot was generated.
		slot := f.mustGetSlot(t, slotID)
		f.agenda.busy = []Interval{{
			Start: slot.StartAt.Add(30 * time.Minute),
			End:   slot.EndAt.Add(30 * time.Minute),
		}}

		_, err := f.svc.Book(ctx, slotID, "tmp-1", testPatient(), f.serviceID)
		if !IsKind(err, KindConflict) {
			t.Fatalf("err = %v, want conflict", err)
		}
		if f.agenda.createCount() != 0 {
			t.Errorf("agenda records created = %d, want 0", f.agenda.createCount())
		}
		// The conflicting slot stays held so the patient cannot retry into
		// the same collision; the cleanup sweep frees it when the hold
		// lapses.
		if got := f.mustGetSlot(t, slotID); got.Status != SlotHeld {
			t.Errorf("slot status = %s, want held", got.Status)
		}
	})

	t.Run("commit failure compensates the agenda write", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID := f.addSlot(t, 48*time.Hour)
		if _, err := f.svc.Hold(ctx, slotID, "tmp-1"); err != nil {
			t.Fatalf("Hold: %v", err)
		}

		// The hold lapses while the agenda write is in flight, so the
		// commit transaction's re-check fails after the record exists.
		f.agenda.onCreate = func() { f.clock.Advance(11 * time.Minute) }

		_, err := f.svc.Book(ctx, slotID, "tmp-1", testPatient(), f.serviceID)
		if !IsKind(err, KindExpired) {
			t.Fatalf("err = %v, want expired", err)
		}
		if f.agenda.createCount() != 1 {
			t.Errorf("agenda records created = %d, want 1", f.agenda.createCount())
		}
		if f.agenda.cancelCount() != 1 {
			t.Errorf("agenda records cancelled = %d, want 1", f.agenda.cancelCount())
		}
		if got := f.mustGetSlot(t, slotID); got.Status == SlotBooked {
			t.Error("slot must not be booked after aborted commit")
		}
	})

	t.Run("patient contact required", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID := f.addSlot(t, 48*time.Hour)

		_, err := f.svc.Book(ctx, slotID, "tmp-1", PatientInfo{Name: "Ada"}, f.serviceID)
		if !IsKind(err, KindInvalidArgument) {
			t.Errorf("no contact err = %v, want invalid_argument", err)
		}
		_, err = f.svc.Book(ctx, slotID, "tmp-1", PatientInfo{}, f.serviceID)
		if !IsKind(err, KindInvalidArgument) {
			t.Errorf("no name err = %v, want invalid_argument", err)
		}
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	book := func(t *testing.T, f *serviceFixture, startIn time.Duration) (string, uuid.UUID) {
		t.Helper()
		slotID := f.addSlot(t, startIn)
		if _, err := f.svc.Hold(ctx, slotID, "tmp-1"); err != nil {
			t.Fatalf("Hold: %v", err)
		}
		result, err := f.svc.Book(ctx, slotID, "tmp-1", testPatient(), f.serviceID)
		if err != nil {
			t.Fatalf("Book: %v", err)
		}
		return slotID, result.AppointmentID
	}

	t.Run("releases a future slot", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID, apptID := book(t, f, 48*time.Hour)

		if err := f.svc.Cancel(ctx, apptID, "changed my mind"); err != nil {
			t.Fatalf("Cancel: %v", err)
		}

		appt, err := f.store.GetAppointment(ctx, apptID)
		if err != nil {
			t.Fatalf("get appointment: %v", err)
		}
		if appt.Status != StatusCancelled {
			t.Errorf("status = %s, want cancelled", appt.Status)
		}
		if appt.CancelReason == nil || *appt.CancelReason != "changed my mind" {
			t.Errorf("cancel reason = %v", appt.CancelReason)
		}
		if appt.CancelledAt == nil {
			t.Error("CancelledAt not set")
		}

		if got := f.mustGetSlot(t, slotID); got.Status != SlotFree {
			t.Errorf("slot status = %s, want free", got.Status)
		}
		if f.agenda.cancelCount() != 1 {
			t.Errorf("agenda records cancelled = %d, want 1", f.agenda.cancelCount())
		}
		if len(f.notifier.cancelled) != 1 {
			t.Errorf("cancel notifications = %d, want 1", len(f.notifier.cancelled))
		}
	})

	t.Run("second cancel is a failed precondition", func(t *testing.T) {
		f := newServiceFixture(t)
		_, apptID := book(t, f, 48*time.Hour)

		if err := f.svc.Cancel(ctx, apptID, ""); err != nil {
			t.Fatalf("first Cancel: %v", err)
		}
		err := f.svc.Cancel(ctx, apptID, "")
		if !IsKind(err, KindFailedPrecondition) {
			t.Fatalf("second Cancel err = %v, want failed_precondition", err)
		}
	})

	t.Run("past appointment leaves the slot alone", func(t *testing.T) {
		f := newServiceFixture(t)
		slotID, apptID := book(t, f, time.Hour)

		f.clock.Advance(3 * time.Hour)

		if err := f.svc.Cancel(ctx, apptID, ""); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if got := f.mustGetSlot(t, slotID); got.Status != SlotBooked {
			t.Errorf("slot status = %s, past slots are never released", got.Status)
		}
	})

	t.Run("unknown appointment", func(t *testing.T) {
		f := newServiceFixture(t)
		err := f.svc.Cancel(ctx, uuid.New(), "")
		if !IsKind(err, KindNotFound) {
			t.Fatalf("err = %v, want not_found", err)
		}
	})
}

func TestHoldConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	slotID := f.addSlot(t, 48*time.Hour)

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.svc.Hold(ctx, slotID, "tmp-"+string(rune('a'+n)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var won, conflicted int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case IsKind(err, KindConflict):
			conflicted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("winners = %d, want exactly 1", won)
	}
	if conflicted != callers-1 {
		t.Errorf("conflicts = %d, want %d", conflicted, callers-1)
	}
}
