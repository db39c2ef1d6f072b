package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeCatalog struct {
	practitioners []Practitioner
	services      map[uuid.UUID][]ServiceDef
}

func (f *fakeCatalog) ActivePractitioners(ctx context.Context) ([]Practitioner, error) {
	return f.practitioners, nil
}

func (f *fakeCatalog) ActiveServices(ctx context.Context, practitionerID uuid.UUID) ([]ServiceDef, error) {
	return f.services[practitionerID], nil
}

type fakeSchedule struct {
	windows map[uuid.UUID][]Interval
}

func (f *fakeSchedule) WorkingWindows(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Interval, error) {
	return f.windows[practitionerID], nil
}

type generatorFixture struct {
	gen    *Generator
	store  *MemStore
	agenda *fakeAgenda
	clock  *fakeClock

	practitioner Practitioner
	service      ServiceDef
}

func newGeneratorFixture(t *testing.T) *generatorFixture {
	t.Helper()

	clock := newFakeClock(mustTime(t, "2026-09-01T08:00:00Z"))
	store := NewMemStore()
	agenda := &fakeAgenda{}

	p := Practitioner{ID: uuid.New(), TenantID: uuid.New(), Name: "Dr. Grace Hopper"}
	svc := ServiceDef{ID: uuid.New(), Name: "Consultation", DurationMin: 30}

	catalog := &fakeCatalog{
		practitioners: []Practitioner{p},
		services:      map[uuid.UUID][]ServiceDef{p.ID: {svc}},
	}
	// One working day, tomorrow 09:00-12:00.
	dayStart := clock.Now().Add(25 * time.Hour)
	schedule := &fakeSchedule{
		windows: map[uuid.UUID][]Interval{
			p.ID: {{Start: dayStart, End: dayStart.Add(3 * time.Hour)}},
		},
	}

	gen := NewGenerator(store, catalog, schedule, agenda, zerolog.Nop(), 45*24*time.Hour, time.Hour)
	gen.now = clock.Now

	return &generatorFixture{
		gen:          gen,
		store:        store,
		agenda:       agenda,
		clock:        clock,
		practitioner: p,
		service:      svc,
	}
}

func (f *generatorFixture) freeSlots(t *testing.T) []Slot {
	t.Helper()
	from := f.clock.Now().Add(-90 * 24 * time.Hour)
	to := f.clock.Now().Add(90 * 24 * time.Hour)
	slots, err := f.store.ListFreeSlots(context.Background(), f.practitioner.ID, f.service.ID, from, to)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	return slots
}

func TestGeneratorRun(t *testing.T) {
	ctx := context.Background()

	t.Run("decomposes working windows", func(t *testing.T) {
		f := newGeneratorFixture(t)
		if err := f.gen.Run(ctx); err != nil {
			t.Fatalf("Run: %v", err)
		}

		// 3 hours of window, 30-minute service: 6 slots.
		slots := f.freeSlots(t)
		if len(slots) != 6 {
			t.Fatalf("got %d slots, want 6", len(slots))
		}
		for _, s := range slots {
			if s.ID != DeriveSlotID(f.practitioner.ID, f.service.ID, s.StartAt) {
				t.Errorf("slot %s id is not the derived id", s.ID)
			}
			if got := s.EndAt.Sub(s.StartAt); got != 30*time.Minute {
				t.Errorf("slot duration = %v, want 30m", got)
			}
		}
	})

	t.Run("rerun is idempotent", func(t *testing.T) {
		f := newGeneratorFixture(t)
		if err := f.gen.Run(ctx); err != nil {
			t.Fatalf("first Run: %v", err)
		}
		before := f.freeSlots(t)

		if err := f.gen.Run(ctx); err != nil {
			t.Fatalf("second Run: %v", err)
		}
		after := f.freeSlots(t)
		if len(after) != len(before) {
			t.Errorf("slot count changed across reruns: %d -> %d", len(before), len(after))
		}
	})

	t.Run("rerun never touches held or booked slots", func(t *testing.T) {
		f := newGeneratorFixture(t)
		if err := f.gen.Run(ctx); err != nil {
			t.Fatalf("Run: %v", err)
		}
		slots := f.freeSlots(t)

		// Flip the first slot to booked and the second to held.
		err := f.store.WithTx(ctx, func(tx Tx) error {
			booked, err := tx.GetSlotForUpdate(ctx, slots[0].ID)
			if err != nil {
				return err
			}
			booked.Status = SlotBooked
			if err := tx.SaveSlot(ctx, booked); err != nil {
				return err
			}

			held, err := tx.GetSlotForUpdate(ctx, slots[1].ID)
			if err != nil {
				return err
			}
			hu := f.clock.Now().Add(10 * time.Minute)
			held.Status = SlotHeld
			held.HeldUntil = &hu
			return tx.SaveSlot(ctx, held)
		})
		if err != nil {
			t.Fatalf("flip slots: %v", err)
		}

		if err := f.gen.Run(ctx); err != nil {
			t.Fatalf("rerun: %v", err)
		}

		got, err := f.store.GetSlot(ctx, slots[0].ID)
		if err != nil {
			t.Fatalf("get booked slot: %v", err)
		}
		if got.Status != SlotBooked {
			t.Errorf("booked slot status = %s after rerun", got.Status)
		}
		got, err = f.store.GetSlot(ctx, slots[1].ID)
		if err != nil {
			t.Fatalf("get held slot: %v", err)
		}
		if got.Status != SlotHeld {
			t.Errorf("held slot status = %s after rerun", got.Status)
		}
	})

	t.Run("skips busy intervals", func(t *testing.T) {
		f := newGeneratorFixture(t)

		// Block the first hour of the working window.
		dayStart := f.clock.Now().Add(25 * time.Hour)
		f.agenda.busy = []Interval{{Start: dayStart, End: dayStart.Add(time.Hour)}}

		if err := f.gen.Run(ctx); err != nil {
			t.Fatalf("Run: %v", err)
		}
		slots := f.freeSlots(t)
		if len(slots) != 4 {
			t.Fatalf("got %d slots, want 4", len(slots))
		}
		for _, s := range slots {
			if s.StartAt.Before(dayStart.Add(time.Hour)) {
				t.Errorf("slot at %v overlaps the busy hour", s.StartAt)
			}
		}
	})

	t.Run("buffer stretches the step", func(t *testing.T) {
		f := newGeneratorFixture(t)
		f.service.BufferMin = 15
		// Rebuild the catalog entry with the buffered service.
		f.gen.catalog = &fakeCatalog{
			practitioners: []Practitioner{f.practitioner},
			services:      map[uuid.UUID][]ServiceDef{f.practitioner.ID: {f.service}},
		}

		if err := f.gen.Run(ctx); err != nil {
			t.Fatalf("Run: %v", err)
		}
		// 3 hours at 45-minute steps: 4 slots.
		slots := f.freeSlots(t)
		if len(slots) != 4 {
			t.Fatalf("got %d slots, want 4", len(slots))
		}
	})
}

func TestGeneratorCleanup(t *testing.T) {
	ctx := context.Background()
	f := newGeneratorFixture(t)

	now := f.clock.Now()
	mkSlot := func(start time.Time, status SlotStatus, heldUntil *time.Time) string {
		id := DeriveSlotID(f.practitioner.ID, f.service.ID, start)
		err := f.store.InsertFreeSlot(ctx, Slot{
			ID:             id,
			PractitionerID: f.practitioner.ID,
			ServiceID:      f.service.ID,
			StartAt:        start,
			EndAt:          start.Add(30 * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert slot: %v", err)
		}
		if status != SlotFree {
			err = f.store.WithTx(ctx, func(tx Tx) error {
				s, err := tx.GetSlotForUpdate(ctx, id)
				if err != nil {
					return err
				}
				s.Status = status
				s.HeldUntil = heldUntil
				return tx.SaveSlot(ctx, s)
			})
			if err != nil {
				t.Fatalf("set slot status: %v", err)
			}
		}
		return id
	}

	pastID := mkSlot(now.Add(-time.Hour), SlotFree, nil)
	lapsed := now.Add(-time.Minute)
	lapsedID := mkSlot(now.Add(24*time.Hour), SlotHeld, &lapsed)
	live := now.Add(9 * time.Minute)
	liveID := mkSlot(now.Add(48*time.Hour), SlotHeld, &live)

	f.gen.Cleanup(ctx)

	if _, err := f.store.GetSlot(ctx, pastID); !IsKind(err, KindNotFound) {
		t.Errorf("past slot still present, err = %v", err)
	}

	s, err := f.store.GetSlot(ctx, lapsedID)
	if err != nil {
		t.Fatalf("get lapsed slot: %v", err)
	}
	if s.Status != SlotFree || s.HeldUntil != nil {
		t.Errorf("lapsed hold not reclaimed: status=%s heldUntil=%v", s.Status, s.HeldUntil)
	}

	s, err = f.store.GetSlot(ctx, liveID)
	if err != nil {
		t.Fatalf("get live slot: %v", err)
	}
	if s.Status != SlotHeld {
		t.Errorf("live hold swept early: status=%s", s.Status)
	}
}
