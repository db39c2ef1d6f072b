package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is the in-memory Store used by tests and by single-node dev
// setups. WithTx holds the store mutex for the whole unit and stages writes
// that only land when the callback succeeds, which gives the same
// all-or-nothing behavior the Postgres store gets from transactions.
type MemStore struct {
	mu           sync.Mutex
	slots        map[string]*Slot
	holds        map[uuid.UUID]*Hold
	appointments map[uuid.UUID]*Appointment
}

func NewMemStore() *MemStore {
	return &MemStore{
		slots:        make(map[string]*Slot),
		holds:        make(map[uuid.UUID]*Hold),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func copySlot(s *Slot) *Slot {
	cp := *s
	if s.HeldUntil != nil {
		hu := *s.HeldUntil
		cp.HeldUntil = &hu
	}
	return &cp
}

func copyAppointment(a *Appointment) *Appointment {
	cp := *a
	return &cp
}

func (m *MemStore) GetSlot(ctx context.Context, id string) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, E(KindNotFound, "slot not found")
	}
	return copySlot(s), nil
}

func (m *MemStore) InsertFreeSlot(ctx context.Context, slot Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.slots[slot.ID]; ok {
		return nil
	}
	slot.Status = SlotFree
	slot.HeldUntil = nil
	m.slots[slot.ID] = copySlot(&slot)
	return nil
}

func (m *MemStore) ListFreeSlots(ctx context.Context, practitionerID, serviceID uuid.UUID, from, to time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Slot
	for _, s := range m.slots {
		if s.PractitionerID != practitionerID || s.ServiceID != serviceID {
			continue
		}
		if s.Status != SlotFree {
			continue
		}
		if s.StartAt.Before(from) || !s.StartAt.Before(to) {
			continue
		}
		out = append(out, *copySlot(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (m *MemStore) ReleaseSlot(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return false, nil
	}
	s.Status = SlotFree
	s.HeldUntil = nil
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemStore) DeletePastSlots(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.slots {
		if s.StartAt.Before(now) {
			delete(m.slots, id)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.slots {
		if s.Status == SlotHeld && s.HeldUntil != nil && s.HeldUntil.Before(now) {
			s.Status = SlotFree
			s.HeldUntil = nil
			s.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (m *MemStore) DeleteExpiredHoldRecords(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, h := range m.holds {
		if h.ExpiresAt.Before(now) {
			delete(m.holds, id)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, E(KindNotFound, "appointment not found")
	}
	return copyAppointment(a), nil
}

func (m *MemStore) CancelAppointment(ctx context.Context, id uuid.UUID, reason *string, at time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, E(KindNotFound, "appointment not found")
	}
	if a.Status != StatusConfirmed {
		return nil, Ef(KindFailedPrecondition, "appointment is already %s", a.Status)
	}
	a.Status = StatusCancelled
	a.CancelReason = reason
	cancelledAt := at
	a.CancelledAt = &cancelledAt
	a.UpdatedAt = at
	return copyAppointment(a), nil
}

func (m *MemStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		store:        m,
		slots:        make(map[string]*Slot),
		holds:        make([]Hold, 0, 1),
		appointments: make([]Appointment, 0, 1),
	}

	if err := fn(tx); err != nil {
		return err
	}

	tx.apply()
	return nil
}

// memTx stages writes against copies; apply flushes them under the store
// mutex already held by WithTx.
type memTx struct {
	store        *MemStore
	slots        map[string]*Slot
	holds        []Hold
	appointments []Appointment
}

func (t *memTx) GetSlotForUpdate(ctx context.Context, id string) (*Slot, error) {
	if staged, ok := t.slots[id]; ok {
		return copySlot(staged), nil
	}
	s, ok := t.store.slots[id]
	if !ok {
		return nil, E(KindNotFound, "slot not found")
	}
	return copySlot(s), nil
}

func (t *memTx) SaveSlot(ctx context.Context, slot *Slot) error {
	if _, ok := t.store.slots[slot.ID]; !ok {
		return E(KindNotFound, "slot not found")
	}
	t.slots[slot.ID] = copySlot(slot)
	return nil
}

func (t *memTx) CreateHold(ctx context.Context, hold Hold) error {
	t.holds = append(t.holds, hold)
	return nil
}

func (t *memTx) CreateAppointment(ctx context.Context, appt Appointment) error {
	t.appointments = append(t.appointments, appt)
	return nil
}

func (t *memTx) apply() {
	for id, s := range t.slots {
		t.store.slots[id] = s
	}
	for i := range t.holds {
		h := t.holds[i]
		t.store.holds[h.ID] = &h
	}
	for i := range t.appointments {
		a := t.appointments[i]
		t.store.appointments[a.ID] = &a
	}
}

// HoldCount reports the number of retained hold audit records.
func (m *MemStore) HoldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.holds)
}
