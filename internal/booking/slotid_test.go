package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDeriveSlotID(t *testing.T) {
	pid := uuid.MustParse("0191d7a2-5f52-7b7e-9f6e-000000000001")
	sid := uuid.MustParse("0191d7a2-5f52-7b7e-9f6e-000000000002")
	start := mustTime(t, "2026-09-15T10:00:00Z")

	id := DeriveSlotID(pid, sid, start)
	if len(id) != 28 {
		t.Fatalf("id length = %d, want 28", len(id))
	}

	if again := DeriveSlotID(pid, sid, start); again != id {
		t.Errorf("same inputs gave different ids: %s vs %s", id, again)
	}

	// The same instant expressed in another zone is the same slot.
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	if zoned := DeriveSlotID(pid, sid, start.In(paris)); zoned != id {
		t.Errorf("zone-shifted start gave different id: %s vs %s", id, zoned)
	}

	// Any varying component changes the id.
	if DeriveSlotID(uuid.New(), sid, start) == id {
		t.Error("different practitioner gave same id")
	}
	if DeriveSlotID(pid, uuid.New(), start) == id {
		t.Error("different service gave same id")
	}
	if DeriveSlotID(pid, sid, start.Add(30*time.Minute)) == id {
		t.Error("different start gave same id")
	}
}
