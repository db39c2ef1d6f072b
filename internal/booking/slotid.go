package booking

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// slotIDLen keeps ids short enough for URLs while leaving 112 bits of hash,
// far beyond collision range for any realistic slot population.
const slotIDLen = 28

// DeriveSlotID computes the deterministic id for the slot starting at
// startAt for the given practitioner/service pair. The same triple always
// yields the same id, across processes and restarts, so regenerating slots
// can use set-if-absent writes and the cancellation flow can re-locate a
// slot from appointment fields alone.
func DeriveSlotID(practitionerID, serviceID uuid.UUID, startAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(practitionerID.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(serviceID.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(startAt.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))[:slotIDLen]
}
