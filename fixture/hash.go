package fixture

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Hash returns the 16-hex-char SHA-256 summary hash spec.md §4.9
// defines: computed over the canonical JSON of s with
// meta.generated_at zeroed. Struct fields marshal in declaration order,
// so the JSON is decoded into generic maps and re-encoded, which sorts
// every object's keys.
func Hash(s Summary) string {
	forHash := s
	forHash.Meta.GeneratedAt = time.Time{}
	b, err := json.Marshal(forHash)
	if err != nil {
		panic("fixture: summary must always be JSON-marshalable: " + err.Error())
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		panic("fixture: summary JSON must round-trip: " + err.Error())
	}
	if b, err = json.Marshal(generic); err != nil {
		panic("fixture: summary JSON must round-trip: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}
