package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// TraceHash computes a deterministic hash over a chain's ledger entries,
// proving provenance without re-execution. Entries are canonicalized by id
// order; metadata participates via encoding/json, which sorts map keys.
func TraceHash(entries []Entry) string {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, e := range sorted {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			meta = []byte("{}")
		}
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%d\n",
			e.ID, e.EventType, e.SubmissionID, e.Decision, e.Reason, meta, e.CreatedAt.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}
