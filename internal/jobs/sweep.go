package jobs

import "time"

// DefaultStaleAfter is how long a job may stay in flight before a reload
// treats it as orphaned.
const DefaultStaleAfter = time.Hour

// Sweep splits records into those to keep and those to discard at load time.
//
// Completed and error records are always kept. In-flight records are dropped
// once CreatedAt is older than staleAfter; they were most likely orphaned by a
// server restart or an abandoned session. Records without an id or with an
// unrecognized status are dropped as unusable.
func Sweep(records []Record, now time.Time, staleAfter time.Duration) (kept, removed []Record) {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	cutoff := now.Add(-staleAfter)

	kept = make([]Record, 0, len(records))
	for _, r := range records {
		switch {
		case r.ID == "":
			removed = append(removed, r)
		case r.Status.Terminal():
			kept = append(kept, r)
		case r.Status.InFlight() && r.CreatedAt.After(cutoff):
			kept = append(kept, r)
		default:
			removed = append(removed, r)
		}
	}
	return kept, removed
}
