package dismissals

import "context"

// Entry states of a bulk dismissal set. Each entry settles independently so
// one failed insert never voids the rest of the batch.
const (
	EntryPending   = "pending"
	EntryCommitted = "committed"
	EntryFailed    = "failed"
)

// Entry is one fingerprint's position in a bulk set.
type Entry struct {
	Fingerprint string `json:"fingerprint"`
	Status      string `json:"status"`
	DismissalID string `json:"dismissal_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// OptimisticSet applies a batch of dismissals entry by entry. Entries start
// pending, then settle to committed or failed; callers read the settled
// entries to tell the client exactly which fingerprints stuck.
type OptimisticSet struct {
	service *Service
	entries []*Entry
}

func NewOptimisticSet(service *Service, fingerprints []string) *OptimisticSet {
	entries := make([]*Entry, 0, len(fingerprints))
	for _, fp := range fingerprints {
		entries = append(entries, &Entry{Fingerprint: fp, Status: EntryPending})
	}
	return &OptimisticSet{service: service, entries: entries}
}

// Apply settles every entry against the store using req as the template for
// reason, note, scope, and ownership. It returns the number committed.
func (set *OptimisticSet) Apply(ctx context.Context, req *DismissRequest) int {
	committed := 0
	for _, entry := range set.entries {
		item := *req
		item.Fingerprint = entry.Fingerprint

		d, err := set.service.Dismiss(ctx, &item)
		if err != nil {
			entry.Status = EntryFailed
			entry.Error = err.Error()
			continue
		}
		entry.Status = EntryCommitted
		entry.DismissalID = d.ID
		committed++
	}
	return committed
}

// Entries returns the settled batch in input order.
func (set *OptimisticSet) Entries() []*Entry {
	return set.entries
}
