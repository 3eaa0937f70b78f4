package tasks

import (
	"sort"

	"github.com/desertthunder/dlpanel/internal/models"
)

// QueueStore maps entry identity to [models.QueueEntry].
//
// An explicit insertion-order list sits beside the map so iteration is deterministic.
// QueueStore is not safe for concurrent use; the [Reconciler] owns it.
type QueueStore struct {
	entries map[string]models.QueueEntry
	order   []string
}

// NewQueueStore creates an empty store.
func NewQueueStore() *QueueStore {
	return &QueueStore{entries: make(map[string]models.QueueEntry)}
}

// Upsert inserts e or overwrites the entry with the same key in place (its position is kept).
// Entries without a key are ignored.
func (q *QueueStore) Upsert(e models.QueueEntry) {
	if e.Key == "" {
		return
	}
	if _, ok := q.entries[e.Key]; !ok {
		q.order = append(q.order, e.Key)
	}
	q.entries[e.Key] = e
}

// Remove evicts key and reports whether it was present.
func (q *QueueStore) Remove(key string) bool {
	if _, ok := q.entries[key]; !ok {
		return false
	}
	delete(q.entries, key)
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the entry stored under key.
func (q *QueueStore) Get(key string) (models.QueueEntry, bool) {
	e, ok := q.entries[key]
	return e, ok
}

// Len returns the number of entries.
func (q *QueueStore) Len() int {
	return len(q.entries)
}

// Clear removes everything.
func (q *QueueStore) Clear() {
	q.entries = make(map[string]models.QueueEntry)
	q.order = nil
}

// Entries returns a copy of all entries sorted by UpdatedAt ascending (oldest-active first),
// ties broken by insertion order.
func (q *QueueStore) Entries() []models.QueueEntry {
	out := make([]models.QueueEntry, 0, len(q.order))
	for _, k := range q.order {
		out = append(out, q.entries[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out
}
