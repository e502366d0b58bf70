// Package tracker keeps a bounded, append-only in-memory buffer of request
// records for the observability layer. Old records are evicted oldest-first
// once the capacity is reached; nothing is persisted here.
package tracker

import (
	"sync"

	"github.com/zhangshican/quotio-bridge/internal/models"
)

const DefaultCapacity = 50

// Tracker is a fixed-capacity ring buffer with a single-writer append
// discipline enforced by a mutex.
type Tracker struct {
	mu       sync.Mutex
	records  []models.RequestRecord
	capacity int
	next     int
	full     bool

	// onRecord, when set, is invoked after each append, outside the lock.
	// Collaborators hang quota/accounting hooks here.
	onRecord func(models.RequestRecord)
}

func New(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		records:  make([]models.RequestRecord, capacity),
		capacity: capacity,
	}
}

// OnRecord registers a hook called for every appended record. Register
// before the bridge starts serving; not safe to swap mid-flight.
func (t *Tracker) OnRecord(fn func(models.RequestRecord)) {
	t.mu.Lock()
	t.onRecord = fn
	t.mu.Unlock()
}

// Add appends a record, evicting the oldest when full.
func (t *Tracker) Add(record models.RequestRecord) {
	t.mu.Lock()
	t.records[t.next] = record
	t.next = (t.next + 1) % t.capacity
	if t.next == 0 {
		t.full = true
	}
	hook := t.onRecord
	t.mu.Unlock()

	if hook != nil {
		hook(record)
	}
}

// Records returns a snapshot ordered newest first. The slice is a copy;
// callers may retain it.
func (t *Tracker) Records() []models.RequestRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := t.next
	if t.full {
		size = t.capacity
	}
	out := make([]models.RequestRecord, 0, size)
	for i := 1; i <= size; i++ {
		idx := (t.next - i + t.capacity) % t.capacity
		out = append(out, t.records[idx])
	}
	return out
}

// Len reports how many records are currently held.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.full {
		return t.capacity
	}
	return t.next
}
