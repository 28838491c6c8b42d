package logs

import "sync"

// DefaultCapacity bounds the live log view.
const DefaultCapacity = 1000

// RingBuffer is a thread-safe circular buffer for log entries.
// It maintains a fixed capacity and overwrites oldest entries when full.
type RingBuffer struct {
	entries  []*Entry
	capacity int
	head     int // write position
	size     int
	mu       sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer{
		entries:  make([]*Entry, capacity),
		capacity: capacity,
	}
}

// Add appends a log entry, overwriting the oldest entry when full.
func (r *RingBuffer) Add(entry *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = entry
	r.head = (r.head + 1) % r.capacity

	if r.size < r.capacity {
		r.size++
	}
}

// GetAll returns all entries in chronological order.
func (r *RingBuffer) GetAll() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getEntriesLocked(r.size)
}

// GetLast returns the last n entries in chronological order.
func (r *RingBuffer) GetLast(n int) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.size {
		n = r.size
	}
	return r.getEntriesLocked(n)
}

// getEntriesLocked returns the last n entries (must hold lock).
func (r *RingBuffer) getEntriesLocked(n int) []*Entry {
	if n == 0 || r.size == 0 {
		return nil
	}

	result := make([]*Entry, n)
	start := (r.head - n + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		result[i] = r.entries[(start+i)%r.capacity]
	}
	return result
}

// Size returns the current number of entries.
func (r *RingBuffer) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Clear removes all entries.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		r.entries[i] = nil
	}
	r.head = 0
	r.size = 0
}
