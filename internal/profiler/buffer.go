package profiler

// EventBuffer is a fixed-capacity ring of EventRows. At capacity,
// Append evicts the single oldest row, so the buffer always holds the
// most recent rows in insertion order. Callers are responsible for
// locking; the owning Session serializes access.
type EventBuffer struct {
	rows  []EventRow
	start int
	count int
}

// NewEventBuffer creates a buffer with the given capacity. Capacities
// below 1 are raised to 1.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &EventBuffer{
		rows: make([]EventRow, capacity),
	}
}

// Capacity returns the fixed capacity set at construction.
func (b *EventBuffer) Capacity() int {
	return len(b.rows)
}

// Len returns the number of rows currently retained.
func (b *EventBuffer) Len() int {
	return b.count
}

// Append inserts a row, evicting the oldest when full. It never fails.
func (b *EventBuffer) Append(row EventRow) {
	if b.count < len(b.rows) {
		b.rows[(b.start+b.count)%len(b.rows)] = row
		b.count++
		return
	}
	// Full: overwrite the oldest slot and advance the start.
	b.rows[b.start] = row
	b.start = (b.start + 1) % len(b.rows)
}

// Snapshot returns a copy of the retained rows in insertion
// (ascending id) order. The copy is isolated from later appends.
func (b *EventBuffer) Snapshot() []EventRow {
	out := make([]EventRow, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.rows[(b.start+i)%len(b.rows)]
	}
	return out
}
