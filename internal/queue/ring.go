// Package queue holds reports that have not reached the host yet.
package queue

// MaxReportSize is the largest report payload a slot can hold.
const MaxReportSize = 8

// Entry is one queued report.
type Entry struct {
	ReportID uint8
	Data     []byte
}

// Ring is a bounded FIFO. Pushing into a full ring evicts the oldest entry.
// The head may be marked as sent; evicting or popping it clears the mark.
type Ring struct {
	slots []Entry
	head  int
	n     int
	sent  bool
}

// NewRing creates a ring with room for capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{slots: make([]Entry, capacity)}
}

// Push appends a copy of data. It reports whether an entry was evicted.
func (r *Ring) Push(reportID uint8, data []byte) (evicted bool) {
	if len(data) > MaxReportSize {
		data = data[:MaxReportSize]
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	idx := (r.head + r.n) % len(r.slots)
	r.slots[idx] = Entry{ReportID: reportID, Data: buf}
	if r.n == len(r.slots) {
		r.head = (r.head + 1) % len(r.slots)
		r.sent = false
		return true
	}
	r.n++
	return false
}

// MarkSent records that the head has been handed to the host.
func (r *Ring) MarkSent() { r.sent = r.n > 0 }

// ClearSent forgets the mark, for a head that must go out again.
func (r *Ring) ClearSent() { r.sent = false }

// HeadSent reports whether the current head is the entry last marked sent.
func (r *Ring) HeadSent() bool { return r.sent }

// Peek returns the oldest entry without removing it.
func (r *Ring) Peek() (Entry, bool) {
	if r.n == 0 {
		return Entry{}, false
	}
	return r.slots[r.head], true
}

// Pop removes the oldest entry.
func (r *Ring) Pop() (Entry, bool) {
	e, ok := r.Peek()
	if !ok {
		return Entry{}, false
	}
	r.slots[r.head] = Entry{}
	r.head = (r.head + 1) % len(r.slots)
	r.n--
	r.sent = false
	return e, true
}

// Len returns the number of queued entries.
func (r *Ring) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.slots) }

// Reset drops every entry.
func (r *Ring) Reset() {
	for i := range r.slots {
		r.slots[i] = Entry{}
	}
	r.head = 0
	r.n = 0
	r.sent = false
}

// Entries returns the queued entries oldest first.
func (r *Ring) Entries() []Entry {
	out := make([]Entry, 0, r.n)
	for i := 0; i < r.n; i++ {
		out = append(out, r.slots[(r.head+i)%len(r.slots)])
	}
	return out
}
