// Package eventbuf keeps the most recent events of each session so that a
// reconnecting subscriber can catch up from its last seen event id.
package eventbuf

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wethinkt/thinkt-live/internal/blocks"
)

// DefaultCapacity is the number of events kept per session.
const DefaultCapacity = 20

const idPrefix = "evt_"

// Entry is a buffered event and its id.
type Entry struct {
	ID    string
	Seq   int
	Gen   uint64 // generation of the buffer that issued Seq
	Event blocks.Event
}

// Mark is a position in a buffer's history. Generations increase across all
// buffers of the process and change on Clear, so a Mark stays comparable
// after the id sequence restarts.
type Mark struct {
	Gen uint64
	Seq int
}

// Covers reports whether the event at (gen, seq) is at or before m.
func (m Mark) Covers(gen uint64, seq int) bool {
	return gen < m.Gen || (gen == m.Gen && seq <= m.Seq)
}

var generations atomic.Uint64

func nextGeneration() uint64 { return generations.Add(1) }

// FormatID renders a sequence number as an event id: evt_001, evt_002, ...
func FormatID(seq int) string {
	return fmt.Sprintf("%s%03d", idPrefix, seq)
}

// ParseID extracts the sequence number of an event id. Only ids in the form
// FormatID produces are accepted, so evt_1 or evt_+2 are unknown.
func ParseID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || FormatID(n) != id {
		return 0, false
	}
	return n, true
}

// Buffer is a fixed-capacity ring of events. The id sequence keeps counting
// through evictions and restarts at evt_001 only after Clear.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	ring     []Entry
	start    int // index of the oldest entry
	count    int
	next     int // sequence number of the next entry
	gen      uint64
}

// New creates a buffer holding at most capacity events. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		ring:     make([]Entry, capacity),
		next:     1,
		gen:      nextGeneration(),
	}
}

// Add appends an event, evicting the oldest when full, and returns its entry.
func (b *Buffer) Add(ev blocks.Event) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := Entry{ID: FormatID(b.next), Seq: b.next, Gen: b.gen, Event: ev}
	b.next++

	if b.count == b.capacity {
		b.ring[b.start] = e
		b.start = (b.start + 1) % b.capacity
		evictionsTotal.Inc()
		return e
	}
	b.ring[(b.start+b.count)%b.capacity] = e
	b.count++
	return e
}

// Since returns the entries after id, oldest first. An empty id, or one that
// is unknown or already evicted, yields the whole buffer.
func (b *Buffer) Since(id string) []Entry {
	entries, _ := b.Replay(id)
	return entries
}

// Replay is Since plus a Mark of the newest entry at the time of the call.
// The Mark covers no event added later, even across Clear.
func (b *Buffer) Replay(id string) ([]Entry, Mark) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.since(id), Mark{Gen: b.gen, Seq: b.next - 1}
}

func (b *Buffer) since(id string) []Entry {
	all := b.snapshot()
	if id == "" || len(all) == 0 {
		return all
	}
	for i, e := range all {
		if e.ID == id {
			return all[i+1:]
		}
	}
	return all
}

func (b *Buffer) snapshot() []Entry {
	out := make([]Entry, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.ring[(b.start+i)%b.capacity]
	}
	return out
}

// Clear drops every entry, restarts the id sequence at evt_001 and starts a
// new generation.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.ring)
	b.gen = nextGeneration()
	b.start = 0
	b.count = 0
	b.next = 1
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity returns the maximum number of buffered events.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// LastID returns the id of the newest entry, or "" when empty.
func (b *Buffer) LastID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return ""
	}
	return b.ring[(b.start+b.count-1)%b.capacity].ID
}
