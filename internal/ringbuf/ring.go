// Package ringbuf implements the bounded, overwrite-oldest history buffers shared
// between the capture path and the control loop.
//
// A Ring is indexed newest first: PeekAt(0) is the most recent Push. One goroutine
// pushes while others read and trim; nobody blocks and nobody spins on a flag.
// Entries are kept in atomic 64-bit slots, so element types need an encoding to
// and from uint64 (see NewEdges and NewFrequencies).
package ringbuf

import (
	"math"
	"sync/atomic"
)

// Ring is a fixed-capacity circular buffer with reverse-chronological reads.
//
// Sequence numbers grow monotonically: head is the sequence of the next push and
// tail is the oldest sequence the consumer still wants. The retained window is
// [max(tail, head-capacity), head). One spare slot keeps the oldest retained entry
// readable while the producer is writing the next one.
type Ring[T any] struct {
	slots    []atomic.Uint64
	capacity uint64
	head     atomic.Uint64
	tail     atomic.Uint64
	encode   func(T) uint64
	decode   func(uint64) T
}

// New creates a Ring holding at most capacity entries. Capacities below one are
// raised to one.
func New[T any](capacity int, encode func(T) uint64, decode func(uint64) T) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Ring[T]{
		slots:    make([]atomic.Uint64, capacity+1),
		capacity: uint64(capacity),
		encode:   encode,
		decode:   decode,
	}
}

// NewEdges creates a ring of raw hardware counter values.
func NewEdges(capacity int) *Ring[uint32] {
	return New(capacity,
		func(v uint32) uint64 { return uint64(v) },
		func(b uint64) uint32 { return uint32(b) })
}

// NewFrequencies creates a ring of instantaneous frequency samples.
func NewFrequencies(capacity int) *Ring[float64] {
	return New(capacity, math.Float64bits, math.Float64frombits)
}

// Push stores item as the newest entry, dropping the oldest one when full.
// Only one goroutine may push at a time.
func (r *Ring[T]) Push(item T) {
	h := r.head.Load()
	r.slot(h).Store(r.encode(item))
	r.head.Store(h + 1)
}

// Peek returns the newest entry.
func (r *Ring[T]) Peek() (T, bool) {
	return r.PeekAt(0)
}

// PeekAt returns the index-th newest entry. It fails when index >= Len, or when
// the entry was overwritten while being read.
func (r *Ring[T]) PeekAt(index int) (T, bool) {
	var zero T
	if index < 0 {
		return zero, false
	}

	t := r.tail.Load()
	h := r.head.Load()
	start := r.oldest(h, t)
	if uint64(index) >= h-start {
		return zero, false
	}

	seq := h - 1 - uint64(index)
	v := r.slot(seq).Load()
	if r.overwritten(seq) {
		return zero, false
	}

	return r.decode(v), true
}

// Snapshot copies the retained entries, newest first.
func (r *Ring[T]) Snapshot() []T {
	t := r.tail.Load()
	h := r.head.Load()
	start := r.oldest(h, t)

	items := make([]T, 0, h-start)
	for seq := h; seq > start; seq-- {
		v := r.slot(seq - 1).Load()
		if r.overwritten(seq - 1) {
			break
		}
		items = append(items, r.decode(v))
	}

	return items
}

// Drain returns the retained entries, newest first, and discards exactly those.
// Anything pushed concurrently with the drain is kept.
func (r *Ring[T]) Drain() []T {
	for {
		t := r.tail.Load()
		h := r.head.Load()
		start := r.oldest(h, t)

		items := make([]T, 0, h-start)
		for seq := h; seq > start; seq-- {
			items = append(items, r.decode(r.slot(seq-1).Load()))
		}
		if h > start && r.overwritten(start) {
			continue
		}
		if r.tail.CompareAndSwap(t, h) {
			return items
		}
	}
}

// FreeN discards the count oldest entries. Counts beyond Len empty the ring.
func (r *Ring[T]) FreeN(count int) {
	if count <= 0 {
		return
	}

	for {
		t := r.tail.Load()
		h := r.head.Load()
		start := r.oldest(h, t)
		n := min(uint64(count), h-start)
		if r.tail.CompareAndSwap(t, start+n) {
			return
		}
	}
}

// Empty discards every entry.
func (r *Ring[T]) Empty() {
	for {
		t := r.tail.Load()
		if r.tail.CompareAndSwap(t, r.head.Load()) {
			return
		}
	}
}

// Len returns the number of retained entries.
func (r *Ring[T]) Len() int {
	t := r.tail.Load()
	h := r.head.Load()

	return int(h - r.oldest(h, t))
}

// Cap returns the capacity fixed at construction.
func (r *Ring[T]) Cap() int {
	return int(r.capacity)
}

// Full reports whether Len has reached Cap.
func (r *Ring[T]) Full() bool {
	return r.Len() == r.Cap()
}

// tail must be loaded before head so that tail <= head holds.
func (r *Ring[T]) oldest(head, tail uint64) uint64 {
	if head > r.capacity && tail < head-r.capacity {
		return head - r.capacity
	}

	return tail
}

func (r *Ring[T]) slot(seq uint64) *atomic.Uint64 {
	return &r.slots[seq%uint64(len(r.slots))]
}

// The slot of seq is reused by seq+capacity+1, which the producer may be writing
// as soon as head reaches that value.
func (r *Ring[T]) overwritten(seq uint64) bool {
	return r.head.Load() > seq+r.capacity
}
