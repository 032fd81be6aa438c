package spatial

import (
	"runtime"
	"sync/atomic"
)

// CacheLineSize is the typical CPU cache line size on x86-64.
const CacheLineSize = 64

// Padding keeps hot counters on separate cache lines.
type Padding [CacheLineSize]byte

type slot[T any] struct {
	seq  atomic.Uint64
	item T
}

// Queue is a bounded multi-producer single-consumer ring. Each slot
// carries a sequence number so the consumer never reads a slot that a
// producer has claimed but not yet written.
type Queue[T any] struct {
	_pad0 Padding
	head  atomic.Uint64 // next slot to claim (producers)
	_pad1 Padding
	tail  atomic.Uint64 // next slot to read (consumer)
	_pad2 Padding
	mask  uint64
	slots []slot[T]
}

// NewQueue rounds capacity up to a power of two.
func NewQueue[T any](capacity int) *Queue[T] {
	n := 1
	for n < capacity {
		n <<= 1
	}
	q := &Queue[T]{
		mask:  uint64(n - 1),
		slots: make([]slot[T], n),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush adds an item. Returns false when full. Safe for concurrent producers.
func (q *Queue[T]) TryPush(item T) bool {
	for {
		head := q.head.Load()
		s := &q.slots[head&q.mask]
		seq := s.seq.Load()

		switch {
		case seq == head:
			if q.head.CompareAndSwap(head, head+1) {
				s.item = item
				s.seq.Store(head + 1) // publish
				return true
			}
		case seq < head:
			return false // full: slot not yet consumed
		}
		runtime.Gosched()
	}
}

// TryPop removes the oldest published item. Single consumer only.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	tail := q.tail.Load()
	s := &q.slots[tail&q.mask]
	if s.seq.Load() != tail+1 {
		return zero, false
	}
	item := s.item
	s.item = zero
	s.seq.Store(tail + q.mask + 1) // free for the next lap
	q.tail.Store(tail + 1)
	return item, true
}

// DrainTo pops into buf and returns the count.
func (q *Queue[T]) DrainTo(buf []T) int {
	n := 0
	for n < len(buf) {
		item, ok := q.TryPop()
		if !ok {
			break
		}
		buf[n] = item
		n++
	}
	return n
}

// Len is an approximate snapshot.
func (q *Queue[T]) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	if head < tail {
		return 0
	}
	return int(head - tail)
}

func (q *Queue[T]) Cap() int {
	return int(q.mask + 1)
}
