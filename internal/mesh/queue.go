package mesh

// Queue is a bounded FIFO backed by a ring buffer allocated once at
// construction. When full, new items are rejected rather than evicting
// older ones.
//
// Queue is not safe for concurrent use; Controller guards it.
type Queue[T any] struct {
	buf  []T
	head int
	n    int
}

// NewQueue creates a queue holding at most capacity items.
// capacity must be positive.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{buf: make([]T, capacity)}
}

// Enqueue appends v and reports whether it was accepted.
func (q *Queue[T]) Enqueue(v T) bool {
	if q.n == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	return true
}

// Peek returns the head without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	return q.buf[q.head], true
}

// Pop removes and returns the head.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return q.n }

// Cap returns the maximum number of items.
func (q *Queue[T]) Cap() int { return len(q.buf) }

// Clear discards every item and returns how many were removed.
func (q *Queue[T]) Clear() int {
	n := q.n
	clear(q.buf)
	q.head = 0
	q.n = 0
	return n
}

// Snapshot returns the queued items in pop order.
func (q *Queue[T]) Snapshot() []T {
	out := make([]T, q.n)
	for i := range q.n {
		out[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	return out
}
