package orderbook

// Ring is a fixed-capacity FIFO queue. It never grows: Enqueue reports
// false once the ring holds Cap items.
type Ring[T any] struct {
	buf  []T
	head uint64 // next write
	tail uint64 // next read
}

func NewRing[T any](capacity int) *Ring[T] {
	r := &Ring[T]{}
	r.init(capacity)
	return r
}

func (r *Ring[T]) init(capacity int) {
	if capacity <= 0 {
		panic("orderbook: ring capacity must be positive")
	}
	r.buf = make([]T, capacity)
	r.head, r.tail = 0, 0
}

// Enqueue appends v at the back.
func (r *Ring[T]) Enqueue(v T) bool {
	if r.head-r.tail == uint64(len(r.buf)) {
		return false
	}
	r.buf[r.head%uint64(len(r.buf))] = v
	r.head++
	return true
}

// Dequeue removes and returns the oldest item.
func (r *Ring[T]) Dequeue() (T, bool) {
	var zero T
	if r.head == r.tail {
		return zero, false
	}
	i := r.tail % uint64(len(r.buf))
	v := r.buf[i]
	r.buf[i] = zero
	r.tail++
	return v, true
}

// Peek returns the oldest item without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	if r.head == r.tail {
		var zero T
		return zero, false
	}
	return r.buf[r.tail%uint64(len(r.buf))], true
}

func (r *Ring[T]) Len() int { return int(r.head - r.tail) }

func (r *Ring[T]) Cap() int { return len(r.buf) }

func (r *Ring[T]) Empty() bool { return r.head == r.tail }

func (r *Ring[T]) Full() bool { return r.head-r.tail == uint64(len(r.buf)) }

// Reset drops all items but keeps the backing buffer.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head, r.tail = 0, 0
}
