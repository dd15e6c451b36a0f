package coach

// Ring is a fixed-capacity FIFO history. Pushing onto a full ring evicts the oldest value.
type Ring[T any] struct {
	values   []T
	capacity int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		values:   make([]T, 0, capacity),
		capacity: capacity,
	}
}

func (r *Ring[T]) Push(v T) {
	if len(r.values) == r.capacity {
		copy(r.values, r.values[1:])
		r.values = r.values[:len(r.values)-1]
	}
	r.values = append(r.values, v)
}

// Reset replaces the contents. Values beyond capacity keep only the newest entries.
func (r *Ring[T]) Reset(values ...T) {
	r.values = r.values[:0]
	for _, v := range values {
		r.Push(v)
	}
}

func (r *Ring[T]) Len() int { return len(r.values) }

func (r *Ring[T]) Cap() int { return r.capacity }

// Values returns a copy, oldest first.
func (r *Ring[T]) Values() []T {
	out := make([]T, len(r.values))
	copy(out, r.values)
	return out
}
