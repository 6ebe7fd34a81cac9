package containers

import "errors"

var ErrQueueEmpty = errors.New("queue is empty")

// Queue is a FIFO ring buffer that grows when full.
// It is not safe for concurrent use.
type Queue[T any] struct {
	data       []T
	readIndex  int
	writeIndex int
	count      int
}

// Create a new Queue with room for size elements before it has to grow.
func NewQueue[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{
		data: make([]T, size),
	}
}

// Enqueue adds an element to the back of the queue
func (q *Queue[T]) Enqueue(value T) {
	if q.count == len(q.data) {
		q.grow()
	}
	q.data[q.writeIndex] = value
	q.writeIndex = (q.writeIndex + 1) % len(q.data)
	q.count++
}

// Dequeue removes and returns the front element in the queue
func (q *Queue[T]) Dequeue() (T, error) {
	var zero T
	if q.IsEmpty() {
		return zero, ErrQueueEmpty
	}

	value := q.data[q.readIndex]
	q.data[q.readIndex] = zero
	q.readIndex = (q.readIndex + 1) % len(q.data)
	q.count--
	return value, nil
}

// Peek returns the front element without removing it
func (q *Queue[T]) Peek() (T, error) {
	if q.IsEmpty() {
		var zero T
		return zero, ErrQueueEmpty
	}
	return q.data[q.readIndex], nil
}

// Drain removes every element and returns them in FIFO order.
func (q *Queue[T]) Drain() []T {
	out := make([]T, 0, q.count)
	for !q.IsEmpty() {
		v, _ := q.Dequeue()
		out = append(out, v)
	}
	q.readIndex = 0
	q.writeIndex = 0
	return out
}

// Len returns the number of queued elements
func (q *Queue[T]) Len() int {
	return q.count
}

// IsEmpty checks if the queue is empty
func (q *Queue[T]) IsEmpty() bool {
	return q.count == 0
}

func (q *Queue[T]) grow() {
	data := make([]T, len(q.data)*2)
	for i := 0; i < q.count; i++ {
		data[i] = q.data[(q.readIndex+i)%len(q.data)]
	}
	q.data = data
	q.readIndex = 0
	q.writeIndex = q.count
}
