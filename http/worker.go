package http

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

var ErrEmpty = errors.New("ring buffer is empty")

// Task is a unit of work run by the WorkerPool.
type Task func()

// WorkerPool runs submitted tasks on a fixed number of goroutines. Tasks
// wait in a FIFO queue while every worker is busy. The queue is unbounded
// unless WithQueueLimit is given, in which case Submit blocks while the
// queue is full.
type WorkerPool struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	queue    RingBuffer[Task]
	limit    int
	capacity int
	busy     int
	closed   bool

	wg   sync.WaitGroup
	done chan struct{}

	completed atomic.Uint64
	panicked  atomic.Uint64

	logger *slog.Logger
}

type PoolOption func(*WorkerPool)

// WithQueueLimit bounds the number of queued tasks. Zero means unbounded.
func WithQueueLimit(limit int) PoolOption {
	return func(wp *WorkerPool) {
		wp.limit = limit
	}
}

func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(wp *WorkerPool) {
		wp.logger = logger
	}
}

// NewWorkerPool starts capacity workers. A capacity below one is raised to
// one.
func NewWorkerPool(capacity int, opts ...PoolOption) *WorkerPool {
	if capacity < 1 {
		capacity = 1
	}

	wp := &WorkerPool{
		queue:    NewRingBuffer[Task](capacity),
		capacity: capacity,
		done:     make(chan struct{}),
		logger:   slog.Default(),
	}
	wp.notEmpty = sync.NewCond(&wp.mu)
	wp.notFull = sync.NewCond(&wp.mu)
	for _, opt := range opts {
		opt(wp)
	}

	wp.wg.Add(capacity)
	for range capacity {
		go wp.work()
	}
	go func() {
		wp.wg.Wait()
		close(wp.done)
	}()

	return wp
}

// Submit queues task. It returns ErrPoolClosed once Shutdown was called.
func (wp *WorkerPool) Submit(task Task) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	for !wp.closed && wp.limit > 0 && wp.queue.Len() >= wp.limit {
		wp.notFull.Wait()
	}
	if wp.closed {
		return ErrPoolClosed
	}

	wp.queue.Enqueue(task)
	wp.notEmpty.Signal()
	return nil
}

// Shutdown stops accepting tasks and waits until the queued and running
// tasks are finished or ctx is done. Workers keep draining the queue after
// ctx expires.
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	wp.close()

	select {
	case <-wp.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close rejects new tasks and wakes submitters blocked on a full queue.
func (wp *WorkerPool) close() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	wp.closed = true
	wp.notEmpty.Broadcast()
	wp.notFull.Broadcast()
}

// Done is closed once every worker has exited after Shutdown.
func (wp *WorkerPool) Done() <-chan struct{} {
	return wp.done
}

type PoolStats struct {
	Capacity  int
	Busy      int
	Queued    int
	Completed uint64
	Panicked  uint64
}

func (wp *WorkerPool) Stats() PoolStats {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	return PoolStats{
		Capacity:  wp.capacity,
		Busy:      wp.busy,
		Queued:    wp.queue.Len(),
		Completed: wp.completed.Load(),
		Panicked:  wp.panicked.Load(),
	}
}

func (wp *WorkerPool) work() {
	defer wp.wg.Done()

	for {
		wp.mu.Lock()
		for wp.queue.Len() == 0 && !wp.closed {
			wp.notEmpty.Wait()
		}
		task, err := wp.queue.Dequeue()
		if err != nil {
			// closed and drained
			wp.mu.Unlock()
			return
		}
		wp.busy++
		wp.notFull.Signal()
		wp.mu.Unlock()

		wp.run(task)

		wp.mu.Lock()
		wp.busy--
		wp.mu.Unlock()
		wp.completed.Add(1)
	}
}

func (wp *WorkerPool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			wp.panicked.Add(1)
			wp.logger.Error("worker task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	task()
}

// RingBuffer is a FIFO queue over a power of two sized slice that doubles
// when full. It is not safe for concurrent use.
type RingBuffer[T any] struct {
	buffer []T
	mask   uint64
	enqPos uint64
	deqPos uint64
}

// NewRingBuffer creates a ring buffer holding at least size items before
// its first growth.
func NewRingBuffer[T any](size int) RingBuffer[T] {
	n := 1
	for n < size {
		n <<= 1
	}
	return RingBuffer[T]{
		buffer: make([]T, n),
		mask:   uint64(n - 1),
	}
}

func (q *RingBuffer[T]) Len() int {
	return int(q.enqPos - q.deqPos)
}

// Enqueue adds an item to the ring buffer
func (q *RingBuffer[T]) Enqueue(val T) {
	if q.Len() == len(q.buffer) {
		q.grow()
	}
	q.buffer[q.enqPos&q.mask] = val
	q.enqPos++
}

// Dequeue removes and returns the oldest item
func (q *RingBuffer[T]) Dequeue() (T, error) {
	var zero T
	if q.enqPos == q.deqPos {
		return zero, ErrEmpty
	}

	slot := &q.buffer[q.deqPos&q.mask]
	val := *slot
	*slot = zero
	q.deqPos++
	return val, nil
}

func (q *RingBuffer[T]) grow() {
	size := len(q.buffer) * 2
	if size == 0 {
		size = 1
	}
	buffer := make([]T, size)
	mask := uint64(size - 1)
	for pos := q.deqPos; pos < q.enqPos; pos++ {
		buffer[pos&mask] = q.buffer[pos&q.mask]
	}
	q.buffer = buffer
	q.mask = mask
}
