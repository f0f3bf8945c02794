// Package notify queues toast messages for a workspace and fans them out to
// live event streams.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the toast style
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// maxPending bounds the toasts kept for the next page render
const maxPending = 20

// Toast is a single notification
type Toast struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Queue holds undelivered toasts and the live listeners
type Queue struct {
	mu        sync.RWMutex
	pending   []Toast
	listeners []chan Toast
	closed    bool
}

// NewQueue creates an empty toast queue
func NewQueue() *Queue {
	return &Queue{listeners: make([]chan Toast, 0)}
}

// Push queues a toast and sends it to every listener
func (q *Queue) Push(kind Kind, message string) Toast {
	toast := Toast{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return toast
	}

	q.pending = append(q.pending, toast)
	if len(q.pending) > maxPending {
		q.pending = q.pending[len(q.pending)-maxPending:]
	}

	for _, listener := range q.listeners {
		select {
		case listener <- toast:
		default:
			// Slow listener; the toast stays pending for the next render
		}
	}
	return toast
}

// Success queues a success toast
func (q *Queue) Success(message string) Toast { return q.Push(KindSuccess, message) }

// Error queues an error toast
func (q *Queue) Error(message string) Toast { return q.Push(KindError, message) }

// Info queues an info toast
func (q *Queue) Info(message string) Toast { return q.Push(KindInfo, message) }

// Drain returns and forgets every pending toast
func (q *Queue) Drain() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Pending returns the number of undelivered toasts
func (q *Queue) Pending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

// Ack forgets a toast that a live listener already showed
func (q *Queue) Ack(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.pending {
		if t.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Subscribe creates a listener channel. Pending toasts are replayed into it.
func (q *Queue) Subscribe() chan Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan Toast, maxPending)
	if q.closed {
		close(ch)
		return ch
	}
	for _, t := range q.pending {
		ch <- t
	}
	q.listeners = append(q.listeners, ch)
	return ch
}

// Unsubscribe removes and closes a listener channel
func (q *Queue) Unsubscribe(ch chan Toast) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, listener := range q.listeners {
		if listener == ch {
			q.listeners = append(q.listeners[:i], q.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close closes every listener and drops pending toasts
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, listener := range q.listeners {
		close(listener)
	}
	q.listeners = nil
	q.pending = nil
	q.closed = true
}
