// Package modal provides the open/confirm/cancel state shared by every
// confirmation and input dialog in inkdesk.
package modal

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned when confirming a dialog that is not open
	ErrClosed = errors.New("dialog is not open")
	// ErrBusy is returned when a confirmation is already running
	ErrBusy = errors.New("dialog confirmation already in progress")
)

// Dialog holds the target a dialog was opened for. The zero value is a
// closed dialog ready for use.
type Dialog[T any] struct {
	mu     sync.Mutex
	open   bool
	busy   bool
	target T
}

// Open shows the dialog for target, replacing any previous target
func (d *Dialog[T]) Open(target T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	d.target = target
}

// IsOpen reports whether the dialog is showing
func (d *Dialog[T]) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Busy reports whether a confirmation is in flight
func (d *Dialog[T]) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// Target returns the pending target and whether the dialog is open
func (d *Dialog[T]) Target() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target, d.open
}

// Confirm runs fn with the pending target. The dialog closes and forgets the
// target only when fn succeeds; on error it stays open so the user can retry
// or cancel.
func (d *Dialog[T]) Confirm(ctx context.Context, fn func(context.Context, T) error) error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.busy {
		d.mu.Unlock()
		return ErrBusy
	}
	d.busy = true
	target := d.target
	d.mu.Unlock()

	err := fn(ctx, target)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
	if err != nil {
		return err
	}
	d.reset()
	return nil
}

// Cancel closes the dialog and forgets the target without running anything
func (d *Dialog[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *Dialog[T]) reset() {
	var zero T
	d.open = false
	d.target = zero
}
