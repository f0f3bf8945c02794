package modal

import (
	"context"
	"errors"
	"testing"
)

func TestConfirmRunsWithTargetAndCloses(t *testing.T) {
	var d Dialog[int]
	d.Open(7)

	var got int
	err := d.Confirm(context.Background(), func(_ context.Context, id int) error {
		got = id
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected target 7, got %d", got)
	}
	if d.IsOpen() {
		t.Fatal("expected dialog closed after confirm")
	}
	if target, open := d.Target(); open || target != 0 {
		t.Fatalf("expected cleared target, got %d open=%v", target, open)
	}
}

func TestConfirmFailureKeepsDialogOpen(t *testing.T) {
	var d Dialog[string]
	d.Open("draft")

	boom := errors.New("boom")
	if err := d.Confirm(context.Background(), func(context.Context, string) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if target, open := d.Target(); !open || target != "draft" {
		t.Fatalf("expected dialog still open on draft, got %q open=%v", target, open)
	}
}

func TestCancelDoesNotRunAnything(t *testing.T) {
	var d Dialog[int]
	d.Open(3)
	d.Cancel()

	called := false
	err := d.Confirm(context.Background(), func(context.Context, int) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if called {
		t.Fatal("confirm callback ran on a cancelled dialog")
	}
}

func TestConfirmWhileBusy(t *testing.T) {
	var d Dialog[int]
	d.Open(1)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- d.Confirm(context.Background(), func(context.Context, int) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	if !d.Busy() {
		t.Fatal("expected dialog busy during confirm")
	}
	if err := d.Confirm(context.Background(), func(context.Context, int) error { return nil }); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
