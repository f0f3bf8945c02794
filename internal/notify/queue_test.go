package notify

import (
	"fmt"
	"testing"
)

func TestPushAndDrain(t *testing.T) {
	q := NewQueue()
	q.Success("saved")
	q.Error("failed")

	toasts := q.Drain()
	if len(toasts) != 2 {
		t.Fatalf("expected 2 toasts, got %d", len(toasts))
	}
	if toasts[0].Kind != KindSuccess || toasts[0].Message != "saved" {
		t.Fatalf("unexpected first toast: %+v", toasts[0])
	}
	if toasts[1].Kind != KindError || toasts[1].ID == "" {
		t.Fatalf("unexpected second toast: %+v", toasts[1])
	}
	if q.Pending() != 0 {
		t.Fatal("drain should empty the queue")
	}
}

func TestPendingIsBounded(t *testing.T) {
	q := NewQueue()
	for i := 0; i < maxPending+5; i++ {
		q.Info(fmt.Sprintf("toast %d", i))
	}
	toasts := q.Drain()
	if len(toasts) != maxPending {
		t.Fatalf("expected %d toasts, got %d", maxPending, len(toasts))
	}
	if toasts[0].Message != "toast 5" {
		t.Fatalf("expected oldest toasts dropped, first is %q", toasts[0].Message)
	}
}

func TestSubscribeReplaysAndReceives(t *testing.T) {
	q := NewQueue()
	first := q.Info("before")

	ch := q.Subscribe()
	if got := <-ch; got.ID != first.ID {
		t.Fatalf("expected replay of pending toast, got %+v", got)
	}

	second := q.Success("after")
	if got := <-ch; got.ID != second.ID {
		t.Fatalf("expected live toast, got %+v", got)
	}

	q.Ack(first.ID)
	q.Ack(second.ID)
	if q.Pending() != 0 {
		t.Fatalf("expected acked toasts gone, %d pending", q.Pending())
	}

	q.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}

func TestCloseClosesListeners(t *testing.T) {
	q := NewQueue()
	ch := q.Subscribe()
	q.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	q.Info("ignored")
	if q.Pending() != 0 {
		t.Fatal("closed queue should not keep toasts")
	}
	if _, ok := <-q.Subscribe(); ok {
		t.Fatal("subscribing to a closed queue should yield a closed channel")
	}
}
