package game

import (
	"testing"

	"github.com/KDT2006/defusedivision/internal/protocol"
)

func selected(x int) protocol.Event {
	return protocol.SelectedEvent("p", x, 0)
}

func TestQueueDropOldest(t *testing.T) {
	q := NewQueue(2, DropOldest)
	for x := range 5 {
		if !q.Push(selected(x)) {
			t.Fatalf("push %d rejected", x)
		}
	}
	if q.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", q.Dropped())
	}
	for _, want := range []int{3, 4} {
		ev, ok := q.Pop()
		if !ok || ev.Selected.X != want {
			t.Errorf("Pop = %+v, %v; want x=%d", ev.Selected, ok, want)
		}
	}
}

func TestQueueDisconnectOnOverflow(t *testing.T) {
	q := NewQueue(1, Disconnect)
	if !q.Push(selected(0)) {
		t.Fatal("first push rejected")
	}
	if q.Push(selected(1)) {
		t.Fatal("overflow push accepted")
	}
	if !q.Closed() {
		t.Fatal("queue not closed after overflow")
	}

	// buffered event still drains, then the sentinel
	if ev, ok := q.Pop(); !ok || ev.Selected.X != 0 {
		t.Errorf("Pop = %+v, %v", ev, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Errorf("Pop after drain should report closed")
	}
}

func TestQueuePushAfterClose(t *testing.T) {
	q := NewQueue(4, DropOldest)
	q.Close()
	q.Close()
	if q.Push(selected(0)) {
		t.Errorf("push to closed queue accepted")
	}
	if _, ok := q.Pop(); ok {
		t.Errorf("Pop on closed empty queue reported an event")
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	for _, s := range []string{"drop-oldest", "disconnect"} {
		if _, err := ParseOverflowPolicy(s); err != nil {
			t.Errorf("ParseOverflowPolicy(%q): %v", s, err)
		}
	}
	if _, err := ParseOverflowPolicy("block"); err == nil {
		t.Errorf("ParseOverflowPolicy accepted an unknown policy")
	}
}
