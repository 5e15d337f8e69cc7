package actor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
)

type probeEvent struct {
	n int
}

func (probeEvent) EventKind() lifecycle.Kind { return "PROBE" }

func TestSendPreservesOrder(t *testing.T) {
	t.Parallel()

	const count = 100

	got := make(chan int, count)
	ref := Spawn(context.Background(), uuid.New(), func(_ context.Context, ev lifecycle.Event) {
		got <- ev.(probeEvent).n
	})
	defer ref.Stop()

	for i := 0; i < count; i++ {
		if !ref.Send(probeEvent{n: i}) {
			t.Fatalf("send %d rejected on a running actor", i)
		}
	}

	for i := 0; i < count; i++ {
		select {
		case n := <-got:
			if n != i {
				t.Fatalf("delivery %d carried %d, mailbox is not FIFO", i, n)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}
}

func TestScheduleAtPastAnchorFiresImmediately(t *testing.T) {
	t.Parallel()

	got := make(chan int, 1)
	ref := Spawn(context.Background(), uuid.New(), func(_ context.Context, ev lifecycle.Event) {
		got <- ev.(probeEvent).n
	})
	defer ref.Stop()

	// A restart can recompute a fire time that already passed; the event must
	// still be delivered instead of silently dropped.
	ref.ScheduleAt(time.Now().Add(-time.Hour), probeEvent{n: 7})

	select {
	case n := <-got:
		if n != 7 {
			t.Fatalf("delivered %d, want 7", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("past-anchored timer never fired")
	}
}

func TestStopDisarmsTimersAndRejectsSends(t *testing.T) {
	t.Parallel()

	got := make(chan int, 1)
	ref := Spawn(context.Background(), uuid.New(), func(_ context.Context, ev lifecycle.Event) {
		got <- ev.(probeEvent).n
	})

	ref.ScheduleAt(time.Now().Add(50*time.Millisecond), probeEvent{n: 1})
	ref.Stop()

	if ref.Send(probeEvent{n: 2}) {
		t.Fatal("send accepted on a stopped actor")
	}

	select {
	case n := <-got:
		t.Fatalf("stopped actor delivered %d", n)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	ref := Spawn(context.Background(), uuid.New(), func(context.Context, lifecycle.Event) {})
	ref.Stop()
	ref.Stop()
}

func TestRegistryPutStopsPrevious(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	id := uuid.New()

	first := Spawn(context.Background(), id, func(context.Context, lifecycle.Event) {})
	second := Spawn(context.Background(), id, func(context.Context, lifecycle.Event) {})
	defer second.Stop()

	reg.Put(first)
	reg.Put(second)

	if first.Send(probeEvent{}) {
		t.Fatal("replaced actor still accepts sends")
	}

	ref, ok := reg.Get(id)
	if !ok || ref != second {
		t.Fatal("registry does not hold the replacement")
	}
}

func TestRegistryRemoveStops(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	id := uuid.New()

	ref := Spawn(context.Background(), id, func(context.Context, lifecycle.Event) {})
	reg.Put(ref)
	reg.Remove(id)

	if _, ok := reg.Get(id); ok {
		t.Fatal("removed actor still registered")
	}
	if ref.Send(probeEvent{}) {
		t.Fatal("removed actor still accepts sends")
	}
}

func TestRegistryStopAll(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	refs := make([]*Ref, 0, 3)
	for i := 0; i < 3; i++ {
		ref := Spawn(context.Background(), uuid.New(), func(context.Context, lifecycle.Event) {})
		reg.Put(ref)
		refs = append(refs, ref)
	}

	reg.StopAll()

	for i, ref := range refs {
		if ref.Send(probeEvent{}) {
			t.Fatalf("actor %d still accepts sends after StopAll", i)
		}
		if _, ok := reg.Get(ref.ID()); ok {
			t.Fatalf("actor %d still registered after StopAll", i)
		}
	}
}
