// Package actor is a minimal mailbox runtime. Every show, ticket and wallet
// runs as one sequential actor: events are processed one at a time in arrival
// order, cross-actor traffic is message passing, and deferred self-events are
// recomputed from persisted anchor timestamps rather than trusted to
// in-memory timers.
package actor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/lifecycle"
)

const defaultMailbox = 64

// Proc handles one delivered event. It runs on the actor's own goroutine,
// never concurrently with itself.
type Proc func(ctx context.Context, ev lifecycle.Event)

// Ref is a handle to one running actor.
type Ref struct {
	id      uuid.UUID
	mailbox chan lifecycle.Event

	mu      sync.Mutex
	timers  []*time.Timer
	stopped bool

	stopOnce sync.Once
	done     chan struct{}
}

// Spawn starts the actor goroutine and returns its handle. The actor runs
// until Stop is called or ctx is cancelled.
func Spawn(ctx context.Context, id uuid.UUID, proc Proc) *Ref {
	r := &Ref{
		id:      id,
		mailbox: make(chan lifecycle.Event, defaultMailbox),
		done:    make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.done:
				return
			case ev := <-r.mailbox:
				proc(ctx, ev)
			}
		}
	}()

	return r
}

func (r *Ref) ID() uuid.UUID { return r.id }

// Send delivers an event to the mailbox. It reports false when the actor has
// stopped. Routing between machines is acyclic (ticket → show → wallet), so a
// blocking send cannot deadlock.
func (r *Ref) Send(ev lifecycle.Event) bool {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()

	select {
	case r.mailbox <- ev:
		return true
	case <-r.done:
		return false
	}
}

// ScheduleAt arms a deferred self-event. The delay is computed from the
// absolute fire time, so callers derive it from a persisted anchor and a
// restart reschedules correctly instead of losing the timer. A fire time in
// the past delivers immediately.
func (r *Ref) ScheduleAt(at time.Time, ev lifecycle.Event) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		r.Send(ev)
		r.dropTimer(t)
	})
	r.timers = append(r.timers, t)
}

func (r *Ref) dropTimer(t *time.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, held := range r.timers {
		if held == t {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			return
		}
	}
}

// Stop terminates the actor and disarms pending timers. Events already in
// the mailbox are discarded; durable state was persisted per transition, so
// nothing committed is lost.
func (r *Ref) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		for _, t := range r.timers {
			t.Stop()
		}
		r.timers = nil
		r.mu.Unlock()

		close(r.done)
	})
}
