package lifecycle

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGateShouldApply(t *testing.T) {
	t.Parallel()

	g := NewGate()
	id := uuid.New()
	t1 := time.Now().UTC()
	t2 := t1.Add(time.Second)

	if !g.ShouldApply(id, t1) {
		t.Fatal("first observation must apply")
	}
	if g.ShouldApply(id, t1) {
		t.Fatal("replay of the same updatedAt must not apply")
	}
	if !g.ShouldApply(id, t2) {
		t.Fatal("a newer updatedAt must apply")
	}

	// An out-of-order redelivery of the older timestamp still passes; the gate
	// only filters exact duplicates, staleness is decided against the store.
	if !g.ShouldApply(id, t1) {
		t.Fatal("different updatedAt must apply even when older")
	}
}

func TestGateTracksEntitiesIndependently(t *testing.T) {
	t.Parallel()

	g := NewGate()
	a, b := uuid.New(), uuid.New()
	at := time.Now().UTC()

	if !g.ShouldApply(a, at) || !g.ShouldApply(b, at) {
		t.Fatal("entities must not share gate entries")
	}
	if g.ShouldApply(a, at) || g.ShouldApply(b, at) {
		t.Fatal("replays must be filtered per entity")
	}
}

func TestGateForget(t *testing.T) {
	t.Parallel()

	g := NewGate()
	id := uuid.New()
	at := time.Now().UTC()

	g.ShouldApply(id, at)
	g.Forget(id)

	if !g.ShouldApply(id, at) {
		t.Fatal("a forgotten entity must apply again")
	}
}
