package lifecycle

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Gate is the idempotent state applier. An externally observed state update
// (change feed, webhook redelivery) is applied only when its updatedAt
// differs from the one currently held for that entity. This is the single
// guard against duplicate or stale replays re-triggering transitions.
type Gate struct {
	mu   sync.Mutex
	seen map[uuid.UUID]time.Time
}

func NewGate() *Gate {
	return &Gate{seen: make(map[uuid.UUID]time.Time)}
}

// ShouldApply records updatedAt for the entity and reports whether the update
// is new. A second call with the same pair returns false.
func (g *Gate) ShouldApply(id uuid.UUID, updatedAt time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if held, ok := g.seen[id]; ok && held.Equal(updatedAt) {
		return false
	}

	g.seen[id] = updatedAt

	return true
}

// Forget drops the entity from the gate, for terminal machines.
func (g *Gate) Forget(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.seen, id)
}
