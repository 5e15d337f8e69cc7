package actor

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps entity ids to live actors. It exists so the ticket → show and
// show → wallet edges can be resolved by id without any machine holding a
// back-pointer.
type Registry struct {
	mu   sync.RWMutex
	refs map[uuid.UUID]*Ref
}

func NewRegistry() *Registry {
	return &Registry{refs: make(map[uuid.UUID]*Ref)}
}

func (r *Registry) Get(id uuid.UUID) (*Ref, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.refs[id]

	return ref, ok
}

// Put registers the actor, stopping any previous instance for the same id.
func (r *Registry) Put(ref *Ref) {
	r.mu.Lock()
	prev := r.refs[ref.id]
	r.refs[ref.id] = ref
	r.mu.Unlock()

	if prev != nil && prev != ref {
		prev.Stop()
	}
}

// Remove stops and deregisters the actor, for terminal machines.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	ref := r.refs[id]
	delete(r.refs, id)
	r.mu.Unlock()

	if ref != nil {
		ref.Stop()
	}
}

// StopAll terminates every registered actor, for shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	refs := r.refs
	r.refs = make(map[uuid.UUID]*Ref)
	r.mu.Unlock()

	for _, ref := range refs {
		ref.Stop()
	}
}
