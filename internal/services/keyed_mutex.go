package services

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes operations per entity id. Lifecycle operations on a
// transaction and rating updates for a business each take the entity's lock
// for the whole read-validate-write span, so interleavings can't advance
// state twice or fold a stale count back in.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock blocks until the entity's lock is held and returns the unlock func.
func (k *keyedMutex) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	entry := k.locks[id]
	if entry == nil {
		entry = &lockEntry{}
		k.locks[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
