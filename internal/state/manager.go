// Package state provides the per-identity conversation state store.
//
// State is volatile by contract: it lives for the life of the process and is
// lost on restart. The store is logically partitioned by identity; Acquire
// hands out a per-identity lock so two near-simultaneous messages from the
// same identity cannot race a read-modify-write cycle.
package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

// Manager is the keyed conversation-state abstraction.
type Manager interface {
	// Get returns the state for identity and whether one exists.
	Get(identity string) (models.ConversationState, bool)
	// Set stores the state for identity.
	Set(identity string, st models.ConversationState)
	// Clear removes all state for identity.
	Clear(identity string)
	// Acquire blocks until the per-identity lock is held and returns the
	// release function. Callers must hold it across a full turn.
	Acquire(identity string) (release func())
}

// MemoryManager is the in-process Manager implementation.
type MemoryManager struct {
	mu     sync.Mutex
	states map[string]models.ConversationState
	locks  map[string]*sync.Mutex
}

// NewMemoryManager creates an empty in-memory state manager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		states: make(map[string]models.ConversationState),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Get returns a copy of the stored state.
func (m *MemoryManager) Get(identity string) (models.ConversationState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[identity]
	return st, ok
}

// Set stores the state, stamping UpdatedAt.
func (m *MemoryManager) Set(identity string, st models.ConversationState) {
	st.Identity = identity
	st.UpdatedAt = time.Now()
	m.mu.Lock()
	m.states[identity] = st
	m.mu.Unlock()
	slog.Debug("StateManager Set", "identity", identity, "lastIntent", st.LastIntent, "menuMode", st.MenuMode, "wizard", st.WizardActive())
}

// Clear removes the state for identity. The per-identity lock survives so a
// concurrent turn still serializes correctly.
func (m *MemoryManager) Clear(identity string) {
	m.mu.Lock()
	delete(m.states, identity)
	m.mu.Unlock()
	slog.Debug("StateManager Clear", "identity", identity)
}

// Acquire locks the identity's turn mutex, creating it on first use.
func (m *MemoryManager) Acquire(identity string) func() {
	m.mu.Lock()
	lock, ok := m.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[identity] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
