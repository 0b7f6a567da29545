// Package state tracks per-user conversation state for the chat gateway
// flow. It is a presentation concern and deliberately lives outside the
// ledger core.
package state

import "sync"

// UserState enumerates the gateway conversation states
type UserState int

const (
	Idle UserState = iota
	AwaitingWithdrawalDetails
)

// Store is an in-memory conversation state store keyed by user id
type Store struct {
	mu sync.RWMutex
	m  map[int64]UserState
}

// NewStore creates an empty state store
func NewStore() *Store {
	return &Store{m: make(map[int64]UserState)}
}

// Get returns the user's current state, Idle when never set
func (s *Store) Get(userID int64) UserState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[userID]
}

// Set records the user's state
func (s *Store) Set(userID int64, state UserState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == Idle {
		delete(s.m, userID)
		return
	}
	s.m[userID] = state
}

// Clear resets the user to Idle
func (s *Store) Clear(userID int64) {
	s.Set(userID, Idle)
}
