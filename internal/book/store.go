// Package book holds the latest orderbook snapshot for the running session.
package book

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// Store is a single-slot, last-writer-wins holder for the current snapshot.
// Writers are serialised and readers only ever see a fully installed
// snapshot. Installed snapshots must not be mutated by anyone.
type Store struct {
	mu      sync.RWMutex
	current *domain.OrderbookSnapshot
	version uint64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Replace installs snap as current, discarding the previous snapshot. A
// snapshot missing either side is rejected and leaves the store untouched.
func (s *Store) Replace(snap *domain.OrderbookSnapshot) error {
	if !snap.Usable() {
		return fmt.Errorf("book: replace: empty side: %w", domain.ErrParse)
	}

	s.mu.Lock()
	s.current = snap
	s.version++
	s.mu.Unlock()
	return nil
}

// Current returns the latest installed snapshot, or domain.ErrNoDataYet
// before the first Replace.
func (s *Store) Current() (*domain.OrderbookSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, domain.ErrNoDataYet
	}
	return s.current, nil
}

// Version returns how many snapshots have been installed.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Reset drops the current snapshot so the next session starts from NoDataYet.
func (s *Store) Reset() {
	s.mu.Lock()
	s.current = nil
	s.version = 0
	s.mu.Unlock()
}
