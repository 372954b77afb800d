package signer

import (
	"sync"
	"time"

	"github.com/coresig/signer/chain"
)

// Candidate is one entry in the cycle's ordered coordinator list: a
// signer id and its known public key.
type Candidate struct {
	SignerID  uint32
	PublicKey chain.Point
}

// CoordinatorSelector deterministically picks the current coordinator for
// a reward cycle as a function of elapsed time since the last inbound
// coordinator message. When no progress has been recorded within the
// configured timeout, selection rotates to the next candidate in the
// ordering; ties are broken by position.
type CoordinatorSelector struct {
	mu      sync.Mutex
	order   []Candidate
	timeout time.Duration

	lastMessageTime time.Time
	localMetadata   chain.CoordinatorMetadata

	now func() time.Time // injectable clock, defaults to time.Now
}

// NewCoordinatorSelector builds a selector over order, which must be
// non-empty and is treated as already in deterministic cycle order.
func NewCoordinatorSelector(order []Candidate, timeout time.Duration) *CoordinatorSelector {
	return &CoordinatorSelector{
		order:           order,
		timeout:         timeout,
		lastMessageTime: time.Now(),
		now:             time.Now,
	}
}

// RecordProgress marks that the engine observed progress in the current
// operation, resetting the rotation clock.
func (s *CoordinatorSelector) RecordProgress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMessageTime = s.clock()
}

// SetLocalMetadata updates the chain-view token reported alongside the
// current coordinator (metadata always reflects this signer's own view).
func (s *CoordinatorSelector) SetLocalMetadata(m chain.CoordinatorMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localMetadata = m
}

// Current returns the coordinator id, its public key, and the local
// chain-view metadata.
func (s *CoordinatorSelector) Current() (uint32, chain.Point, chain.CoordinatorMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return 0, chain.Point{}, s.localMetadata
	}
	elapsed := s.clock().Sub(s.lastMessageTime)
	rotations := 0
	if s.timeout > 0 {
		rotations = int(elapsed / s.timeout)
	}
	idx := rotations % len(s.order)
	c := s.order[idx]
	return c.SignerID, c.PublicKey, s.localMetadata
}

// IsCoordinator reports whether signerID is the currently selected
// coordinator.
func (s *CoordinatorSelector) IsCoordinator(signerID uint32) bool {
	id, _, _ := s.Current()
	return id == signerID
}

func (s *CoordinatorSelector) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
