package app

import (
	"sync/atomic"

	"corpusqa/internal/model"
)

// RetrievalConfigStore holds the live retrieval config. Activation swaps
// the pointer atomically, so an in-flight query always observes one
// consistent version and never a mix of old and new fields.
type RetrievalConfigStore struct {
	live atomic.Pointer[model.RetrievalConfig]
}

func NewRetrievalConfigStore(cfg *model.RetrievalConfig) *RetrievalConfigStore {
	s := &RetrievalConfigStore{}
	s.live.Store(cfg)
	return s
}

// Live returns the current config. Callers must treat it as read-only.
func (s *RetrievalConfigStore) Live() *model.RetrievalConfig {
	return s.live.Load()
}

// Swap makes cfg the live version.
func (s *RetrievalConfigStore) Swap(cfg *model.RetrievalConfig) {
	s.live.Store(cfg)
}
