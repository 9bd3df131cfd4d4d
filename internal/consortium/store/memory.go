// Package store provides consortium membership stores: an in-memory
// implementation for tests and single-node deployments, and a Postgres
// implementation for shared ones.
package store

import (
	"context"
	"sync"

	"oai-edge/internal/consortium"
)

// InMemory holds consortium membership in process memory.
type InMemory struct {
	mu       sync.RWMutex
	byTenant map[string]string              // tenant id -> consortium id
	members  map[string][]consortium.Member // consortium id -> rows
}

// NewInMemory constructs an empty in-memory membership store.
func NewInMemory() *InMemory {
	return &InMemory{
		byTenant: make(map[string]string),
		members:  make(map[string][]consortium.Member),
	}
}

// AddConsortium registers a consortium and indexes every member by tenant id.
// Re-adding a consortium replaces its membership.
func (s *InMemory) AddConsortium(id string, members ...consortium.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[id] {
		delete(s.byTenant, m.TenantID)
	}
	s.members[id] = append([]consortium.Member(nil), members...)
	for _, m := range members {
		s.byTenant[m.TenantID] = id
	}
}

// Members returns the membership rows of the tenant's consortium, or nil when
// the tenant is unaffiliated.
func (s *InMemory) Members(_ context.Context, tenantID string) ([]consortium.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTenant[tenantID]
	if !ok {
		return nil, nil
	}
	return append([]consortium.Member(nil), s.members[id]...), nil
}
