package reco

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ArtifactStore persists trained model artifacts. The store is append-only:
// Put never mutates an existing row and Latest returns the highest-ID row
// for the tenant, so concurrent readers observe either an older consistent
// artifact or a newer one, never a partial write. Latest returns nil when
// the tenant has no artifact yet.
type ArtifactStore interface {
	Put(ctx context.Context, tenantID string, a *ModelArtifact) (int64, error)
	Latest(ctx context.Context, tenantID string) (*ModelArtifact, error)
}

// TenantStore resolves and provisions tenants by domain slug. ByDomain
// returns nil for an unknown domain. Ensure is idempotent: it reports
// whether the tenant was created by this call.
type TenantStore interface {
	Ensure(ctx context.Context, domain, name string) (*Tenant, bool, error)
	ByDomain(ctx context.Context, domain string) (*Tenant, error)
}

// InMemoryArtifactStore implements ArtifactStore with a per-tenant slice.
// Used by tests and local development.
type InMemoryArtifactStore struct {
	mu        sync.RWMutex
	nextID    int64
	artifacts map[string][]*ModelArtifact
}

// NewInMemoryArtifactStore creates an empty in-memory artifact store.
func NewInMemoryArtifactStore() *InMemoryArtifactStore {
	return &InMemoryArtifactStore{
		artifacts: make(map[string][]*ModelArtifact),
	}
}

// Put appends a copy of the artifact and returns its assigned ID.
func (s *InMemoryArtifactStore) Put(ctx context.Context, tenantID string, a *ModelArtifact) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := time.Now()
	stored := &ModelArtifact{
		ID:          s.nextID,
		TenantID:    tenantID,
		Classes:     append([]string(nil), a.Classes...),
		FeatureCols: append([]string(nil), a.FeatureCols...),
		Blob:        append([]byte(nil), a.Blob...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.artifacts[tenantID] = append(s.artifacts[tenantID], stored)
	return stored.ID, nil
}

// Latest returns a copy of the most recently inserted artifact, or nil.
func (s *InMemoryArtifactStore) Latest(ctx context.Context, tenantID string) (*ModelArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.artifacts[tenantID]
	if len(list) == 0 {
		return nil, nil
	}
	a := list[len(list)-1]
	out := *a
	out.Classes = append([]string(nil), a.Classes...)
	out.FeatureCols = append([]string(nil), a.FeatureCols...)
	out.Blob = append([]byte(nil), a.Blob...)
	return &out, nil
}

// InMemoryTenantStore implements TenantStore with a map keyed by domain.
type InMemoryTenantStore struct {
	mu       sync.RWMutex
	byDomain map[string]*Tenant
}

// NewInMemoryTenantStore creates an empty in-memory tenant store.
func NewInMemoryTenantStore() *InMemoryTenantStore {
	return &InMemoryTenantStore{
		byDomain: make(map[string]*Tenant),
	}
}

// Ensure looks up the tenant by domain and creates it when absent.
func (s *InMemoryTenantStore) Ensure(ctx context.Context, domain, name string) (*Tenant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.byDomain[domain]; ok {
		out := *t
		return &out, false, nil
	}
	now := time.Now()
	t := &Tenant{
		ID:        uuid.NewString(),
		Domain:    domain,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byDomain[domain] = t
	out := *t
	return &out, true, nil
}

// ByDomain returns the tenant for a domain, or nil when unknown.
func (s *InMemoryTenantStore) ByDomain(ctx context.Context, domain string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byDomain[domain]
	if !ok {
		return nil, nil
	}
	out := *t
	return &out, nil
}
