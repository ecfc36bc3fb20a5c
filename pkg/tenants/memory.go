// pkg/tenants/memory.go
package tenants

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memStore struct {
	log   *zap.SugaredLogger
	mu    sync.RWMutex
	order []string // insertion order stands in for primary key order
	byID  map[string]Tenant
}

// NewMemoryStore builds an in-process store from seed tenants (dev and tests).
func NewMemoryStore(log *zap.SugaredLogger, seed []Tenant) Store {
	s := &memStore{log: log, byID: map[string]Tenant{}}
	now := time.Now()
	for i, t := range seed {
		if _, dup := s.byID[t.ID]; dup || t.ID == "" {
			continue
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		}
		s.order = append(s.order, t.ID)
		s.byID[t.ID] = t
	}
	if log != nil {
		log.Infow("memory tenant store ready", "tenants", len(s.order))
	}
	return s
}

func (s *memStore) ListUnsynced(_ context.Context) ([]Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Tenant{}
	for _, id := range s.order {
		if t := s.byID[id]; !t.Synced() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) Get(_ context.Context, tenantID string) (Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[tenantID]
	if !ok {
		return Tenant{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	}
	return t, nil
}

func (s *memStore) SetGroup(_ context.Context, tenantID, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[tenantID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	}
	t.Group = group
	s.byID[tenantID] = t
	return nil
}

func (s *memStore) Stats(_ context.Context, pendingLimit int) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.order), Recent: []Tenant{}}
	pending := []Tenant{}
	for _, id := range s.order {
		t := s.byID[id]
		if t.Synced() {
			st.Synced++
			continue
		}
		pending = append(pending, t)
	}
	st.Pending = len(pending)
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].CreatedAt.After(pending[j].CreatedAt) })
	if pendingLimit > 0 && len(pending) > pendingLimit {
		pending = pending[:pendingLimit]
	}
	st.Recent = append(st.Recent, pending...)
	return st, nil
}
