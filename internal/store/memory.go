package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loomworks/loom/pkg/schema"
)

// MemoryStore is an in-memory Store used in tests and for ephemeral
// sessions that never touch disk.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*schema.WorkflowDefinition
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*schema.WorkflowDefinition),
	}
}

func (s *MemoryStore) SaveWorkflow(_ context.Context, def *schema.WorkflowDefinition) error {
	if def == nil || def.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow definition has no id")
	}
	cp := def.Clone()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.workflows[def.ID]; ok && cp.CreatedAt.IsZero() {
		cp.CreatedAt = existing.CreatedAt
	}
	s.workflows[def.ID] = cp
	return nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (*schema.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.workflows[id]
	if !ok {
		return nil, storeNotFound("workflow", id)
	}
	return def.Clone(), nil
}

func (s *MemoryStore) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*schema.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var defs []*schema.WorkflowDefinition
	for _, def := range s.workflows {
		if filter.Name != "" && !strings.Contains(def.Name, filter.Name) {
			continue
		}
		if filter.Since != nil && def.UpdatedAt.Before(*filter.Since) {
			continue
		}
		defs = append(defs, def.Clone())
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].UpdatedAt.After(defs[j].UpdatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(defs) {
			return nil, nil
		}
		defs = defs[filter.Offset:]
	}
	if filter.Limit > 0 && len(defs) > filter.Limit {
		defs = defs[:filter.Limit]
	}
	return defs, nil
}

func (s *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return storeNotFound("workflow", id)
	}
	delete(s.workflows, id)
	return nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Vacuum(context.Context) error  { return nil }
func (s *MemoryStore) Close() error                  { return nil }
