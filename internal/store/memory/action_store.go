package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/store"
)

// ActionStore implements store.ActionStore and store.AuditStore using in-memory storage.
type ActionStore struct {
	mu sync.RWMutex

	actions map[string]*models.Action // action_id -> Action
	audit   []*models.AuditLogEntry   // append-only
}

// NewActionStore creates a new in-memory action store.
func NewActionStore() *ActionStore {
	return &ActionStore{
		actions: make(map[string]*models.Action),
	}
}

// CreateAction inserts a new action.
func (s *ActionStore) CreateAction(ctx context.Context, action *models.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.actions[action.ID]; exists {
		return store.ErrActionAlreadyExists
	}
	s.actions[action.ID] = action.Clone()

	return nil
}

// GetAction retrieves an action by ID.
func (s *ActionStore) GetAction(ctx context.Context, actionID string) (*models.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.actions[actionID]
	if !exists {
		return nil, store.ErrActionNotFound
	}
	return a.Clone(), nil
}

// SetDraftContent attaches draft content to an action.
func (s *ActionStore) SetDraftContent(ctx context.Context, actionID string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.actions[actionID]
	if !exists {
		return store.ErrActionNotFound
	}
	a.DraftContent = append([]byte(nil), content...)

	return nil
}

// TransitionAction performs the compare-and-swap on status under the store lock.
func (s *ActionStore) TransitionAction(ctx context.Context, t models.ActionTransition) (bool, error) {
	if !models.CanTransition(t.From, t.To) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.actions[t.ActionID]
	if !exists || a.Status != t.From {
		return false, nil
	}

	applyTransition(a, t)

	return true, nil
}

// ListActions returns actions matching the filter, oldest first.
func (s *ActionStore) ListActions(ctx context.Context, filter store.ActionFilter) ([]*models.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Action
	for _, a := range s.actions {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		if filter.ProjectID != "" && a.ProjectID != filter.ProjectID {
			continue
		}
		if filter.OrgID != "" && a.OrgID != filter.OrgID {
			continue
		}
		result = append(result, a.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

// AppendAudit appends an entry to the audit log.
func (s *ActionStore) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *entry
	s.audit = append(s.audit, &clone)

	return nil
}

// ListAudit returns the newest entries for an organization first.
func (s *ActionStore) ListAudit(ctx context.Context, orgID string, limit int) ([]*models.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.AuditLogEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if e.OrgID != orgID {
			continue
		}
		clone := *e
		result = append(result, &clone)
		if limit > 0 && len(result) == limit {
			break
		}
	}

	return result, nil
}

func applyTransition(a *models.Action, t models.ActionTransition) {
	at := t.At
	a.Status = t.To
	switch t.To {
	case models.ActionStatusApproved:
		a.ApprovedBy = t.ActorID
		a.ApprovedAt = &at
	case models.ActionStatusExecuted:
		a.ExecutedAt = &at
	}
}
