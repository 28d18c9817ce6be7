package purchase

import (
	"context"
	"sort"
	"sync"

	"github.com/msall/kaalis/internal/pagination"
)

// MemoryStore is an in-memory Store for demo mode and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	pending   map[string]*PendingPurchase
	confirmed map[string]*ConfirmedPurchase
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending:   make(map[string]*PendingPurchase),
		confirmed: make(map[string]*ConfirmedPurchase),
	}
}

func (s *MemoryStore) CreatePending(ctx context.Context, p *PendingPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[p.RefCommand]; ok {
		return ErrPendingExists
	}
	cp := *p
	s.pending[p.RefCommand] = &cp
	return nil
}

func (s *MemoryStore) GetPending(ctx context.Context, refCommand string) (*PendingPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[refCommand]
	if !ok {
		return nil, ErrPendingNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) DeletePending(ctx context.Context, refCommand string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[refCommand]; !ok {
		return ErrPendingNotFound
	}
	delete(s.pending, refCommand)
	return nil
}

func (s *MemoryStore) CreateConfirmed(ctx context.Context, p *ConfirmedPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.confirmed[p.RefCommand]; ok {
		return ErrAlreadyConfirmed
	}
	cp := *p
	s.confirmed[p.RefCommand] = &cp
	return nil
}

func (s *MemoryStore) GetConfirmed(ctx context.Context, refCommand string) (*ConfirmedPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.confirmed[refCommand]
	if !ok {
		return nil, ErrConfirmedNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListConfirmedByUser(ctx context.Context, userID string, limit int, cursor *pagination.Cursor) ([]*ConfirmedPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ConfirmedPurchase
	for _, p := range s.confirmed {
		if p.UserID != userID {
			continue
		}
		if cursor != nil {
			// Newest first, so only rows ordered before the cursor qualify.
			if p.CreatedAt.After(cursor.CreatedAt) {
				continue
			}
			if p.CreatedAt.Equal(cursor.CreatedAt) && p.RefCommand >= cursor.ID {
				continue
			}
		}
		cp := *p
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RefCommand > out[j].RefCommand
	})

	if limit > 0 && len(out) > limit+1 {
		out = out[:limit+1]
	}
	return out, nil
}

func (s *MemoryStore) CountPending(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending), nil
}
