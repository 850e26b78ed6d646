// Package memory is a process-local repository used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"ledger/internal/core"
)

type Store struct {
	mu         sync.RWMutex
	seq        int64
	expenses   []core.Expense
	categories []core.Category
}

func New() *Store {
	return &Store{}
}

func (s *Store) InsertExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.expenses {
		if x.ID == e.ID {
			return core.Expense{}, fmt.Errorf("expense %s: %w", e.ID, core.ErrConflict)
		}
	}
	s.seq++
	e.Seq = s.seq
	s.expenses = append(s.expenses, e)
	return e, nil
}

func (s *Store) GetExpense(_ context.Context, ownerID, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(ownerID, id); i >= 0 {
		return s.expenses[i], nil
	}
	return core.Expense{}, core.ErrNotFound
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(e.OwnerID, e.ID)
	if i < 0 {
		return core.ErrNotFound
	}
	cur := s.expenses[i]
	e.Seq, e.CreatedAt = cur.Seq, cur.CreatedAt
	s.expenses[i] = e
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(ownerID, id)
	if i < 0 {
		return core.ErrNotFound
	}
	s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
	return nil
}

func (s *Store) ListExpenses(_ context.Context, ownerID string) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Expense{}
	for _, e := range s.expenses {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListCategories(_ context.Context, ownerID string) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Category{}
	for _, c := range s.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

// InsertCategory checks the per-owner name under the write lock, so two
// concurrent creates of one name cannot both succeed.
func (s *Store) InsertCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.categories {
		if x.ID == c.ID || (x.OwnerID == c.OwnerID && x.Name == c.Name) {
			return fmt.Errorf("category %q: %w", c.Name, core.ErrConflict)
		}
	}
	s.categories = append(s.categories, c)
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expenses {
		if e.OwnerID == ownerID && e.CategoryID == id {
			return fmt.Errorf("category %s in use: %w", id, core.ErrConflict)
		}
	}
	for i, c := range s.categories {
		if c.ID == id && c.OwnerID == ownerID {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) index(ownerID, id string) int {
	for i, e := range s.expenses {
		if e.ID == id && e.OwnerID == ownerID {
			return i
		}
	}
	return -1
}
