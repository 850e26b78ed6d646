package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ledger/internal/amqp"
	"ledger/internal/core"
)

// CategoryService resolves the effective category set of a user: the
// built-ins followed by the user's own categories.
type CategoryService struct {
	repo      CategoryRepository
	publisher EventPublisher
	now       Clock
}

func NewCategoryService(repo CategoryRepository, publisher EventPublisher, now Clock) *CategoryService {
	if now == nil {
		now = time.Now
	}
	return &CategoryService{repo: repo, publisher: publisher, now: now}
}

// List returns built-ins first, then custom categories in insertion order.
func (s *CategoryService) List(ctx context.Context, userID string) ([]core.Category, error) {
	custom, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := core.BuiltinCategories()
	seen := make(map[string]bool, len(out)+len(custom))
	for _, c := range out {
		seen[c.Name] = true
	}
	for _, c := range custom {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out, nil
}

// Create adds a custom category. Names are trimmed and compared
// case-sensitively against the built-ins and the user's own categories. A
// name equal to an existing category id is refused as well, since lookups
// match ids first.
func (s *CategoryService) Create(ctx context.Context, userID, name string) (core.Category, error) {
	c, err := s.insert(ctx, userID, name)
	if err != nil {
		return core.Category{}, err
	}
	s.commit(ctx, c)
	return c, nil
}

func (s *CategoryService) insert(ctx context.Context, userID, name string) (core.Category, error) {
	name, err := core.NormalizeCategoryName(name)
	if err != nil {
		return core.Category{}, err
	}
	if _, ok := core.BuiltinByName(name); ok {
		return core.Category{}, fmt.Errorf("category %q is built in: %w", name, core.ErrConflict)
	}
	if _, ok := core.BuiltinByID(name); ok {
		return core.Category{}, fmt.Errorf("category %q is a reserved id: %w", name, core.ErrConflict)
	}
	existing, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return core.Category{}, fmt.Errorf("list categories: %w", err)
	}
	for _, c := range existing {
		if c.Name == name || c.ID == name {
			return core.Category{}, fmt.Errorf("category %q exists: %w", name, core.ErrConflict)
		}
	}

	c := core.Category{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   userID,
		CreatedAt: core.Timestamp(s.now()),
	}
	if err := s.repo.InsertCategory(ctx, c); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return core.Category{}, fmt.Errorf("category %q exists: %w", name, core.ErrConflict)
		}
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}
	return c, nil
}

// Resolve maps a caller reference to a category: first by id, then by
// exact name. An unknown reference creates a custom category when create is
// set and yields core.ErrNotFound otherwise.
func (s *CategoryService) Resolve(ctx context.Context, userID, ref string, create bool) (core.Category, error) {
	if !create {
		return s.find(ctx, userID, ref)
	}
	c, created, err := s.claim(ctx, userID, ref)
	if err != nil {
		return core.Category{}, err
	}
	if created {
		s.commit(ctx, c)
	}
	return c, nil
}

// claim resolves ref, inserting a custom category for an unknown name
// without announcing it. When created is set the caller must either commit
// or release the category once its own write has settled.
func (s *CategoryService) claim(ctx context.Context, userID, ref string) (c core.Category, created bool, err error) {
	c, err = s.find(ctx, userID, ref)
	if err == nil || !errors.Is(err, core.ErrNotFound) {
		return c, false, err
	}

	c, err = s.insert(ctx, userID, ref)
	if errors.Is(err, core.ErrConflict) {
		// lost a race with a concurrent create of the same name
		if cats, lerr := s.List(ctx, userID); lerr == nil {
			if c, ok := lookup(cats, ref); ok {
				return c, false, nil
			}
		}
	}
	if err != nil {
		return core.Category{}, false, err
	}
	return c, true, nil
}

// find looks ref up in the user's effective categories.
func (s *CategoryService) find(ctx context.Context, userID, ref string) (core.Category, error) {
	if ref == "" {
		return core.Category{}, core.Invalid("category", "category is required")
	}
	cats, err := s.List(ctx, userID)
	if err != nil {
		return core.Category{}, err
	}
	if c, ok := lookup(cats, ref); ok {
		return c, nil
	}
	return core.Category{}, fmt.Errorf("category %q: %w", ref, core.ErrNotFound)
}

func (s *CategoryService) commit(ctx context.Context, c core.Category) {
	slog.InfoContext(ctx, "Category created", "user_id", c.OwnerID, "category_id", c.ID, "name", c.Name)
	notify(ctx, s.publisher, amqp.EventCategoryCreated, c.OwnerID, c.ID)
}

// release undoes a claimed category. A category some other write already
// filed an expense under is kept.
func (s *CategoryService) release(ctx context.Context, c core.Category) {
	err := s.repo.DeleteCategory(context.WithoutCancel(ctx), c.OwnerID, c.ID)
	switch {
	case err == nil:
		slog.DebugContext(ctx, "Category released", "user_id", c.OwnerID, "category_id", c.ID)
	case errors.Is(err, core.ErrConflict):
		// adopted by a concurrent write; it is real now
		s.commit(ctx, c)
	default:
		slog.ErrorContext(ctx, "Failed to release category", "user_id", c.OwnerID, "category_id", c.ID, "error", err)
	}
}

// Names indexes the user's effective category names by id.
func (s *CategoryService) Names(ctx context.Context, userID string) (map[string]string, error) {
	cats, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return core.CategoryNames(cats), nil
}

func lookup(cats []core.Category, ref string) (core.Category, bool) {
	for _, c := range cats {
		if c.ID == ref {
			return c, true
		}
	}
	for _, c := range cats {
		if c.Name == ref {
			return c, true
		}
	}
	return core.Category{}, false
}

func notify(ctx context.Context, pub EventPublisher, t amqp.EventType, userID, id string) {
	if pub == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping ledger event", "type", t)
		return
	}
	if err := pub.Publish(ctx, amqp.NewLedgerEvent(t, userID, id)); err != nil {
		// the write already succeeded
		slog.ErrorContext(ctx, "Failed to publish ledger event", "type", t, "id", id, "error", err)
	}
}
