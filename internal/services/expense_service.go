package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ledger/internal/amqp"
	"ledger/internal/core"
)

// ExpenseService owns create, read, update and delete of expense records
// scoped to their owner. Successful writes are announced to the publisher
// without failing the request when publishing does.
type ExpenseService struct {
	repo        ExpenseRepository
	categories  *CategoryService
	publisher   EventPublisher
	now         Clock
	strictDates bool
}

type ExpenseOptions struct {
	Publisher EventPublisher
	Now       Clock
	// StrictDates rejects malformed dates instead of defaulting to today.
	StrictDates bool
}

func NewExpenseService(repo ExpenseRepository, categories *CategoryService, opts ExpenseOptions) *ExpenseService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ExpenseService{
		repo:        repo,
		categories:  categories,
		publisher:   opts.Publisher,
		now:         opts.Now,
		strictDates: opts.StrictDates,
	}
}

// Create validates the draft, resolves its category (creating a custom one
// for an unknown name) and stores the record. A category created here is
// removed again when the record cannot be stored.
func (s *ExpenseService) Create(ctx context.Context, userID string, d core.ExpenseDraft) (core.Expense, error) {
	now := s.now()
	v, err := d.Validate(core.DateOf(now), s.strictDates)
	if err != nil {
		return core.Expense{}, err
	}
	cat, created, err := s.categories.claim(ctx, userID, v.CategoryRef)
	if err != nil {
		return core.Expense{}, err
	}

	e := core.Expense{
		ID:          uuid.NewString(),
		OwnerID:     userID,
		Title:       v.Title,
		Amount:      v.Amount,
		CategoryID:  cat.ID,
		Date:        v.Date,
		Description: v.Description,
		CreatedAt:   core.Timestamp(now),
		UpdatedAt:   core.Timestamp(now),
	}
	e, err = s.repo.InsertExpense(ctx, e)
	if err != nil {
		s.settle(ctx, cat, created, false)
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.settle(ctx, cat, created, true)
	e.Category = cat.Name

	slog.InfoContext(ctx, "Expense created", "user_id", userID, "expense_id", e.ID, "amount", e.Amount.String())
	notify(ctx, s.publisher, amqp.EventExpenseCreated, userID, e.ID)
	return e, nil
}

// Get returns the record only when userID owns it.
func (s *ExpenseService) Get(ctx context.Context, userID, id string) (core.Expense, error) {
	e, err := s.repo.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	es := []core.Expense{e}
	if err := s.hydrate(ctx, userID, es); err != nil {
		return core.Expense{}, err
	}
	return es[0], nil
}

// Update overlays the supplied fields, re-validates the merged record and
// stores it.
func (s *ExpenseService) Update(ctx context.Context, userID, id string, p core.ExpensePatch) (core.Expense, error) {
	existing, err := s.repo.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	now := s.now()
	v, err := p.Apply(existing).Validate(core.DateOf(now), s.strictDates)
	if err != nil {
		return core.Expense{}, err
	}
	cat, created, err := s.categories.claim(ctx, userID, v.CategoryRef)
	if err != nil {
		return core.Expense{}, err
	}

	updated := existing
	updated.Title = v.Title
	updated.Amount = v.Amount
	updated.CategoryID = cat.ID
	updated.Date = v.Date
	updated.Description = v.Description
	updated.UpdatedAt = core.Timestamp(now)
	if err := s.repo.UpdateExpense(ctx, updated); err != nil {
		s.settle(ctx, cat, created, false)
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}
	s.settle(ctx, cat, created, true)
	updated.Category = cat.Name

	slog.InfoContext(ctx, "Expense updated", "user_id", userID, "expense_id", id)
	notify(ctx, s.publisher, amqp.EventExpenseUpdated, userID, id)
	return updated, nil
}

// Delete removes the record. A second delete reports core.ErrNotFound.
func (s *ExpenseService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteExpense(ctx, userID, id); err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Expense deleted", "user_id", userID, "expense_id", id)
	notify(ctx, s.publisher, amqp.EventExpenseDeleted, userID, id)
	return nil
}

// ListAll returns every record owned by userID in no particular order.
func (s *ExpenseService) ListAll(ctx context.Context, userID string) ([]core.Expense, error) {
	es, err := s.repo.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	if err := s.hydrate(ctx, userID, es); err != nil {
		return nil, err
	}
	return es, nil
}

// settle commits or releases a category claimed for a write that stored
// or failed.
func (s *ExpenseService) settle(ctx context.Context, cat core.Category, created, stored bool) {
	switch {
	case !created:
	case stored:
		s.categories.commit(ctx, cat)
	default:
		s.categories.release(ctx, cat)
	}
}

// hydrate fills the Category display name of each record in place.
func (s *ExpenseService) hydrate(ctx context.Context, userID string, es []core.Expense) error {
	names, err := s.categories.Names(ctx, userID)
	if err != nil {
		return err
	}
	for i := range es {
		es[i].Category = categoryName(names, es[i].CategoryID)
	}
	return nil
}

func categoryName(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}
