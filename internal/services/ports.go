package services

import (
	"context"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
)

// ExpenseRepository persists expense records. Every lookup is scoped by
// owner; a record owned by someone else is reported as core.ErrNotFound.
type ExpenseRepository interface {
	// InsertExpense stores e and returns it with Seq assigned.
	InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	GetExpense(ctx context.Context, ownerID, id string) (core.Expense, error)
	// UpdateExpense replaces the mutable fields of the record matching
	// e.OwnerID and e.ID.
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, ownerID, id string) error
	ListExpenses(ctx context.Context, ownerID string) ([]core.Expense, error)
}

// CategoryRepository persists custom categories only; built-ins live in core.
type CategoryRepository interface {
	// ListCategories returns the owner's categories in insertion order.
	ListCategories(ctx context.Context, ownerID string) ([]core.Category, error)
	// InsertCategory returns core.ErrConflict when the owner already has a
	// category with the same name.
	InsertCategory(ctx context.Context, c core.Category) error
	// DeleteCategory removes the owner's category unless an expense still
	// references it, in which case it returns core.ErrConflict.
	DeleteCategory(ctx context.Context, ownerID, id string) error
}

// Repository is the full persistence surface a backend provides.
type Repository interface {
	ExpenseRepository
	CategoryRepository
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher announces ledger mutations.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// Clock returns the current time.
type Clock func() time.Time
