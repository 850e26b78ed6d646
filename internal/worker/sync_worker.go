package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/core"
)

// Sink receives mirrored expense rows.
type Sink interface {
	UpsertExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, id string) error
}

// ExpenseSource reads current ledger records.
type ExpenseSource interface {
	Get(ctx context.Context, userID, id string) (core.Expense, error)
	ListAll(ctx context.Context, userID string) ([]core.Expense, error)
}

// SyncWorker mirrors ledger events into a sink. Events carry only ids; the
// worker re-reads the record so replayed or reordered events converge on
// the current state.
type SyncWorker struct {
	source ExpenseSource
	sink   Sink
}

func NewSyncWorker(source ExpenseSource, sink Sink) *SyncWorker {
	return &SyncWorker{source: source, sink: sink}
}

// HandleEvent processes one ledger event. It is an amqp.Handler.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event", "type", ev.Type, "id", ev.ID, "user_id", ev.UserID)

	switch ev.Type {
	case amqp.EventExpenseCreated, amqp.EventExpenseUpdated:
		e, err := w.source.Get(ctx, ev.UserID, ev.ID)
		if errors.Is(err, core.ErrNotFound) {
			// deleted after the event was published
			return w.delete(ctx, ev.ID)
		}
		if err != nil {
			return fmt.Errorf("get expense from storage: %w", err)
		}
		if err := w.sink.UpsertExpense(ctx, e); err != nil {
			return fmt.Errorf("mirror expense %s: %w", ev.ID, err)
		}
		return nil
	case amqp.EventExpenseDeleted:
		return w.delete(ctx, ev.ID)
	default:
		slog.DebugContext(ctx, "Ignoring ledger event", "type", ev.Type)
		return nil
	}
}

func (w *SyncWorker) delete(ctx context.Context, id string) error {
	if err := w.sink.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("remove mirrored expense %s: %w", id, err)
	}
	return nil
}

// Backfill mirrors every record of a user, for recovering from lost events.
// It continues past individual failures and reports them together.
func (w *SyncWorker) Backfill(ctx context.Context, userID string) error {
	es, err := w.source.ListAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}
	slog.InfoContext(ctx, "Backfilling mirror", "user_id", userID, "count", len(es))

	var errs []error
	for _, e := range es {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.sink.UpsertExpense(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("mirror expense %s: %w", e.ID, err))
		}
	}
	return errors.Join(errs...)
}
