package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/storage/memory"
)

var fixedNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	store      *memory.Store
	pub        *recordingPublisher
	categories *CategoryService
	expenses   *ExpenseService
	ledger     *LedgerService
}

func newHarness(t *testing.T, strict bool) *harness {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	h := &harness{store: memory.New(), pub: &recordingPublisher{}}
	h.categories = NewCategoryService(h.store, h.pub, clock)
	h.expenses = NewExpenseService(h.store, h.categories, ExpenseOptions{Publisher: h.pub, Now: clock, StrictDates: strict})
	h.ledger = NewLedgerService(h.expenses, h.categories, clock, 10)
	return h
}

func ptr(s string) *string { return &s }

func TestExpenseService_CreateGetRoundTrip(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	created, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{
		Title: "Groceries", Amount: "100", Category: "Food & Dining", Date: "2024-01-10", Description: "weekly",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.OwnerID)
	assert.Equal(t, "food-dining", created.CategoryID)
	assert.Equal(t, "Food & Dining", created.Category)
	assert.True(t, created.CreatedAt.Equal(fixedNow))
	assert.True(t, created.UpdatedAt.Equal(fixedNow))

	got, err := h.expenses.Get(ctx, "alice", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, []amqp.EventType{amqp.EventExpenseCreated}, h.pub.types())
}

func TestExpenseService_CreateValidation(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	_, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{Amount: "-3"})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.Equal(t, map[string]bool{"title": true, "amount": true, "category": true, "date": true}, fields)

	list, err := h.expenses.ListAll(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list, "nothing is written when validation fails")
	assert.Empty(t, h.pub.types())

	cats, err := h.categories.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, cats, len(core.BuiltinCategories()), "no category is created for an invalid draft")
}

func TestExpenseService_MalformedDate(t *testing.T) {
	draft := core.ExpenseDraft{Title: "t", Amount: "5", Category: "Other", Date: "not-a-date"}

	e, err := newHarness(t, false).expenses.Create(context.Background(), "alice", draft)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-20", e.Date.String())

	_, err = newHarness(t, true).expenses.Create(context.Background(), "alice", draft)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestExpenseService_CreateWithNewCategoryName(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	e, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{Title: "Vet", Amount: "80", Category: "Pets", Date: "2024-03-01"})
	require.NoError(t, err)
	assert.Equal(t, "Pets", e.Category)

	again, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{Title: "Food", Amount: "20", Category: e.CategoryID, Date: "2024-03-02"})
	require.NoError(t, err)
	assert.Equal(t, e.CategoryID, again.CategoryID, "id reference resolves to the same category")

	byName, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{Title: "Toy", Amount: "5", Category: "Pets", Date: "2024-03-03"})
	require.NoError(t, err)
	assert.Equal(t, e.CategoryID, byName.CategoryID, "name reference resolves to the same category")

	cats, err := h.categories.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, cats, len(core.BuiltinCategories())+1)
	assert.Equal(t, []amqp.EventType{
		amqp.EventCategoryCreated, amqp.EventExpenseCreated, amqp.EventExpenseCreated, amqp.EventExpenseCreated,
	}, h.pub.types())
}

func TestExpenseService_PartialUpdate(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	later := fixedNow.Add(time.Hour)

	orig, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{
		Title: "Lunch", Amount: "12.50", Category: "Food & Dining", Date: "2024-01-10", Description: "tacos",
	})
	require.NoError(t, err)

	h.expenses.now = func() time.Time { return later }
	updated, err := h.expenses.Update(ctx, "alice", orig.ID, core.ExpensePatch{Amount: ptr("15")})
	require.NoError(t, err)

	assert.Equal(t, int64(1500), updated.Amount.Cents)
	assert.Equal(t, orig.Title, updated.Title)
	assert.Equal(t, orig.CategoryID, updated.CategoryID)
	assert.Equal(t, orig.Category, updated.Category)
	assert.Equal(t, orig.Date, updated.Date)
	assert.Equal(t, orig.Description, updated.Description)
	assert.True(t, updated.CreatedAt.Equal(orig.CreatedAt))
	assert.True(t, updated.UpdatedAt.Equal(later))

	got, err := h.expenses.Get(ctx, "alice", orig.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestExpenseService_UpdateRevalidates(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	orig, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{Title: "Lunch", Amount: "10", Category: "Other", Date: "2024-01-10"})
	require.NoError(t, err)

	_, err = h.expenses.Update(ctx, "alice", orig.ID, core.ExpensePatch{Amount: ptr("0"), Title: ptr(" ")})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)

	got, err := h.expenses.Get(ctx, "alice", orig.ID)
	require.NoError(t, err)
	assert.Equal(t, orig, got, "failed update leaves the record untouched")
}

func TestExpenseService_DeleteThenGet(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	e, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{Title: "Lunch", Amount: "10", Category: "Other", Date: "2024-01-10"})
	require.NoError(t, err)

	require.NoError(t, h.expenses.Delete(ctx, "alice", e.ID))
	_, err = h.expenses.Get(ctx, "alice", e.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, h.expenses.Delete(ctx, "alice", e.ID), core.ErrNotFound)
	assert.Equal(t, []amqp.EventType{amqp.EventExpenseCreated, amqp.EventExpenseDeleted}, h.pub.types())
}

func TestExpenseService_CrossUserIsolation(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	e, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{Title: "Lunch", Amount: "100", Category: "Food & Dining", Date: "2024-01-10"})
	require.NoError(t, err)

	_, err = h.expenses.Get(ctx, "bob", e.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = h.expenses.Update(ctx, "bob", e.ID, core.ExpensePatch{Title: ptr("mine")})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, h.expenses.Delete(ctx, "bob", e.ID), core.ErrNotFound)

	got, err := h.expenses.Get(ctx, "alice", e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lunch", got.Title)
}

func TestExpenseService_PublishFailureDoesNotFailWrite(t *testing.T) {
	h := newHarness(t, false)
	h.pub.err = errors.New("broker down")
	ctx := context.Background()

	e, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{Title: "Lunch", Amount: "10", Category: "Other", Date: "2024-01-10"})
	require.NoError(t, err)
	_, err = h.expenses.Get(ctx, "alice", e.ID)
	assert.NoError(t, err)
}

func TestExpenseService_NilPublisher(t *testing.T) {
	store := memory.New()
	cats := NewCategoryService(store, nil, nil)
	svc := NewExpenseService(store, cats, ExpenseOptions{})

	_, err := svc.Create(context.Background(), "alice", core.ExpenseDraft{Title: "Lunch", Amount: "10", Category: "Other", Date: "2024-01-10"})
	assert.NoError(t, err)
}

// failingExpenses stores categories but refuses every expense write.
type failingExpenses struct {
	*memory.Store
	err error
}

func (f failingExpenses) InsertExpense(context.Context, core.Expense) (core.Expense, error) {
	return core.Expense{}, f.err
}

func (f failingExpenses) UpdateExpense(context.Context, core.Expense) error {
	return f.err
}

func TestExpenseService_FailedWriteReleasesNewCategory(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	existing, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{Title: "Lunch", Amount: "10", Category: "Other", Date: "2024-01-10"})
	require.NoError(t, err)

	diskFull := errors.New("disk full")
	clock := func() time.Time { return fixedNow }
	broken := NewExpenseService(failingExpenses{Store: h.store, err: diskFull}, h.categories,
		ExpenseOptions{Publisher: h.pub, Now: clock})

	_, err = broken.Create(ctx, "alice", core.ExpenseDraft{Title: "Vet", Amount: "80", Category: "Pets", Date: "2024-03-01"})
	require.ErrorIs(t, err, diskFull)
	_, err = broken.Update(ctx, "alice", existing.ID, core.ExpensePatch{Category: ptr("Gifts")})
	require.ErrorIs(t, err, diskFull)

	custom, err := h.store.ListCategories(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, custom)
	assert.Equal(t, []amqp.EventType{amqp.EventExpenseCreated}, h.pub.types())

	got, err := h.expenses.Get(ctx, "alice", existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "other", got.CategoryID)

	// the name is free again once storage recovers
	e, err := h.expenses.Create(ctx, "alice", core.ExpenseDraft{Title: "Vet", Amount: "80", Category: "Pets", Date: "2024-03-01"})
	require.NoError(t, err)
	assert.Equal(t, "Pets", e.Category)
}

func TestExpenseService_FailedWriteKeepsExistingCategory(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	pets, err := h.categories.Create(ctx, "alice", "Pets")
	require.NoError(t, err)

	broken := NewExpenseService(failingExpenses{Store: h.store, err: errors.New("disk full")}, h.categories,
		ExpenseOptions{Now: func() time.Time { return fixedNow }})
	_, err = broken.Create(ctx, "alice", core.ExpenseDraft{Title: "Vet", Amount: "80", Category: "Pets", Date: "2024-03-01"})
	require.Error(t, err)

	custom, err := h.store.ListCategories(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, custom, 1)
	assert.Equal(t, pets.ID, custom[0].ID)
}

func TestExpenseService_TimestampsKeepMicroseconds(t *testing.T) {
	store := memory.New()
	now := fixedNow.Add(123456789 * time.Nanosecond)
	clock := func() time.Time { return now }
	cats := NewCategoryService(store, nil, clock)
	svc := NewExpenseService(store, cats, ExpenseOptions{Now: clock})
	ctx := context.Background()

	e, err := svc.Create(ctx, "alice", core.ExpenseDraft{Title: "Lunch", Amount: "10", Category: "Other", Date: "2024-01-10"})
	require.NoError(t, err)
	want := now.Truncate(time.Microsecond)
	assert.True(t, e.CreatedAt.Equal(want), "created at %s", e.CreatedAt)
	assert.True(t, e.UpdatedAt.Equal(want))

	now = now.Add(time.Second)
	updated, err := svc.Update(ctx, "alice", e.ID, core.ExpensePatch{Title: ptr("Dinner")})
	require.NoError(t, err)
	assert.Zero(t, updated.UpdatedAt.Nanosecond()%1000)
	assert.True(t, updated.CreatedAt.Equal(want))
}
