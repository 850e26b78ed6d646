// Package storagetest holds the behaviour every repository backend must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/services"
)

// Factory returns an empty repository. Cleanup is registered on t.
type Factory func(t *testing.T) services.Repository

// base carries whole microseconds, the finest precision every backend keeps.
var base = time.Date(2024, 1, 20, 9, 30, 0, 123456000, time.UTC)

func expense(owner, id, title string, cents int64, cat string, date core.Date) core.Expense {
	return core.Expense{
		ID:          id,
		OwnerID:     owner,
		Title:       title,
		Amount:      core.Money{Cents: cents},
		CategoryID:  cat,
		Date:        date,
		Description: "desc " + title,
		CreatedAt:   base,
		UpdatedAt:   base,
	}
}

// Run exercises the repository contract against repositories built by f.
func Run(t *testing.T, f Factory) {
	t.Run("insert assigns increasing seq and round-trips", func(t *testing.T) {
		repo := f(t)
		ctx := context.Background()

		a, err := repo.InsertExpense(ctx, expense("u1", "e1", "Lunch", 1250, "food-dining", core.NewDate(2024, 1, 10)))
		require.NoError(t, err)
		b, err := repo.InsertExpense(ctx, expense("u1", "e2", "Bus", 300, "transportation", core.NewDate(2024, 1, 11)))
		require.NoError(t, err)
		assert.Greater(t, b.Seq, a.Seq)

		got, err := repo.GetExpense(ctx, "u1", "e1")
		require.NoError(t, err)
		assert.Equal(t, "Lunch", got.Title)
		assert.Equal(t, int64(1250), got.Amount.Cents)
		assert.Equal(t, "food-dining", got.CategoryID)
		assert.Equal(t, "2024-01-10", got.Date.String())
		assert.Equal(t, "desc Lunch", got.Description)
		assert.True(t, got.CreatedAt.Equal(base), "created at %s", got.CreatedAt)
		assert.Equal(t, a.Seq, got.Seq)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		repo := f(t)
		ctx := context.Background()
		_, err := repo.InsertExpense(ctx, expense("u1", "dup", "a", 1, "other", core.NewDate(2024, 1, 1)))
		require.NoError(t, err)
		_, err = repo.InsertExpense(ctx, expense("u1", "dup", "b", 1, "other", core.NewDate(2024, 1, 1)))
		assert.ErrorIs(t, err, core.ErrConflict)
	})

	t.Run("ownership is enforced", func(t *testing.T) {
		repo := f(t)
		ctx := context.Background()
		_, err := repo.InsertExpense(ctx, expense("alice", "e1", "Lunch", 100, "other", core.NewDate(2024, 1, 10)))
		require.NoError(t, err)

		_, err = repo.GetExpense(ctx, "bob", "e1")
		assert.ErrorIs(t, err, core.ErrNotFound)

		stolen := expense("bob", "e1", "Mine now", 1, "other", core.NewDate(2024, 1, 10))
		assert.ErrorIs(t, repo.UpdateExpense(ctx, stolen), core.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteExpense(ctx, "bob", "e1"), core.ErrNotFound)

		list, err := repo.ListExpenses(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, list)

		got, err := repo.GetExpense(ctx, "alice", "e1")
		require.NoError(t, err)
		assert.Equal(t, "Lunch", got.Title)
	})

	t.Run("update replaces mutable fields", func(t *testing.T) {
		repo := f(t)
		ctx := context.Background()
		orig, err := repo.InsertExpense(ctx, expense("u1", "e1", "Lunch", 100, "other", core.NewDate(2024, 1, 10)))
		require.NoError(t, err)

		changed := orig
		changed.Title = "Dinner"
		changed.Amount = core.Money{Cents: 4200}
		changed.CategoryID = "food-dining"
		changed.Date = core.NewDate(2024, 2, 2)
		changed.Description = ""
		changed.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, repo.UpdateExpense(ctx, changed))

		got, err := repo.GetExpense(ctx, "u1", "e1")
		require.NoError(t, err)
		assert.Equal(t, "Dinner", got.Title)
		assert.Equal(t, int64(4200), got.Amount.Cents)
		assert.Equal(t, "food-dining", got.CategoryID)
		assert.Equal(t, "2024-02-02", got.Date.String())
		assert.Empty(t, got.Description)
		assert.True(t, got.UpdatedAt.Equal(base.Add(time.Hour)))
		assert.True(t, got.CreatedAt.Equal(base))
		assert.Equal(t, orig.Seq, got.Seq)
	})

	t.Run("delete then get is not found", func(t *testing.T) {
		repo := f(t)
		ctx := context.Background()
		_, err := repo.InsertExpense(ctx, expense("u1", "e1", "Lunch", 100, "other", core.NewDate(2024, 1, 10)))
		require.NoError(t, err)

		require.NoError(t, repo.DeleteExpense(ctx, "u1", "e1"))
		_, err = repo.GetExpense(ctx, "u1", "e1")
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteExpense(ctx, "u1", "e1"), core.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteExpense(ctx, "u1", "never"), core.ErrNotFound)
	})

	t.Run("list is scoped to owner", func(t *testing.T) {
		repo := f(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			_, err := repo.InsertExpense(ctx, expense("u1", fmt.Sprintf("a%d", i), "x", 100, "other", core.NewDate(2024, 1, 1+i)))
			require.NoError(t, err)
		}
		_, err := repo.InsertExpense(ctx, expense("u2", "b0", "y", 100, "other", core.NewDate(2024, 1, 1)))
		require.NoError(t, err)

		list, err := repo.ListExpenses(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, list, 3)
		for _, e := range list {
			assert.Equal(t, "u1", e.OwnerID)
		}
	})

	t.Run("categories keep insertion order and reject duplicates", func(t *testing.T) {
		repo := f(t)
		ctx := context.Background()
		for i, name := range []string{"Pets", "Gifts", "Travel"} {
			require.NoError(t, repo.InsertCategory(ctx, core.Category{
				ID: fmt.Sprintf("c%d", i), Name: name, OwnerID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}
		require.NoError(t, repo.InsertCategory(ctx, core.Category{ID: "other-user", Name: "Pets", OwnerID: "u2", CreatedAt: base}))

		err := repo.InsertCategory(ctx, core.Category{ID: "c9", Name: "Pets", OwnerID: "u1", CreatedAt: base})
		assert.ErrorIs(t, err, core.ErrConflict)

		// names are case-sensitive
		require.NoError(t, repo.InsertCategory(ctx, core.Category{ID: "c10", Name: "pets", OwnerID: "u1", CreatedAt: base}))

		cats, err := repo.ListCategories(ctx, "u1")
		require.NoError(t, err)
		var names []string
		for _, c := range cats {
			names = append(names, c.Name)
			assert.Equal(t, "u1", c.OwnerID)
			assert.False(t, c.IsDefault)
		}
		assert.Equal(t, []string{"Pets", "Gifts", "Travel", "pets"}, names)
	})

	t.Run("concurrent category creates admit one winner", func(t *testing.T) {
		repo := f(t)
		ctx := context.Background()
		const n = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.InsertCategory(ctx, core.Category{ID: fmt.Sprintf("race-%d", i), Name: "Race", OwnerID: "u1", CreatedAt: base})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("delete category spares referenced ones", func(t *testing.T) {
		repo := f(t)
		ctx := context.Background()
		require.NoError(t, repo.InsertCategory(ctx, core.Category{ID: "c1", Name: "Pets", OwnerID: "u1", CreatedAt: base}))
		require.NoError(t, repo.InsertCategory(ctx, core.Category{ID: "c2", Name: "Gifts", OwnerID: "u1", CreatedAt: base}))
		_, err := repo.InsertExpense(ctx, expense("u1", "e1", "Kibble", 900, "c2", core.NewDate(2024, 1, 10)))
		require.NoError(t, err)

		assert.ErrorIs(t, repo.DeleteCategory(ctx, "u2", "c1"), core.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteCategory(ctx, "u1", "c2"), core.ErrConflict)
		require.NoError(t, repo.DeleteCategory(ctx, "u1", "c1"))
		assert.ErrorIs(t, repo.DeleteCategory(ctx, "u1", "c1"), core.ErrNotFound)

		cats, err := repo.ListCategories(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, cats, 1)
		assert.Equal(t, "c2", cats[0].ID)

		// the freed name can be taken again
		require.NoError(t, repo.InsertCategory(ctx, core.Category{ID: "c3", Name: "Pets", OwnerID: "u1", CreatedAt: base}))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, f(t).Ping(context.Background()))
	})
}
