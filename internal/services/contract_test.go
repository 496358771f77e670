package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ytakahashi/todo-api/internal/models"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

// runRepositoryContract exercises the behaviour every backend must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) TodoRepository, concurrentCreates int) {
	ctx := context.Background()

	t.Run("empty list", func(t *testing.T) {
		repo := newRepo(t)
		todos, err := repo.List(ctx)
		require.NoError(t, err)
		require.Empty(t, todos)
	})

	t.Run("create assigns ids from one", func(t *testing.T) {
		repo := newRepo(t)
		first, err := repo.Create(ctx, models.CreateInput{Title: "learn go"})
		require.NoError(t, err)
		require.Equal(t, Todo{ID: 1, Title: "learn go", Done: false}, first)

		second, err := repo.Create(ctx, models.CreateInput{Title: "write tests"})
		require.NoError(t, err)
		require.Equal(t, uint64(2), second.ID)
	})

	t.Run("create rejects invalid input", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, models.CreateInput{Title: "   "})
		require.True(t, models.IsValidation(err))
		require.Equal(t, "title cannot be empty", err.Error())

		todos, err := repo.List(ctx)
		require.NoError(t, err)
		require.Empty(t, todos)
	})

	t.Run("round trip", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, models.CreateInput{Title: "round trip"})
		require.NoError(t, err)

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, created, got)
	})

	t.Run("get missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx, 999)
		require.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("update applies present fields only", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, models.CreateInput{Title: "learn go"})
		require.NoError(t, err)

		updated, err := repo.Update(ctx, created.ID, models.UpdateInput{Done: boolPtr(true)})
		require.NoError(t, err)
		require.Equal(t, Todo{ID: created.ID, Title: "learn go", Done: true}, updated)

		updated, err = repo.Update(ctx, created.ID, models.UpdateInput{Title: strPtr("learn more go")})
		require.NoError(t, err)
		require.Equal(t, Todo{ID: created.ID, Title: "learn more go", Done: true}, updated)

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, updated, got)
	})

	t.Run("update validation wins over not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Update(ctx, 42, models.UpdateInput{})
		require.True(t, models.IsValidation(err))
		require.Equal(t, "provide at least one field to update", err.Error())

		_, err = repo.Update(ctx, 42, models.UpdateInput{Done: boolPtr(true)})
		require.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("update with blank title leaves record untouched", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, models.CreateInput{Title: "keep me"})
		require.NoError(t, err)

		_, err = repo.Update(ctx, created.ID, models.UpdateInput{Title: strPtr(""), Done: boolPtr(true)})
		require.True(t, models.IsValidation(err))

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, created, got)
	})

	t.Run("not found after delete", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, models.CreateInput{Title: "short lived"})
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, created.ID))
		_, err = repo.Get(ctx, created.ID)
		require.ErrorIs(t, err, models.ErrNotFound)
		require.ErrorIs(t, repo.Delete(ctx, created.ID), models.ErrNotFound)
	})

	t.Run("ids are not reused after delete", func(t *testing.T) {
		repo := newRepo(t)
		a, err := repo.Create(ctx, models.CreateInput{Title: "a"})
		require.NoError(t, err)
		b, err := repo.Create(ctx, models.CreateInput{Title: "b"})
		require.NoError(t, err)
		require.NoError(t, repo.Delete(ctx, b.ID))

		c, err := repo.Create(ctx, models.CreateInput{Title: "c"})
		require.NoError(t, err)
		require.Greater(t, c.ID, b.ID)
		require.Greater(t, b.ID, a.ID)
	})

	t.Run("list returns every record sorted by id", func(t *testing.T) {
		repo := newRepo(t)
		for _, title := range []string{"one", "two", "three"} {
			_, err := repo.Create(ctx, models.CreateInput{Title: title})
			require.NoError(t, err)
		}
		require.NoError(t, repo.Delete(ctx, 2))

		todos, err := repo.List(ctx)
		require.NoError(t, err)
		require.Equal(t, []Todo{{ID: 1, Title: "one"}, {ID: 3, Title: "three"}}, todos)
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, models.CreateInput{Title: "original"})
		require.NoError(t, err)

		todos, err := repo.List(ctx)
		require.NoError(t, err)
		todos[0].Title = "mutated"
		todos[0].Done = true

		got, err := repo.Get(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, Todo{ID: 1, Title: "original"}, got)
	})

	t.Run("concurrent creates get distinct ids", func(t *testing.T) {
		repo := newRepo(t)

		ids := make(chan uint64, concurrentCreates)
		errs := make(chan error, concurrentCreates)
		var wg sync.WaitGroup
		for i := 0; i < concurrentCreates; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				todo, err := repo.Create(ctx, models.CreateInput{Title: "parallel"})
				if err != nil {
					errs <- err
					return
				}
				ids <- todo.ID
			}()
		}
		wg.Wait()
		close(ids)
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
		seen := make(map[uint64]struct{}, concurrentCreates)
		for id := range ids {
			_, dup := seen[id]
			require.False(t, dup, "id %d assigned twice", id)
			require.GreaterOrEqual(t, id, uint64(1))
			require.LessOrEqual(t, id, uint64(concurrentCreates))
			seen[id] = struct{}{}
		}
		require.Len(t, seen, concurrentCreates)

		todos, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, todos, concurrentCreates)
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, models.CreateInput{Title: "contended"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				done := i%2 == 0
				_, err := repo.Update(ctx, created.ID, models.UpdateInput{Done: &done})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, "contended", got.Title)
	})
}
