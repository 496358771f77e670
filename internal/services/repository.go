package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/ytakahashi/todo-api/internal/config"
	"github.com/ytakahashi/todo-api/internal/models"
)

type Todo = models.Todo

// TodoRepository is the storage contract shared by every transport. All
// implementations must be safe for concurrent use and return copies.
type TodoRepository interface {
	List(ctx context.Context) ([]Todo, error)
	Create(ctx context.Context, in models.CreateInput) (Todo, error)
	Get(ctx context.Context, id uint64) (Todo, error)
	Update(ctx context.Context, id uint64, in models.UpdateInput) (Todo, error)
	Delete(ctx context.Context, id uint64) error
	Close() error
}

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Store) (TodoRepository, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(), nil
	case config.BackendSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.BackendRedis:
		return NewRedisStoreFromConfig(ctx, cfg)
	case config.BackendFirestore:
		return NewFirestoreService(ctx, cfg.ProjectID, cfg.FirestoreCollection)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func sortByID(todos []Todo) {
	slices.SortFunc(todos, func(a, b Todo) int { return cmp.Compare(a.ID, b.ID) })
}
