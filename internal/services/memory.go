package services

import (
	"context"
	"sync"

	"github.com/ytakahashi/todo-api/internal/models"
)

// MemoryStore keeps todos in a map guarded by a RWMutex. The id counter lives
// under the same lock so increment-then-insert is a single step.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID uint64
	items  map[uint64]Todo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[uint64]Todo),
	}
}

func (s *MemoryStore) List(_ context.Context) ([]Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	todos := make([]Todo, 0, len(s.items))
	for _, todo := range s.items {
		todos = append(todos, todo)
	}
	sortByID(todos)
	return todos, nil
}

func (s *MemoryStore) Create(_ context.Context, in models.CreateInput) (Todo, error) {
	if err := in.Validate(); err != nil {
		return Todo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	todo := Todo{
		ID:    s.nextID,
		Title: in.Title,
		Done:  false,
	}
	s.items[todo.ID] = todo
	return todo, nil
}

func (s *MemoryStore) Get(_ context.Context, id uint64) (Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	todo, ok := s.items[id]
	if !ok {
		return Todo{}, models.ErrNotFound
	}
	return todo, nil
}

func (s *MemoryStore) Update(_ context.Context, id uint64, in models.UpdateInput) (Todo, error) {
	// Rejected before locking so bad input never blocks writers.
	if err := in.Validate(); err != nil {
		return Todo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	todo, ok := s.items[id]
	if !ok {
		return Todo{}, models.ErrNotFound
	}
	in.Apply(&todo)
	s.items[id] = todo
	return todo, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
