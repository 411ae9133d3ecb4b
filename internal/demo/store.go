package demo

import (
	"fmt"
	"slices"
	"sync"
)

// Todo is one item in the Store.
type Todo struct {
	ID    string
	Title string
	Done  bool

	seq int
}

// TodoStats summarises the Store.
type TodoStats struct {
	Total     int
	Pending   int
	Completed int
}

// Store is an in-memory todo store shared by the Todos and Stats islands.
type Store struct {
	mu    sync.RWMutex
	todos map[string]*Todo
	next  int
}

// NewStore creates a store holding titles, oldest first.
func NewStore(titles ...string) *Store {
	s := &Store{todos: make(map[string]*Todo), next: 1}
	for _, t := range titles {
		s.Add(t)
	}
	return s
}

// Add creates a todo and returns its ID.
func (s *Store) Add(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("todo-%d", s.next)
	s.todos[id] = &Todo{ID: id, Title: title, seq: s.next}
	s.next++
	return id
}

// Toggle flips a todo's completed status.
func (s *Store) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	todo, ok := s.todos[id]
	if !ok {
		return false
	}
	todo.Done = !todo.Done
	return true
}

// Delete removes a todo.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.todos[id]; !ok {
		return false
	}
	delete(s.todos, id)
	return true
}

// List returns copies of the todos matching filter ("", "all", "pending" or
// "completed"), newest first.
func (s *Store) List(filter string) []Todo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Todo
	for _, todo := range s.todos {
		switch {
		case filter == "pending" && todo.Done:
			continue
		case filter == "completed" && !todo.Done:
			continue
		}
		out = append(out, *todo)
	}
	slices.SortFunc(out, func(a, b Todo) int { return b.seq - a.seq })
	return out
}

// Stats counts todos by status.
func (s *Store) Stats() TodoStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st TodoStats
	for _, todo := range s.todos {
		st.Total++
		if todo.Done {
			st.Completed++
		} else {
			st.Pending++
		}
	}
	return st
}
