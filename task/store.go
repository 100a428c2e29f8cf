// Package task runs fraud-proof tasks: a concurrent task store shared with
// the API, and a single-flight orchestrator that drives each task from
// Pending to a terminal state.
package task

import (
	"fmt"
	"sync"

	"github.com/colorfulnotion/fraudproof/types"
	"github.com/google/uuid"
)

// StatusChangeFunc observes every stored change. It runs outside the lock.
type StatusChangeFunc func(task types.Task, oldStatus types.TaskStatus)

// Store holds tasks in memory. Every accessor copies so callers never share
// a record with the orchestrator.
type Store struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*types.Task
	order []uuid.UUID

	onChange StatusChangeFunc
}

func NewStore() *Store {
	return &Store{tasks: make(map[uuid.UUID]*types.Task)}
}

// SetStatusChangeCallback sets a callback for status and comment changes
func (s *Store) SetStatusChangeCallback(cb StatusChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = cb
}

// Insert adds a new Pending task.
func (s *Store) Insert(t types.Task) error {
	if t.Status != types.TaskPending {
		return fmt.Errorf("task %s: new tasks must be Pending, got %s", t.ID, t.Status)
	}
	s.mu.Lock()
	if _, ok := s.tasks[t.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("task %s already exists", t.ID)
	}
	stored := t
	s.tasks[t.ID] = &stored
	s.order = append(s.order, t.ID)
	cb := s.onChange
	s.mu.Unlock()

	if cb != nil {
		cb(t, types.TaskNotFound)
	}
	return nil
}

func (s *Store) Get(id uuid.UUID) (types.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return types.Task{}, false
	}
	return *t, true
}

// List returns all tasks in submission order.
func (s *Store) List() []types.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.tasks[id])
	}
	return out
}

// NextPending returns the oldest Pending task, if any.
func (s *Store) NextPending() (types.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if t := s.tasks[id]; t.Status == types.TaskPending {
			return *t, true
		}
	}
	return types.Task{}, false
}

// Transition moves a task from one status to another and sets its comment.
// It fails if the task is not currently in from, or if the move goes
// backwards; terminal tasks never change again.
func (s *Store) Transition(id uuid.UUID, from, to types.TaskStatus, comment string) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("task %s not found", id)
	}
	if t.Status != from {
		cur := t.Status
		s.mu.Unlock()
		return fmt.Errorf("task %s is %s, not %s", id, cur, from)
	}
	if !types.CanTransition(from, to) {
		s.mu.Unlock()
		return fmt.Errorf("task %s: %s -> %s not allowed", id, from, to)
	}
	t.Status = to
	t.Comment = comment
	snapshot := *t
	cb := s.onChange
	s.mu.Unlock()

	if cb != nil {
		cb(snapshot, from)
	}
	return nil
}

// SetComment records progress on a Running task.
func (s *Store) SetComment(id uuid.UUID, comment string) error {
	return s.Transition(id, types.TaskRunning, types.TaskRunning, comment)
}

// StoreStats summarizes the store by status.
type StoreStats struct {
	Total  int
	Counts map[types.TaskStatus]int
}

func (s *Store) GetStats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := StoreStats{Total: len(s.tasks), Counts: make(map[types.TaskStatus]int)}
	for _, t := range s.tasks {
		stats.Counts[t.Status]++
	}
	return stats
}
