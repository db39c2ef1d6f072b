package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemTaskStore backs tests and single-node dev runs.
type MemTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
}

func NewMemTaskStore() *MemTaskStore {
	return &MemTaskStore{tasks: make(map[uuid.UUID]*Task)}
}

func (s *MemTaskStore) Enqueue(ctx context.Context, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *MemTaskStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Task
	for _, t := range s.tasks {
		if t.SentAt != nil || t.LastError != nil {
			continue
		}
		if t.ScheduledAt.After(now) {
			continue
		}
		due = append(due, *t)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemTaskStore) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok && t.SentAt == nil {
		sentAt := at
		t.SentAt = &sentAt
	}
	return nil
}

func (s *MemTaskStore) MarkFailed(ctx context.Context, id uuid.UUID, deliveryErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok && t.SentAt == nil {
		msg := deliveryErr
		t.LastError = &msg
	}
	return nil
}

// All returns a snapshot of every task, ordered by ScheduledAt.
func (s *MemTaskStore) All() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}
