package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	fail map[string]error // recipient -> forced error
}

func (s *recordingSender) Send(ctx context.Context, channel Channel, recipient, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[recipient]; ok {
		return err
	}
	s.sent = append(s.sent, recipient)
	return nil
}

func enqueueTask(t *testing.T, store TaskStore, recipient string, scheduledAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := store.Enqueue(context.Background(), Task{
		ID:            id,
		AppointmentID: uuid.New(),
		Type:          TypeReminder,
		Channel:       ChannelEmail,
		Recipient:     recipient,
		Subject:       "Appointment reminder",
		Body:          "See you soon.",
		ScheduledAt:   scheduledAt,
		CreatedAt:     scheduledAt,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return id
}

func taskByID(t *testing.T, store *MemTaskStore, id uuid.UUID) Task {
	t.Helper()
	for _, task := range store.All() {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %s not found", id)
	return Task{}
}

func TestDispatcherRunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	newDispatcher := func(store TaskStore, sender Sender) *Dispatcher {
		d := NewDispatcher(store, sender, zerolog.Nop(), 50)
		d.now = func() time.Time { return now }
		return d
	}

	t.Run("sends due tasks and stamps SentAt", func(t *testing.T) {
		store := NewMemTaskStore()
		sender := &recordingSender{}
		d := newDispatcher(store, sender)

		dueID := enqueueTask(t, store, "due@example.com", now.Add(-time.Minute))
		futureID := enqueueTask(t, store, "future@example.com", now.Add(time.Hour))

		if err := d.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}

		if len(sender.sent) != 1 || sender.sent[0] != "due@example.com" {
			t.Errorf("sent = %v, want only the due task", sender.sent)
		}
		if got := taskByID(t, store, dueID); got.SentAt == nil {
			t.Error("due task has no SentAt")
		}
		if got := taskByID(t, store, futureID); got.SentAt != nil {
			t.Error("future task was sent early")
		}
	})

	t.Run("a sent task is never re-delivered", func(t *testing.T) {
		store := NewMemTaskStore()
		sender := &recordingSender{}
		d := newDispatcher(store, sender)

		enqueueTask(t, store, "once@example.com", now.Add(-time.Minute))

		if err := d.RunOnce(ctx); err != nil {
			t.Fatalf("first RunOnce: %v", err)
		}
		if err := d.RunOnce(ctx); err != nil {
			t.Fatalf("second RunOnce: %v", err)
		}
		if len(sender.sent) != 1 {
			t.Errorf("deliveries = %d, want 1", len(sender.sent))
		}
	})

	t.Run("delivery failure records LastError and is terminal", func(t *testing.T) {
		store := NewMemTaskStore()
		sender := &recordingSender{
			fail: map[string]error{"broken@example.com": errors.New("smtp: connection refused")},
		}
		d := newDispatcher(store, sender)

		failID := enqueueTask(t, store, "broken@example.com", now.Add(-time.Minute))
		okID := enqueueTask(t, store, "fine@example.com", now.Add(-time.Minute))

		if err := d.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}

		failed := taskByID(t, store, failID)
		if failed.LastError == nil || *failed.LastError != "smtp: connection refused" {
			t.Errorf("LastError = %v", failed.LastError)
		}
		if failed.SentAt != nil {
			t.Error("failed task has a SentAt")
		}
		if got := taskByID(t, store, okID); got.SentAt == nil {
			t.Error("healthy task was not sent")
		}

		// A failed task stays terminal on the next pass.
		if err := d.RunOnce(ctx); err != nil {
			t.Fatalf("second RunOnce: %v", err)
		}
		if len(sender.sent) != 1 {
			t.Errorf("deliveries = %d, want 1", len(sender.sent))
		}
	})
}
