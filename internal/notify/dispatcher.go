package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher drains due tasks and hands them to the Sender. Each task is
// consumed exactly once: success stamps SentAt, failure records LastError
// and the task becomes terminal. Run by cmd/notify-worker.
type Dispatcher struct {
	tasks  TaskStore
	sender Sender
	log    zerolog.Logger
	batch  int
	now    func() time.Time
}

func NewDispatcher(tasks TaskStore, sender Sender, log zerolog.Logger, batch int) *Dispatcher {
	if batch <= 0 {
		batch = 50
	}
	return &Dispatcher{
		tasks:  tasks,
		sender: sender,
		log:    log.With().Str("component", "notify-dispatcher").Logger(),
		batch:  batch,
		now:    time.Now,
	}
}

func (d *Dispatcher) RunOnce(ctx context.Context) error {
	now := d.now()

	due, err := d.tasks.ClaimDue(ctx, now, d.batch)
	if err != nil {
		return err
	}

	var sent, failed int
	for _, task := range due {
		if err := d.sender.Send(ctx, task.Channel, task.Recipient, task.Subject, task.Body); err != nil {
			failed++
			d.log.Error().Err(err).
				Str("task_id", task.ID.String()).
				Str("channel", string(task.Channel)).
				Msg("delivery failed")
			if mErr := d.tasks.MarkFailed(ctx, task.ID, err.Error()); mErr != nil {
				d.log.Error().Err(mErr).Str("task_id", task.ID.String()).Msg("failed to record delivery error")
			}
			continue
		}

		sent++
		if err := d.tasks.MarkSent(ctx, task.ID, d.now()); err != nil {
			d.log.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to mark task sent")
		}
	}

	if len(due) > 0 {
		d.log.Info().Int("claimed", len(due)).Int("sent", sent).Int("failed", failed).Msg("dispatch pass complete")
	}
	return nil
}
