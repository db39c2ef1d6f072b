package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Generator produces free slots for a rolling horizon and reclaims stale
// ones. Runs are idempotent: slot ids are deterministic and creation is
// set-if-absent, so a rerun over identical inputs changes nothing and
// never touches a held or booked slot.
type Generator struct {
	store    Store
	catalog  Catalog
	schedule ScheduleSource
	agenda   AgendaSource
	log      zerolog.Logger

	horizon         time.Duration
	defaultDuration time.Duration
	now             func() time.Time
}

func NewGenerator(store Store, catalog Catalog, schedule ScheduleSource, agenda AgendaSource, log zerolog.Logger, horizon, defaultDuration time.Duration) *Generator {
	return &Generator{
		store:           store,
		catalog:         catalog,
		schedule:        schedule,
		agenda:          agenda,
		log:             log.With().Str("component", "slot-generator").Logger(),
		horizon:         horizon,
		defaultDuration: defaultDuration,
		now:             time.Now,
	}
}

// Run generates slots for every active practitioner and then sweeps stale
// state. A failure for one practitioner is logged and does not abort the
// others; only a catalog listing failure fails the whole run.
func (g *Generator) Run(ctx context.Context) error {
	start := g.now()

	practitioners, err := g.catalog.ActivePractitioners(ctx)
	if err != nil {
		return fmt.Errorf("list active practitioners: %w", err)
	}

	var created int
	for _, p := range practitioners {
		n, err := g.generateForPractitioner(ctx, p)
		if err != nil {
			g.log.Error().Err(err).
				Str("practitioner_id", p.ID.String()).
				Msg("slot generation failed for practitioner")
			continue
		}
		created += n
	}

	g.log.Info().
		Int("practitioners", len(practitioners)).
		Int("slots_created", created).
		Dur("elapsed", g.now().Sub(start)).
		Msg("generation pass complete")

	g.Cleanup(ctx)
	return nil
}

func (g *Generator) generateForPractitioner(ctx context.Context, p Practitioner) (int, error) {
	now := g.now()
	from, to := now, now.Add(g.horizon)

	services, err := g.catalog.ActiveServices(ctx, p.ID)
	if err != nil {
		return 0, fmt.Errorf("list services: %w", err)
	}
	if len(services) == 0 {
		return 0, nil
	}

	windows, err := g.schedule.WorkingWindows(ctx, p.ID, from, to)
	if err != nil {
		return 0, fmt.Errorf("load working windows: %w", err)
	}

	busy, err := g.agenda.BusyIntervals(ctx, p.ID, from, to)
	if err != nil {
		return 0, fmt.Errorf("load busy intervals: %w", err)
	}

	var created int
	for _, svc := range services {
		step := g.slotDuration(svc)
		for _, window := range windows {
			for _, candidate := range Decompose(window, step) {
				if !candidate.Start.After(now) {
					continue
				}
				if candidate.OverlapsAny(busy) {
					continue
				}

				slot := Slot{
					ID:             DeriveSlotID(p.ID, svc.ID, candidate.Start),
					TenantID:       p.TenantID,
					PractitionerID: p.ID,
					ServiceID:      svc.ID,
					StartAt:        candidate.Start,
					EndAt:          candidate.End,
					Status:         SlotFree,
				}
				if err := g.store.InsertFreeSlot(ctx, slot); err != nil {
					return created, fmt.Errorf("insert slot %s: %w", slot.ID, err)
				}
				created++
			}
		}
	}
	return created, nil
}

func (g *Generator) slotDuration(svc ServiceDef) time.Duration {
	d := time.Duration(svc.DurationMin) * time.Minute
	if d <= 0 {
		d = g.defaultDuration
	}
	return d + time.Duration(svc.BufferMin)*time.Minute
}

// Cleanup deletes slots whose start has passed, frees slots whose hold has
// lapsed, and prunes expired hold audit rows. Failures are logged, never
// fatal: the next pass sweeps again.
func (g *Generator) Cleanup(ctx context.Context) {
	now := g.now()

	if n, err := g.store.DeletePastSlots(ctx, now); err != nil {
		g.log.Error().Err(err).Msg("failed to delete past slots")
	} else if n > 0 {
		g.log.Info().Int64("deleted", n).Msg("past slots removed")
	}

	if n, err := g.store.ReleaseExpiredHolds(ctx, now); err != nil {
		g.log.Error().Err(err).Msg("failed to release expired holds")
	} else if n > 0 {
		g.log.Info().Int64("released", n).Msg("expired holds reclaimed")
	}

	if n, err := g.store.DeleteExpiredHoldRecords(ctx, now); err != nil {
		g.log.Error().Err(err).Msg("failed to prune hold records")
	} else if n > 0 {
		g.log.Debug().Int64("pruned", n).Msg("expired hold records pruned")
	}
}
