package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carebook/booking-engine/internal/db"
)

// Seeds the read-only catalog the booking engine consumes: practitioners,
// their services, and weekly working-hours rows. Development only.
func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	tenantID := uuid.New()
	if err := seedPractitioners(context.Background(), pool, tenantID, 25); err != nil {
		logger.Fatal().Err(err).Msg("seed practitioners")
	}

	logger.Info().Str("tenant_id", tenantID.String()).Msg("seed complete")
}

var serviceTemplates = []struct {
	name        string
	durationMin int
	bufferMin   int
}{
	{"Initial consultation", 60, 10},
	{"Follow-up", 30, 0},
	{"Extended consultation", 90, 15},
	{"Telehealth check-in", 20, 5},
	{"Annual review", 45, 0},
}

// weeklyPattern is a plain Mon-Fri practice week with a midday break.
var weeklyPattern = []struct {
	weekday  int
	startMin int
	endMin   int
}{
	{1, 9 * 60, 12 * 60},
	{1, 13 * 60, 17 * 60},
	{2, 9 * 60, 12 * 60},
	{2, 13 * 60, 17 * 60},
	{3, 9 * 60, 13 * 60},
	{4, 9 * 60, 12 * 60},
	{4, 13 * 60, 17 * 60},
	{5, 9 * 60, 14 * 60},
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, count int) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		practitionerID := uuid.New()
		name := "Dr. " + gofakeit.Name()

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, tenant_id, name, active, created_at, updated_at)
			VALUES ($1, $2, $3, true, now(), now())
		`, practitionerID, tenantID, name)
		if err != nil {
			return err
		}

		// Each practitioner offers a random subset of the service templates.
		nServices := gofakeit.Number(2, len(serviceTemplates))
		for _, svc := range serviceTemplates[:nServices] {
			_, err := tx.Exec(ctx, `
				INSERT INTO services (id, practitioner_id, name, duration_min, buffer_min, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, true, now(), now())
			`, uuid.New(), practitionerID, svc.name, svc.durationMin, svc.bufferMin)
			if err != nil {
				return err
			}
		}

		for _, w := range weeklyPattern {
			_, err := tx.Exec(ctx, `
				INSERT INTO practitioner_schedules (practitioner_id, weekday, start_min, end_min)
				VALUES ($1, $2, $3, $4)
			`, practitionerID, w.weekday, w.startMin, w.endMin)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}
