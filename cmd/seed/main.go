package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/db"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
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

	if err := db.Migrate(context.Background(), pool); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	departments, err := seedDepartments(context.Background(), pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed departments")
	}
	doctors, err := seedDoctors(context.Background(), pool, departments, 50)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedAvailability(context.Background(), pool, doctors); err != nil {
		logger.Fatal().Err(err).Msg("seed availability")
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedAdmin(context.Background(), pool); err != nil {
		logger.Fatal().Err(err).Msg("seed admin")
	}

	logger.Info().Msg("seed complete")
}

func seedDepartments(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	names := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	logger.Info().Int("count", len(names)).Msg("seeding departments")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		// Re-runs keep the existing row; the upsert returns its id either way.
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO departments (id, name, description, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
			ON CONFLICT (name) DO UPDATE SET updated_at = now()
			RETURNING id
		`, uuid.New(), name, gofakeit.Sentence(8)).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, departments []uuid.UUID, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		profileID := uuid.New()
		phone := gofakeit.Phone()

		_, err := tx.Exec(ctx, `
			INSERT INTO profiles (id, full_name, phone, role, email_confirmed, created_at, updated_at)
			VALUES ($1, $2, $3, 'doctor', true, now(), now())
		`, profileID, "Dr. "+gofakeit.Name(), phone)
		if err != nil {
			return nil, err
		}

		doctorID := uuid.New()
		departmentID := departments[gofakeit.Number(0, len(departments)-1)]

		_, err = tx.Exec(ctx, `
			INSERT INTO doctors (id, profile_id, department_id, specialty, bio, experience_years, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, doctorID, profileID, departmentID, gofakeit.JobTitle(), gofakeit.Sentence(15), gofakeit.Number(1, 35))
		if err != nil {
			return nil, err
		}
		ids = append(ids, doctorID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return ids, nil
}

func seedAvailability(ctx context.Context, pool *pgxpool.Pool, doctors []uuid.UUID) error {
	logger.Info().Int("doctors", len(doctors)).Msg("seeding availability windows")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Weekdays only, a morning and an afternoon window each.
	for _, doctorID := range doctors {
		for weekday := 1; weekday <= 5; weekday++ {
			for _, win := range [][2]string{{"09:00", "12:00"}, {"14:00", "17:00"}} {
				_, err := tx.Exec(ctx, `
					INSERT INTO availability_windows (id, doctor_id, weekday, start_time, end_time, created_at, updated_at)
					VALUES ($1, $2, $3, $4::time, $5::time, now(), now())
				`, uuid.New(), doctorID, weekday, win[0], win[1])
				if err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			// A slice of unconfirmed patients keeps the email gate exercised.
			confirmed := gofakeit.Number(0, 9) > 0

			_, err := tx.Exec(ctx, `
				INSERT INTO profiles (id, full_name, phone, role, email_confirmed, created_at, updated_at)
				VALUES ($1, $2, $3, 'patient', $4, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Phone(), confirmed)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients batch committed")
	}

	return nil
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO profiles (id, full_name, role, email_confirmed, created_at, updated_at)
		VALUES ($1, 'Clinic Admin', 'admin', true, now(), now())
	`, uuid.New())
	return err
}
