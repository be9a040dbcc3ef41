// booking-race floods the API with concurrent booking attempts for a small
// set of doctor slots and then checks the one-active-appointment-per-slot
// invariant directly in Postgres. Useful both as a load generator and as an
// end-to-end proof that the uniqueness constraint holds under contention.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/config"
	"github.com/medibook/medibook/internal/db"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

type RaceConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	PatientLimit int
	SlotCount    int
	PostgresDSN  string
	JWTSecret    string
}

type slot struct {
	DoctorID uuid.UUID
	Date     string
	Time     string
}

type Metrics struct {
	Total     int64
	Created   int64
	SlotTaken int64
	Denied    int64
	Error     int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.Created, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.SlotTaken, 1)
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		atomic.AddInt64(&m.Denied, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Percentiles() (p50, p95 time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := func(p int) int {
		i := len(sorted) * p / 100
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return i
	}
	return sorted[idx(50)], sorted[idx(95)]
}

func main() {
	logger.Info().Msg("booking-race starting")

	cfg := loadRaceConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	patients, err := loadPatients(ctx, pgPool, cfg.PatientLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("load patients")
	}
	slots, err := buildSlots(ctx, pgPool, cfg.SlotCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("build slots")
	}
	logger.Info().Int("patients", len(patients)).Int("slots", len(slots)).Msg("data pool loaded")

	metrics := &Metrics{}
	client := &http.Client{Timeout: 10 * time.Second}

	runCtx, stop := context.WithTimeout(context.Background(), cfg.Duration)
	defer stop()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for runCtx.Err() == nil {
				patient := patients[rand.Intn(len(patients))]
				target := slots[rand.Intn(len(slots))]
				book(runCtx, client, cfg, patient, target, metrics)
			}
		}()
	}
	wg.Wait()

	p50, p95 := metrics.Percentiles()
	logger.Info().
		Int64("total", metrics.Total).
		Int64("created", metrics.Created).
		Int64("slot_taken", metrics.SlotTaken).
		Int64("denied", metrics.Denied).
		Int64("errors", metrics.Error).
		Dur("p50", p50).
		Dur("p95", p95).
		Msg("run complete")

	violations, err := checkInvariant(context.Background(), pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("invariant check failed to run")
	}
	if violations > 0 {
		logger.Fatal().Int64("violations", violations).Msg("INVARIANT VIOLATED: slots with more than one active appointment")
	}
	logger.Info().Msg("invariant holds: no slot has more than one active appointment")
}

func book(ctx context.Context, client *http.Client, cfg RaceConfig, patient uuid.UUID, target slot, metrics *Metrics) {
	body, _ := json.Marshal(map[string]any{
		"doctor_id": target.DoctorID.String(),
		"date":      target.Date,
		"time":      target.Time,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+mintToken(cfg.JWTSecret, patient))

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			metrics.Record(time.Since(start), 0)
		}
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	metrics.Record(time.Since(start), resp.StatusCode)
}

// mintToken signs a short-lived caller token the way the identity subsystem
// would. Load testing only; the server never mints tokens itself.
func mintToken(secret string, profileID uuid.UUID) string {
	claims := jwt.RegisteredClaims{
		Subject:   profileID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		logger.Fatal().Err(err).Msg("sign token")
	}
	return token
}

func loadPatients(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT id FROM profiles
		WHERE role = 'patient' AND email_confirmed
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no confirmed patients found, run cmd/seed first")
	}
	return ids, rows.Err()
}

// buildSlots picks a handful of doctors and fabricates next-week slots for
// them. Few slots and many workers is the point: maximum contention.
func buildSlots(ctx context.Context, pool *pgxpool.Pool, count int) ([]slot, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM doctors LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	var doctors []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		doctors = append(doctors, id)
	}
	if len(doctors) == 0 {
		return nil, fmt.Errorf("no doctors found, run cmd/seed first")
	}

	base := time.Now().AddDate(0, 0, 7)
	var slots []slot
	for i := 0; i < count; i++ {
		day := base.AddDate(0, 0, i%5)
		slots = append(slots, slot{
			DoctorID: doctors[i%len(doctors)],
			Date:     day.Format("2006-01-02"),
			Time:     fmt.Sprintf("%02d:00", 9+(i/5)%8),
		})
	}
	return slots, nil
}

func checkInvariant(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	row := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT doctor_id, appointment_date, appointment_time
			FROM appointments
			WHERE status IN ('pending', 'confirmed')
			GROUP BY doctor_id, appointment_date, appointment_time
			HAVING count(*) > 1
		) AS dup
	`)

	var violations int64
	if err := row.Scan(&violations); err != nil {
		return 0, err
	}
	return violations, nil
}

func loadRaceConfig() RaceConfig {
	baseCfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load base config")
	}

	cfg := RaceConfig{
		APIBaseURL:   getEnv("RACE_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDurationEnv("RACE_DURATION", 30*time.Second),
		Workers:      getIntEnv("RACE_WORKERS", 20),
		PatientLimit: getIntEnv("RACE_PATIENT_LIMIT", 500),
		SlotCount:    getIntEnv("RACE_SLOT_COUNT", 40),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
	}

	if cfg.Workers <= 0 {
		logger.Fatal().Msg("RACE_WORKERS must be > 0")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
