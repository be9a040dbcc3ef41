package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/scheduling"
)

type RouterConfig struct {
	Service  *scheduling.Service
	Resolver CallerResolver
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Public reference data
	r.Get("/departments", listDepartmentsHandler(cfg.Service))
	r.Get("/doctors", listDoctorsHandler(cfg.Service))
	r.Get("/doctors/{id}/availability", listAvailabilityHandler(cfg.Service))

	// Authenticated surface
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Resolver))

		r.Post("/departments", createDepartmentHandler(cfg.Service))
		r.Put("/departments/{id}", updateDepartmentHandler(cfg.Service))
		r.Put("/doctors/{id}/availability", setAvailabilityHandler(cfg.Service))

		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/decision", decideAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
	})

	return r
}
