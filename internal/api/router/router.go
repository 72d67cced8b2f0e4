// Package router wires the HTTP API.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicbase/scheduler/internal/http/handlers"
	httpmiddleware "github.com/clinicbase/scheduler/internal/http/middleware"
	"github.com/clinicbase/scheduler/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Appointments       *handlers.AppointmentsHandler
	SessionJWTSecret   string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Authenticated API
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpmiddleware.Session(cfg.SessionJWTSecret))

		api.Get("/doctors/{doctorID}/slots", cfg.Appointments.ListSlots)
		api.Get("/doctors/{doctorID}/stats", cfg.Appointments.Stats)

		api.Route("/appointments", func(appt chi.Router) {
			appt.Post("/", cfg.Appointments.Create)
			appt.Get("/", cfg.Appointments.List)
			appt.Get("/{id}", cfg.Appointments.Get)
			appt.Post("/{id}/confirm", cfg.Appointments.Confirm)
			appt.Post("/{id}/cancel", cfg.Appointments.Cancel)
			appt.Post("/{id}/complete", cfg.Appointments.Complete)
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
