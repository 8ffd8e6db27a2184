// Package api exposes the dose operations over HTTP/JSON.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tazhate/dosebot/internal/service"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Deps struct {
	Medications *service.MedicationService
	Doses       *service.DoseService
	Policies    *service.PolicyService
	Planner     *service.Planner
	Calendar    *service.CalendarService
	Users       *service.UserService
	Health      HealthChecker
	Gatherer    prometheus.Gatherer
	Location    *time.Location
	Logger      zerolog.Logger
	Username    string
	Password    string
}

type Server struct {
	meds     *service.MedicationService
	doses    *service.DoseService
	policies *service.PolicyService
	planner  *service.Planner
	calendar *service.CalendarService
	users    *service.UserService
	health   HealthChecker
	gatherer prometheus.Gatherer
	location *time.Location
	log      zerolog.Logger
	username string
	password string
}

func New(d Deps) *Server {
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		meds:     d.Medications,
		doses:    d.Doses,
		policies: d.Policies,
		planner:  d.Planner,
		calendar: d.Calendar,
		users:    d.Users,
		health:   d.Health,
		gatherer: gatherer,
		location: d.Location,
		log:      d.Logger.With().Str("component", "api").Logger(),
		username: d.Username,
		password: d.Password,
	}
}

// Handler builds the router. Everything under /api needs Basic Auth and an
// X-User-ID header naming the acting user.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.basicAuth)
		r.Use(s.identity)

		r.Get("/today", s.handleToday)

		r.Get("/medications", s.handleListMedications)
		r.Post("/medications", s.handleCreateMedication)
		r.Put("/medications/{id}", s.handleUpdateMedication)
		r.Delete("/medications/{id}", s.handleDeleteMedication)
		r.Post("/medications/{id}/take", s.handleTake)
		r.Post("/medications/{id}/next", s.handleCustomNext)
		r.Post("/medications/{id}/postpone", s.handlePostpone)
		r.Get("/postpone-options", s.handlePostponeOptions)

		r.Get("/reminders", s.handleGetReminders)
		r.Put("/reminders", s.handlePutReminders)

		r.Get("/history", s.handleHistory)
		r.Get("/calendar.ics", s.handleCalendar)
		r.Get("/notifications", s.handleNotifications)
	})

	return r
}

// Serve runs the HTTP server on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
