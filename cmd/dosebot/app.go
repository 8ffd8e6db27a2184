package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/tazhate/dosebot/config"
	"github.com/tazhate/dosebot/internal/api"
	"github.com/tazhate/dosebot/internal/calendar"
	"github.com/tazhate/dosebot/internal/logger"
	"github.com/tazhate/dosebot/internal/metrics"
	"github.com/tazhate/dosebot/internal/scheduler"
	"github.com/tazhate/dosebot/internal/service"
	"github.com/tazhate/dosebot/internal/storage"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *storage.Storage
	registry *prometheus.Registry
	sched    *scheduler.Scheduler

	users    *service.UserService
	meds     *service.MedicationService
	doses    *service.DoseService
	policies *service.PolicyService
	planner  *service.Planner
	calendar *service.CalendarService
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New("dosebot", cfg.LogLevel)

	store, err := storage.New(cfg.DatabasePath, cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	sched := scheduler.New(cfg.Timezone, log, m)

	cache := service.NewMedicationCache(store)
	policies := service.NewPolicyService(store, cfg.RemindersDefault, cfg.AdvanceMinutesDefault, log)
	planner := service.NewPlanner(sched, store, store, policies, log, m)
	policies.SetRescheduler(planner)

	var publisher service.SlotPublisher
	if cfg.CalDAVEnabled() {
		p, err := calendar.NewPublisher(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVCalendar)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init caldav: %w", err)
		}
		publisher = p
	}
	calendarSvc := service.NewCalendarService(store, policies, publisher, cfg.Timezone, log)
	if calendarSvc.IsConfigured() {
		planner.SetAfterReschedule(calendarSvc.PublishAfterReschedule)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		registry: registry,
		sched:    sched,
		users:    service.NewUserService(store),
		meds:     service.NewMedicationService(store, cache, planner, sched, cfg.Timezone, log),
		doses:    service.NewDoseService(store, store, cache, planner, cfg.Timezone, log, m),
		policies: policies,
		planner:  planner,
		calendar: calendarSvc,
	}, nil
}

func (a *app) apiServer() *api.Server {
	return api.New(api.Deps{
		Medications: a.meds,
		Doses:       a.doses,
		Policies:    a.policies,
		Planner:     a.planner,
		Calendar:    a.calendar,
		Users:       a.users,
		Health:      a.store,
		Gatherer:    a.registry,
		Location:    a.cfg.Timezone,
		Logger:      a.log,
		Username:    a.cfg.APIUsername,
		Password:    a.cfg.APIPassword,
	})
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("close storage")
	}
}
