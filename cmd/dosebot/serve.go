package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tazhate/dosebot/internal/bot"
)

func newServeCmd() *cobra.Command {
	var noBot bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the Telegram bot and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !noBot {
				if err := a.cfg.RequireTelegram(); err != nil {
					return err
				}
			}
			return a.serve(cmd.Context(), noBot)
		},
	}
	cmd.Flags().BoolVar(&noBot, "no-bot", false, "keep notifications in the registry without a Telegram bot")
	return cmd
}

func (a *app) serve(parent context.Context, noBot bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if !noBot {
		tgBot, err := bot.New(a.cfg, bot.Deps{
			Users:       a.users,
			Medications: a.meds,
			Doses:       a.doses,
			Policies:    a.policies,
			Location:    a.cfg.Timezone,
			Logger:      a.log,
		})
		if err != nil {
			return err
		}
		a.sched.SetSender(tgBot)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tgBot.Start(ctx); err != nil {
				a.log.Error().Err(err).Msg("bot stopped")
			}
		}()
	}

	if err := a.planner.Bootstrap(ctx); err != nil {
		return err
	}
	reports, err := a.planner.RescheduleAll(ctx)
	if err != nil {
		return err
	}
	a.log.Info().Int("users", len(reports)).Msg("notifications rescheduled")

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sched.Start(ctx)
	}()

	if a.cfg.APIEnabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.apiServer().Serve(ctx, ":"+a.cfg.ServerPort); err != nil {
				a.log.Error().Err(err).Msg("http server stopped")
			}
		}()
	} else {
		a.log.Warn().Msg("API credentials not set, http server disabled")
	}

	a.log.Info().Msg("dosebot started")
	<-ctx.Done()

	a.log.Info().Msg("shutting down")
	a.sched.Stop()
	wg.Wait()

	a.log.Info().Msg("dosebot stopped")
	return nil
}
