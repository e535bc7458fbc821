package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"daycal/internal/config"
	"daycal/internal/holiday"
	"daycal/internal/ics"
	appLog "daycal/internal/log"
	"daycal/internal/store"
	"daycal/internal/subscription"
	"daycal/internal/web"
)

// feedBackfillDays is how far into the past feeds are expanded.
const feedBackfillDays = 31

func newServeCmd(g *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the feed refresh scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				conf.Listen = listen
			}
			if g.logLevel == "" {
				lvl, _ := appLog.ParseLevel(conf.LogLevel)
				appLog.SetLevel(lvl)
			}
			if err := conf.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, conf)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, conf *config.Config) error {
	appLog.Info("daycal starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"data_file", conf.DataFile,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"holiday_region", conf.HolidayRegion,
		"ics_count", len(conf.ICS),
	)

	st, err := store.Open(conf.DataFile)
	if err != nil {
		return err
	}

	loc := conf.Location()
	manager := subscription.NewManager(ics.NewFetcher(conf.CacheDir, nil), feedSources(conf), loc)
	window := func(now time.Time) (time.Time, time.Time) {
		day := now.In(loc)
		start := time.Date(day.Year(), day.Month(), day.Day()-feedBackfillDays, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, feedBackfillDays+conf.HorizonDays)
	}

	if len(conf.ICS) > 0 {
		go func() {
			start, end := window(time.Now())
			_ = manager.Refresh(ctx, start, end)
		}()
		if err := manager.Start(ctx, conf.RefreshCron, window); err != nil {
			return err
		}
	}

	var holidays holiday.Provider
	if conf.HolidayRegion != "" {
		if holidays, err = holiday.ForRegion(conf.HolidayRegion); err != nil {
			return err
		}
	}

	srv := web.NewServer(conf, st, manager, holidays)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("daycal exiting")
	return nil
}

func feedSources(conf *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		sources = append(sources, ics.Source{ID: c.ID, Name: c.Name, URL: c.URL, Color: c.Color})
	}
	return sources
}
