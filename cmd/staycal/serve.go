package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"staycal/internal/availability"
	"staycal/internal/booking"
	"staycal/internal/calsync"
	"staycal/internal/config"
	"staycal/internal/feed"
	"staycal/internal/ics"
	appLog "staycal/internal/log"
	"staycal/internal/payment"
	"staycal/internal/store"
	"staycal/internal/web"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			// --listen overrides the config file if provided.
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

// app is the wired service graph shared by serve and export.
type app struct {
	store    *store.Store
	calendar *availability.Calendar
	fetcher  *ics.Fetcher
	loader   *feed.Loader
	bookings *booking.Service
	syncs    *calsync.Service
}

func buildApp(cfg *config.Config) (*app, error) {
	loc := resolveLocationOrLocal(cfg.Timezone)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	cal := availability.NewCalendar(loc)
	fetcher := ics.NewFetcher(cfg.CacheDir, nil)
	parseOpts := ics.ParseOptions{
		Location:    loc,
		Strict:      cfg.Feed.Strict,
		HorizonDays: cfg.Feed.HorizonDays,
	}
	loader := feed.NewLoader(fetcher, ics.Source{ID: "main", URL: cfg.Feed.Source}, cal, parseOpts)

	var provider payment.Provider = payment.Disabled{}
	if cfg.PaymentsEnabled() {
		provider = payment.NewStripeProvider(cfg.Payment.StripeSecretKey, cfg.Payment.SuccessURL, cfg.Payment.CancelURL, nil)
	}
	bookings := booking.NewService(st, cal, provider, booking.Options{
		PricePerNight: cfg.PricePerNight,
		Currency:      cfg.Currency,
		MaxNights:     cfg.MaxNights,
	})

	var syncer calsync.Syncer = calsync.StampSyncer{}
	if cfg.Sync.Mode == config.SyncModeFetch {
		syncer = calsync.FeedSyncer{Fetcher: fetcher, Calendar: cal, Options: parseOpts}
	}
	syncs := calsync.NewService(st, syncer, cal)

	return &app{
		store:    st,
		calendar: cal,
		fetcher:  fetcher,
		loader:   loader,
		bookings: bookings,
		syncs:    syncs,
	}, nil
}

// warmUp loads the feed and bookings into the calendar. A missing or
// unreadable feed is logged and leaves the calendar empty; the operator
// can upload or reload later.
func (a *app) warmUp(ctx context.Context, cfg *config.Config) error {
	if err := a.loader.Load(ctx); err != nil {
		appLog.Error("initial feed load failed; continuing without feed", err, "label", a.loader.Status().Label)
	}
	if err := a.bookings.RefreshStays(ctx); err != nil {
		return err
	}
	if cfg.Sync.Mode == config.SyncModeFetch {
		if err := a.syncs.SyncAll(ctx); err != nil {
			appLog.Error("initial calendar sync had failures", err)
		}
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	appLog.Info("staycal starting", "version", version)
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"env", cfg.Env,
		"timezone", cfg.Timezone,
		"feed_strict", cfg.Feed.Strict,
		"database", cfg.DatabasePath,
		"payments", cfg.PaymentsEnabled(),
		"sync_mode", cfg.Sync.Mode,
		"sync_refresh", cfg.Sync.Refresh,
		"compact", cfg.Compact,
	)

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if err := a.warmUp(ctx, cfg); err != nil {
		return err
	}

	sched, err := newScheduler(cfg, a)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	srv := web.NewServer(cfg, web.Deps{
		Calendar: a.calendar,
		Feed:     a.loader,
		Bookings: a.bookings,
		Syncs:    a.syncs,
		Profiles: a.store,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
		return err
	}
	appLog.Info("staycal exiting")
	return nil
}

// newScheduler registers the background jobs: compaction of past
// overrides and notes, and the optional feed/sync refresh.
func newScheduler(cfg *config.Config, a *app) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(a.calendar.Location()))

	if cfg.Compact != "" {
		if _, err := c.AddFunc(cfg.Compact, func() {
			removed := a.calendar.Compact(a.calendar.Today())
			appLog.Info("compacted past calendar entries", "removed", removed)
		}); err != nil {
			return nil, err
		}
	}

	if cfg.Sync.Refresh != "" {
		if _, err := c.AddFunc(cfg.Sync.Refresh, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			if err := a.loader.Load(ctx); err != nil {
				appLog.Error("scheduled feed reload failed", err, "label", a.loader.Status().Label)
			}
			if err := a.syncs.SyncAll(ctx); err != nil {
				appLog.Error("scheduled calendar sync had failures", err)
			}
		}); err != nil {
			return nil, err
		}
	}
	return c, nil
}
