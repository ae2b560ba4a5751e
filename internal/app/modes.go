package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openarb/venuewatch/internal/engine"
	"github.com/openarb/venuewatch/internal/feed"
	"github.com/openarb/venuewatch/internal/notify"
	"github.com/openarb/venuewatch/internal/server"
	"github.com/openarb/venuewatch/internal/server/handler"
	"github.com/openarb/venuewatch/internal/server/ws"
)

// MonitorMode runs the engine core with its feeds and notifications, without
// the HTTP API.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startEngine(ctx, g, deps); err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}
	a.startFeeds(ctx, g, deps)
	a.startNotifyRelay(ctx, g, deps)

	return g.Wait()
}

// ServeMode runs everything in MonitorMode plus the HTTP + WebSocket API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startEngine(ctx, g, deps); err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}
	a.startFeeds(ctx, g, deps)
	a.startNotifyRelay(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything in ServeMode plus Postgres persistence and, when
// enabled, periodic S3 archival.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startEngine(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startFeeds(ctx, g, deps)
	a.startNotifyRelay(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	events, cancelSub := deps.Coordinator.Subscribe()
	g.Go(func() error {
		defer cancelSub()
		return a.runPersistence(ctx, deps, events)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchive(ctx, deps)
		})
	}

	return g.Wait()
}

// startEngine starts the coordinator and registers its Stop for shutdown.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if err := deps.Coordinator.Start(ctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		deps.Coordinator.Stop()
		return ctx.Err()
	})
	return nil
}

// startFeeds launches the WebSocket feed when a feed URL is configured and
// the bus feeder when a bus channel is configured. Both deliver into the
// coordinator.
func (a *App) startFeeds(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if a.cfg.Feed.WSURL != "" {
		wsFeed := feed.NewWSFeed(a.cfg.Feed.WSURL, a.cfg.Feed.Instruments, deps.Coordinator, a.logger)
		g.Go(func() error {
			defer wsFeed.Close()
			return wsFeed.Run(ctx)
		})
	}

	if a.cfg.Feed.BusChannel != "" {
		feeder := feed.NewBusFeeder(deps.SignalBus, a.cfg.Feed.BusChannel, deps.Coordinator, a.logger)
		g.Go(func() error {
			return feeder.Run(ctx)
		})
	}

	if a.cfg.Feed.WSURL == "" && a.cfg.Feed.BusChannel == "" {
		a.logger.WarnContext(ctx, "no feed configured, engine will idle until observations arrive")
	}
}

// startNotifyRelay forwards coordinator events to the configured
// notification channels.
func (a *App) startNotifyRelay(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	events, cancelSub := deps.Coordinator.Subscribe()
	relay := notify.NewRelay(deps.Notifier)
	g.Go(func() error {
		defer cancelSub()
		return relay.Run(ctx, events)
	})
}

// startHTTPServer builds the handler set, the WebSocket hub, and runs the
// API server until the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimitPerSec,
		RateWindow:  time.Second,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(deps.Coordinator),
		Opportunities: handler.NewOpportunityHandler(deps.OpportunityStore),
		Liquidity:     handler.NewLiquidityHandler(deps.Monitor, deps.AlertStore),
		Observations:  handler.NewObservationHandler(deps.Cache, deps.Validator),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// runPersistence consumes coordinator events and writes opportunities and
// liquidity alerts to their stores. Store failures are logged, never fatal.
func (a *App) runPersistence(ctx context.Context, deps *Dependencies, events <-chan engine.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch {
			case ev.Opportunity != nil:
				if err := deps.OpportunityStore.Insert(ctx, *ev.Opportunity); err != nil {
					a.logger.ErrorContext(ctx, "persist opportunity failed",
						slog.String("id", ev.Opportunity.ID),
						slog.String("error", err.Error()),
					)
				}
			case ev.LiquidityAlert != nil:
				if err := deps.AlertStore.Insert(ctx, *ev.LiquidityAlert); err != nil {
					a.logger.ErrorContext(ctx, "persist alert failed",
						slog.String("id", ev.LiquidityAlert.ID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// runArchive periodically moves records older than the retention window to
// S3. Failures are logged and retried on the next tick.
func (a *App) runArchive(ctx context.Context, deps *Dependencies) error {
	interval := time.Duration(a.cfg.Archive.IntervalMin) * time.Minute
	retain := time.Duration(a.cfg.Archive.RetainDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-retain)
			if _, err := deps.Archiver.ArchiveOpportunities(ctx, cutoff); err != nil {
				a.logger.ErrorContext(ctx, "archive opportunities failed",
					slog.String("error", err.Error()),
				)
			}
			if _, err := deps.Archiver.ArchiveAlerts(ctx, cutoff); err != nil {
				a.logger.ErrorContext(ctx, "archive alerts failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
