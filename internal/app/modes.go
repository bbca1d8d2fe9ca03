package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	cronrunner "github.com/alanyoungcy/tokenduel/internal/cron"
	"github.com/alanyoungcy/tokenduel/internal/server"
	"github.com/alanyoungcy/tokenduel/internal/server/handler"
	"github.com/alanyoungcy/tokenduel/internal/server/ws"
	"github.com/alanyoungcy/tokenduel/internal/service"
)

// FullMode runs the price poller, the scheduled jobs and the HTTP server in
// one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)

	reader := a.startOrchestrator(ctx, deps)
	duels := a.newDuelService(deps, reader)

	if err := a.startCron(ctx, g, deps, duels, reader); err != nil {
		return err
	}
	a.startHTTPServer(ctx, g, deps, reader, duels)
	return ignoreCancel(g.Wait())
}

// ServerMode serves HTTP only. Live prices come from the Redis mirror kept
// by a worker process.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)

	reader := service.NewMirrorReader(deps.LivePrices, a.cfg.VirtualTokenID())
	duels := a.newDuelService(deps, reader)

	a.startHTTPServer(ctx, g, deps, reader, duels)
	return ignoreCancel(g.Wait())
}

// WorkerMode polls prices and runs the scheduled jobs without an HTTP
// surface.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")
	g, ctx := errgroup.WithContext(ctx)

	reader := a.startOrchestrator(ctx, deps)
	duels := a.newDuelService(deps, reader)

	if err := a.startCron(ctx, g, deps, duels, reader); err != nil {
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return ignoreCancel(g.Wait())
}

func (a *App) startOrchestrator(ctx context.Context, deps *Dependencies) service.PriceReader {
	orch := service.NewPriceOrchestrator(deps.Quotes, deps.Bus, deps.LivePrices, service.OrchestratorConfig{
		Interval: a.cfg.Orchestrator.PollInterval.Duration,
		Tokens:   a.cfg.Tokens,
	}, a.logger)
	orch.Start(ctx)
	return orch.Reader()
}

func (a *App) newDuelService(deps *Dependencies, reader service.PriceReader) *service.DuelService {
	return service.NewDuelService(
		deps.Rooms,
		deps.Locks,
		deps.Ledger,
		deps.Bus,
		service.NewSettlementPrices(reader, deps.Quotes),
		service.DuelConfig{
			EntryCost:  a.cfg.Duel.EntryCost,
			LockTTL:    a.cfg.Duel.LockTTL.Duration,
			SweepLimit: a.cfg.Duel.SweepLimit,
		},
		a.logger,
	)
}

// startCron schedules the settle sweep and, when object storage is wired, the
// daily price snapshot.
func (a *App) startCron(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	duels *service.DuelService,
	reader service.PriceReader,
) error {
	runner := cronrunner.New(ctx, a.logger)

	if spec := a.cfg.Duel.SweepCron; spec != "" {
		_, err := runner.Add("settle_sweep", spec, func(ctx context.Context) error {
			n, err := duels.SweepDue(ctx)
			if n > 0 {
				a.logger.InfoContext(ctx, "settle sweep finished", slog.Int("settled", n))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("app: schedule settle sweep: %w", err)
		}
	}

	if spec := a.cfg.Duel.SnapshotCron; spec != "" && deps.Blob != nil {
		archiver := service.NewSnapshotArchiver(reader, deps.Blob, deps.Snapshots, a.logger)
		_, err := runner.Add("price_snapshot", spec, func(ctx context.Context) error {
			_, err := archiver.Archive(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("app: schedule price snapshot: %w", err)
		}
	}

	if runner.Len() == 0 {
		a.logger.InfoContext(ctx, "no scheduled jobs configured")
		return nil
	}
	runner.Start()
	g.Go(func() error {
		<-ctx.Done()
		runner.Stop()
		return nil
	})
	return nil
}

func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	reader service.PriceReader,
	duels *service.DuelService,
) {
	checks := map[string]handler.HealthCheck{
		"redis":    deps.Redis.Ping,
		"postgres": deps.Postgres.Ping,
	}
	if deps.S3 != nil {
		checks["s3"] = deps.S3.Health
	}
	prices := service.NewSettlementPrices(reader, deps.Quotes)
	var snapshots handler.SnapshotIndex
	if deps.Blob != nil {
		snapshots = deps.Snapshots
	}

	hub := ws.NewHub(deps.Bus, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		Snapshot:       reader.LivePrices,
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(checks, a.logger),
		Prices: handler.NewPriceHandler(reader, a.logger),
		Quotes: handler.NewQuoteHandler(deps.Quotes, a.logger),
		Score:  handler.NewScoreHandler(prices, a.logger),
		Duels:  handler.NewDuelHandler(duels, a.logger),
		Tokens: handler.NewTokenHandler(a.cfg.Tokens, deps.Quotes, snapshots, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
