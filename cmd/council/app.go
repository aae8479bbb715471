package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/randalmurphal/council/budget"
	"github.com/randalmurphal/council/config"
	"github.com/randalmurphal/council/cost"
	"github.com/randalmurphal/council/events"
	"github.com/randalmurphal/council/gatekeeper"
	"github.com/randalmurphal/council/gateway"
	"github.com/randalmurphal/council/metrics"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/orchestrator"
	"github.com/randalmurphal/council/provider"
	"github.com/randalmurphal/council/stage"
	"github.com/randalmurphal/council/tracker"
)

// app holds the wired components for one CLI invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	gateway *gateway.Client
	orch    *orchestrator.Orchestrator
	council *orchestrator.Council
	gate    *gatekeeper.Gatekeeper
	budget  budget.Source
	store   *tracker.Store

	closers []func(context.Context) error
}

// newApp wires the stack described by cfg on top of backend. A nil backend
// uses the configured HTTP gateway, with search aliases routed to the
// search service.
func newApp(cfg *config.Config, backend provider.Client, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if backend == nil {
		router := provider.NewRouter(provider.NewHTTPClient(cfg.Gateway))
		search := provider.NewSearchClient(cfg.Search)
		for alias := range cfg.Search.Models {
			router.Register(alias, search)
		}
		backend = router
	}

	pricing := model.DefaultPricing()
	if cfg.PricingFile != "" {
		p, err := config.LoadPricing(cfg.PricingFile, pricing)
		if err != nil {
			return nil, err
		}
		pricing = p
	}

	gwOpts := []gateway.Option{
		gateway.WithFallbacks(cfg.FallbackChain()),
		gateway.WithPricing(pricing),
		gateway.WithMaxRetries(cfg.Pipeline.MaxRetries),
		gateway.WithLogger(logger),
	}
	if cfg.Gateway.Timeout > 0 {
		gwOpts = append(gwOpts, gateway.WithDefaultTimeout(cfg.Gateway.Timeout))
	}
	gw, err := gateway.New(backend, gwOpts...)
	if err != nil {
		return nil, err
	}
	a.gateway = gw

	if cfg.PricingFile != "" {
		watchCtx, cancel := context.WithCancel(context.Background())
		go func() {
			err := config.WatchPricing(watchCtx, cfg.PricingFile, model.DefaultPricing(), gw.SetPricing, logger)
			if err != nil {
				logger.Warn("pricing watch stopped", slog.String("error", err.Error()))
			}
		}()
		a.closers = append(a.closers, func(context.Context) error { cancel(); return nil })
	}

	collector := metrics.New()
	trackers := tracker.Multi{collector}

	var source budget.Source = budget.NewStatic(cfg.Budget.Monthly, 0)
	if cfg.Tracker.Path != "" {
		store, err := tracker.OpenStore(cfg.Tracker.Path, tracker.WithMonthlyBudget(cfg.Budget.Monthly))
		if err != nil {
			return nil, err
		}
		a.store = store
		source = store

		async := tracker.NewAsync(store,
			tracker.WithQueueSize(cfg.Tracker.QueueSize),
			tracker.WithBatchSize(cfg.Tracker.BatchSize),
			tracker.WithFlushInterval(cfg.Tracker.FlushInterval),
			tracker.WithLogger(logger),
		)
		trackers = append(trackers, async)
		// Closers run in reverse, so queued records flush before the
		// database closes.
		a.closers = append(a.closers, func(context.Context) error { return store.Close() }, async.Close)
	}

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		a.closers = append(a.closers, srv.Shutdown)
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.Subject, logger)
		if err != nil {
			// Events are advisory; run without them.
			logger.Warn("nats unavailable, budget events disabled", slog.String("error", err.Error()))
		} else {
			publisher = nc
			a.closers = append(a.closers, func(context.Context) error { return nc.Close() })
		}
	}

	exec := stage.NewExecutor(gw,
		stage.WithMaxInFlight(cfg.Pipeline.MaxInFlight),
		stage.WithTracker(trackers),
		stage.WithLogger(logger),
	)

	gate := gatekeeper.New(
		gatekeeper.WithGateFraction(cfg.Budget.GateFraction),
		gatekeeper.WithMinInvoke(cfg.Budget.MinInvoke),
	)

	orchOpts := []orchestrator.Option{
		orchestrator.WithGatekeeper(gate),
		orchestrator.WithSelector(cfg.Selector()),
		orchestrator.WithRatifyPolicy(cfg.RatifyPolicy()),
		orchestrator.WithDeadline(cfg.Pipeline.Deadline),
		orchestrator.WithTemperature(cfg.Pipeline.Temperature),
		orchestrator.WithLogger(logger),
	}
	if cfg.Pipeline.CallTimeout > 0 {
		orchOpts = append(orchOpts, orchestrator.WithCallTimeout(cfg.Pipeline.CallTimeout))
	}
	a.orch = orchestrator.New(exec, orchOpts...)
	a.gate = gate
	a.budget = source

	a.council = orchestrator.NewCouncil(a.orch, source,
		orchestrator.WithPredictor(cost.NewPredictor(
			// Read through the gateway so reloads reach estimates too.
			cost.WithPricingSource(gw.Pricing),
			cost.WithCeiling(cfg.Budget.Ceiling),
		)),
		orchestrator.WithPublisher(publisher),
		orchestrator.WithAlertFraction(cfg.Budget.GateFraction),
		orchestrator.WithCouncilLogger(logger),
	)
	return a, nil
}

// snapshot reads the current budget for commands that bypass the router.
// A failed read is returned, never replaced by an empty month.
func (a *app) snapshot(ctx context.Context) (budget.Snapshot, error) {
	snap, err := a.budget.Snapshot(ctx)
	if err != nil {
		return budget.Snapshot{}, fmt.Errorf("read budget: %w", err)
	}
	return snap, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
