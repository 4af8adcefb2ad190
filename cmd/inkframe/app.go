package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/inkframe/internal/api"
	"github.com/nerrad567/inkframe/internal/display"
	"github.com/nerrad567/inkframe/internal/handler"
	"github.com/nerrad567/inkframe/internal/infrastructure/config"
	"github.com/nerrad567/inkframe/internal/infrastructure/database"
	"github.com/nerrad567/inkframe/internal/infrastructure/logging"
	"github.com/nerrad567/inkframe/internal/infrastructure/metrics"
	"github.com/nerrad567/inkframe/internal/infrastructure/mqtt"
	"github.com/nerrad567/inkframe/internal/ledger"
	"github.com/nerrad567/inkframe/internal/mode"
	"github.com/nerrad567/inkframe/internal/power"
	"github.com/nerrad567/inkframe/internal/render"
	"github.com/nerrad567/inkframe/internal/wake"
	"github.com/nerrad567/inkframe/migrations"
)

// app holds the wired components.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	db      *database.DB
	ledger  *ledger.Store
	panel   display.Display
	metrics *metrics.Metrics
	state   *mode.State
	orch    *wake.Orchestrator
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on a normal end (shutdown issued, alarm set, signal), or
//     the reason the cycle was aborted
func run(ctx context.Context, opts *options) error {
	log := logging.Default()

	configPath := getConfigPath(opts.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyOverrides(cfg, opts)

	log = logging.New(cfg.Logging, version)
	log.Info("starting inkframe",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
		"device_id", cfg.Device.ID,
	)

	a, cleanup, err := wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if a.state.Mode() == mode.Battery {
		outcome, cycleErr := a.orch.RunCycle(ctx)
		switch outcome {
		case wake.SwitchedToContinuous:
			// handled below
		case wake.ShutdownIssued, wake.AlarmSet, wake.Interrupted:
			return nil
		default:
			return fmt.Errorf("wake cycle %s: %w", outcome, cycleErr)
		}
	}

	return a.runContinuous(ctx)
}

// applyOverrides applies command-line flags on top of the loaded config.
func applyOverrides(cfg *config.Config, opts *options) {
	if opts.dryRun {
		cfg.Display.Driver = "mock"
	}
	if opts.batteryMode {
		cfg.Power.Enabled = true
	}
}

// wire builds every component. cleanup releases them in reverse order.
func wire(ctx context.Context, cfg *config.Config, log *logging.Logger) (*app, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*app, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fail(fmt.Errorf("opening database: %w", err))
	}
	closers = append(closers, func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	})
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fail(fmt.Errorf("running migrations: %w", err))
	}
	log.Info("database ready", "path", db.Path())

	panel, err := display.New(cfg.Display, log.Component("display"))
	if err != nil {
		return fail(err)
	}

	powerClient, err := power.New(cfg.Power)
	if err != nil {
		return fail(fmt.Errorf("creating power client: %w", err))
	}
	powerClient.SetLogger(log.Component("power"))
	if cfg.Power.Enabled {
		log.Info("power manager configured", "endpoint", powerClient.Endpoint())
	}

	m := metrics.New(metrics.Options{
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		Job:            cfg.Metrics.Job,
		DeviceID:       cfg.Device.ID,
	})

	initial := mode.Continuous
	if cfg.Power.Enabled {
		initial = mode.Battery
	}
	state := mode.New(initial)

	store := ledger.NewStore(db.DB)

	registry := handler.NewRegistry()
	registry.SetLogger(log.Component("handler"))
	registry.Register(handler.NewSystemHandler(state, log.Component("handler")))
	pipeline := render.NewPipeline(cfg.Image,
		render.NewFetcher(cfg.GetFetchTimeout(), cfg.Image.MaxBytes),
		log.Component("render"))
	registry.Register(handler.NewImageHandler(pipeline, panel, handler.ImageOptions{
		DisplayID: cfg.Device.ID,
		Preview:   cfg.Image.Preview,
		Ledger:    store,
		Recorder:  m,
		Logger:    log.Component("handler"),
	}))

	mqttLog := log.Component("mqtt")
	channels := func(ctx context.Context) (wake.Channel, error) {
		c, err := mqtt.Connect(ctx, cfg.MQTT, mqttLog)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	orch := wake.New(wake.Deps{
		Channels: channels,
		Power:    powerClient,
		Registry: registry,
		Display:  panel,
		State:    state,
		Ledger:   store,
		Recorder: m,
		Logger:   log.Component("wake"),
	}, wake.OptionsFromConfig(cfg))

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		ledger:  store,
		panel:   panel,
		metrics: m,
		state:   state,
		orch:    orch,
	}, cleanup, nil
}

// runContinuous runs the receive loop and, when enabled, the status API
// until ctx is cancelled or either fails.
func (a *app) runContinuous(ctx context.Context) error {
	a.log.Info("running in continuous mode", "api_enabled", a.cfg.API.Enabled)

	var srv *api.Server
	if a.cfg.API.Enabled {
		width, height := a.panel.Size()
		var err error
		srv, err = api.New(api.Deps{
			Config:   a.cfg.API,
			Logger:   a.log,
			Version:  version,
			DeviceID: a.cfg.Device.ID,
			Display:  api.DisplayInfo{Model: a.panel.Model(), Width: width, Height: height},
			State:    a.state,
			Channel:  a.orch,
			Ledger:   a.ledger,
			Database: a.db,
			Metrics:  a.metrics.Handler(),
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.orch.RunContinuous(gctx)
	})
	if srv != nil {
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("inkframe stopped")
	return nil
}
