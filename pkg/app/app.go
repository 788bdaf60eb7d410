package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gauge/internal/log"
	"github.com/teslashibe/go-gauge/pkg/debug"
	"github.com/teslashibe/go-gauge/pkg/frames"
	"github.com/teslashibe/go-gauge/pkg/gauge"
	"github.com/teslashibe/go-gauge/pkg/history"
	"github.com/teslashibe/go-gauge/pkg/imgproc"
	"github.com/teslashibe/go-gauge/pkg/monitor"
	"github.com/teslashibe/go-gauge/pkg/overlay"
	"github.com/teslashibe/go-gauge/pkg/params"
	"github.com/teslashibe/go-gauge/pkg/web"

	// registers the "opencv" backend
	_ "github.com/teslashibe/go-gauge/pkg/imgproc/opencv"
)

// How often old history rows are pruned.
const pruneEvery = time.Hour

// App is the gauge reader service.
type App struct {
	config Config
	log    *slog.Logger

	store   *params.Store
	source  frames.Source
	monitor *monitor.Monitor
	server  *web.Server
	history *history.Store
	overlay *overlay.Updater
	stages  *debug.StageWriter

	unsubscribe []func()
	closeOnce   sync.Once
}

// New creates the service with the given configuration.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Init(cfg.LogLevel)
	debug.Enabled = cfg.Debug
	debug.Stages = cfg.Debug && cfg.DebugDir != ""

	return &App{config: cfg, log: log.Component("app")}, nil
}

// Init opens every component. Call this after New() and before Run().
// On error, Shutdown releases whatever was opened.
func (a *App) Init() error {
	a.log.Info("gauge reader starting", "backend", a.config.Backend, "source", a.config.Source)
	debug.Log("debug mode enabled\n")

	store, err := params.Load(a.config.ParamsPath)
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}
	a.store = store

	ops, err := imgproc.Open(a.config.Backend)
	if err != nil {
		return fmt.Errorf("imaging backend: %w", err)
	}

	opts := []gauge.Option{gauge.WithBelowMinBand(a.config.BelowMinBand)}
	if a.config.DebugDir != "" {
		a.stages, err = debug.NewStageWriter(a.config.DebugDir)
		if err != nil {
			return err
		}
		opts = append(opts, gauge.WithTracer(a.stages))
		a.log.Info("writing pipeline stages", "dir", a.stages.Dir())
	}

	src, err := frames.Open(a.config.Frames)
	if err != nil {
		return fmt.Errorf("frame source: %w", err)
	}
	a.source = src

	p := store.Get()
	a.monitor, err = monitor.New(monitor.Config{
		Ops:          ops,
		Source:       src,
		Setup:        p.Setup(),
		GaugeOptions: opts,
	})
	if err != nil {
		return err
	}

	port := p.Port
	if a.config.Port > 0 {
		port = a.config.Port
	}

	if a.config.DBPath != "" {
		a.history, err = history.Open(a.config.DBPath)
		if err != nil {
			return err
		}
		a.monitor.AddSink(a.history)
	}

	a.server = web.NewServer(web.Config{
		Port:    port,
		Monitor: a.monitor,
		Params:  store,
		History: a.historyOrNil(),
	})
	a.monitor.AddSink(a.server)

	if a.config.Overlay {
		a.overlay, err = overlay.New(overlay.Config{
			BaseURL:  a.config.OverlayURL,
			User:     a.config.OverlayUser,
			Password: a.config.OverlayPass,
			Index:    p.OverlayIndex,
		})
		if err != nil {
			return err
		}
		a.monitor.AddSink(a.overlay)
	}

	return nil
}

// historyOrNil keeps a nil *history.Store from becoming a non-nil interface.
func (a *App) historyOrNil() web.History {
	if a.history == nil {
		return nil
	}
	return a.history
}

// Run serves and reads frames until ctx is cancelled or the frame source
// fails. An exhausted file source leaves the last value being served.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	monEvents, unsubMon := a.store.Subscribe()
	appEvents, unsubApp := a.store.Subscribe()
	a.unsubscribe = append(a.unsubscribe, unsubMon, unsubApp)

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.server.Run(ctx) }()
	go a.handleEvents(ctx, appEvents)
	if a.history != nil && a.config.Retention > 0 {
		go a.prune(ctx)
	}

	monErr := make(chan error, 1)
	go func() { monErr <- a.monitor.Run(ctx, monEvents) }()

	// wait stops everything still running and collects its result
	wait := func(err error) error {
		cancel()
		if monErr != nil {
			<-monErr
		}
		if serverErr != nil {
			<-serverErr
		}
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return wait(nil)
		case err := <-serverErr:
			serverErr = nil
			if err != nil {
				return wait(fmt.Errorf("web: %w", err))
			}
		case err := <-monErr:
			monErr = nil
			if err != nil {
				return wait(err)
			}
			if ctx.Err() == nil {
				a.log.Info("frame source finished, still serving the last reading")
			}
		}
	}
}

// handleEvents applies the changes the monitor does not handle itself.
func (a *App) handleEvents(ctx context.Context, events <-chan params.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case params.KindPort:
				if a.config.Port > 0 {
					a.log.Warn("port fixed by configuration, ignoring change", "port", ev.Params.Port)
					continue
				}
				if err := a.server.Restart(ev.Params.Port); err != nil && !errors.Is(err, web.ErrNotRunning) {
					a.log.Error("port change failed", "port", ev.Params.Port, "error", err)
				}
			case params.KindOverlay:
				if a.overlay == nil {
					continue
				}
				if err := a.overlay.SetIndex(ev.Params.OverlayIndex); err != nil {
					a.log.Error("overlay index change failed", "error", err)
				}
			case params.KindRecalibrate:
				a.log.Info("recalibration requested", "setup", ev.Params.Setup())
			}
		}
	}
}

func (a *App) prune(ctx context.Context) {
	ticker := time.NewTicker(pruneEvery)
	defer ticker.Stop()
	for {
		if _, err := a.history.Prune(ctx, time.Now().Add(-a.config.Retention)); err != nil && ctx.Err() == nil {
			a.log.Warn("history prune failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Monitor returns the monitor, nil before Init.
func (a *App) Monitor() *monitor.Monitor {
	return a.monitor
}

// Server returns the web server, nil before Init.
func (a *App) Server() *web.Server {
	return a.server
}

// Shutdown releases all components. It is safe to call more than once.
func (a *App) Shutdown() {
	a.closeOnce.Do(func() {
		for _, unsub := range a.unsubscribe {
			unsub()
		}
		if a.source != nil {
			if err := a.source.Close(); err != nil {
				a.log.Warn("closing frame source", "error", err)
			}
		}
		if a.history != nil {
			if err := a.history.Close(); err != nil {
				a.log.Warn("closing history", "error", err)
			}
		}
		a.log.Info("gauge reader stopped")
	})
}
