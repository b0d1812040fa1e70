package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"lifesignal/internal/audit"
	"lifesignal/internal/config"
	"lifesignal/internal/entity"
	"lifesignal/internal/notify"
	"lifesignal/internal/state"
	"lifesignal/internal/workspace"
)

// Config holds daemon wiring. Loader defaults to the workspace entity
// directory; Sink defaults to the log sink plus desktop notifications.
type Config struct {
	Workspace  *workspace.Workspace
	Settings   config.Config
	Loader     entity.Loader
	Sink       notify.Sink
	Registerer prometheus.Registerer
	Logger     *slog.Logger
	Now        func() time.Time
}

// Daemon is a long-running process that evaluates alert rules on an
// interval and whenever entity files change.
type Daemon struct {
	Workspace  *workspace.Workspace
	Settings   config.Config
	Engine     *Engine
	State      *state.Store
	Audit      *audit.Log
	Dispatcher *notify.Dispatcher

	logger   *slog.Logger
	stopOnce sync.Once
	done     chan struct{}
}

// New opens the workspace state and builds the evaluation engine.
func New(cfg Config) (*Daemon, error) {
	if cfg.Workspace == nil {
		return nil, fmt.Errorf("workspace is nil")
	}
	ws := cfg.Workspace
	if err := ws.EnsureDirs(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Settings.Location()
	if err != nil {
		return nil, err
	}

	store, err := state.Open(ws.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	auditLog := audit.NewLog(ws.AuditDBPath)

	sink := cfg.Sink
	if sink == nil {
		sink = notify.Multi{
			notify.LogSink{Logger: logger},
			notify.DesktopSink{Enabled: cfg.Settings.Notifications.Desktop},
		}
	}
	retrying := notify.NewRetrySink(sink, notify.RetryOptions{
		MaxRetries: cfg.Settings.Notifications.MaxRetries,
		PerMinute:  cfg.Settings.Notifications.PerMinute,
		Logger:     logger,
	})
	dispatcher := notify.NewDispatcher(retrying, cfg.Settings.Notifications.QueueSize, logger)

	loader := cfg.Loader
	if loader == nil {
		loader = entity.DirLoader(ws.EntitiesDir)
	}

	engine, err := NewEngine(EngineOptions{
		Loader:     loader,
		Dedup:      store,
		AlertLog:   auditLog,
		Sink:       dispatcher,
		History:    store,
		Events:     auditLog,
		Location:   loc,
		Workers:    cfg.Settings.Workers,
		PassBudget: cfg.Settings.PassBudget,
		Retention:  time.Duration(cfg.Settings.RetentionDays) * 24 * time.Hour,
		Now:        cfg.Now,
		Logger:     logger,
		Metrics:    NewMetrics(cfg.Registerer),
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Daemon{
		Workspace:  ws,
		Settings:   cfg.Settings,
		Engine:     engine,
		State:      store,
		Audit:      auditLog,
		Dispatcher: dispatcher,
		logger:     logger,
		done:       make(chan struct{}),
	}, nil
}

// Run starts the dispatcher and the cron schedule and blocks until ctx is
// canceled or the process receives SIGINT/SIGTERM.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.Dispatcher.Start(context.WithoutCancel(ctx))

	startPayload := map[string]any{
		"workspace":      d.Workspace.Root,
		"interval":       d.Settings.Interval.String(),
		"watch_interval": d.Settings.WatchInterval.String(),
		"timezone":       d.Settings.Timezone,
	}
	if err := d.Audit.LogEvent("daemon", "daemon_started", startPayload); err != nil {
		d.logger.Warn("audit log failed", "error", err)
	}

	loc, err := d.Settings.Location()
	if err != nil {
		return err
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(d.logger.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc("@every "+d.Settings.Interval.String(), func() { d.tick(ctx, TriggerTick) }); err != nil {
		return fmt.Errorf("schedule evaluation: %w", err)
	}
	if d.Settings.WatchInterval > 0 {
		// Baseline so existing files do not count as changes.
		if _, err := d.watchEntities(ctx); err != nil {
			d.logger.Warn("initial entity scan failed", "error", err)
		}
		if _, err := d.watchConfig(ctx); err != nil {
			d.logger.Warn("initial config scan failed", "error", err)
		}
		if _, err := c.AddFunc("@every "+d.Settings.WatchInterval.String(), func() { d.watchTick(ctx) }); err != nil {
			return fmt.Errorf("schedule watcher: %w", err)
		}
	}

	d.logger.Info("daemon started",
		"workspace", d.Workspace.Root,
		"interval", d.Settings.Interval,
		"watch_interval", d.Settings.WatchInterval,
	)
	c.Start()
	d.tick(ctx, TriggerTick)

	<-ctx.Done()
	d.stopOnce.Do(func() {
		stopCtx := c.Stop()
		<-stopCtx.Done()
		d.Engine.Wait()
		_ = d.Audit.LogEvent("daemon", "daemon_stopped", map[string]any{"workspace": d.Workspace.Root})
		d.logger.Info("daemon stopped")
		close(d.done)
	})
	return nil
}

// Done is closed once Run has shut down.
func (d *Daemon) Done() <-chan struct{} { return d.done }

// Close drains pending deliveries and closes the stores.
func (d *Daemon) Close() error {
	d.Engine.Wait()
	d.Dispatcher.Close()
	return errors.Join(d.State.Close(), d.Audit.Close())
}

func (d *Daemon) tick(ctx context.Context, trigger Trigger) {
	if ctx.Err() != nil {
		return
	}
	if _, err := d.Engine.TryEvaluate(ctx, trigger); err != nil {
		if errors.Is(err, ErrPassRunning) {
			d.logger.Warn("tick dropped, pass still running", "trigger", string(trigger))
			return
		}
		d.logger.Error("evaluation failed", "trigger", string(trigger), "error", err)
	}
}

func (d *Daemon) watchTick(ctx context.Context) {
	if changed, err := d.watchConfig(ctx); err != nil {
		d.logger.Warn("config watch failed", "error", err)
	} else if changed {
		d.logger.Warn("config file changed, restart the daemon to apply it", "path", d.Workspace.ConfigPath)
	}

	changes, err := d.watchEntities(ctx)
	if err != nil {
		d.logger.Warn("entity watch failed", "error", err)
		return
	}
	if len(changes) == 0 {
		return
	}
	d.logger.Info("entity files changed", "count", len(changes))
	if err := d.Audit.LogEvent("daemon", "entities_changed", map[string]any{"changes": changes}); err != nil {
		d.logger.Warn("audit log failed", "error", err)
	}
	d.tick(ctx, TriggerWatch)
}

func (d *Daemon) watchEntities(ctx context.Context) ([]string, error) {
	return watchDirectory(ctx, d.State, d.Workspace.EntitiesDir, "watch_entities")
}

func (d *Daemon) watchConfig(ctx context.Context) (bool, error) {
	return watchFile(ctx, d.State, d.Workspace.ConfigPath, "watch_config")
}
