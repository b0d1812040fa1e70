package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lifesignal/internal/alerts"
	"lifesignal/internal/dedup"
	"lifesignal/internal/entity"
	"lifesignal/internal/signals"
)

// ErrPassRunning is returned when a tick or trigger arrives while a pass is
// in progress. The request is dropped, never queued.
var ErrPassRunning = errors.New("evaluation pass already running")

// Trigger names what started a pass.
type Trigger string

const (
	TriggerTick   Trigger = "tick"
	TriggerManual Trigger = "manual"
	TriggerWatch  Trigger = "watch"
)

// PassStatus is the final state of a pass.
type PassStatus string

const (
	PassOK               PassStatus = "ok"
	PassLoadFailed       PassStatus = "load_failed"
	PassDedupUnavailable PassStatus = "dedup_unavailable"
	PassBudgetExceeded   PassStatus = "pass_budget_exceeded"
)

const (
	stateIdle int32 = iota
	stateEvaluating
)

const (
	defaultPassBudget = 30 * time.Second
	defaultWorkers    = 4
)

// PassSummary describes one evaluation pass.
type PassSummary struct {
	ID           string          `json:"id"`
	Trigger      Trigger         `json:"trigger"`
	Status       PassStatus      `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	Candidates   int             `json:"candidates"`
	Emitted      int             `json:"emitted"`
	Suppressed   int             `json:"suppressed"`
	Dropped      int             `json:"dropped"`
	EntityErrors int             `json:"entity_errors"`
	LoadProblems int             `json:"load_problems"`
	Alerts       []alerts.Record `json:"-"`
}

// AlertLog persists emitted alerts.
type AlertLog interface {
	AppendAlert(ctx context.Context, rec alerts.Record) error
}

// Enqueuer accepts alerts for asynchronous delivery.
type Enqueuer interface {
	Enqueue(rec alerts.Record) bool
}

// PassRecorder keeps pass history.
type PassRecorder interface {
	StartPass(ctx context.Context, id, trigger string, startedAt time.Time) error
	FinishPass(ctx context.Context, id, status, summaryJSON string, finishedAt time.Time) error
}

// EventLogger writes operational audit events.
type EventLogger interface {
	LogEvent(actor, eventType string, payload any) error
}

type pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// EngineOptions wires an Engine. Loader and Dedup are required.
type EngineOptions struct {
	Loader     entity.Loader
	Dedup      dedup.Store
	AlertLog   AlertLog
	Sink       Enqueuer
	History    PassRecorder
	Events     EventLogger
	Location   *time.Location
	Workers    int
	PassBudget time.Duration
	Retention  time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
	Metrics    *Metrics
}

// Engine runs evaluation passes. At most one pass runs at a time.
type Engine struct {
	opts    EngineOptions
	logger  *slog.Logger
	metrics *Metrics

	state  atomic.Int32
	emitMu sync.Mutex
	wg     sync.WaitGroup

	pruneMu   sync.Mutex
	lastPrune civil.Date
}

// NewEngine validates opts and fills defaults.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("engine: loader is required")
	}
	if opts.Dedup == nil {
		return nil, fmt.Errorf("engine: dedup store is required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.PassBudget <= 0 {
		opts.PassBudget = defaultPassBudget
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Engine{opts: opts, logger: logger, metrics: m}, nil
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Evaluating reports whether a pass is in progress.
func (e *Engine) Evaluating() bool { return e.state.Load() == stateEvaluating }

func (e *Engine) claim() bool {
	if e.state.CompareAndSwap(stateIdle, stateEvaluating) {
		return true
	}
	e.metrics.TicksDropped.Inc()
	return false
}

// TryEvaluate runs one pass synchronously, or returns ErrPassRunning when a
// pass is already in progress.
func (e *Engine) TryEvaluate(ctx context.Context, trigger Trigger) (PassSummary, error) {
	if !e.claim() {
		return PassSummary{}, ErrPassRunning
	}
	e.wg.Add(1)
	defer e.wg.Done()
	defer e.state.Store(stateIdle)
	return e.evaluate(ctx, trigger, uuid.NewString()), nil
}

// Trigger starts a pass in the background and returns its id. The pass
// outlives ctx cancellation but not the engine's Wait.
func (e *Engine) Trigger(ctx context.Context, trigger Trigger) (string, error) {
	if !e.claim() {
		return "", ErrPassRunning
	}
	id := uuid.NewString()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.state.Store(stateIdle)
		e.evaluate(context.WithoutCancel(ctx), trigger, id)
	}()
	return id, nil
}

// Wait blocks until background passes have finished.
func (e *Engine) Wait() { e.wg.Wait() }

func (e *Engine) evaluate(parent context.Context, trigger Trigger, id string) PassSummary {
	start := e.opts.Now()
	sum := PassSummary{ID: id, Trigger: trigger, StartedAt: start}
	log := e.logger.With("pass_id", id, "trigger", string(trigger))
	log.Info("pass started")

	if e.opts.History != nil {
		if err := e.opts.History.StartPass(parent, id, string(trigger), start); err != nil {
			log.Warn("record pass start failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(parent, e.opts.PassBudget)
	sum.Status = e.run(ctx, log, start, &sum)
	cancel()

	sum.FinishedAt = e.opts.Now()
	elapsed := sum.FinishedAt.Sub(start)
	e.metrics.Passes.WithLabelValues(string(sum.Status)).Inc()
	e.metrics.PassDuration.Observe(elapsed.Seconds())

	attrs := []any{
		"status", string(sum.Status),
		"duration", elapsed,
		"candidates", sum.Candidates,
		"emitted", sum.Emitted,
		"suppressed", sum.Suppressed,
		"entity_errors", sum.EntityErrors,
		"load_problems", sum.LoadProblems,
	}
	if sum.Status == PassOK {
		log.Info("pass finished", attrs...)
	} else {
		log.Error("pass finished", attrs...)
	}

	summaryJSON, _ := json.Marshal(sum)
	if e.opts.History != nil {
		if err := e.opts.History.FinishPass(parent, id, string(sum.Status), string(summaryJSON), sum.FinishedAt); err != nil {
			log.Warn("record pass finish failed", "error", err)
		}
	}
	if e.opts.Events != nil {
		if err := e.opts.Events.LogEvent("scheduler", "pass_finished", sum); err != nil {
			log.Warn("audit log failed", "error", err)
		}
	}

	e.maybePrune(parent, log, start)
	return sum
}

func (e *Engine) run(ctx context.Context, log *slog.Logger, now time.Time, sum *PassSummary) PassStatus {
	src, err := e.opts.Loader(ctx)
	if err != nil {
		log.Error("load entities failed", "error", err)
		return PassLoadFailed
	}
	if pr, ok := src.(entity.ProblemReporter); ok {
		for _, p := range pr.Problems() {
			sum.LoadProblems++
			log.Warn("skipped invalid entity file", "file", p.File, "field", p.Field, "error", p.Message)
		}
	}

	clock := alerts.Clock{Now: now, Loc: e.opts.Location}
	type collected struct {
		candidates []alerts.Record
		failures   int
	}
	// A rule that ignores ctx must not hold the engine in Evaluating, so the
	// budget is enforced here and a stuck collect is abandoned.
	done := make(chan collected, 1)
	go func() {
		candidates, failures := e.collect(ctx, log, src, clock)
		done <- collected{candidates, failures}
	}()
	var res collected
	select {
	case res = <-done:
	case <-ctx.Done():
		log.Error("pass budget exceeded, abandoning rule evaluation", "budget", e.opts.PassBudget)
		return PassBudgetExceeded
	}
	candidates := res.candidates
	sum.Candidates = len(candidates)
	sum.EntityErrors = res.failures
	if ctx.Err() != nil {
		log.Error("pass budget exceeded during rule evaluation", "budget", e.opts.PassBudget)
		e.suppressAll(candidates, sum)
		return PassBudgetExceeded
	}

	return e.emit(ctx, log, src, candidates, sum)
}

// collect evaluates every rule against every entity. Entities are
// independent; a failure or panic for one is logged and skipped.
func (e *Engine) collect(ctx context.Context, log *slog.Logger, src entity.Source, clock alerts.Clock) ([]alerts.Record, int) {
	var (
		mu         sync.Mutex
		candidates []alerts.Record
		failures   atomic.Int64
	)
	add := func(recs ...alerts.Record) {
		if len(recs) == 0 {
			return
		}
		mu.Lock()
		candidates = append(candidates, recs...)
		mu.Unlock()
	}
	guard := func(kind, id string, fn func() error) {
		defer func() {
			if r := recover(); r != nil {
				failures.Add(1)
				log.Error("rule evaluation panicked", "entity", kind, "id", id, "panic", r)
			}
		}()
		if err := fn(); err != nil {
			failures.Add(1)
			log.Warn("rule evaluation failed", "entity", kind, "id", id, "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	actions, err := src.ListActions(ctx, "")
	if err != nil {
		failures.Add(1)
		log.Warn("list actions failed", "error", err)
	}
	for _, act := range actions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			guard("action", act.ID, func() error {
				add(alerts.ActionRules(clock, act)...)
				return nil
			})
			return nil
		})
	}

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		guard("areas", "", func() error {
			statuses, areaErrs, err := signals.ClassifyAll(gctx, src, clock.Now)
			if err != nil {
				return err
			}
			for areaID, aerr := range areaErrs {
				failures.Add(1)
				log.Warn("classify area failed", "area_id", areaID, "error", aerr)
			}
			for _, st := range statuses {
				if rec, ok := alerts.AreaDegraded(clock, st); ok {
					add(rec)
				}
			}
			return nil
		})
		return nil
	})

	defs, err := src.ListMetricDefinitions(ctx, "")
	if err != nil {
		failures.Add(1)
		log.Warn("list metric definitions failed", "error", err)
	}
	for _, def := range defs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			guard("metric", def.ID, func() error {
				obs, err := src.ListMetricObservations(gctx, def.ID)
				if err != nil {
					return err
				}
				if rec, ok := alerts.MetricUnupdated(clock, def, obs); ok {
					add(rec)
				}
				return nil
			})
			return nil
		})
	}

	_ = g.Wait()

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Key < candidates[j].Key })
	return candidates, int(failures.Load())
}

// emit is the single serialized write path: dedup check and set, alert log,
// sink, reminder write-back.
func (e *Engine) emit(ctx context.Context, log *slog.Logger, src entity.Source, candidates []alerts.Record, sum *PassSummary) PassStatus {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	marker, _ := src.(entity.ReminderMarker)

	for i, rec := range candidates {
		if ctx.Err() != nil {
			log.Error("pass budget exceeded during emit", "remaining", len(candidates)-i)
			e.suppressAll(candidates[i:], sum)
			return PassBudgetExceeded
		}

		exists, err := e.opts.Dedup.Exists(ctx, rec.Key)
		if err == nil && !exists {
			err = e.opts.Dedup.Set(ctx, rec.Key, rec.At)
		}
		if err != nil {
			log.Error("dedup store unavailable, suppressing remaining alerts",
				"error", err,
				"key", rec.Key,
				"remaining", len(candidates)-i,
			)
			e.suppressAll(candidates[i:], sum)
			return PassDedupUnavailable
		}
		if exists {
			sum.Suppressed++
			e.metrics.Suppressed.WithLabelValues(string(rec.Rule)).Inc()
			continue
		}

		if e.opts.AlertLog != nil {
			if err := e.opts.AlertLog.AppendAlert(ctx, rec); err != nil {
				log.Warn("append alert log failed", "alert_id", rec.ID, "error", err)
			}
		}
		if e.opts.Sink != nil && !e.opts.Sink.Enqueue(rec) {
			sum.Dropped++
		}
		if rec.Rule == alerts.RuleReminderDue && marker != nil {
			if err := marker.MarkReminderFired(ctx, rec.SourceID); err != nil {
				log.Warn("mark reminder fired failed", "action_id", rec.SourceID, "error", err)
			}
		}

		sum.Emitted++
		sum.Alerts = append(sum.Alerts, rec)
		e.metrics.Emitted.WithLabelValues(string(rec.Rule)).Inc()
		log.Debug("alert emitted", "rule", string(rec.Rule), "key", rec.Key)
	}
	return PassOK
}

func (e *Engine) suppressAll(recs []alerts.Record, sum *PassSummary) {
	for _, rec := range recs {
		e.metrics.Suppressed.WithLabelValues(string(rec.Rule)).Inc()
	}
	sum.Suppressed += len(recs)
}

// maybePrune drops dedup markers older than the retention window, once per
// calendar day.
func (e *Engine) maybePrune(ctx context.Context, log *slog.Logger, now time.Time) {
	p, ok := e.opts.Dedup.(pruner)
	if !ok || e.opts.Retention <= 0 {
		return
	}
	today := civil.DateOf(now.In(e.opts.Location))

	e.pruneMu.Lock()
	defer e.pruneMu.Unlock()
	if e.lastPrune == today {
		return
	}
	n, err := p.Prune(ctx, now.Add(-e.opts.Retention))
	if err != nil {
		log.Warn("prune dedup markers failed", "error", err)
		return
	}
	e.lastPrune = today
	if n > 0 {
		log.Info("pruned dedup markers", "count", n)
	}
}
