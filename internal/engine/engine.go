// Package engine is the composition root: it owns the metric store, runs
// the observation layer against a host, and emits a graded report on a
// fixed interval.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vesaa/pagepulse/internal/advisor"
	"github.com/vesaa/pagepulse/internal/bundle"
	"github.com/vesaa/pagepulse/internal/host"
	"github.com/vesaa/pagepulse/internal/metrics"
	"github.com/vesaa/pagepulse/internal/models"
	"github.com/vesaa/pagepulse/internal/observe"
	"github.com/vesaa/pagepulse/internal/thresholds"
)

// DefaultReportInterval is the periodic report cadence.
const DefaultReportInterval = 30 * time.Second

// Sink receives both immediate alerts and periodic reports. Neither call
// may block.
type Sink interface {
	SendAlert(models.Alert)
	SendReport(models.Report)
}

// Options configures an Engine.
type Options struct {
	Thresholds     thresholds.Table
	ScriptPath     string
	StylePath      string
	SettleDelay    time.Duration
	ReportInterval time.Duration
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	o := observe.DefaultOptions()
	return Options{
		Thresholds:     o.Thresholds,
		ScriptPath:     o.ScriptPath,
		StylePath:      o.StylePath,
		SettleDelay:    o.SettleDelay,
		ReportInterval: DefaultReportInterval,
	}
}

// Engine wires the store, observers, advisor and sink together. It has two
// states: constructed and running.
type Engine struct {
	opts   Options
	host   host.Host
	sink   Sink
	logger *slog.Logger
	store  *metrics.Store
	layer  *observe.Layer
	now    func() time.Time

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New builds an engine. Nothing is observed until Start.
func New(opts Options, h host.Host, sink Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = DefaultReportInterval
	}
	if opts.ScriptPath == "" {
		opts.ScriptPath = observe.DefaultOptions().ScriptPath
	}
	if opts.Thresholds == (thresholds.Table{}) {
		opts.Thresholds = thresholds.Default()
	}

	store := metrics.NewStore()
	layer := observe.New(store, h, sink, observe.Options{
		Thresholds:  opts.Thresholds,
		ScriptPath:  opts.ScriptPath,
		StylePath:   opts.StylePath,
		SettleDelay: opts.SettleDelay,
		Logger:      logger,
	})
	return &Engine{
		opts:   opts,
		host:   h,
		sink:   sink,
		logger: logger,
		store:  store,
		layer:  layer,
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Store exposes the engine's metric store for reads.
func (e *Engine) Store() *metrics.Store {
	return e.store
}

// Running reports whether Start has been called.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Done is closed once the report loop exits after ctx is cancelled.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Start subscribes the observers and begins the report ticker. Calling it
// again is a no-op. Cancelling ctx stops the ticker; subscriptions stay
// for the host's lifetime.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	streams := e.layer.Start()
	e.logger.Info("performance engine started",
		slog.Int("streams", streams),
		slog.Duration("report_interval", e.opts.ReportInterval))

	go e.loop(ctx)
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.opts.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cycle()
		}
	}
}

// cycle builds and sends one report; a panic is logged and the cycle skipped.
func (e *Engine) cycle() {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("report cycle panicked", slog.Any("panic", r))
		}
	}()
	r := e.BuildReport()
	e.logger.Debug("report built",
		slog.String("grade", string(r.Grade)),
		slog.Int("score", r.Score),
		slog.Int("recommendations", len(r.Recommendations)))
	e.sink.SendReport(r)
}

// BuildReport runs one reporting cycle without sending it: snapshot, bundle
// analysis when the host is a document, recommendations, then grade.
// Advisor recommendations come first, bundle analyzer ones after.
func (e *Engine) BuildReport() models.Report {
	snap := e.store.Snapshot()
	in := advisor.Inputs{Snapshot: snap}

	var bundleRecs []models.Recommendation
	if doc, ok := e.host.(host.Document); ok {
		a := bundle.Analyze(doc, bundle.Options{ScriptPath: e.opts.ScriptPath, Thresholds: e.opts.Thresholds})
		in.BundleBytes, in.BundleMeasured = a.TotalSize, a.Measured
		// A document with no build-output scripts says nothing about splitting.
		if len(a.Bundles) > 0 {
			bundleRecs = a.Recommendations
		}
	}

	recs := advisor.Recommend(in, e.opts.Thresholds)
	recs = append(recs, bundleRecs...)
	score := advisor.Score(in, e.opts.Thresholds)

	return models.Report{
		Timestamp:       e.now().UTC().Format(time.RFC3339Nano),
		Metrics:         snap,
		Recommendations: recs,
		Grade:           advisor.GradeFor(score),
		Score:           score,
	}
}
