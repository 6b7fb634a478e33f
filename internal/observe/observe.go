// Package observe subscribes to the host's timing streams and turns each
// entry into metric-store writes, raising an alert right away whenever an
// observed value breaches its threshold.
//
// The three streams (web vitals, resources, navigation) are independent:
// a host missing one of them only loses that stream.
package observe

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vesaa/pagepulse/internal/host"
	"github.com/vesaa/pagepulse/internal/metrics"
	"github.com/vesaa/pagepulse/internal/models"
	"github.com/vesaa/pagepulse/internal/thresholds"
)

// Units recorded alongside samples.
const (
	UnitMillis = "ms"
	UnitBytes  = "bytes"
	UnitScore  = "score"
)

// AlertSink receives immediate-path alerts. It must not block.
type AlertSink interface {
	SendAlert(models.Alert)
}

// Options configures a Layer.
type Options struct {
	Thresholds thresholds.Table
	// ScriptPath is the build-output path scripts are served from.
	ScriptPath string
	// StylePath is the build-output path stylesheets are served from.
	StylePath string
	// SettleDelay is waited after the load event before the navigation
	// entry is read.
	SettleDelay time.Duration
	Logger      *slog.Logger
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		Thresholds:  thresholds.Default(),
		ScriptPath:  "/static/js/",
		StylePath:   "/static/css/",
		SettleDelay: 100 * time.Millisecond,
	}
}

// Layer owns the host subscriptions. It writes through the store handle it
// is given and keeps no metric state of its own.
type Layer struct {
	store  *metrics.Store
	host   host.Host
	alerts AlertSink
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	started  bool
	disposed bool
	subs     []host.Subscription
	timers   []*time.Timer
}

// New wires a layer; call Start to subscribe.
func New(store *metrics.Store, h host.Host, alerts AlertSink, opts Options) *Layer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ScriptPath == "" {
		opts.ScriptPath = DefaultOptions().ScriptPath
	}
	return &Layer{
		store:  store,
		host:   h,
		alerts: alerts,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Start subscribes to every stream the host offers and returns how many
// subscriptions are active. Calling Start again is a no-op.
func (l *Layer) Start() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.disposed {
		return len(l.subs)
	}
	l.started = true

	if v, ok := l.host.(host.VitalsObservable); ok {
		l.track("vitals", func() (host.Subscription, error) {
			return v.ObserveVitals(func(b []host.VitalEntry) { l.guard("vitals", func() { l.HandleVitals(b) }) })
		})
	} else {
		l.logger.Info("host has no web-vitals stream")
	}

	if r, ok := l.host.(host.ResourceObservable); ok {
		l.track("resources", func() (host.Subscription, error) {
			return r.ObserveResources(func(b []host.ResourceEntry) { l.guard("resources", func() { l.HandleResources(b) }) })
		})
	} else {
		l.logger.Info("host has no resource stream")
	}

	if n, ok := l.host.(host.LoadObservable); ok {
		l.track("navigation", func() (host.Subscription, error) {
			return n.OnLoad(func() { l.scheduleNavigation(n) })
		})
	} else {
		l.logger.Info("host has no navigation stream")
	}
	return len(l.subs)
}

// track subscribes one stream; failure is logged and the stream skipped.
// Called with mu held.
func (l *Layer) track(stream string, subscribe func() (host.Subscription, error)) {
	sub, err := subscribe()
	if err != nil {
		if errors.Is(err, host.ErrUnsupported) {
			l.logger.Info("observer unavailable", slog.String("stream", stream))
		} else {
			l.logger.Warn("observer failed to start", slog.String("stream", stream), slog.String("error", err.Error()))
		}
		return
	}
	l.subs = append(l.subs, sub)
}

// Dispose drops every subscription and pending settle timer.
func (l *Layer) Dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.subs {
		s.Dispose()
	}
	for _, t := range l.timers {
		t.Stop()
	}
	l.subs, l.timers = nil, nil
	l.disposed = true
}

// guard keeps a panicking handler from escaping into the host.
func (l *Layer) guard(stream string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("observer callback panicked", slog.String("stream", stream), slog.Any("panic", r))
		}
	}()
	fn()
}

func (l *Layer) scheduleNavigation(n host.LoadObservable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return
	}
	t := time.AfterFunc(l.opts.SettleDelay, func() {
		l.guard("navigation", func() {
			nav, ok := n.Navigation()
			if !ok {
				l.logger.Debug("load fired without a navigation entry")
				return
			}
			l.HandleNavigation(nav)
		})
	})
	l.timers = append(l.timers, t)
}

// record writes a sample and, when limit > 0, checks it.
func (l *Layer) record(name string, value float64, unit string, limit float64, alertType, resource string) {
	l.store.Record(name, value, unit)
	if limit <= 0 || !thresholds.Exceeds(value, limit) {
		return
	}
	l.logger.Debug("threshold breached",
		slog.String("metric", name), slog.Float64("value", value), slog.Float64("threshold", limit))
	breach := models.Breach{Metric: name, Value: value, Threshold: limit, Unit: unit, Resource: resource}
	l.alerts.SendAlert(models.NewAlert(alertType, breach, l.host.Environment(), l.now()))
}
