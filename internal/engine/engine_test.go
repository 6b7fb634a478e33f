package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/pagepulse/internal/advisor"
	"github.com/vesaa/pagepulse/internal/bundle"
	"github.com/vesaa/pagepulse/internal/host"
	"github.com/vesaa/pagepulse/internal/models"
	"github.com/vesaa/pagepulse/internal/thresholds"
)

type recordingSink struct {
	mu      sync.Mutex
	alerts  []models.Alert
	reports []models.Report
}

func (s *recordingSink) SendAlert(a models.Alert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
}

func (s *recordingSink) SendReport(r models.Report) {
	s.mu.Lock()
	s.reports = append(s.reports, r)
	s.mu.Unlock()
}

func (s *recordingSink) lastReport() (models.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reports) == 0 {
		return models.Report{}, false
	}
	return s.reports[len(s.reports)-1], true
}

func (s *recordingSink) alertTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.alerts))
	for i, a := range s.alerts {
		out[i] = a.Type
	}
	return out
}

type bareHost struct{}

func (bareHost) Environment() models.Environment { return models.Environment{URL: "about:blank"} }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.SettleDelay = 0
	opts.ReportInterval = 10 * time.Millisecond
	return opts
}

func recTypes(recs []models.Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Type
	}
	return out
}

func TestEngineReportsObservedLoad(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page := host.NewPage(host.WithEnvironment(models.Environment{URL: "https://app.example/"}))
	sink := &recordingSink{}
	eng := New(testOptions(), page, sink, quietLogger())
	eng.Start(ctx)

	page.FireLoad(host.NavigationEntry{StartTime: 0, DOMInteractive: 900, DOMComplete: 4200, LoadEventEnd: 4500})

	require.Eventually(t, func() bool {
		r, ok := sink.lastReport()
		if !ok {
			return false
		}
		_, has := r.Metrics[thresholds.MetricPageLoad]
		return has
	}, 2*time.Second, 5*time.Millisecond)

	r, _ := sink.lastReport()
	assert.Equal(t, 70, r.Score)
	assert.Equal(t, models.GradeC, r.Grade)
	assert.Equal(t, []string{advisor.RecLoadTimeOptimization}, recTypes(r.Recommendations))
	assert.NotEmpty(t, r.Timestamp)
	assert.Contains(t, sink.alertTypes(), models.AlertSlowPageLoad)
}

func TestStartIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page := host.NewPage()
	sink := &recordingSink{}
	eng := New(testOptions(), page, sink, quietLogger())
	assert.False(t, eng.Running())
	eng.Start(ctx)
	eng.Start(ctx)
	assert.True(t, eng.Running())

	// A second Start must not double-subscribe.
	page.EmitVitals(host.VitalEntry{EntryType: host.KindFirstInput, StartTime: 10, ProcessingStart: 400})
	st, ok := eng.Store().Snapshot().Get(thresholds.MetricFID)
	require.True(t, ok)
	assert.Equal(t, 1, st.SampleCount)
	assert.Equal(t, []string{models.AlertPoorFID}, sink.alertTypes())
}

func TestCancelStopsReportLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := New(testOptions(), bareHost{}, &recordingSink{}, quietLogger())
	eng.Start(ctx)
	cancel()
	select {
	case <-eng.Done():
	case <-time.After(time.Second):
		t.Fatal("report loop did not stop")
	}
}

func TestBuildReportWithoutDocument(t *testing.T) {
	eng := New(testOptions(), bareHost{}, &recordingSink{}, quietLogger())
	r := eng.BuildReport()
	assert.Equal(t, 100, r.Score)
	assert.Equal(t, models.GradeA, r.Grade)
	assert.Empty(t, r.Recommendations)
	assert.Empty(t, r.Metrics)
}

func TestBuildReportIncludesBundleAnalysis(t *testing.T) {
	page := host.NewPage()
	page.AddScripts(host.ScriptElement{Src: "https://app.example/static/js/main.1a2b3c4d.js"})
	page.EmitResources(host.ResourceEntry{
		Name: "https://app.example/static/js/main.1a2b3c4d.js", StartTime: 0, ResponseEnd: 50, TransferSize: 400 * 1024,
	})

	eng := New(testOptions(), page, &recordingSink{}, quietLogger())
	eng.Store().Record(thresholds.MetricLCP, 3000, "ms")

	r := eng.BuildReport()
	assert.Equal(t, []string{
		advisor.RecBundleOptimization,
		advisor.RecLCPOptimization,
		bundle.RecImplementCodeSplitting,
		bundle.RecReduceBundleSize,
	}, recTypes(r.Recommendations))
	assert.Equal(t, 100-10-20, r.Score)
	assert.Equal(t, models.GradeC, r.Grade)
}

func TestEmptyDocumentAddsNoBundleAdvice(t *testing.T) {
	eng := New(testOptions(), host.NewPage(), &recordingSink{}, quietLogger())
	assert.Empty(t, eng.BuildReport().Recommendations)
}

func TestZeroOptionsUseDefaults(t *testing.T) {
	eng := New(Options{}, bareHost{}, &recordingSink{}, nil)
	assert.Equal(t, thresholds.Default(), eng.opts.Thresholds)
	assert.Equal(t, DefaultReportInterval, eng.opts.ReportInterval)
}

func TestCollectorPublishesEverySeries(t *testing.T) {
	eng := New(testOptions(), bareHost{}, &recordingSink{}, quietLogger())
	c := eng.Collector()
	assert.Equal(t, 0, testutil.CollectAndCount(c))

	eng.Store().Record(thresholds.MetricLCP, 1200, "ms")
	eng.Store().Record(thresholds.MetricLCP, 1800, "ms")
	eng.Store().Record(thresholds.MetricCLS, 0.05, "score")
	assert.Equal(t, 10, testutil.CollectAndCount(c))
	assert.Equal(t, 2, testutil.CollectAndCount(c, "pagepulse_metric_current"))
}
