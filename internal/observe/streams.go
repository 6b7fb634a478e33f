package observe

import (
	"net/url"
	"path"
	"strings"

	"github.com/vesaa/pagepulse/internal/host"
	"github.com/vesaa/pagepulse/internal/models"
	"github.com/vesaa/pagepulse/internal/thresholds"
)

// Script classifications.
const (
	ScriptMain    = "main"
	ScriptVendor  = "vendor"
	ScriptRuntime = "runtime"
	ScriptUnknown = "unknown"
)

// HandleVitals normalizes one web-vitals observation batch. Layout shifts
// are summed across the batch (ignoring shifts right after user input) and
// recorded once.
func (l *Layer) HandleVitals(batch []host.VitalEntry) {
	th := l.opts.Thresholds
	var (
		cls      float64
		clsCount int
	)
	for _, e := range batch {
		switch e.EntryType {
		case host.KindLCP:
			l.record(thresholds.MetricLCP, lcpValue(e), UnitMillis, th.LargestContentfulPaint, models.AlertPoorLCP, "")
		case host.KindFirstInput:
			l.record(thresholds.MetricFID, e.ProcessingStart-e.StartTime, UnitMillis, th.FirstInputDelay, models.AlertPoorFID, "")
		case host.KindLayoutShift:
			if e.HadRecentInput {
				continue
			}
			cls += e.Value
			clsCount++
		case host.KindPaint:
			if e.Name == host.PaintFCP {
				l.record(thresholds.MetricFCP, e.StartTime, UnitMillis, th.FirstContentfulPaint, models.AlertSlowFCP, "")
			}
		}
	}
	if clsCount > 0 {
		l.record(thresholds.MetricCLS, cls, UnitScore, th.CumulativeLayoutShift, models.AlertPoorCLS, "")
	}
}

func lcpValue(e host.VitalEntry) float64 {
	switch {
	case e.StartTime > 0:
		return e.StartTime
	case e.RenderTime > 0:
		return e.RenderTime
	default:
		return e.LoadTime
	}
}

// HandleResources records build-output scripts and stylesheets. Other
// resources are ignored.
func (l *Layer) HandleResources(batch []host.ResourceEntry) {
	th := l.opts.Thresholds
	for _, e := range batch {
		p := resourcePath(e.Name)
		switch {
		case strings.HasSuffix(p, ".js") && strings.Contains(p, l.opts.ScriptPath):
			kind := ClassifyScript(p)
			l.record(thresholds.BundleLoadTimeMetric(kind), e.Duration(), UnitMillis, th.LoadTime, models.AlertSlowBundleLoad, e.Name)
			l.record(thresholds.BundleSizeMetric(kind), float64(e.TransferSize), UnitBytes, th.BundleSize, models.AlertLargeBundle, e.Name)
		case l.isStylesheet(p, e):
			l.record(thresholds.MetricCSSLoadTime, e.Duration(), UnitMillis, th.LoadTime, models.AlertSlowCSSLoad, e.Name)
			l.record(thresholds.MetricCSSSize, float64(e.TransferSize), UnitBytes, 0, "", e.Name)
		}
	}
}

// isStylesheet matches .css files anywhere and link-initiated resources
// under the stylesheet build path.
func (l *Layer) isStylesheet(p string, e host.ResourceEntry) bool {
	if strings.HasSuffix(p, ".css") {
		return true
	}
	return l.opts.StylePath != "" && e.InitiatorType == "link" && strings.Contains(p, l.opts.StylePath)
}

// HandleNavigation records the three page-level durations, each measured
// from navigation start.
func (l *Layer) HandleNavigation(nav host.NavigationEntry) {
	th := l.opts.Thresholds
	l.record(thresholds.MetricPageLoad, nav.LoadEventEnd-nav.StartTime, UnitMillis, th.LoadTime, models.AlertSlowPageLoad, "")
	l.record(thresholds.MetricDOMInteractive, nav.DOMInteractive-nav.StartTime, UnitMillis, 0, "", "")
	l.record(thresholds.MetricDOMComplete, nav.DOMComplete-nav.StartTime, UnitMillis, 0, "", "")
}

// ClassifyScript buckets a script by its file name.
func ClassifyScript(src string) string {
	name := strings.ToLower(path.Base(resourcePath(src)))
	switch {
	case strings.Contains(name, "main"):
		return ScriptMain
	case strings.Contains(name, "vendor"), strings.Contains(name, "chunk"):
		return ScriptVendor
	case strings.Contains(name, "runtime"):
		return ScriptRuntime
	default:
		return ScriptUnknown
	}
}

// resourcePath strips scheme, host, query and fragment from a resource URL.
func resourcePath(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return u.Path
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}
