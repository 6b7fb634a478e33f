// Package advisor turns a metric snapshot into prioritized optimization
// recommendations and a letter grade. Everything here is a pure function
// of its inputs.
package advisor

import (
	"fmt"

	"github.com/vesaa/pagepulse/internal/metrics"
	"github.com/vesaa/pagepulse/internal/models"
	"github.com/vesaa/pagepulse/internal/thresholds"
)

// Recommendation types.
const (
	RecBundleOptimization   = "bundle_optimization"
	RecLoadTimeOptimization = "load_time_optimization"
	RecLCPOptimization      = "lcp_optimization"
	RecCLSOptimization      = "cls_optimization"
)

// Inputs is the immutable view the rules read.
type Inputs struct {
	Snapshot metrics.Snapshot
	// BundleBytes is the estimated total script transfer size; it is only
	// considered when BundleMeasured is true.
	BundleBytes    int64
	BundleMeasured bool
}

// Recommend evaluates every rule independently and returns all that apply,
// in a fixed order. Rules whose metric has no samples are skipped.
func Recommend(in Inputs, th thresholds.Table) []models.Recommendation {
	recs := make([]models.Recommendation, 0, 4)

	if in.BundleMeasured && thresholds.Exceeds(float64(in.BundleBytes), th.BundleSize) {
		recs = append(recs, models.Recommendation{
			Type:     RecBundleOptimization,
			Priority: models.PriorityHigh,
			Message: fmt.Sprintf("Script bundles total %s, above the %s budget",
				formatBytes(float64(in.BundleBytes)), formatBytes(th.BundleSize)),
			Suggestions: []string{
				"Enable route-based code splitting",
				"Enable tree shaking to eliminate dead code",
				"Use dynamic imports for heavy components",
				"Optimize images and other static assets",
				"Audit dependencies and drop unused or oversized packages",
			},
		})
	}

	if st, ok := in.Snapshot.Get(thresholds.MetricPageLoad); ok && thresholds.Exceeds(st.Current, th.LoadTime) {
		recs = append(recs, models.Recommendation{
			Type:     RecLoadTimeOptimization,
			Priority: models.PriorityHigh,
			Message:  fmt.Sprintf("Page load time %.0fms exceeds the %.0fms target", st.Current, th.LoadTime),
			Suggestions: []string{
				"Lazy-load content below the fold",
				"Split code at the component level",
				"Enable gzip or brotli response compression",
				"Optimize the critical rendering path",
				"Serve repeat visits from a caching service worker",
			},
		})
	}

	if st, ok := in.Snapshot.Get(thresholds.MetricLCP); ok && thresholds.Exceeds(st.Current, th.LargestContentfulPaint) {
		recs = append(recs, models.Recommendation{
			Type:     RecLCPOptimization,
			Priority: models.PriorityMedium,
			Message:  fmt.Sprintf("Largest Contentful Paint %.0fms exceeds the %.0fms target", st.Current, th.LargestContentfulPaint),
			Suggestions: []string{
				"Optimize the largest visible element (image size, format, priority)",
				"Add preload and preconnect resource hints",
				"Reduce server response time",
				"Remove render-blocking scripts and stylesheets",
			},
		})
	}

	if st, ok := in.Snapshot.Get(thresholds.MetricCLS); ok && thresholds.Exceeds(st.Current, th.CumulativeLayoutShift) {
		recs = append(recs, models.Recommendation{
			Type:     RecCLSOptimization,
			Priority: models.PriorityMedium,
			Message:  fmt.Sprintf("Cumulative Layout Shift %.3f exceeds the %.3f target", st.Current, th.CumulativeLayoutShift),
			Suggestions: []string{
				"Set explicit width and height on images and embeds",
				"Avoid inserting content above existing content",
				"Use CSS containment for independently laid-out regions",
				"Reserve space for dynamically loaded content",
			},
		})
	}

	return recs
}

func formatBytes(b float64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MiB", b/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KiB", b/(1<<10))
	default:
		return fmt.Sprintf("%.0f B", b)
	}
}
