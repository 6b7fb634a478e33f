// Package thresholds defines the fixed performance targets the engine
// compares observations against.
package thresholds

// Metric names shared by the observers, the advisor and the report.
const (
	MetricLCP             = "lcp"
	MetricFID             = "fid"
	MetricCLS             = "cls"
	MetricPageLoad        = "page_load_time"
	MetricDOMInteractive  = "dom_interactive_time"
	MetricDOMComplete     = "dom_complete_time"
	MetricCSSLoadTime     = "css_load_time"
	MetricCSSSize         = "css_size"
	MetricFCP             = "fcp"
	bundleMetricPrefix    = "bundle_"
	bundleLoadTimeSuffix  = "_load_time"
	bundleSizeSuffix      = "_size"
)

// BundleLoadTimeMetric names the load-time series for a script classification.
func BundleLoadTimeMetric(kind string) string {
	return bundleMetricPrefix + kind + bundleLoadTimeSuffix
}

// BundleSizeMetric names the transfer-size series for a script classification.
func BundleSizeMetric(kind string) string {
	return bundleMetricPrefix + kind + bundleSizeSuffix
}

// Table is the read-only target configuration. Times are milliseconds,
// sizes are bytes, CLS is a unitless score.
type Table struct {
	BundleSize             float64 `json:"bundleSize" yaml:"bundle_size"`
	LoadTime               float64 `json:"loadTime" yaml:"load_time"`
	FirstContentfulPaint   float64 `json:"firstContentfulPaint" yaml:"first_contentful_paint"`
	LargestContentfulPaint float64 `json:"largestContentfulPaint" yaml:"largest_contentful_paint"`
	FirstInputDelay        float64 `json:"firstInputDelay" yaml:"first_input_delay"`
	CumulativeLayoutShift  float64 `json:"cumulativeLayoutShift" yaml:"cumulative_layout_shift"`
}

// Default returns the stock targets.
func Default() Table {
	return Table{
		BundleSize:             250 * 1024,
		LoadTime:               2000,
		FirstContentfulPaint:   1800,
		LargestContentfulPaint: 2500,
		FirstInputDelay:        100,
		CumulativeLayoutShift:  0.1,
	}
}

// Exceeds reports whether value breaches limit. The boundary is exclusive:
// a value equal to its limit is not a breach.
func Exceeds(value, limit float64) bool {
	return value > limit
}
