// Package models defines the payloads pagepulse pushes to its backend and
// the GORM records the sink persists them as.
package models

import (
	"time"

	"github.com/vesaa/pagepulse/internal/metrics"
)

// Alert types raised on the immediate path.
const (
	AlertSlowPageLoad   = "slow_page_load"
	AlertSlowBundleLoad = "slow_bundle_load"
	AlertLargeBundle    = "large_bundle"
	AlertSlowCSSLoad    = "slow_css_load"
	AlertPoorLCP        = "poor_lcp"
	AlertPoorFID        = "poor_fid"
	AlertPoorCLS        = "poor_cls"
	AlertSlowFCP        = "slow_fcp"
)

// Priority ranks a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Grade is the coarse health letter of a report.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Environment describes where an observation was made.
type Environment struct {
	URL            string `json:"url"`
	UserAgent      string `json:"userAgentString"`
	ConnectionType string `json:"connectionType"`
}

// Alert is created at the moment of a threshold breach and handed straight
// to the dispatcher; it is never stored by the engine.
type Alert struct {
	Type           string `json:"type"`
	Data           any    `json:"data"`
	Timestamp      string `json:"timestamp"` // RFC 3339 / ISO-8601, UTC
	URL            string `json:"url"`
	UserAgent      string `json:"userAgentString"`
	ConnectionType string `json:"connectionType"`
}

// Breach is the Data carried by threshold alerts.
type Breach struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Unit      string  `json:"unit,omitempty"`
	Resource  string  `json:"resource,omitempty"`
}

// NewAlert stamps an alert with the current time and environment.
func NewAlert(alertType string, data any, env Environment, now time.Time) Alert {
	return Alert{
		Type:           alertType,
		Data:           data,
		Timestamp:      now.UTC().Format(time.RFC3339Nano),
		URL:            env.URL,
		UserAgent:      env.UserAgent,
		ConnectionType: env.ConnectionType,
	}
}

// Recommendation is a derived, prioritized optimization hint.
type Recommendation struct {
	Type        string   `json:"type" yaml:"type"`
	Priority    Priority `json:"priority" yaml:"priority"`
	Message     string   `json:"message" yaml:"message"`
	Suggestions []string `json:"suggestions" yaml:"suggestions"`
}

// Report is the periodic aggregate built fresh every reporting cycle.
type Report struct {
	Timestamp       string                   `json:"timestamp"`
	Metrics         map[string]metrics.Stats `json:"metrics"`
	Recommendations []Recommendation         `json:"recommendations"`
	Grade           Grade                    `json:"grade"`
	Score           int                      `json:"score"`
}

// BundleDescriptor describes one loaded script resource.
type BundleDescriptor struct {
	Name      string `json:"name" yaml:"name"`
	SourceURL string `json:"sourceURL" yaml:"source_url"`
	Async     bool   `json:"async" yaml:"async"`
	Defer     bool   `json:"defer" yaml:"defer"`
	Size      int64  `json:"size" yaml:"size"`
}

// CacheInfo lists the request keys stored in one named cache.
type CacheInfo struct {
	Name     string   `json:"name" yaml:"name"`
	Requests []string `json:"requests" yaml:"requests"`
	Count    int      `json:"count" yaml:"count"`
}
