// Package host models the runtime that pagepulse observes: the push-based
// timing streams, the document's script elements, and named cache storage.
//
// Every capability beyond Host itself is optional. Consumers discover them
// with a type assertion and must keep working when one is missing.
package host

import (
	"context"
	"errors"

	"github.com/vesaa/pagepulse/internal/models"
)

// ErrUnsupported is returned when a host lacks a requested capability.
var ErrUnsupported = errors.New("host capability not supported")

// VitalKind is the entryType of a web-vitals entry.
type VitalKind string

const (
	KindLCP         VitalKind = "largest-contentful-paint"
	KindFirstInput  VitalKind = "first-input"
	KindLayoutShift VitalKind = "layout-shift"
	KindPaint       VitalKind = "paint"
)

// PaintFCP is the Name of the first-contentful-paint paint entry.
const PaintFCP = "first-contentful-paint"

// VitalEntry is one core web-vitals timing entry. Times are milliseconds
// relative to navigation start.
type VitalEntry struct {
	EntryType       VitalKind `json:"entryType"`
	Name            string    `json:"name,omitempty"`
	StartTime       float64   `json:"startTime"`
	RenderTime      float64   `json:"renderTime,omitempty"`
	LoadTime        float64   `json:"loadTime,omitempty"`
	ProcessingStart float64   `json:"processingStart,omitempty"`
	Value           float64   `json:"value,omitempty"`
	HadRecentInput  bool      `json:"hadRecentInput,omitempty"`
}

// ResourceEntry is one sub-resource load.
type ResourceEntry struct {
	Name          string  `json:"name"` // resource URL
	InitiatorType string  `json:"initiatorType,omitempty"`
	StartTime     float64 `json:"startTime"`
	ResponseEnd   float64 `json:"responseEnd"`
	TransferSize  int64   `json:"transferSize"`
}

// Duration is responseEnd - startTime.
func (r ResourceEntry) Duration() float64 {
	return r.ResponseEnd - r.StartTime
}

// NavigationEntry is the single full-page navigation timing entry.
type NavigationEntry struct {
	StartTime      float64 `json:"startTime"`
	DOMInteractive float64 `json:"domInteractive"`
	DOMComplete    float64 `json:"domComplete"`
	LoadEventEnd   float64 `json:"loadEventEnd"`
}

// ScriptElement is a <script> element present in the document.
type ScriptElement struct {
	Src   string `json:"src"`
	Async bool   `json:"async,omitempty"`
	Defer bool   `json:"defer,omitempty"`
}

// Subscription is a long-lived observer registration.
type Subscription interface {
	// Dispose stops delivery. Safe to call more than once.
	Dispose()
}

// Host is the minimum every runtime provides.
type Host interface {
	Environment() models.Environment
}

// VitalsObservable delivers web-vitals entries in batches.
type VitalsObservable interface {
	ObserveVitals(fn func([]VitalEntry)) (Subscription, error)
}

// ResourceObservable delivers resource entries in batches.
type ResourceObservable interface {
	ObserveResources(fn func([]ResourceEntry)) (Subscription, error)
}

// LoadObservable signals the full-page load event and exposes the
// navigation entry afterwards.
type LoadObservable interface {
	OnLoad(fn func()) (Subscription, error)
	Navigation() (NavigationEntry, bool)
}

// Document exposes the script elements and their resource timings.
type Document interface {
	Scripts() []ScriptElement
	ResourceTiming(url string) (ResourceEntry, bool)
}

// CacheStorage enumerates named caches.
type CacheStorage interface {
	Keys(ctx context.Context) ([]string, error)
	Requests(ctx context.Context, name string) ([]string, error)
}

// CacheWriter is implemented by cache storages that accept writes.
type CacheWriter interface {
	Put(ctx context.Context, name, request string) error
}

// CacheProvider is implemented by hosts that offer cache storage.
type CacheProvider interface {
	CacheStorage() (CacheStorage, bool)
}
