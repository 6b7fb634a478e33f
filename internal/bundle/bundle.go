// Package bundle inspects the scripts a document has loaded: it sums their
// transfer sizes and checks whether content-hashed chunks are present,
// which is taken as evidence that code splitting is in effect.
package bundle

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/vesaa/pagepulse/internal/host"
	"github.com/vesaa/pagepulse/internal/models"
	"github.com/vesaa/pagepulse/internal/thresholds"
)

// Recommendation types emitted by the analyzer.
const (
	RecImplementCodeSplitting = "implement_code_splitting"
	RecReduceBundleSize       = "reduce_bundle_size"
)

// chunkPattern matches content-hash chunk names like "2.9f8e7d6c.chunk.js".
var chunkPattern = regexp.MustCompile(`\.[0-9a-f]{8,}\.chunk\.js$`)

// Options configures an analysis run.
type Options struct {
	// ScriptPath is the build-output path scripts must live under.
	ScriptPath string
	Thresholds thresholds.Table
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{ScriptPath: "/static/js/", Thresholds: thresholds.Default()}
}

// Analysis is the result of one run. It is computed on demand and never cached.
type Analysis struct {
	Bundles         []models.BundleDescriptor `json:"bundles" yaml:"bundles"`
	TotalSize       int64                     `json:"totalSize" yaml:"total_size"`
	Measured        bool                      `json:"measured" yaml:"measured"`
	CodeSplitting   bool                      `json:"codeSplitting" yaml:"code_splitting"`
	Recommendations []models.Recommendation   `json:"recommendations" yaml:"recommendations"`
}

// Analyze enumerates the document's build-output scripts and looks up each
// one's resource timing to estimate the total transfer size. Measured is
// true when at least one script had a timing entry.
func Analyze(doc host.Document, opts Options) Analysis {
	if opts.ScriptPath == "" {
		opts.ScriptPath = DefaultOptions().ScriptPath
	}

	var a Analysis
	for _, s := range doc.Scripts() {
		p := scriptPath(s.Src)
		if !strings.Contains(p, opts.ScriptPath) {
			continue
		}
		d := models.BundleDescriptor{
			Name:      path.Base(p),
			SourceURL: s.Src,
			Async:     s.Async,
			Defer:     s.Defer,
		}
		if e, ok := doc.ResourceTiming(s.Src); ok {
			d.Size = e.TransferSize
			a.TotalSize += e.TransferSize
			a.Measured = true
		}
		a.Bundles = append(a.Bundles, d)
	}

	names := make([]string, len(a.Bundles))
	for i, b := range a.Bundles {
		names[i] = b.Name
	}
	a.CodeSplitting = HasChunks(names)
	a.Recommendations = recommendations(a.CodeSplitting, a.TotalSize, opts.Thresholds)
	return a
}

// AnalyzeNames runs the code-splitting check over bare script names, with
// an optional known total size (pass a negative size when unknown).
func AnalyzeNames(names []string, totalSize int64, opts Options) Analysis {
	a := Analysis{CodeSplitting: HasChunks(names)}
	for _, n := range names {
		a.Bundles = append(a.Bundles, models.BundleDescriptor{Name: path.Base(scriptPath(n)), SourceURL: n})
	}
	if totalSize >= 0 {
		a.TotalSize = totalSize
		a.Measured = true
	}
	a.Recommendations = recommendations(a.CodeSplitting, a.TotalSize, opts.Thresholds)
	return a
}

// HasChunks reports whether any name matches the content-hash chunk pattern.
func HasChunks(names []string) bool {
	for _, n := range names {
		if chunkPattern.MatchString(scriptPath(n)) {
			return true
		}
	}
	return false
}

func recommendations(splitting bool, total int64, th thresholds.Table) []models.Recommendation {
	var recs []models.Recommendation
	if !splitting {
		recs = append(recs, models.Recommendation{
			Type:     RecImplementCodeSplitting,
			Priority: models.PriorityHigh,
			Message:  "No content-hashed chunks are loaded; the application ships as a single bundle",
			Suggestions: []string{
				"Split routes into separately loaded chunks",
				"Load heavy components on demand",
				"Move third-party code into a vendor chunk",
			},
		})
	}
	if th.BundleSize > 0 && thresholds.Exceeds(float64(total), th.BundleSize) {
		recs = append(recs, models.Recommendation{
			Type:     RecReduceBundleSize,
			Priority: models.PriorityHigh,
			Message:  fmt.Sprintf("Loaded scripts total %d bytes, above the %.0f byte budget", total, th.BundleSize),
			Suggestions: []string{
				"Remove unused dependencies",
				"Enable minification and tree shaking",
				"Defer non-critical scripts",
			},
		})
	}
	return recs
}

// scriptPath strips scheme, host, query and fragment.
func scriptPath(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return u.Path
	}
	return raw
}
