// Package metrics holds the bounded-history metric store.
// Every metric name maps to a FIFO series of at most Capacity samples; the
// oldest sample is evicted when a new one arrives at capacity.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultCapacity is the per-series sample limit.
const DefaultCapacity = 100

// Sample is one timestamped observation.
type Sample struct {
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Timestamp int64   `json:"timestamp"` // epoch milliseconds
}

// Stats summarises the retained window of a single series.
type Stats struct {
	Current     float64 `json:"current"`
	Average     float64 `json:"average"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Unit        string  `json:"unit"`
	SampleCount int     `json:"sampleCount"`
}

// Snapshot maps metric name → statistics at the time it was taken.
type Snapshot map[string]Stats

// Get returns the stats for name; ok is false when the series has no samples.
func (s Snapshot) Get(name string) (Stats, bool) {
	st, ok := s[name]
	if !ok || st.SampleCount == 0 {
		return Stats{}, false
	}
	return st, true
}

// Names returns the metric names in lexical order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// series is a fixed-capacity ring of samples.
type series struct {
	samples []Sample
	head    int // index where the next write goes once full
}

func (s *series) append(sm Sample, capacity int) {
	if len(s.samples) < capacity {
		s.samples = append(s.samples, sm)
		return
	}
	s.samples[s.head] = sm
	s.head = (s.head + 1) % capacity
}

// ordered returns samples oldest → newest.
func (s *series) ordered() []Sample {
	out := make([]Sample, 0, len(s.samples))
	out = append(out, s.samples[s.head:]...)
	out = append(out, s.samples[:s.head]...)
	return out
}

func (s *series) latest() (Sample, bool) {
	n := len(s.samples)
	if n == 0 {
		return Sample{}, false
	}
	// head stays 0 until the ring fills, so this covers both phases.
	return s.samples[(s.head+n-1)%n], true
}

// Store is the per-name series table. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	series   map[string]*series
	capacity int
	now      func() time.Time
}

// NewStore creates a store with DefaultCapacity samples per series.
func NewStore() *Store {
	return NewStoreWithCapacity(DefaultCapacity)
}

// NewStoreWithCapacity creates a store with a custom per-series limit.
// Non-positive capacities fall back to DefaultCapacity.
func NewStoreWithCapacity(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		series:   make(map[string]*series),
		capacity: capacity,
		now:      time.Now,
	}
}

// Record appends a sample to the named series, creating it on first write.
func (st *Store) Record(name string, value float64, unit string) {
	sm := Sample{Value: value, Unit: unit, Timestamp: st.now().UnixMilli()}

	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.series[name]
	if !ok {
		s = &series{samples: make([]Sample, 0, st.capacity)}
		st.series[name] = s
	}
	s.append(sm, st.capacity)
}

// Latest returns the most recent value of name.
func (st *Store) Latest(name string) (float64, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.series[name]
	if !ok {
		return 0, false
	}
	sm, ok := s.latest()
	return sm.Value, ok
}

// Series returns a copy of the retained samples for name, oldest first.
func (st *Store) Series(name string) []Sample {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.series[name]
	if !ok {
		return nil
	}
	return s.ordered()
}

// Snapshot computes statistics over every retained window.
func (st *Store) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()

	snap := make(Snapshot, len(st.series))
	for name, s := range st.series {
		samples := s.ordered()
		if len(samples) == 0 {
			continue
		}
		snap[name] = summarize(samples)
	}
	return snap
}

func summarize(samples []Sample) Stats {
	last := samples[len(samples)-1]
	out := Stats{
		Current:     last.Value,
		Min:         samples[0].Value,
		Max:         samples[0].Value,
		Unit:        last.Unit,
		SampleCount: len(samples),
	}
	var sum float64
	for _, sm := range samples {
		sum += sm.Value
		if sm.Value < out.Min {
			out.Min = sm.Value
		}
		if sm.Value > out.Max {
			out.Max = sm.Value
		}
	}
	out.Average = sum / float64(len(samples))
	return out
}
