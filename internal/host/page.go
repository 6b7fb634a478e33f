package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/vesaa/pagepulse/internal/models"
)

// Capability names an optional Page stream, used to build hosts that lack it.
type Capability string

const (
	CapVitals    Capability = "vitals"
	CapResources Capability = "resources"
	CapLoad      Capability = "load"
)

// hub fans batches out to subscribers on the emitting goroutine.
type hub[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func([]T)
}

func (h *hub[T]) subscribe(fn func([]T)) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func([]T))
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return &subscription{dispose: func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}}
}

func (h *hub[T]) publish(batch []T) {
	if len(batch) == 0 {
		return
	}
	h.mu.Lock()
	fns := make([]func([]T), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(batch)
	}
}

type subscription struct {
	once    sync.Once
	dispose func()
}

func (s *subscription) Dispose() {
	s.once.Do(s.dispose)
}

// Page is an in-memory host. Producers (tests, the trace replayer, the
// websocket feed) push entries in; observers receive them synchronously.
type Page struct {
	mu       sync.RWMutex
	env      models.Environment
	missing  map[Capability]bool
	nav      *NavigationEntry
	loaded   bool
	scripts  []ScriptElement
	timings  map[string]ResourceEntry
	caches   CacheStorage
	vitals   hub[VitalEntry]
	resource hub[ResourceEntry]
	load     hub[struct{}]
}

// PageOption configures a Page.
type PageOption func(*Page)

// WithEnvironment sets the page environment.
func WithEnvironment(env models.Environment) PageOption {
	return func(p *Page) { p.env = env }
}

// WithCaches attaches cache storage.
func WithCaches(cs CacheStorage) PageOption {
	return func(p *Page) { p.caches = cs }
}

// Without removes capabilities; their Observe calls return ErrUnsupported.
func Without(caps ...Capability) PageOption {
	return func(p *Page) {
		for _, c := range caps {
			p.missing[c] = true
		}
	}
}

// NewPage creates an empty in-memory page.
func NewPage(opts ...PageOption) *Page {
	p := &Page{
		missing: make(map[Capability]bool),
		timings: make(map[string]ResourceEntry),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Environment implements Host.
func (p *Page) Environment() models.Environment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.env
}

// SetEnvironment replaces the page environment.
func (p *Page) SetEnvironment(env models.Environment) {
	p.mu.Lock()
	p.env = env
	p.mu.Unlock()
}

// ObserveVitals implements VitalsObservable.
func (p *Page) ObserveVitals(fn func([]VitalEntry)) (Subscription, error) {
	if p.missing[CapVitals] {
		return nil, fmt.Errorf("observe vitals: %w", ErrUnsupported)
	}
	return p.vitals.subscribe(fn), nil
}

// ObserveResources implements ResourceObservable.
func (p *Page) ObserveResources(fn func([]ResourceEntry)) (Subscription, error) {
	if p.missing[CapResources] {
		return nil, fmt.Errorf("observe resources: %w", ErrUnsupported)
	}
	return p.resource.subscribe(fn), nil
}

// OnLoad implements LoadObservable. If the page already loaded, fn runs
// on its own goroutine right away.
func (p *Page) OnLoad(fn func()) (Subscription, error) {
	if p.missing[CapLoad] {
		return nil, fmt.Errorf("observe load: %w", ErrUnsupported)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		go fn()
		return &subscription{dispose: func() {}}, nil
	}
	return p.load.subscribe(func([]struct{}) { fn() }), nil
}

// Navigation implements LoadObservable.
func (p *Page) Navigation() (NavigationEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.nav == nil {
		return NavigationEntry{}, false
	}
	return *p.nav, true
}

// Scripts implements Document.
func (p *Page) Scripts() []ScriptElement {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ScriptElement(nil), p.scripts...)
}

// ResourceTiming implements Document.
func (p *Page) ResourceTiming(url string) (ResourceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.timings[url]
	return e, ok
}

// CacheStorage implements CacheProvider.
func (p *Page) CacheStorage() (CacheStorage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.caches, p.caches != nil
}

// AttachCaches replaces the page's cache storage.
func (p *Page) AttachCaches(cs CacheStorage) {
	p.mu.Lock()
	p.caches = cs
	p.mu.Unlock()
}

// EmitVitals pushes one observation batch of web-vitals entries.
func (p *Page) EmitVitals(entries ...VitalEntry) {
	p.vitals.publish(entries)
}

// EmitResources records resource timings and pushes them to observers.
func (p *Page) EmitResources(entries ...ResourceEntry) {
	p.mu.Lock()
	for _, e := range entries {
		p.timings[e.Name] = e
	}
	p.mu.Unlock()
	p.resource.publish(entries)
}

// FireLoad stores the navigation entry and signals the load event.
func (p *Page) FireLoad(nav NavigationEntry) {
	p.mu.Lock()
	p.nav = &nav
	p.loaded = true
	p.mu.Unlock()
	p.load.publish([]struct{}{{}})
}

// AddScripts appends script elements to the document.
func (p *Page) AddScripts(scripts ...ScriptElement) {
	p.mu.Lock()
	p.scripts = append(p.scripts, scripts...)
	p.mu.Unlock()
}

// Apply routes a trace or feed event to the matching emitter.
func (p *Page) Apply(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventVitals:
		p.EmitVitals(ev.Vitals...)
	case EventResources:
		p.EmitResources(ev.Resources...)
	case EventNavigation:
		if ev.Navigation == nil {
			return fmt.Errorf("navigation event without entry")
		}
		p.FireLoad(*ev.Navigation)
	case EventScripts:
		p.AddScripts(ev.Scripts...)
	case EventEnvironment:
		if ev.Environment != nil {
			p.SetEnvironment(*ev.Environment)
		}
	case EventCache:
		cs, ok := p.CacheStorage()
		if !ok {
			return fmt.Errorf("cache event: %w", ErrUnsupported)
		}
		w, ok := cs.(CacheWriter)
		if !ok {
			return fmt.Errorf("cache event: storage is read-only: %w", ErrUnsupported)
		}
		for _, req := range ev.Requests {
			if err := w.Put(ctx, ev.Cache, req); err != nil {
				return fmt.Errorf("cache put %s: %w", ev.Cache, err)
			}
		}
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return nil
}
