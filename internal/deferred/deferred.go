// Package deferred wraps slow component factories behind a fallback
// placeholder. A Lazy renders its fallback until the factory settles and
// the real component afterwards.
package deferred

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultPreloadDelay is how long Optimized waits before warming a loader.
const DefaultPreloadDelay = 100 * time.Millisecond

// ErrNoComponent is returned when a loader succeeds without a component.
var ErrNoComponent = errors.New("deferred: loader returned no component")

// Component is anything that can render itself.
type Component interface {
	Render() string
}

// ComponentFunc adapts a plain function to Component.
type ComponentFunc func() string

// Render implements Component.
func (f ComponentFunc) Render() string { return f() }

// Loader produces the real component. It is invoked at most once per Lazy
// at a time; the context passed in is never cancelled by Lazy.
type Loader func(ctx context.Context) (Component, error)

// Spinner is the full-viewport placeholder used by Route.
var Spinner Component = ComponentFunc(func() string {
	return `<div class="route-loading" style="display:flex;align-items:center;justify-content:center;min-height:100vh"><div class="spinner" role="status" aria-label="Loading"></div></div>`
})

// Lazy is a Component backed by a Loader.
type Lazy struct {
	loader   Loader
	fallback Component
	group    singleflight.Group

	mu      sync.Mutex
	settled bool
	comp    Component
	err     error
}

// New wraps loader with fallback. A nil fallback renders as empty.
func New(loader Loader, fallback Component) *Lazy {
	if fallback == nil {
		fallback = ComponentFunc(func() string { return "" })
	}
	return &Lazy{loader: loader, fallback: fallback}
}

// Route wraps loader with the full-viewport Spinner.
func Route(loader Loader) *Lazy {
	return New(loader, Spinner)
}

// Optimized wraps loader with fallback and, when preload reports true at
// construction, starts loading after delay without waiting for a Render.
func Optimized(loader Loader, fallback Component, preload func() bool, delay time.Duration) *Lazy {
	l := New(loader, fallback)
	if delay <= 0 {
		delay = DefaultPreloadDelay
	}
	if preload != nil && preload() {
		time.AfterFunc(delay, l.Preload)
	}
	return l
}

// Render implements Component. The first call starts the load; until it
// settles successfully the fallback is rendered.
func (l *Lazy) Render() string {
	l.mu.Lock()
	settled, comp := l.settled, l.comp
	l.mu.Unlock()

	if settled && comp != nil {
		return comp.Render()
	}
	if !settled {
		l.Preload()
	}
	return l.fallback.Render()
}

// Preload starts the load in the background if it is not already running.
func (l *Lazy) Preload() {
	l.group.DoChan("load", l.load)
}

// Wait blocks until the load settles or ctx is done. Giving up on ctx does
// not abort the load; a later Wait or Render picks up its result.
func (l *Lazy) Wait(ctx context.Context) (Component, error) {
	ch := l.group.DoChan("load", l.load)
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Component), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err reports the loader's error once it has failed.
func (l *Lazy) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Ready reports whether the real component is available.
func (l *Lazy) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settled && l.comp != nil
}

func (l *Lazy) load() (any, error) {
	l.mu.Lock()
	if l.settled {
		comp, err := l.comp, l.err
		l.mu.Unlock()
		return comp, err
	}
	l.mu.Unlock()

	comp, err := l.loader(context.Background())
	if err == nil && comp == nil {
		err = ErrNoComponent
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.settled = true
	l.comp, l.err = comp, err
	return comp, err
}
