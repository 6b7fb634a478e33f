package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/pagepulse/internal/models"
)

func TestPageDeliversBatches(t *testing.T) {
	p := NewPage()
	var got [][]VitalEntry
	sub, err := p.ObserveVitals(func(b []VitalEntry) { got = append(got, b) })
	require.NoError(t, err)

	p.EmitVitals(VitalEntry{EntryType: KindLCP, StartTime: 900}, VitalEntry{EntryType: KindLCP, StartTime: 1200})
	require.Len(t, got, 1)
	assert.Len(t, got[0], 2)

	sub.Dispose()
	sub.Dispose()
	p.EmitVitals(VitalEntry{EntryType: KindLCP, StartTime: 1})
	assert.Len(t, got, 1, "disposed subscription must not receive batches")
}

func TestPageResourceTimingIndexed(t *testing.T) {
	p := NewPage()
	p.EmitResources(ResourceEntry{Name: "/static/js/main.js", StartTime: 10, ResponseEnd: 60, TransferSize: 1024})

	e, ok := p.ResourceTiming("/static/js/main.js")
	require.True(t, ok)
	assert.Equal(t, 50.0, e.Duration())
	_, ok = p.ResourceTiming("/nope.js")
	assert.False(t, ok)
}

func TestPageWithoutCapability(t *testing.T) {
	p := NewPage(Without(CapVitals, CapLoad))

	_, err := p.ObserveVitals(func([]VitalEntry) {})
	assert.True(t, errors.Is(err, ErrUnsupported))
	_, err = p.OnLoad(func() {})
	assert.True(t, errors.Is(err, ErrUnsupported))
	_, err = p.ObserveResources(func([]ResourceEntry) {})
	assert.NoError(t, err)
}

func TestOnLoadAfterLoadFiresOnce(t *testing.T) {
	p := NewPage()
	p.FireLoad(NavigationEntry{LoadEventEnd: 1500})

	var calls atomic.Int32
	_, err := p.OnLoad(func() { calls.Add(1) })
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	nav, ok := p.Navigation()
	require.True(t, ok)
	assert.Equal(t, 1500.0, nav.LoadEventEnd)
}

func TestApplyCacheEventNeedsStorage(t *testing.T) {
	ctx := context.Background()
	p := NewPage()
	err := p.Apply(ctx, Event{Kind: EventCache, Cache: "static", Requests: []string{"/a"}})
	assert.True(t, errors.Is(err, ErrUnsupported))

	caches := NewMemoryCaches()
	p = NewPage(WithCaches(caches))
	require.NoError(t, p.Apply(ctx, Event{Kind: EventCache, Cache: "static", Requests: []string{"/b", "/a", "/a"}}))
	reqs, err := caches.Requests(ctx, "static")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, reqs)
}

func TestAttachCachesLater(t *testing.T) {
	p := NewPage()
	_, ok := p.CacheStorage()
	assert.False(t, ok)

	p.AttachCaches(NewMemoryCaches())
	require.NoError(t, p.Apply(context.Background(), Event{Kind: EventCache, Cache: "v1", Requests: []string{"/"}}))
	cs, ok := p.CacheStorage()
	require.True(t, ok)
	names, err := cs.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, names)
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	err := NewPage().Apply(context.Background(), Event{Kind: "bogus"})
	assert.Error(t, err)
}

func TestApplyEnvironment(t *testing.T) {
	p := NewPage()
	env := models.Environment{URL: "https://app.example/", UserAgent: "UA", ConnectionType: "4g"}
	require.NoError(t, p.Apply(context.Background(), Event{Kind: EventEnvironment, Environment: &env}))
	assert.Equal(t, env, p.Environment())
}

func TestOpenBuildDir(t *testing.T) {
	root := t.TempDir()
	js := filepath.Join(root, "static", "js")
	require.NoError(t, os.MkdirAll(js, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(js, "main.1a2b3c4d.js"), make([]byte, 300), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(js, "2.9f8e7d6c.chunk.js"), make([]byte, 200), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(js, "notes.txt"), []byte("x"), 0o644))

	b, err := OpenBuildDir(root)
	require.NoError(t, err)
	scripts := b.Scripts()
	require.Len(t, scripts, 2)
	assert.Equal(t, "/static/js/2.9f8e7d6c.chunk.js", scripts[0].Src)

	e, ok := b.ResourceTiming("/static/js/main.1a2b3c4d.js")
	require.True(t, ok)
	assert.EqualValues(t, 300, e.TransferSize)
}

func TestClassifyInterface(t *testing.T) {
	assert.Equal(t, ConnectionWifi, classifyInterface("wlan0"))
	assert.Equal(t, ConnectionEthernet, classifyInterface("eth0"))
	assert.Equal(t, ConnectionEthernet, classifyInterface("en0"))
	assert.Equal(t, ConnectionCellular, classifyInterface("wwan0"))
	assert.Equal(t, ConnectionUnknown, classifyInterface("docker0"))
}
