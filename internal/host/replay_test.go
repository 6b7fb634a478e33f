package host

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTrace = `# recorded trace
{"kind":"environment","environment":{"url":"https://app.example/","userAgentString":"UA","connectionType":"4g"}}
{"kind":"scripts","scripts":[{"src":"/static/js/main.js"}]}
not json
{"kind":"resources","resources":[{"name":"/static/js/main.js","startTime":5,"responseEnd":80,"transferSize":2048}]}

{"kind":"navigation","navigation":{"startTime":0,"domInteractive":700,"domComplete":1400,"loadEventEnd":1600}}`

type recorder struct {
	mu        sync.Mutex
	resources []ResourceEntry
	vitals    []VitalEntry
}

func (r *recorder) onResources(b []ResourceEntry) {
	r.mu.Lock()
	r.resources = append(r.resources, b...)
	r.mu.Unlock()
}

func (r *recorder) onVitals(b []VitalEntry) {
	r.mu.Lock()
	r.vitals = append(r.vitals, b...)
	r.mu.Unlock()
}

func (r *recorder) vitalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.vitals)
}

func TestReplayAppliesTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sampleTrace), 0o644))

	p := NewPage()
	rec := &recorder{}
	_, err := p.ObserveResources(rec.onResources)
	require.NoError(t, err)

	r := &Replayer{Path: path}
	require.NoError(t, r.Run(context.Background(), p))

	assert.Equal(t, "https://app.example/", p.Environment().URL)
	assert.Len(t, p.Scripts(), 1)
	require.Len(t, rec.resources, 1)
	nav, ok := p.Navigation()
	require.True(t, ok, "last line without trailing newline is still applied")
	assert.Equal(t, 1600.0, nav.LoadEventEnd)
}

func TestReplayMissingFile(t *testing.T) {
	r := &Replayer{Path: filepath.Join(t.TempDir(), "absent.jsonl")}
	assert.Error(t, r.Run(context.Background(), NewPage()))
}

func TestReplayFollowPicksUpAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	p := NewPage()
	rec := &recorder{}
	_, err := p.ObserveVitals(rec.onVitals)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (&Replayer{Path: path, Follow: true}).Run(ctx, p) }()

	// Give the watcher a moment to register before appending.
	time.Sleep(50 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"kind":"vitals","vitals":[{"entryType":"largest-contentful-paint","startTime":2100}]}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool { return rec.vitalCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("replayer did not stop after cancel")
	}
}

func TestFeedStreamsEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"vitals","vitals":[{"entryType":"first-input","startTime":100,"processingStart":130}]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	p := NewPage()
	rec := &recorder{}
	_, err := p.ObserveVitals(rec.onVitals)
	require.NoError(t, err)

	feed := &Feed{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	require.NoError(t, feed.Run(context.Background(), p))
	assert.Equal(t, 1, rec.vitalCount())
}

func TestFeedDialFailure(t *testing.T) {
	feed := &Feed{URL: "ws://127.0.0.1:1/nothing"}
	assert.Error(t, feed.Run(context.Background(), NewPage()))
}
