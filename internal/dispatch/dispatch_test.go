package dispatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/pagepulse/internal/models"
)

type backend struct {
	mu      sync.Mutex
	paths   []string
	bodies  []map[string]any
	headers []http.Header
	status  int
}

func (b *backend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.paths = append(b.paths, r.URL.Path)
		b.bodies = append(b.bodies, body)
		b.headers = append(b.headers, r.Header.Clone())
		status := b.status
		b.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (b *backend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.paths)
}

func TestSendAlertPostsJSON(t *testing.T) {
	be := &backend{}
	srv := httptest.NewServer(be.handler())
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL + "/", Token: "secret"})
	env := models.Environment{URL: "https://app.example/", UserAgent: "UA", ConnectionType: "4g"}
	c.SendAlert(models.NewAlert(models.AlertSlowPageLoad, models.Breach{Metric: "page_load_time", Value: 2500, Threshold: 2000}, env, time.Now()))
	c.Wait()

	require.Equal(t, 1, be.count())
	assert.Equal(t, AlertPath, be.paths[0])
	body := be.bodies[0]
	assert.Equal(t, "slow_page_load", body["type"])
	assert.Equal(t, "https://app.example/", body["url"])
	assert.Equal(t, "UA", body["userAgentString"])
	assert.Equal(t, "4g", body["connectionType"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Equal(t, "Bearer secret", be.headers[0].Get("Authorization"))
	assert.Equal(t, c.Session(), be.headers[0].Get(SessionHeader))
}

func TestSendReportPath(t *testing.T) {
	be := &backend{}
	srv := httptest.NewServer(be.handler())
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL})
	c.SendReport(models.Report{Timestamp: "now", Grade: models.GradeA, Score: 100})
	c.Wait()

	require.Equal(t, 1, be.count())
	assert.Equal(t, ReportPath, be.paths[0])
	assert.Equal(t, "A", be.bodies[0]["grade"])
	assert.Empty(t, be.headers[0].Get("Authorization"))
}

func TestFailuresNeverReachCaller(t *testing.T) {
	// Nothing listens here: every send fails with a network error.
	c := New(Options{Endpoint: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	assert.NotPanics(t, func() {
		c.SendAlert(models.Alert{Type: models.AlertPoorLCP})
		c.SendReport(models.Report{})
		c.Wait()
	})

	be := &backend{status: http.StatusInternalServerError}
	srv := httptest.NewServer(be.handler())
	defer srv.Close()
	c = New(Options{Endpoint: srv.URL})
	c.SendAlert(models.Alert{Type: models.AlertPoorLCP})
	c.Wait()

	// A failed send does not stop later ones.
	be.mu.Lock()
	be.status = http.StatusOK
	be.mu.Unlock()
	c.SendAlert(models.Alert{Type: models.AlertPoorLCP})
	c.SendReport(models.Report{})
	c.Wait()
	assert.Equal(t, 3, be.count())
}

func TestSendDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL})
	start := time.Now()
	c.SendAlert(models.Alert{Type: models.AlertPoorCLS})
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	close(release)
	c.Wait()
}

func TestCoalesceWindow(t *testing.T) {
	be := &backend{}
	srv := httptest.NewServer(be.handler())
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL, CoalesceWindow: time.Minute})
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	c.SendAlert(models.Alert{Type: models.AlertLargeBundle})
	c.SendAlert(models.Alert{Type: models.AlertLargeBundle})
	c.SendAlert(models.Alert{Type: models.AlertSlowBundleLoad})
	now = now.Add(2 * time.Minute)
	c.SendAlert(models.Alert{Type: models.AlertLargeBundle})
	c.Wait()

	assert.Equal(t, 3, be.count())
}

func TestNoCoalescingByDefault(t *testing.T) {
	be := &backend{}
	srv := httptest.NewServer(be.handler())
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL})
	for i := 0; i < 5; i++ {
		c.SendAlert(models.Alert{Type: models.AlertLargeBundle})
	}
	c.Wait()
	assert.Equal(t, 5, be.count())
}
