// Package dispatch pushes alerts and reports to the backend.
// Every send is fire-and-forget: it runs on its own goroutine, failures are
// logged as warnings and dropped, and nothing is retried.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vesaa/pagepulse/internal/models"
)

// Backend paths.
const (
	AlertPath  = "/api/performance/alert"
	ReportPath = "/api/performance/report"
)

// SessionHeader carries the per-client session id on every request.
const SessionHeader = "X-Pulse-Session"

var dispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pagepulse",
	Subsystem: "dispatch",
	Name:      "total",
	Help:      "Payloads pushed to the backend by kind and result",
}, []string{"kind", "result"})

// Options configures a Client.
type Options struct {
	// Endpoint is the backend base URL, e.g. "http://127.0.0.1:8000".
	Endpoint string
	// Token, when set, is sent as "Authorization: Bearer <token>".
	Token string
	// Timeout bounds a single request. Default: 10s.
	Timeout time.Duration
	// CoalesceWindow suppresses repeat alerts of the same type inside the
	// window. Zero (the default) sends every alert.
	CoalesceWindow time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is the backend dispatcher. Safe for concurrent use.
type Client struct {
	endpoint string
	token    string
	session  string
	http     *http.Client
	logger   *slog.Logger
	window   time.Duration
	now      func() time.Time

	wg       sync.WaitGroup
	mu       sync.Mutex
	lastSent map[string]time.Time
}

// New creates a dispatcher with a fresh session id.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		token:    opts.Token,
		session:  uuid.NewString(),
		http:     hc,
		logger:   logger,
		window:   opts.CoalesceWindow,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Session returns the id sent in SessionHeader.
func (c *Client) Session() string {
	return c.session
}

// SendAlert posts an alert in the background.
func (c *Client) SendAlert(a models.Alert) {
	if c.coalesced(a.Type) {
		dispatched.WithLabelValues("alert", "coalesced").Inc()
		return
	}
	c.spawn("alert", c.endpoint+AlertPath, a)
}

// SendReport posts a report in the background.
func (c *Client) SendReport(r models.Report) {
	c.spawn("report", c.endpoint+ReportPath, r)
}

// Wait blocks until every in-flight send has finished.
func (c *Client) Wait() {
	c.wg.Wait()
}

// coalesced reports whether an alert of this type already went out inside
// the window. The first alert in each window always goes out.
func (c *Client) coalesced(alertType string) bool {
	if c.window <= 0 {
		return false
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastSent[alertType]; ok && now.Sub(last) < c.window {
		return true
	}
	c.lastSent[alertType] = now
	return false
}

func (c *Client) spawn(kind, url string, v any) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Warn("dispatch panicked", slog.String("kind", kind), slog.Any("panic", r))
				dispatched.WithLabelValues(kind, "error").Inc()
			}
		}()

		if err := c.postJSON(context.Background(), url, v); err != nil {
			c.logger.Warn("performance "+kind+" not delivered", slog.String("url", url), slog.String("error", err.Error()))
			dispatched.WithLabelValues(kind, "error").Inc()
			return
		}
		dispatched.WithLabelValues(kind, "ok").Inc()
	}()
}

// postJSON sends v as JSON via HTTP POST, with the bearer token and session
// headers when configured.
func (c *Client) postJSON(ctx context.Context, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SessionHeader, c.session)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("backend rejected token (401)")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}
