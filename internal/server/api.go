package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vesaa/pagepulse/internal/dispatch"
	"github.com/vesaa/pagepulse/internal/models"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
)

var ingested = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pagepulse",
	Subsystem: "sink",
	Name:      "ingested_total",
	Help:      "Payloads accepted by the sink by kind",
}, []string{"kind"})

// Server wires HTTP routes to a Store.
type Server struct {
	store  *Store
	token  string
	logger *slog.Logger
}

// New creates a server. token, when non-empty, is required on ingest routes.
func New(store *Store, token string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, token: token, logger: logger}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware)
	s.Register(r)
	return r
}

// Register wires the routes on r.
//
//	Ingest (token):  POST /api/performance/alert, POST /api/performance/report
//	Query:           GET  /api/performance/alerts, GET /api/performance/reports/latest
//	Ops:             GET  /healthz, GET /metrics
func (s *Server) Register(r *gin.Engine) {
	ingest := r.Group("/", IngestTokenMiddleware(s.token))
	{
		ingest.POST(dispatch.AlertPath, s.handleAlert)
		ingest.POST(dispatch.ReportPath, s.handleReport)
	}

	query := r.Group("/api/performance")
	{
		query.GET("/alerts", s.handleAlerts)
		query.GET("/reports/latest", s.handleLatestReport)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// ── Handlers ──────────────────────────────────────────────────────────────────

func (s *Server) handleAlert(c *gin.Context) {
	var a models.Alert
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if a.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alert type required"})
		return
	}
	rec, err := s.store.SaveAlert(a, c.GetHeader(dispatch.SessionHeader))
	if err != nil {
		s.logger.Error("saving alert failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ingested.WithLabelValues("alert").Inc()
	s.logger.Info("alert received", slog.String("type", a.Type), slog.String("url", a.URL))
	c.JSON(http.StatusOK, gin.H{"id": rec.ID})
}

func (s *Server) handleReport(c *gin.Context) {
	var r models.Report
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch r.Grade {
	case models.GradeA, models.GradeB, models.GradeC, models.GradeD, models.GradeF:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "grade must be one of A, B, C, D, F"})
		return
	}
	rec, err := s.store.SaveReport(r, c.GetHeader(dispatch.SessionHeader))
	if err != nil {
		s.logger.Error("saving report failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ingested.WithLabelValues("report").Inc()
	s.logger.Info("report received",
		slog.String("grade", string(r.Grade)),
		slog.Int("score", r.Score),
		slog.Int("metrics", len(r.Metrics)))
	c.JSON(http.StatusOK, gin.H{"id": rec.ID})
}

func (s *Server) handleAlerts(c *gin.Context) {
	limit := defaultAlertLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxAlertLimit)
	}
	alerts, err := s.store.RecentAlerts(limit, c.Query("type"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

func (s *Server) handleLatestReport(c *gin.Context) {
	rec, report, err := s.store.LatestReport()
	if errors.Is(err, ErrNoReports) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":        report,
		"session":     rec.Session,
		"received_at": rec.ReceivedAt,
	})
}
