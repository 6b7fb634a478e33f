// Package server is the reference backend for pagepulse agents: it accepts
// alert and report payloads over HTTP and persists them with GORM.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/vesaa/pagepulse/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNoReports is returned by LatestReport before any report arrived.
var ErrNoReports = errors.New("no reports received yet")

// Store persists received payloads.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenStore opens the database and runs AutoMigrate.
func OpenStore(driver, path string, log *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported db_driver %q (use 'sqlite')", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// sqlite allows one writer; serialize through a single connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.AlertRecord{}, &models.ReportRecord{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	if log != nil {
		log.Info("sink database opened", slog.String("driver", driver), slog.String("path", path))
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveAlert stores one alert. Data is kept as raw JSON.
func (s *Store) SaveAlert(a models.Alert, session string) (*models.AlertRecord, error) {
	data, err := json.Marshal(a.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding alert data: %w", err)
	}
	rec := &models.AlertRecord{
		Type:           a.Type,
		Data:           string(data),
		ObservedAt:     a.Timestamp,
		URL:            a.URL,
		UserAgent:      a.UserAgent,
		ConnectionType: a.ConnectionType,
		Session:        session,
		ReceivedAt:     s.now(),
	}
	if err := s.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("saving alert: %w", err)
	}
	return rec, nil
}

// SaveReport stores one periodic report.
func (s *Store) SaveReport(r models.Report, session string) (*models.ReportRecord, error) {
	m, err := json.Marshal(r.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encoding report metrics: %w", err)
	}
	recs, err := json.Marshal(r.Recommendations)
	if err != nil {
		return nil, fmt.Errorf("encoding recommendations: %w", err)
	}
	rec := &models.ReportRecord{
		ObservedAt:      r.Timestamp,
		Grade:           r.Grade,
		Score:           r.Score,
		Metrics:         string(m),
		Recommendations: string(recs),
		Session:         session,
		ReceivedAt:      s.now(),
	}
	if err := s.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}
	return rec, nil
}

// RecentAlerts returns up to limit alerts, newest first, optionally of one type.
func (s *Store) RecentAlerts(limit int, alertType string) ([]models.AlertRecord, error) {
	q := s.db.Order("id desc").Limit(limit)
	if alertType != "" {
		q = q.Where("type = ?", alertType)
	}
	var out []models.AlertRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// LatestReport returns the most recently received report, decoded.
func (s *Store) LatestReport() (*models.ReportRecord, models.Report, error) {
	var rec models.ReportRecord
	err := s.db.Order("id desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.Report{}, ErrNoReports
	}
	if err != nil {
		return nil, models.Report{}, err
	}

	r := models.Report{Timestamp: rec.ObservedAt, Grade: rec.Grade, Score: rec.Score}
	if err := json.Unmarshal([]byte(rec.Metrics), &r.Metrics); err != nil {
		return nil, models.Report{}, fmt.Errorf("decoding report %d metrics: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(rec.Recommendations), &r.Recommendations); err != nil {
		return nil, models.Report{}, fmt.Errorf("decoding report %d recommendations: %w", rec.ID, err)
	}
	return &rec, r, nil
}
