package models

import (
	"time"

	"gorm.io/gorm"
)

// AlertRecord stores one alert received by the sink.
type AlertRecord struct {
	gorm.Model

	Type           string    `gorm:"index;not null" json:"type"`
	Data           string    `json:"data"` // raw JSON of Alert.Data
	ObservedAt     string    `json:"observed_at"`
	URL            string    `gorm:"index" json:"url"`
	UserAgent      string    `json:"user_agent"`
	ConnectionType string    `json:"connection_type"`
	Session        string    `gorm:"index" json:"session"`
	ReceivedAt     time.Time `gorm:"index" json:"received_at"`
}

// ReportRecord stores one periodic report. Metrics and recommendations are
// kept as raw JSON; the grade and score are columns for querying.
type ReportRecord struct {
	gorm.Model

	ObservedAt      string    `json:"observed_at"`
	Grade           Grade     `gorm:"index" json:"grade"`
	Score           int       `json:"score"`
	Metrics         string    `json:"metrics"`
	Recommendations string    `json:"recommendations"`
	Session         string    `gorm:"index" json:"session"`
	ReceivedAt      time.Time `gorm:"index" json:"received_at"`
}
