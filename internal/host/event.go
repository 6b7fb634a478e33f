package host

import (
	"encoding/json"
	"fmt"

	"github.com/vesaa/pagepulse/internal/models"
)

// EventKind selects which field of an Event is populated.
type EventKind string

const (
	EventVitals      EventKind = "vitals"
	EventResources   EventKind = "resources"
	EventNavigation  EventKind = "navigation"
	EventScripts     EventKind = "scripts"
	EventEnvironment EventKind = "environment"
	EventCache       EventKind = "cache"
)

// Event is the envelope shared by recorded traces (one JSON object per
// line) and the live websocket feed.
type Event struct {
	Kind        EventKind           `json:"kind"`
	Vitals      []VitalEntry        `json:"vitals,omitempty"`
	Resources   []ResourceEntry     `json:"resources,omitempty"`
	Navigation  *NavigationEntry    `json:"navigation,omitempty"`
	Scripts     []ScriptElement     `json:"scripts,omitempty"`
	Environment *models.Environment `json:"environment,omitempty"`
	Cache       string              `json:"cache,omitempty"`
	Requests    []string            `json:"requests,omitempty"`
}

// DecodeEvent parses a single JSON event.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if ev.Kind == "" {
		return Event{}, fmt.Errorf("decoding event: missing kind")
	}
	return ev, nil
}
