package core

import (
	"time"

	"github.com/google/uuid"
)

// EventSource identifies the collector that produced an event. Rules match
// against this value, or against SourceWildcard to apply to every source.
type EventSource string

const (
	SourcePortCollector       EventSource = "port_collector"
	SourceProcessCollector    EventSource = "process_collector"
	SourceConnectionCollector EventSource = "connection_collector"
	SourceCPUCollector        EventSource = "cpu_collector"
	SourceFileCollector       EventSource = "file_collector"
	SourceAuthLogCollector    EventSource = "authlog_collector"
	SourceSimulator           EventSource = "simulator"

	// SourceWildcard in a rule matches events from any source.
	SourceWildcard EventSource = "*"
)

// EventType classifies what a collector observed.
type EventType string

const (
	EventPortOpen         EventType = "port_open"
	EventProcessRunning   EventType = "process_running"
	EventConnectionActive EventType = "connection_active"
	EventCPUUsage         EventType = "cpu_usage"
	EventFileChanged      EventType = "file_changed"
	EventLoginFailed      EventType = "login_failed"
)

// Event is a single timestamped observation from a collector. Events are
// immutable once created; the payload is untyped, so rule evaluation must
// tolerate missing or mistyped fields.
type Event struct {
	ID        string                 `json:"id"`
	Source    EventSource            `json:"source"`
	EventType EventType              `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent creates an event with a fresh ID and the current UTC timestamp.
func NewEvent(source EventSource, eventType EventType, payload map[string]interface{}) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:        uuid.NewString(),
		Source:    source,
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// SystemMetrics is a point-in-time snapshot of host health, persisted on a
// schedule for the dashboard's history views.
type SystemMetrics struct {
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryPercent     float64   `json:"memory_percent"`
	OpenPorts         int       `json:"open_ports"`
	ActiveConnections int       `json:"active_connections"`
	ProcessCount      int       `json:"process_count"`
	Timestamp         time.Time `json:"timestamp"`
}
