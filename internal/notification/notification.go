// Package notification provides the in-process alert event bus. Confirmed
// detections and system errors become Notification events that are stored in
// a bounded in-memory list and broadcast to subscribers (the SSE stream and
// the optional MQTT publisher).
package notification

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type categorizes a notification.
type Type string

const (
	TypeThreat Type = "threat"
	TypeError  Type = "error"
	TypeSystem Type = "system"
)

// Priority indicates how urgently a notification should surface.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Notification is a single alert event.
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Priority  Priority       `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewNotification creates a notification with a fresh id and timestamp.
func NewNotification(notifType Type, priority Priority, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      notifType,
		Priority:  priority,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithMetadata attaches a metadata key, returning the notification for
// chaining.
func (n *Notification) WithMetadata(key string, value any) *Notification {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
	return n
}

// Clone returns a deep enough copy for handing to subscribers.
func (n *Notification) Clone() *Notification {
	clone := *n
	if n.Metadata != nil {
		clone.Metadata = make(map[string]any, len(n.Metadata))
		maps.Copy(clone.Metadata, n.Metadata)
	}
	return &clone
}

// severityPriority maps alert severities to notification priorities.
var severityPriority = map[string]Priority{
	"many":     PriorityCritical,
	"warning":  PriorityHigh,
	"few":      PriorityMedium,
	"presence": PriorityLow,
}

// PriorityForSeverity returns the notification priority for an alert
// severity, defaulting to medium.
func PriorityForSeverity(severity string) Priority {
	if p, ok := severityPriority[severity]; ok {
		return p
	}
	return PriorityMedium
}

var (
	serviceInstance *Service
	serviceOnce     sync.Once
)

// Initialize sets up the global notification service.
func Initialize(maxStored int) *Service {
	serviceOnce.Do(func() {
		serviceInstance = NewService(maxStored)
	})
	return serviceInstance
}

// Get returns the global service, or nil if Initialize was never called.
func Get() *Service {
	return serviceInstance
}
