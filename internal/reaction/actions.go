package reaction

import (
	"log/slog"

	"github.com/ayane-dev/zombiewatch-go/internal/datastore"
	"github.com/ayane-dev/zombiewatch-go/internal/detector"
	"github.com/ayane-dev/zombiewatch-go/internal/errors"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
	"github.com/ayane-dev/zombiewatch-go/internal/notification"
)

// Action is a unit of work triggered by a confirmed detection.
type Action interface {
	Execute(dc *detector.Context) error
	GetDescription() string
}

// LogAction writes the detection to the structured log.
type LogAction struct {
	Severity string
	log      *slog.Logger
}

// NewLogAction creates a log action for the given severity.
func NewLogAction(severity string) *LogAction {
	return &LogAction{Severity: severity, log: logging.ForService("reaction")}
}

func (a *LogAction) Execute(dc *detector.Context) error {
	a.log.Info("threat detected",
		"count", dc.Count,
		"severity", a.Severity,
		"max_confidence", dc.MaxConfidence,
		"scene_probability", dc.SceneProbability,
		"distance", dc.Distance,
		"source", dc.Source)
	return nil
}

func (a *LogAction) GetDescription() string { return "write detection to log" }

// PushAction publishes a notification event for the detection.
type PushAction struct {
	Service  *notification.Service
	Tier     string
	Severity string
}

func (a *PushAction) Execute(dc *detector.Context) error {
	if a.Service == nil {
		return nil
	}

	message := MessageFor(a.Tier, a.Severity, dc.Count, dc.Distance)
	if message == "" {
		return nil
	}

	n := notification.NewNotification(
		notification.TypeThreat,
		notification.PriorityForSeverity(a.Severity),
		"threat detected",
		message,
	).
		WithMetadata("count", dc.Count).
		WithMetadata("severity", a.Severity).
		WithMetadata("tier", a.Tier).
		WithMetadata("source", dc.Source)
	if dc.ClipPath != "" {
		n.WithMetadata("clip_path", dc.ClipPath)
	}

	a.Service.Publish(n)
	return nil
}

func (a *PushAction) GetDescription() string { return "publish threat notification" }

// DatastoreAction persists the detection to the database and text log.
type DatastoreAction struct {
	Store    datastore.Store
	TextLog  *datastore.TextLog
	Severity string
}

func (a *DatastoreAction) Execute(dc *detector.Context) error {
	record := &datastore.Detection{
		Timestamp:        dc.CapturedAt,
		Count:            dc.Count,
		Severity:         a.Severity,
		MaxConfidence:    dc.MaxConfidence,
		SceneProbability: dc.SceneProbability,
		ScenePresence:    dc.ScenePresence,
		Distance:         dc.Distance,
		Source:           dc.Source,
		ClipPath:         dc.ClipPath,
	}

	var firstErr error
	if a.Store != nil {
		if err := a.Store.Save(record); err != nil {
			firstErr = err
		}
	}
	if a.TextLog != nil {
		if err := a.TextLog.Append(record); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return errors.New(firstErr).
			Component("reaction").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

func (a *DatastoreAction) GetDescription() string { return "persist detection" }
