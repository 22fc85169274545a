// Package datastore persists confirmed detections. SQLite via gorm is the
// primary store; an optional per-day text log keeps a grep-friendly trail.
package datastore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/errors"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
)

// Detection is one confirmed detection event as persisted.
type Detection struct {
	ID               uint      `gorm:"primaryKey"`
	Timestamp        time.Time `gorm:"index"`
	Count            int
	Severity         string `gorm:"index"`
	MaxConfidence    float64
	SceneProbability float64
	ScenePresence    bool
	Distance         string
	Source           string
	ClipPath         string
}

// Store is the persistence interface used by the reaction layer.
type Store interface {
	Save(d *Detection) error
	GetRecent(limit int) ([]Detection, error)
	CountSince(since time.Time) (int64, error)
	Close() error
}

// SQLiteStore persists detections to a SQLite database.
type SQLiteStore struct {
	db  *gorm.DB
	log *slog.Logger
}

// NewSQLiteStore opens (and migrates) the database at the configured path.
func NewSQLiteStore(settings *conf.OutputSettings) (*SQLiteStore, error) {
	path := settings.SQLite.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, dbError(err, path)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, dbError(err, path)
	}

	if err := db.AutoMigrate(&Detection{}); err != nil {
		return nil, dbError(err, path)
	}

	store := &SQLiteStore{db: db, log: logging.ForService("datastore")}
	store.log.Info("detection database opened", "path", path)
	return store, nil
}

// Save inserts a detection record.
func (s *SQLiteStore) Save(d *Detection) error {
	if err := s.db.Create(d).Error; err != nil {
		return dbError(err, "")
	}
	return nil
}

// GetRecent returns the newest detections, most recent first.
func (s *SQLiteStore) GetRecent(limit int) ([]Detection, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Detection
	if err := s.db.Order("timestamp desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, dbError(err, "")
	}
	return out, nil
}

// CountSince counts detections recorded at or after the given time.
func (s *SQLiteStore) CountSince(since time.Time) (int64, error) {
	var count int64
	if err := s.db.Model(&Detection{}).Where("timestamp >= ?", since).Count(&count).Error; err != nil {
		return 0, dbError(err, "")
	}
	return count, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError(err, "")
	}
	return sqlDB.Close()
}

func dbError(err error, path string) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase)
	if path != "" {
		builder = builder.Context("path", path)
	}
	return builder.Build()
}

// TextLog appends one line per confirmed detection to a per-day file.
type TextLog struct {
	dir string
	log *slog.Logger
}

// NewTextLog creates the per-day detection log in dir.
func NewTextLog(dir string) (*TextLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}
	return &TextLog{dir: dir, log: logging.ForService("datastore")}, nil
}

// Append writes one detection line to today's file.
func (t *TextLog) Append(d *Detection) error {
	name := fmt.Sprintf("detections_%s.txt", d.Timestamp.Format("2006-01-02"))
	path := filepath.Join(t.dir, name)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer file.Close()

	line := fmt.Sprintf("%s\t%d\t%s\t%.2f\t%s\n",
		d.Timestamp.Format("15:04:05"), d.Count, d.Severity, d.MaxConfidence, d.Source)
	if _, err := file.WriteString(line); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}
