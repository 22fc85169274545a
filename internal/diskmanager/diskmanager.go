// Package diskmanager enforces retention on saved detection artifacts. A
// periodic sweep caps the number of annotated frames kept per day and the
// total disk usage of the artifact directory, deleting oldest files first.
package diskmanager

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/errors"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
)

const (
	defaultMaxPerDay    = 100
	defaultMaxUsageMB   = 500
	defaultSweepMinutes = 15
	artifactPrefix      = "detection_"
	artifactSuffix      = ".jpg"
)

type artifactFile struct {
	path    string
	day     string
	size    int64
	modTime time.Time
}

// Sweeper deletes artifacts beyond the retention policy.
type Sweeper struct {
	dir        string
	maxPerDay  int
	maxUsage   int64
	sweepEvery time.Duration
	log        *slog.Logger
}

// NewSweeper creates a sweeper from artifact settings.
func NewSweeper(settings *conf.ArtifactSettings) *Sweeper {
	maxPerDay := settings.MaxPerDay
	if maxPerDay <= 0 {
		maxPerDay = defaultMaxPerDay
	}
	maxUsageMB := settings.MaxUsageMB
	if maxUsageMB <= 0 {
		maxUsageMB = defaultMaxUsageMB
	}
	sweepMinutes := settings.SweepMinutes
	if sweepMinutes <= 0 {
		sweepMinutes = defaultSweepMinutes
	}

	return &Sweeper{
		dir:        settings.Path,
		maxPerDay:  maxPerDay,
		maxUsage:   int64(maxUsageMB) * 1024 * 1024,
		sweepEvery: time.Duration(sweepMinutes) * time.Minute,
		log:        logging.ForService("diskmanager"),
	}
}

// Start sweeps periodically until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed, err := s.Sweep(); err != nil {
					s.log.Error("artifact sweep failed", "error", err)
				} else if removed > 0 {
					s.log.Info("artifact sweep complete", "removed", removed)
				}
			}
		}
	}()
}

// Sweep enforces the retention policy once and returns the number of files
// removed.
func (s *Sweeper) Sweep() (int, error) {
	files, err := s.scan()
	if err != nil {
		return 0, err
	}

	removed := 0
	removed += s.enforcePerDay(files)

	// Re-scan after per-day deletions so the usage pass sees current state.
	files, err = s.scan()
	if err != nil {
		return removed, err
	}
	removed += s.enforceUsage(files)

	return removed, nil
}

// scan lists artifact files sorted oldest first.
func (s *Sweeper) scan() ([]artifactFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryDiskCleanup).
			Context("dir", s.dir).
			Build()
	}

	var files []artifactFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, artifactPrefix) || !strings.HasSuffix(name, artifactSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, artifactFile{
			path:    filepath.Join(s.dir, name),
			day:     dayOf(name),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})
	return files, nil
}

// dayOf extracts the YYYYMMDD part of detection_YYYYMMDD_HHMMSS_N.jpg.
func dayOf(name string) string {
	rest := strings.TrimPrefix(name, artifactPrefix)
	if len(rest) < 8 {
		return ""
	}
	return rest[:8]
}

// enforcePerDay deletes the oldest files of any day exceeding the per-day
// cap.
func (s *Sweeper) enforcePerDay(files []artifactFile) int {
	perDay := make(map[string][]artifactFile)
	for _, f := range files {
		perDay[f.day] = append(perDay[f.day], f)
	}

	removed := 0
	for day, dayFiles := range perDay {
		excess := len(dayFiles) - s.maxPerDay
		for i := 0; i < excess; i++ {
			if s.remove(dayFiles[i].path) {
				removed++
			}
		}
		if excess > 0 {
			s.log.Debug("per-day artifact cap enforced", "day", day, "removed", excess)
		}
	}
	return removed
}

// enforceUsage deletes oldest files until total size fits the usage cap.
func (s *Sweeper) enforceUsage(files []artifactFile) int {
	var total int64
	for _, f := range files {
		total += f.size
	}

	removed := 0
	for _, f := range files {
		if total <= s.maxUsage {
			break
		}
		if s.remove(f.path) {
			total -= f.size
			removed++
		}
	}
	return removed
}

func (s *Sweeper) remove(path string) bool {
	if err := os.Remove(path); err != nil {
		s.log.Warn("could not remove artifact", "path", path, "error", err)
		return false
	}
	return true
}
