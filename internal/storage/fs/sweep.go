package fs

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SweepStats tracks the result of the last temp file sweep.
type SweepStats struct {
	RunAt        time.Time
	FilesScanned int
	FilesDeleted int
	Duration     time.Duration
	Errors       []string
}

// Sweeper removes temp files left behind by writes that died between create
// and rename.
type Sweeper struct {
	storage         *Storage
	safetyThreshold time.Duration
	lastStats       SweepStats
}

// NewSweeper returns a sweeper that only touches temp files older than
// safetyThreshold, so in-flight writes are left alone.
func NewSweeper(storage *Storage, safetyThreshold time.Duration) *Sweeper {
	return &Sweeper{storage: storage, safetyThreshold: safetyThreshold}
}

// StartBackgroundSweep runs Sweep every interval until ctx is cancelled.
func (sw *Sweeper) StartBackgroundSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	slog.Info("started temp file sweeper", "interval", interval, "safety_threshold", sw.safetyThreshold)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sw.Sweep(); err != nil {
					slog.Error("temp file sweep failed", "error", err)
					continue
				}
				stats := sw.LastStats()
				slog.Debug("temp file sweep completed",
					"scanned", stats.FilesScanned,
					"deleted", stats.FilesDeleted,
					"duration", stats.Duration,
					"errors", len(stats.Errors))
			case <-ctx.Done():
				slog.Info("temp file sweeper stopped")
				return
			}
		}
	}()
}

// Sweep executes a single pass over the storage root.
func (sw *Sweeper) Sweep() error {
	start := time.Now()
	stats := SweepStats{RunAt: start, Errors: []string{}}

	err := filepath.WalkDir(sw.storage.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			stats.Errors = append(stats.Errors, "walk error: "+path+": "+err.Error())
			return nil
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		stats.FilesScanned++

		info, err := d.Info()
		if err != nil {
			stats.Errors = append(stats.Errors, "stat error: "+path+": "+err.Error())
			return nil
		}
		if time.Since(info.ModTime()) < sw.safetyThreshold {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			stats.Errors = append(stats.Errors, "delete error: "+path+": "+err.Error())
			return nil
		}
		stats.FilesDeleted++
		return nil
	})
	if err != nil {
		return err
	}

	stats.Duration = time.Since(start)
	sw.lastStats = stats
	return nil
}

func (sw *Sweeper) LastStats() SweepStats {
	return sw.lastStats
}
