// Package monitor samples process resources, grades them against limits and
// reclaims data files when the process runs hot.
package monitor

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/maninfini/sitebot/internal/jsonfile"
	"github.com/maninfini/sitebot/internal/scraper"
	"github.com/maninfini/sitebot/internal/storage"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

const (
	// TickSchedule and CleanupSchedule are the cron specs used by Register.
	TickSchedule    = "*/5 * * * *"
	CleanupSchedule = "0 2 * * *"

	Retention = 7 * 24 * time.Hour

	criticalFactor   = 1.5
	restartWindow    = 60 * time.Second
	keepInteractions = 500
	snapshotMaxAge   = 7 * 24 * time.Hour
)

type Limits struct {
	MaxMemoryMB float64 `json:"maxMemoryMB"`
	MaxDiskMB   float64 `json:"maxDiskMB"`
}

// Stats is one resource reading.
type Stats struct {
	TakenAt     time.Time     `json:"takenAt"`
	HeapMB      float64       `json:"heapMB"`
	HeapTotalMB float64       `json:"heapTotalMB"`
	SysMB       float64       `json:"sysMB"`
	Goroutines  int           `json:"goroutines"`
	DiskMB      float64       `json:"diskMB"`
	Uptime      time.Duration `json:"uptime"`
}

type Health struct {
	Status   string   `json:"status"`
	Warnings []string `json:"warnings"`
	Critical bool     `json:"critical"`
}

// Check grades s against l. Exceeding a limit adds a warning; exceeding it by
// half again makes the status critical. A young process gets a restart
// warning without changing the status.
func Check(s Stats, l Limits) Health {
	h := Health{Status: StatusHealthy, Warnings: []string{}}

	grade := func(value, limit float64, what string) {
		if limit <= 0 || value <= limit {
			return
		}
		h.Warnings = append(h.Warnings, fmt.Sprintf("High %s usage: %.0fMB", what, value))
		if value > limit*criticalFactor {
			h.Status = StatusCritical
			h.Critical = true
		} else if h.Status == StatusHealthy {
			h.Status = StatusWarning
		}
	}
	grade(s.HeapMB, l.MaxMemoryMB, "memory")
	grade(s.DiskMB, l.MaxDiskMB, "disk")

	if s.Uptime < restartWindow {
		h.Warnings = append(h.Warnings, "Recent restart detected")
	}
	return h
}

// SampleStore persists samples. storage.Store implements it.
type SampleStore interface {
	SaveSample(m storage.MonitorSample) (string, error)
	PruneSamples(before time.Time) (int64, error)
	LatestSample() (storage.MonitorSample, error)
}

// Trimmer shrinks the interaction log. interactions.Log implements it.
type Trimmer interface {
	Trim(n int) (int, error)
}

type Options struct {
	DataDir      string
	SnapshotPath string // defaults to DataDir/scraped-content.json
	Limits       Limits
	Samples      SampleStore // optional
	Interactions Trimmer     // optional
	Started      time.Time   // defaults to now
}

type Monitor struct {
	opts Options
	now  func() time.Time
}

func New(opts Options) *Monitor {
	if opts.SnapshotPath == "" {
		opts.SnapshotPath = filepath.Join(opts.DataDir, scraper.SnapshotFileName)
	}
	if opts.Started.IsZero() {
		opts.Started = time.Now()
	}
	return &Monitor{opts: opts, now: time.Now}
}

func (m *Monitor) Limits() Limits { return m.opts.Limits }

// Sample reads runtime memory statistics and sizes the data directory.
func (m *Monitor) Sample() Stats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	now := m.now()
	disk, err := dirSize(m.opts.DataDir)
	if err != nil {
		slog.Debug("measuring data dir failed", "dir", m.opts.DataDir, "error", err)
	}
	return Stats{
		TakenAt:     now.UTC(),
		HeapMB:      toMB(ms.HeapAlloc),
		HeapTotalMB: toMB(ms.HeapSys),
		SysMB:       toMB(ms.Sys),
		Goroutines:  runtime.NumGoroutine(),
		DiskMB:      toMB(uint64(disk)),
		Uptime:      now.Sub(m.opts.Started),
	}
}

// Tick samples, grades, persists and prunes. A critical result triggers
// Cleanup. Persistence failures are logged and do not fail the tick.
func (m *Monitor) Tick() (Stats, Health) {
	s := m.Sample()
	h := Check(s, m.opts.Limits)

	if st := m.opts.Samples; st != nil {
		if _, err := st.SaveSample(toSample(s, h)); err != nil {
			slog.Warn("saving monitor sample failed", "error", err)
		}
		if n, err := st.PruneSamples(s.TakenAt.Add(-Retention)); err != nil {
			slog.Warn("pruning monitor samples failed", "error", err)
		} else if n > 0 {
			slog.Debug("pruned monitor samples", "count", n)
		}
	}

	slog.Info("monitor tick", "status", h.Status, "heap_mb", s.HeapMB, "disk_mb", s.DiskMB, "goroutines", s.Goroutines)
	if len(h.Warnings) > 0 {
		slog.Warn("monitor warnings", "warnings", strings.Join(h.Warnings, ", "))
	}
	if h.Critical {
		slog.Error("monitor critical, running cleanup", "status", h.Status)
		if err := m.Cleanup(); err != nil {
			slog.Error("cleanup failed", "error", err)
		}
	}
	return s, h
}

// Cleanup trims the interaction log, removes a stale scrape snapshot and
// forces a garbage collection.
func (m *Monitor) Cleanup() error {
	slog.Info("cleanup started")

	var g errgroup.Group
	g.Go(func() error {
		if m.opts.Interactions == nil {
			return nil
		}
		removed, err := m.opts.Interactions.Trim(keepInteractions)
		if err != nil {
			return fmt.Errorf("trimming interactions: %w", err)
		}
		if removed > 0 {
			slog.Info("trimmed interaction log", "removed", removed)
		}
		return nil
	})
	g.Go(m.removeStaleSnapshot)
	err := g.Wait()

	runtime.GC()
	slog.Info("cleanup finished")
	return err
}

func (m *Monitor) removeStaleSnapshot() error {
	snap, err := scraper.ReadSnapshot(m.opts.SnapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if snap.LastScraped.IsZero() || !snap.LastScraped.Before(m.now().Add(-snapshotMaxAge)) {
		return nil
	}
	if err := jsonfile.Remove(m.opts.SnapshotPath); err != nil {
		return fmt.Errorf("removing snapshot: %w", err)
	}
	slog.Info("removed stale scrape snapshot", "last_scraped", snap.LastScraped)
	return nil
}

// Register schedules Tick every five minutes and Cleanup daily at 02:00.
func (m *Monitor) Register(c *cron.Cron) error {
	if _, err := c.AddFunc(TickSchedule, func() { m.Tick() }); err != nil {
		return fmt.Errorf("scheduling monitor tick: %w", err)
	}
	if _, err := c.AddFunc(CleanupSchedule, func() {
		if err := m.Cleanup(); err != nil {
			slog.Error("scheduled cleanup failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling cleanup: %w", err)
	}
	return nil
}

// Report is the performance summary served over HTTP.
type Report struct {
	Performance Performance            `json:"performance"`
	Health      Health                 `json:"health"`
	Limits      Limits                 `json:"limits"`
	LastSample  *storage.MonitorSample `json:"lastSample,omitempty"`
}

type Performance struct {
	MemoryUsage      string `json:"memoryUsage"`
	MemoryPercentage int    `json:"memoryPercentage"`
	DiskUsage        string `json:"diskUsage"`
	Uptime           string `json:"uptime"`
	Goroutines       int    `json:"goroutines"`
}

// Report takes a fresh sample without persisting it.
func (m *Monitor) Report() Report {
	s := m.Sample()
	r := Report{
		Performance: Performance{
			MemoryUsage: fmt.Sprintf("%.0fMB / %.0fMB", s.HeapMB, s.HeapTotalMB),
			DiskUsage:   fmt.Sprintf("%.0fMB", s.DiskMB),
			Uptime:      formatUptime(s.Uptime),
			Goroutines:  s.Goroutines,
		},
		Health: Check(s, m.opts.Limits),
		Limits: m.opts.Limits,
	}
	if s.HeapTotalMB > 0 {
		r.Performance.MemoryPercentage = int(math.Round(s.HeapMB / s.HeapTotalMB * 100))
	}
	if m.opts.Samples != nil {
		if last, err := m.opts.Samples.LatestSample(); err == nil {
			r.LastSample = &last
		}
	}
	return r
}

func toSample(s Stats, h Health) storage.MonitorSample {
	return storage.MonitorSample{
		TakenAt:    s.TakenAt,
		HeapMB:     s.HeapMB,
		SysMB:      s.SysMB,
		Goroutines: s.Goroutines,
		DiskMB:     s.DiskMB,
		UptimeSec:  int64(s.Uptime / time.Second),
		Status:     h.Status,
		Warnings:   h.Warnings,
	}
}

// dirSize sums the sizes of the regular files directly inside dir.
func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return total, err
		}
		total += info.Size()
	}
	return total, nil
}

func toMB(b uint64) float64 {
	return math.Round(float64(b)/(1<<20)*10) / 10
}

func formatUptime(d time.Duration) string {
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	return fmt.Sprintf("%dh %dm", h, m)
}
