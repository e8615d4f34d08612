package monitor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maninfini/sitebot/internal/interactions"
	"github.com/maninfini/sitebot/internal/jsonfile"
	"github.com/maninfini/sitebot/internal/scraper"
	"github.com/maninfini/sitebot/internal/storage"
)

func TestCheck(t *testing.T) {
	limits := Limits{MaxMemoryMB: 100, MaxDiskMB: 10}
	old := time.Hour

	tests := []struct {
		name     string
		stats    Stats
		status   string
		critical bool
		warnings int
	}{
		{"within limits", Stats{HeapMB: 50, DiskMB: 5, Uptime: old}, StatusHealthy, false, 0},
		{"at the limit", Stats{HeapMB: 100, DiskMB: 10, Uptime: old}, StatusHealthy, false, 0},
		{"memory over", Stats{HeapMB: 120, DiskMB: 5, Uptime: old}, StatusWarning, false, 1},
		{"memory critical", Stats{HeapMB: 151, DiskMB: 5, Uptime: old}, StatusCritical, true, 1},
		{"disk critical", Stats{HeapMB: 10, DiskMB: 16, Uptime: old}, StatusCritical, true, 1},
		{"both over", Stats{HeapMB: 120, DiskMB: 16, Uptime: old}, StatusCritical, true, 2},
		{"recent restart", Stats{HeapMB: 10, DiskMB: 1, Uptime: 10 * time.Second}, StatusHealthy, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Check(tt.stats, limits)
			if h.Status != tt.status || h.Critical != tt.critical || len(h.Warnings) != tt.warnings {
				t.Errorf("Check = %+v, want status=%s critical=%v warnings=%d", h, tt.status, tt.critical, tt.warnings)
			}
		})
	}
}

func TestCheck_WarningText(t *testing.T) {
	h := Check(Stats{HeapMB: 200, Uptime: 5 * time.Second}, Limits{MaxMemoryMB: 100})
	want := []string{"High memory usage: 200MB", "Recent restart detected"}
	if strings.Join(h.Warnings, "|") != strings.Join(want, "|") {
		t.Errorf("warnings = %q, want %q", h.Warnings, want)
	}
}

func TestCheck_ZeroLimitDisablesCheck(t *testing.T) {
	h := Check(Stats{HeapMB: 1e6, DiskMB: 1e6, Uptime: time.Hour}, Limits{})
	if h.Status != StatusHealthy || len(h.Warnings) != 0 {
		t.Errorf("Check = %+v, want healthy", h)
	}
}

func TestSample_MeasuresTopLevelFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.json"), make([]byte, 3<<20), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.json"), make([]byte, 5<<20), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New(Options{DataDir: dir, Started: time.Now().Add(-time.Minute)})
	s := m.Sample()
	if s.DiskMB != 3 {
		t.Errorf("DiskMB = %v, want 3", s.DiskMB)
	}
	if s.HeapMB <= 0 || s.Goroutines <= 0 {
		t.Errorf("runtime stats not populated: %+v", s)
	}
	if s.Uptime < time.Minute {
		t.Errorf("Uptime = %v, want >= 1m", s.Uptime)
	}
}

func TestSample_MissingDataDir(t *testing.T) {
	m := New(Options{DataDir: filepath.Join(t.TempDir(), "missing")})
	if s := m.Sample(); s.DiskMB != 0 {
		t.Errorf("DiskMB = %v, want 0", s.DiskMB)
	}
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func writeInteractions(t *testing.T, path string, n int) {
	t.Helper()
	entries := make([]interactions.Entry, n)
	for i := range entries {
		entries[i] = interactions.Entry{Message: "m", Intent: "greeting", Response: "r", Timestamp: time.Now()}
	}
	if err := jsonfile.Write(path, entries); err != nil {
		t.Fatal(err)
	}
}

func TestTick_PersistsAndPrunes(t *testing.T) {
	st := openStore(t)
	stale := storage.MonitorSample{TakenAt: time.Now().Add(-8 * 24 * time.Hour), Status: StatusHealthy}
	if _, err := st.SaveSample(stale); err != nil {
		t.Fatal(err)
	}

	m := New(Options{
		DataDir: t.TempDir(),
		Limits:  Limits{MaxMemoryMB: 1 << 20, MaxDiskMB: 1 << 20},
		Samples: st,
		Started: time.Now().Add(-time.Hour),
	})
	_, h := m.Tick()
	if h.Status != StatusHealthy {
		t.Errorf("status = %s, want healthy", h.Status)
	}

	samples, err := st.ListSamples(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1 after pruning", len(samples))
	}
	if samples[0].Status != StatusHealthy || samples[0].UptimeSec < 3600 {
		t.Errorf("sample = %+v", samples[0])
	}
}

func TestTick_CriticalRunsCleanup(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, interactions.FileName)
	writeInteractions(t, logPath, 600)
	snapPath := filepath.Join(dir, scraper.SnapshotFileName)
	if err := jsonfile.Write(snapPath, scraper.Snapshot{LastScraped: time.Now().Add(-8 * 24 * time.Hour)}); err != nil {
		t.Fatal(err)
	}

	log := interactions.New(logPath)
	m := New(Options{
		DataDir:      dir,
		Limits:       Limits{MaxMemoryMB: 0.01},
		Interactions: log,
		Started:      time.Now().Add(-time.Hour),
	})
	_, h := m.Tick()
	if !h.Critical {
		t.Fatalf("expected critical health, got %+v", h)
	}

	if n, _ := log.Len(); n != 500 {
		t.Errorf("interactions = %d, want 500", n)
	}
	if _, err := os.Stat(snapPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale snapshot should be removed, stat err = %v", err)
	}
}

func TestCleanup_KeepsFreshSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, scraper.SnapshotFileName)
	if err := jsonfile.Write(snapPath, scraper.Snapshot{LastScraped: time.Now().Add(-24 * time.Hour)}); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(dir, interactions.FileName)
	writeInteractions(t, logPath, 20)
	log := interactions.New(logPath)

	m := New(Options{DataDir: dir, Interactions: log})
	if err := m.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(snapPath); err != nil {
		t.Errorf("fresh snapshot removed: %v", err)
	}
	if n, _ := log.Len(); n != 20 {
		t.Errorf("interactions = %d, want 20", n)
	}
}

func TestCleanup_NothingToDo(t *testing.T) {
	m := New(Options{DataDir: t.TempDir()})
	if err := m.Cleanup(); err != nil {
		t.Errorf("Cleanup on empty dir: %v", err)
	}
}

func TestRegister(t *testing.T) {
	c := cron.New()
	m := New(Options{DataDir: t.TempDir()})
	if err := m.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if n := len(c.Entries()); n != 2 {
		t.Errorf("entries = %d, want 2", n)
	}
}

func TestReport(t *testing.T) {
	st := openStore(t)
	m := New(Options{
		DataDir: t.TempDir(),
		Limits:  Limits{MaxMemoryMB: 1024, MaxDiskMB: 100},
		Samples: st,
		Started: time.Now().Add(-(2*time.Hour + 5*time.Minute)),
	})

	r := m.Report()
	if r.LastSample != nil {
		t.Errorf("LastSample = %+v, want nil before any tick", r.LastSample)
	}
	if r.Limits.MaxMemoryMB != 1024 {
		t.Errorf("limits = %+v", r.Limits)
	}
	if !strings.HasPrefix(r.Performance.Uptime, "2h 5m") {
		t.Errorf("uptime = %q", r.Performance.Uptime)
	}

	m.Tick()
	if r := m.Report(); r.LastSample == nil {
		t.Error("LastSample missing after tick")
	}
}
