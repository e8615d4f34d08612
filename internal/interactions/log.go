// Package interactions keeps the bounded append-only record of chat
// exchanges in data/interactions.json.
package interactions

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/maninfini/sitebot/internal/jsonfile"
)

const (
	// FileName is the log file inside the data directory.
	FileName = "interactions.json"
	// MaxEntries bounds the persisted log; older entries are dropped first.
	MaxEntries = 1000
)

type Entry struct {
	Message   string    `json:"message"`
	Intent    string    `json:"intent"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Log serialises access to the interaction file. The file is re-read on each
// append so that external trims (the monitor's cleanup) are honoured.
type Log struct {
	path string
	max  int

	mu sync.Mutex
}

func New(path string) *Log {
	return &Log{path: path, max: MaxEntries}
}

// Append adds e and keeps only the newest MaxEntries.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return err
	}
	entries = append(entries, e)
	if len(entries) > l.max {
		entries = entries[len(entries)-l.max:]
	}
	return l.write(entries)
}

// Trim keeps the newest n entries and returns how many were removed.
func (l *Log) Trim(n int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return 0, err
	}
	if len(entries) <= n {
		return 0, nil
	}
	removed := len(entries) - n
	if err := l.write(entries[removed:]); err != nil {
		return 0, err
	}
	return removed, nil
}

// recent returns up to n newest entries, oldest first.
func (l *Log) recent(n int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return nil, err
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return slices.Clone(entries), nil
}

func (l *Log) Len() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	return len(entries), err
}

func (l *Log) read() ([]Entry, error) {
	var entries []Entry
	err := jsonfile.Read(l.path, &entries)
	switch {
	case err == nil:
		return entries, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case errors.Is(err, jsonfile.ErrCorrupt):
		slog.Warn("interaction log unreadable, starting over", "path", l.path, "error", err)
		return nil, nil
	default:
		return nil, fmt.Errorf("reading interaction log: %w", err)
	}
}

func (l *Log) write(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	if err := jsonfile.Write(l.path, entries); err != nil {
		return fmt.Errorf("writing interaction log: %w", err)
	}
	return nil
}
