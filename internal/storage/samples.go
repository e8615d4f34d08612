package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *Store) SaveSample(m MonitorSample) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	warnings := m.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	encoded, err := json.Marshal(warnings)
	if err != nil {
		return "", fmt.Errorf("encoding warnings: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO monitor_samples (id, taken_at, heap_mb, sys_mb, goroutines, disk_mb, uptime_sec, status, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.TakenAt.UTC().Format(time.RFC3339), m.HeapMB, m.SysMB, m.Goroutines,
		m.DiskMB, m.UptimeSec, m.Status, string(encoded),
	)
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// LatestSample returns the newest sample or ErrNotFound.
func (s *Store) LatestSample() (MonitorSample, error) {
	samples, err := s.ListSamples(1)
	if err != nil {
		return MonitorSample{}, err
	}
	if len(samples) == 0 {
		return MonitorSample{}, ErrNotFound
	}
	return samples[0], nil
}

// ListSamples returns the newest samples first.
func (s *Store) ListSamples(limit int) ([]MonitorSample, error) {
	rows, err := s.db.Query(`
		SELECT id, taken_at, heap_mb, sys_mb, goroutines, disk_mb, uptime_sec, status, warnings
		FROM monitor_samples ORDER BY taken_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MonitorSample
	for rows.Next() {
		var m MonitorSample
		var takenAt, warnings string
		if err := rows.Scan(&m.ID, &takenAt, &m.HeapMB, &m.SysMB, &m.Goroutines, &m.DiskMB, &m.UptimeSec, &m.Status, &warnings); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, takenAt)
		if err != nil {
			return nil, fmt.Errorf("parsing taken_at: %w", err)
		}
		m.TakenAt = t
		if err := json.Unmarshal([]byte(warnings), &m.Warnings); err != nil {
			return nil, fmt.Errorf("decoding warnings: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// PruneSamples deletes samples taken before the cutoff and reports how many
// were removed.
func (s *Store) PruneSamples(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM monitor_samples WHERE taken_at < ?`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
