package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StartRun records a new scrape run in the running state and returns its id.
func (s *Store) StartRun(siteURL string, startedAt time.Time) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO scrape_runs (id, site_url, started_at, status)
		VALUES (?, ?, ?, ?)`,
		id, siteURL, startedAt.UTC().Format(time.RFC3339), RunRunning,
	)
	if err != nil {
		return "", fmt.Errorf("inserting scrape run: %w", err)
	}
	return id, nil
}

// FinishRun stores the final counters of a run. Status is derived from
// LastError when the caller leaves it empty.
func (s *Store) FinishRun(r ScrapeRun) error {
	status := r.Status
	if status == "" {
		status = RunCompleted
		if r.LastError != "" {
			status = RunFailed
		}
	}
	finished := r.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	res, err := s.db.Exec(`
		UPDATE scrape_runs
		SET finished_at = ?, status = ?, pages = ?, failed_pages = ?, faqs = ?, services = ?, content = ?, intents = ?, last_error = ?
		WHERE id = ?`,
		finished.UTC().Format(time.RFC3339), status, r.Pages, r.FailedPages,
		r.FAQs, r.Services, r.Content, r.Intents, r.LastError, r.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetRun(id string) (ScrapeRun, error) {
	row := s.db.QueryRow(`
		SELECT id, site_url, started_at, finished_at, status, pages, failed_pages, faqs, services, content, intents, last_error
		FROM scrape_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return ScrapeRun{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]ScrapeRun, error) {
	rows, err := s.db.Query(`
		SELECT id, site_url, started_at, finished_at, status, pages, failed_pages, faqs, services, content, intents, last_error
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ScrapeRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (ScrapeRun, error) {
	var r ScrapeRun
	var startedAt string
	var finishedAt sql.NullString
	if err := row.Scan(&r.ID, &r.SiteURL, &startedAt, &finishedAt, &r.Status, &r.Pages, &r.FailedPages,
		&r.FAQs, &r.Services, &r.Content, &r.Intents, &r.LastError); err != nil {
		return ScrapeRun{}, err
	}
	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return ScrapeRun{}, fmt.Errorf("parsing started_at: %w", err)
	}
	r.StartedAt = t
	if finishedAt.Valid && finishedAt.String != "" {
		if r.FinishedAt, err = time.Parse(time.RFC3339, finishedAt.String); err != nil {
			return ScrapeRun{}, fmt.Errorf("parsing finished_at: %w", err)
		}
	}
	return r, nil
}
