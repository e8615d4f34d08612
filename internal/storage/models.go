package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Scrape run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// ScrapeRun is one pass of the site scraper over its page list.
type ScrapeRun struct {
	ID          string
	SiteURL     string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Status      string
	Pages       int
	FailedPages int
	FAQs        int
	Services    int
	Content     int
	Intents     int
	LastError   string
}

// MonitorSample is a point-in-time resource reading with its health verdict.
type MonitorSample struct {
	ID         string
	TakenAt    time.Time
	HeapMB     float64
	SysMB      float64
	Goroutines int
	DiskMB     float64
	UptimeSec  int64
	Status     string
	Warnings   []string
}
