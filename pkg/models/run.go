package models

import "time"

// CollectorRun records the statistics of one polling cycle.
type CollectorRun struct {
	ID           int64     `db:"id"`
	StartedAt    time.Time `db:"started_at"`
	NodeCount    int       `db:"node_count"`
	LinkCount    int       `db:"link_count"`
	ErrorCount   int       `db:"error_count"`
	PollSeconds  float64   `db:"poll_seconds"`
	TotalSeconds float64   `db:"total_seconds"`
	// Counters holds the cycle's free-form counters as JSON.
	Counters []byte `db:"counters"`
}
