package store

import (
	"github.com/kabili207/mesh-map-server/pkg/models"
)

// RunStore records per-cycle collector statistics.
type RunStore interface {
	// Append stores the statistics of one completed polling cycle.
	Append(run *models.CollectorRun) error
	// GetRecent retrieves the most recent cycle records, newest first.
	GetRecent(limit int) ([]*models.CollectorRun, error)
}

type postgresRunStore struct {
	q querier
}

// NewRunStore creates a run store over the given connection.
func NewRunStore(db *DB) RunStore {
	return &postgresRunStore{q: db.conn}
}

func (s *postgresRunStore) Append(run *models.CollectorRun) error {
	stmt := `
	INSERT INTO collector_runs (started_at, node_count, link_count, error_count,
		poll_seconds, total_seconds, counters)
	VALUES (:started_at, :node_count, :link_count, :error_count,
		:poll_seconds, :total_seconds, :counters);`
	_, err := s.q.NamedExec(stmt, run)
	return err
}

func (s *postgresRunStore) GetRecent(limit int) ([]*models.CollectorRun, error) {
	query := `SELECT * FROM collector_runs ORDER BY started_at DESC LIMIT $1;`
	runs := []*models.CollectorRun{}
	err := s.q.Select(&runs, query, limit)
	return runs, err
}
