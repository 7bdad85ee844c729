package store

import (
	"database/sql"
	"time"

	"github.com/kabili207/mesh-map-server/pkg/models"
)

var selectLinkViews = `
	SELECT l.*, src.name AS source_name, dst.name AS destination_name
	FROM links l
	JOIN nodes src ON src.id = l.source_id
	JOIN nodes dst ON dst.id = l.destination_id`

// LinkStore provides database operations for links between nodes.
type LinkStore interface {
	// GetByEndpoints retrieves the link between two stored nodes.
	GetByEndpoints(sourceID, destinationID int64) (*models.Link, error)
	// GetViews retrieves non-INACTIVE links joined with endpoint names.
	GetViews() ([]*models.LinkView, error)
	// GetViewsBySource retrieves a node's non-INACTIVE outbound links
	// joined with endpoint names.
	GetViewsBySource(sourceID int64) ([]*models.LinkView, error)
	// Save inserts or updates a link, filling in its id on insert.
	Save(link *models.Link) error
	// DemoteCurrent moves every CURRENT link down the freshness ladder to
	// RECENT and returns the number of affected rows.
	DemoteCurrent() (int64, error)
	// MarkInactiveBefore expires RECENT links not seen since the cutoff
	// and returns the number of affected rows.
	MarkInactiveBefore(cutoff time.Time) (int64, error)
}

type postgresLinkStore struct {
	q querier
}

// NewLinkStore creates a link store over the given connection.
func NewLinkStore(db *DB) LinkStore {
	return &postgresLinkStore{q: db.conn}
}

func (s *postgresLinkStore) GetByEndpoints(sourceID, destinationID int64) (*models.Link, error) {
	query := `SELECT * FROM links WHERE source_id = $1 AND destination_id = $2;`
	var link models.Link
	err := s.q.Get(&link, query, sourceID, destinationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *postgresLinkStore) GetViews() ([]*models.LinkView, error) {
	query := selectLinkViews + ` WHERE l.status != $1 ORDER BY src.name, dst.name;`
	links := []*models.LinkView{}
	err := s.q.Select(&links, query, models.LinkStatusInactive)
	return links, err
}

func (s *postgresLinkStore) GetViewsBySource(sourceID int64) ([]*models.LinkView, error) {
	query := selectLinkViews + ` WHERE l.source_id = $1 AND l.status != $2 ORDER BY dst.name;`
	links := []*models.LinkView{}
	err := s.q.Select(&links, query, sourceID, models.LinkStatusInactive)
	return links, err
}

func (s *postgresLinkStore) Save(link *models.Link) error {
	if link.ID == 0 {
		stmt := `
		INSERT INTO links (source_id, destination_id, olsr_cost, distance, bearing, status, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id;`
		return s.q.QueryRowx(stmt,
			link.SourceID, link.DestinationID, link.OlsrCost,
			link.Distance, link.Bearing, link.Status, link.LastSeen,
		).Scan(&link.ID)
	}

	stmt := `
	UPDATE links
	SET olsr_cost = :olsr_cost,
	    distance = :distance,
	    bearing = :bearing,
	    status = :status,
	    last_seen = :last_seen
	WHERE id = :id;`
	_, err := s.q.NamedExec(stmt, link)
	return err
}

func (s *postgresLinkStore) DemoteCurrent() (int64, error) {
	stmt := `UPDATE links SET status = $1 WHERE status = $2;`
	res, err := s.q.Exec(stmt, models.LinkStatusRecent, models.LinkStatusCurrent)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *postgresLinkStore) MarkInactiveBefore(cutoff time.Time) (int64, error) {
	stmt := `UPDATE links SET status = $1 WHERE status = $2 AND last_seen < $3;`
	res, err := s.q.Exec(stmt, models.LinkStatusInactive, models.LinkStatusRecent, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
