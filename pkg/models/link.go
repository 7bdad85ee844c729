package models

import "time"

// LinkStatus is the freshness ladder applied to links across polling
// cycles: CURRENT means seen this cycle, RECENT means seen in an earlier
// cycle, INACTIVE means expired.
type LinkStatus string

const (
	LinkStatusCurrent  LinkStatus = "CURRENT"
	LinkStatusRecent   LinkStatus = "RECENT"
	LinkStatusInactive LinkStatus = "INACTIVE"
)

// Link represents a directed link between two stored nodes, keyed by the
// (source_id, destination_id) pair.
type Link struct {
	ID            int64      `db:"id"`
	SourceID      int64      `db:"source_id"`
	DestinationID int64      `db:"destination_id"`
	OlsrCost      *float64   `db:"olsr_cost"`
	// Distance (km) and Bearing (degrees) are null when either endpoint
	// lacks coordinates.
	Distance *float64   `db:"distance"`
	Bearing  *float64   `db:"bearing"`
	Status   LinkStatus `db:"status"`
	LastSeen time.Time  `db:"last_seen"`
}

// LinkView is a Link joined with the names of its endpoints, for the
// dashboard API.
type LinkView struct {
	Link
	SourceName      string `db:"source_name"`
	DestinationName string `db:"destination_name"`
}
