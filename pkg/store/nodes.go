package store

import (
	"database/sql"
	"time"

	"github.com/kabili207/mesh-map-server/pkg/models"
)

var selectNodes = `SELECT n.* FROM nodes n`

// NodeStore provides database operations for mesh nodes.
type NodeStore interface {
	// GetByID retrieves a node by its database id.
	GetByID(id int64) (*models.Node, error)
	// GetByMACAndName retrieves nodes matching both the WLAN MAC address
	// and the declared name, newest first.
	GetByMACAndName(mac, name string) ([]*models.Node, error)
	// GetActiveByMAC retrieves ACTIVE nodes with the given WLAN MAC
	// address, newest first.
	GetActiveByMAC(mac string) ([]*models.Node, error)
	// GetActiveByName retrieves ACTIVE nodes with the given name, newest
	// first.
	GetActiveByName(name string) ([]*models.Node, error)
	// GetActiveByIP retrieves the ACTIVE node with the given WLAN IP.
	GetActiveByIP(ip string) (*models.Node, error)
	// GetAllActive retrieves every ACTIVE node.
	GetAllActive() ([]*models.Node, error)
	// Save inserts or updates a node, filling in its id on insert.
	Save(node *models.Node) error
	// SetStatus updates only the lifecycle status of a node.
	SetStatus(id int64, status models.NodeStatus) error
	// MarkInactiveBefore demotes ACTIVE nodes not seen since the cutoff
	// and returns the number of affected rows.
	MarkInactiveBefore(cutoff time.Time) (int64, error)
}

type postgresNodeStore struct {
	q querier
}

// NewNodeStore creates a node store over the given connection.
func NewNodeStore(db *DB) NodeStore {
	return &postgresNodeStore{q: db.conn}
}

func (s *postgresNodeStore) GetByID(id int64) (*models.Node, error) {
	query := selectNodes + " WHERE n.id = $1;"
	var node models.Node
	err := s.q.Get(&node, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *postgresNodeStore) GetByMACAndName(mac, name string) ([]*models.Node, error) {
	query := selectNodes + " WHERE n.wlan_mac_address = $1 AND n.name = $2 ORDER BY n.last_seen DESC;"
	nodes := []*models.Node{}
	err := s.q.Select(&nodes, query, mac, name)
	return nodes, err
}

func (s *postgresNodeStore) GetActiveByMAC(mac string) ([]*models.Node, error) {
	query := selectNodes + " WHERE n.wlan_mac_address = $1 AND n.status = $2 ORDER BY n.last_seen DESC;"
	nodes := []*models.Node{}
	err := s.q.Select(&nodes, query, mac, models.NodeStatusActive)
	return nodes, err
}

func (s *postgresNodeStore) GetActiveByName(name string) ([]*models.Node, error) {
	query := selectNodes + " WHERE n.name = $1 AND n.status = $2 ORDER BY n.last_seen DESC;"
	nodes := []*models.Node{}
	err := s.q.Select(&nodes, query, name, models.NodeStatusActive)
	return nodes, err
}

func (s *postgresNodeStore) GetActiveByIP(ip string) (*models.Node, error) {
	query := selectNodes + " WHERE n.wlan_ip = $1 AND n.status = $2 ORDER BY n.last_seen DESC LIMIT 1;"
	var node models.Node
	err := s.q.Get(&node, query, ip, models.NodeStatusActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *postgresNodeStore) GetAllActive() ([]*models.Node, error) {
	query := selectNodes + " WHERE n.status = $1 ORDER BY n.name;"
	nodes := []*models.Node{}
	err := s.q.Select(&nodes, query, models.NodeStatusActive)
	return nodes, err
}

func (s *postgresNodeStore) Save(node *models.Node) error {
	if node.ID == 0 {
		stmt := `
		INSERT INTO nodes (name, wlan_ip, wlan_mac_address, description, model,
			board_id, firmware_version, firmware_mfg, api_version,
			latitude, longitude, grid_square, ssid, channel,
			channel_bandwidth, up_time, load_averages, link_count, status, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id;`
		return s.q.QueryRowx(stmt,
			node.Name, node.WlanIP, node.WlanMACAddress, node.Description, node.Model,
			node.BoardID, node.FirmwareVersion, node.FirmwareMfg, node.APIVersion,
			node.Latitude, node.Longitude, node.GridSquare, node.SSID, node.Channel,
			node.ChannelBW, node.UpTime, node.LoadAverages, node.LinkCount, node.Status, node.LastSeen,
		).Scan(&node.ID)
	}

	stmt := `
	UPDATE nodes
	SET name = :name,
	    wlan_ip = :wlan_ip,
	    wlan_mac_address = :wlan_mac_address,
	    description = :description,
	    model = :model,
	    board_id = :board_id,
	    firmware_version = :firmware_version,
	    firmware_mfg = :firmware_mfg,
	    api_version = :api_version,
	    latitude = :latitude,
	    longitude = :longitude,
	    grid_square = :grid_square,
	    ssid = :ssid,
	    channel = :channel,
	    channel_bandwidth = :channel_bandwidth,
	    up_time = :up_time,
	    load_averages = :load_averages,
	    link_count = :link_count,
	    status = :status,
	    last_seen = :last_seen
	WHERE id = :id;`
	_, err := s.q.NamedExec(stmt, node)
	return err
}

func (s *postgresNodeStore) SetStatus(id int64, status models.NodeStatus) error {
	stmt := `UPDATE nodes SET status = $1 WHERE id = $2;`
	_, err := s.q.Exec(stmt, status, id)
	return err
}

func (s *postgresNodeStore) MarkInactiveBefore(cutoff time.Time) (int64, error) {
	stmt := `UPDATE nodes SET status = $1 WHERE status = $2 AND last_seen < $3;`
	res, err := s.q.Exec(stmt, models.NodeStatusInactive, models.NodeStatusActive, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
