package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// NodeStatus is the lifecycle state of a persisted node.
type NodeStatus string

const (
	NodeStatusActive   NodeStatus = "ACTIVE"
	NodeStatusInactive NodeStatus = "INACTIVE"
)

// Node represents a mesh node stored in the database. Identity is the
// (wlan_mac_address, name) pair, with fallback matching handled by the
// collector.
type Node struct {
	ID              int64           `db:"id"`
	Name            string          `db:"name"`
	WlanIP          string          `db:"wlan_ip"`
	WlanMACAddress  string          `db:"wlan_mac_address"`
	Description     string          `db:"description"`
	Model           string          `db:"model"`
	BoardID         string          `db:"board_id"`
	FirmwareVersion string          `db:"firmware_version"`
	FirmwareMfg     string          `db:"firmware_mfg"`
	APIVersion      string          `db:"api_version"`
	Latitude        *float64        `db:"latitude"`
	Longitude       *float64        `db:"longitude"`
	GridSquare      string          `db:"grid_square"`
	SSID            string          `db:"ssid"`
	Channel         string          `db:"channel"`
	ChannelBW       string          `db:"channel_bandwidth"`
	UpTime          string          `db:"up_time"`
	LoadAverages    pq.Float64Array `db:"load_averages"`
	LinkCount       int             `db:"link_count"`
	Status          NodeStatus      `db:"status"`
	LastSeen        time.Time       `db:"last_seen"`
}

func (n *Node) String() string {
	return fmt.Sprintf("%s (%s)", n.Name, n.WlanIP)
}

// HasLocation returns true if the node has location information.
func (n *Node) HasLocation() bool {
	return n.Latitude != nil && n.Longitude != nil
}
