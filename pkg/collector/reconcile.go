package collector

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/kabili207/mesh-map-server/pkg/aredn"
	"github.com/kabili207/mesh-map-server/pkg/geo"
	"github.com/kabili207/mesh-map-server/pkg/models"
	"github.com/kabili207/mesh-map-server/pkg/poller"
	"github.com/kabili207/mesh-map-server/pkg/store"
)

// reconcile applies one cycle's network snapshot to the database: node
// identity matching, link lifecycle, and the expiry sweep. Counts of the
// work done are merged into network.Counters. The caller provides the
// transactional scope.
func reconcile(stores *store.Stores, network *poller.Network, now time.Time, nodesExpire, linksExpire time.Duration) error {
	if err := saveNodes(stores.Nodes, network, now); err != nil {
		return fmt.Errorf("saving nodes: %w", err)
	}
	if err := saveLinks(stores, network, now); err != nil {
		return fmt.Errorf("saving links: %w", err)
	}
	// Expiry runs after the refresh so a long idle gap cannot expire data
	// that this cycle just touched.
	if err := expireData(stores, network, now, nodesExpire, linksExpire); err != nil {
		return fmt.Errorf("expiring stale records: %w", err)
	}
	return nil
}

// saveNodes writes every successfully polled node, matching against
// existing records by WLAN MAC address and name.
func saveNodes(nodes store.NodeStore, network *poller.Network, now time.Time) error {
	count := network.Counters
	for _, info := range network.Nodes {
		count["nodes total"]++

		node, err := bestMatch(nodes, info)
		if err != nil {
			return err
		}
		if node == nil {
			slog.Debug("saving new node", "node", info.String())
			count["nodes added"]++
			node = &models.Node{}
		} else {
			slog.Debug("updating node", "node", info.String(), "id", node.ID)
			count["nodes updated"]++
		}

		node.Name = info.NodeName
		node.WlanIP = info.WlanIP
		node.WlanMACAddress = info.WlanMAC
		node.Description = info.Description
		node.Model = info.Model
		node.BoardID = info.BoardID
		node.FirmwareVersion = info.FirmwareVersion
		node.FirmwareMfg = info.FirmwareMfg
		node.APIVersion = info.APIVersion
		node.Latitude = info.Latitude
		node.Longitude = info.Longitude
		node.GridSquare = info.GridSquare
		node.SSID = info.SSID
		node.Channel = info.Channel
		node.ChannelBW = info.ChannelBW
		node.UpTime = info.UpTime
		node.LoadAverages = pq.Float64Array(info.LoadAverages)
		if node.LoadAverages == nil {
			node.LoadAverages = pq.Float64Array{}
		}
		node.LinkCount = info.LinkCount
		node.Status = models.NodeStatusActive
		node.LastSeen = now

		if err := nodes.Save(node); err != nil {
			return err
		}
	}

	slog.Info("nodes written to database",
		"total", count["nodes total"], "added", count["nodes added"], "updated", count["nodes updated"])
	return nil
}

// bestMatch finds the database record for a polled node using three
// descending-priority lookups: exact MAC and name, ACTIVE with the same
// MAC, ACTIVE with the same name. The first non-empty match set wins; nil
// means the node is new.
func bestMatch(nodes store.NodeStore, info *aredn.SystemInfo) (*models.Node, error) {
	queries := []func() ([]*models.Node, error){
		func() ([]*models.Node, error) { return nodes.GetByMACAndName(info.WlanMAC, info.NodeName) },
		func() ([]*models.Node, error) { return nodes.GetActiveByMAC(info.WlanMAC) },
		func() ([]*models.Node, error) { return nodes.GetActiveByName(info.NodeName) },
	}
	for _, query := range queries {
		matches, err := query()
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			continue
		}
		return keepMostRecent(nodes, matches)
	}
	return nil, nil
}

// keepMostRecent returns the most recently seen record and demotes any
// other still-ACTIVE match, collapsing stale duplicates.
func keepMostRecent(nodes store.NodeStore, matches []*models.Node) (*models.Node, error) {
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].LastSeen.After(matches[j].LastSeen)
	})
	for _, stale := range matches[1:] {
		if stale.Status != models.NodeStatusActive {
			continue
		}
		slog.Debug("marking older duplicate inactive", "node", stale.String(), "id", stale.ID)
		if err := nodes.SetStatus(stale.ID, models.NodeStatusInactive); err != nil {
			return nil, err
		}
	}
	return matches[0], nil
}

// saveLinks resets the freshness ladder, then upserts every merged link
// whose endpoints resolve to ACTIVE nodes.
func saveLinks(stores *store.Stores, network *poller.Network, now time.Time) error {
	count := network.Counters

	// Demote all CURRENT links to RECENT so only links seen this cycle
	// end up CURRENT.
	if _, err := stores.Links.DemoteCurrent(); err != nil {
		return err
	}

	for _, li := range network.Links {
		count["links total"]++

		source, err := stores.Nodes.GetActiveByIP(li.SourceIP)
		if err != nil {
			return err
		}
		destination, err := stores.Nodes.GetActiveByIP(li.DestinationIP)
		if err != nil {
			return err
		}
		if source == nil || destination == nil {
			slog.Warn("failed to save link, endpoint missing from database",
				"source", li.SourceIP, "destination", li.DestinationIP)
			count["link errors"]++
			continue
		}

		link, err := stores.Links.GetByEndpoints(source.ID, destination.ID)
		if err != nil {
			return err
		}
		if link == nil {
			count["links added"]++
			link = &models.Link{SourceID: source.ID, DestinationID: destination.ID}
		} else {
			count["links updated"]++
		}

		link.OlsrCost = li.OlsrCost
		link.Status = models.LinkStatusCurrent
		link.LastSeen = now

		if source.HasLocation() && destination.HasLocation() {
			count["links with location"]++
			distance := geo.Distance(*source.Latitude, *source.Longitude,
				*destination.Latitude, *destination.Longitude)
			bearing := geo.Bearing(*source.Latitude, *source.Longitude,
				*destination.Latitude, *destination.Longitude)
			link.Distance = &distance
			link.Bearing = &bearing
		} else {
			count["links missing location"]++
			link.Distance = nil
			link.Bearing = nil
		}

		if err := stores.Links.Save(link); err != nil {
			return err
		}
	}

	slog.Info("links written to database",
		"total", count["links total"], "added", count["links added"],
		"updated", count["links updated"], "errors", count["link errors"])
	return nil
}

// expireData demotes links and nodes that have not been seen within their
// configured windows.
func expireData(stores *store.Stores, network *poller.Network, now time.Time, nodesExpire, linksExpire time.Duration) error {
	linkCutoff := now.Add(-linksExpire)
	linkCount, err := stores.Links.MarkInactiveBefore(linkCutoff)
	if err != nil {
		return err
	}
	network.Counters["links expired"] = int(linkCount)
	slog.Info("marked stale links inactive", "count", linkCount, "cutoff", linkCutoff)

	nodeCutoff := now.Add(-nodesExpire)
	nodeCount, err := stores.Nodes.MarkInactiveBefore(nodeCutoff)
	if err != nil {
		return err
	}
	network.Counters["nodes expired"] = int(nodeCount)
	slog.Info("marked stale nodes inactive", "count", nodeCount, "cutoff", nodeCutoff)
	return nil
}
