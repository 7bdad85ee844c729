package poller

import (
	"context"
	"log/slog"

	"github.com/kabili207/mesh-map-server/pkg/aredn"
	"github.com/kabili207/mesh-map-server/pkg/olsr"
)

// LinkSource is a lazy sequence of OLSR links.
type LinkSource interface {
	Next() (olsr.Link, bool)
}

// Network is the combined result of one crawl: the nodes that answered,
// the merged link set, and the nodes that failed to answer.
type Network struct {
	Nodes    []*aredn.SystemInfo
	Links    []aredn.LinkInfo
	Errors   []NodeResult
	Counters map[string]int
}

// NetworkInfo polls every node from the address source while draining the
// OLSR link source, then merges both views. Self-reported links win when a
// node provides them; the OLSR data backfills cost for pre-1.9 firmware and
// stands in entirely for nodes that report no links. The merge is
// independent of fetch completion order.
func (p *Poller) NetworkInfo(ctx context.Context, addresses AddressSource, links LinkSource) *Network {
	// Start polling the nodes, and drain the OLSR links while that runs.
	resultsCh := make(chan []NodeResult, 1)
	go func() {
		resultsCh <- p.Poll(ctx, addresses)
	}()

	var olsrLinks []olsr.Link
	for {
		link, ok := links.Next()
		if !ok {
			break
		}
		olsrLinks = append(olsrLinks, link)
	}
	slog.Info("OLSR link count", "count", len(olsrLinks))

	results := <-resultsCh
	return mergeNetwork(results, olsrLinks)
}

// mergeNetwork reconciles per-node reported links with the OLSR link set.
func mergeNetwork(results []NodeResult, olsrLinks []olsr.Link) *Network {
	// Node name lookups by IP, for cross-referencing the OLSR data.
	ipNameMap := make(map[string]string)
	for _, r := range results {
		if r.Error == nil && r.Name != "" && r.IPAddress != "" {
			ipNameMap[r.IPAddress] = r.Name
		}
	}

	// OLSR links by source IP, for nodes with older firmware.
	olsrBySource := make(map[string][]olsr.Link)
	for _, link := range olsrLinks {
		olsrBySource[link.Source] = append(olsrBySource[link.Source], link)
	}

	network := &Network{Counters: make(map[string]int)}
	count := network.Counters
	for i := range results {
		result := &results[i]
		count["node results"]++

		if result.Error != nil {
			count["errors (total)"]++
			count["errors ("+result.Error.Kind.String()+")"]++
			network.Errors = append(network.Errors, *result)
			continue
		}

		info := result.SystemInfo
		network.Nodes = append(network.Nodes, info)

		if len(info.Links) > 0 {
			// Use the node's own link information (newer firmware).
			count["using link info json"]++
			if info.APIVersionBefore(1, 9) {
				// Pre-1.9 firmware reports links but not their cost.
				count["using olsr for link cost"]++
				populateCostFromOLSR(info.Links, olsrBySource[result.IPAddress])
			}
			info.LinkCount = len(info.Links)
			network.Links = append(network.Links, info.Links...)
			continue
		}

		// Build links from the OLSR data (firmware before API 1.7).
		count["using olsr for link data"]++
		info.LinkCount = 0
		nodeLinks, ok := olsrBySource[result.IPAddress]
		if !ok {
			slog.Warn("no OLSR links found for node", "node", info.String(), "address", result.IPAddress)
			continue
		}
		for _, link := range nodeLinks {
			info.LinkCount++
			destName, ok := ipNameMap[link.Destination]
			if !ok {
				slog.Warn("OLSR destination not found in node information, skipping", "link", link.String())
				continue
			}
			cost := link.Cost
			network.Links = append(network.Links, aredn.LinkInfo{
				Source:        info.NodeName,
				SourceIP:      result.IPAddress,
				Destination:   destName,
				DestinationIP: link.Destination,
				Type:          aredn.LinkTypeUnknown,
				Interface:     "unknown",
				OlsrCost:      &cost,
			})
		}
	}

	slog.Info("network info summary", "counters", count)
	return network
}

// populateCostFromOLSR copies OLSR costs onto self-reported links, matching
// by destination IP. Links without an OLSR match keep their cost unset.
func populateCostFromOLSR(links []aredn.LinkInfo, olsrLinks []olsr.Link) {
	if len(olsrLinks) == 0 {
		slog.Warn("no OLSR link data found for node", "node", links[0].Source)
		return
	}
	costByDestination := make(map[string]float64, len(olsrLinks))
	for _, link := range olsrLinks {
		costByDestination[link.Destination] = link.Cost
	}
	for i := range links {
		cost, ok := costByDestination[links[i].DestinationIP]
		if !ok {
			slog.Debug("no OLSR cost for reported link",
				"source", links[i].Source, "destination", links[i].DestinationIP)
			continue
		}
		links[i].OlsrCost = &cost
	}
}
