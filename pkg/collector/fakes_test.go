package collector

import (
	"sort"
	"sync"
	"time"

	"github.com/kabili207/mesh-map-server/pkg/models"
	"github.com/kabili207/mesh-map-server/pkg/store"
)

// In-memory store fakes for exercising reconciliation without Postgres.

type fakeNodeStore struct {
	nodes  []*models.Node
	nextID int64
}

func (f *fakeNodeStore) byLastSeen(match func(*models.Node) bool) []*models.Node {
	var out []*models.Node
	for _, n := range f.nodes {
		if match(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

func (f *fakeNodeStore) GetByID(id int64) (*models.Node, error) {
	for _, n := range f.nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, nil
}

func (f *fakeNodeStore) GetByMACAndName(mac, name string) ([]*models.Node, error) {
	return f.byLastSeen(func(n *models.Node) bool {
		return n.WlanMACAddress == mac && n.Name == name
	}), nil
}

func (f *fakeNodeStore) GetActiveByMAC(mac string) ([]*models.Node, error) {
	return f.byLastSeen(func(n *models.Node) bool {
		return n.WlanMACAddress == mac && n.Status == models.NodeStatusActive
	}), nil
}

func (f *fakeNodeStore) GetActiveByName(name string) ([]*models.Node, error) {
	return f.byLastSeen(func(n *models.Node) bool {
		return n.Name == name && n.Status == models.NodeStatusActive
	}), nil
}

func (f *fakeNodeStore) GetActiveByIP(ip string) (*models.Node, error) {
	matches := f.byLastSeen(func(n *models.Node) bool {
		return n.WlanIP == ip && n.Status == models.NodeStatusActive
	})
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func (f *fakeNodeStore) GetAllActive() ([]*models.Node, error) {
	return f.byLastSeen(func(n *models.Node) bool {
		return n.Status == models.NodeStatusActive
	}), nil
}

func (f *fakeNodeStore) Save(node *models.Node) error {
	if node.ID == 0 {
		f.nextID++
		node.ID = f.nextID
		f.nodes = append(f.nodes, node)
		return nil
	}
	for i, n := range f.nodes {
		if n.ID == node.ID {
			f.nodes[i] = node
			return nil
		}
	}
	f.nodes = append(f.nodes, node)
	return nil
}

func (f *fakeNodeStore) SetStatus(id int64, status models.NodeStatus) error {
	for _, n := range f.nodes {
		if n.ID == id {
			n.Status = status
		}
	}
	return nil
}

func (f *fakeNodeStore) MarkInactiveBefore(cutoff time.Time) (int64, error) {
	var count int64
	for _, n := range f.nodes {
		if n.Status == models.NodeStatusActive && n.LastSeen.Before(cutoff) {
			n.Status = models.NodeStatusInactive
			count++
		}
	}
	return count, nil
}

type fakeLinkStore struct {
	links  []*models.Link
	nextID int64
}

func (f *fakeLinkStore) GetByEndpoints(sourceID, destinationID int64) (*models.Link, error) {
	for _, l := range f.links {
		if l.SourceID == sourceID && l.DestinationID == destinationID {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeLinkStore) GetViews() ([]*models.LinkView, error) { return nil, nil }

func (f *fakeLinkStore) GetViewsBySource(sourceID int64) ([]*models.LinkView, error) {
	return nil, nil
}

func (f *fakeLinkStore) Save(link *models.Link) error {
	if link.ID == 0 {
		f.nextID++
		link.ID = f.nextID
		f.links = append(f.links, link)
		return nil
	}
	for i, l := range f.links {
		if l.ID == link.ID {
			f.links[i] = link
			return nil
		}
	}
	f.links = append(f.links, link)
	return nil
}

func (f *fakeLinkStore) DemoteCurrent() (int64, error) {
	var count int64
	for _, l := range f.links {
		if l.Status == models.LinkStatusCurrent {
			l.Status = models.LinkStatusRecent
			count++
		}
	}
	return count, nil
}

func (f *fakeLinkStore) MarkInactiveBefore(cutoff time.Time) (int64, error) {
	var count int64
	for _, l := range f.links {
		if l.Status == models.LinkStatusRecent && l.LastSeen.Before(cutoff) {
			l.Status = models.LinkStatusInactive
			count++
		}
	}
	return count, nil
}

type fakeRunStore struct {
	mu   sync.Mutex
	runs []*models.CollectorRun
}

func (f *fakeRunStore) Append(run *models.CollectorRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRunStore) GetRecent(limit int) ([]*models.CollectorRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs, nil
}

func (f *fakeRunStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

type fakeDB struct {
	nodes *fakeNodeStore
	links *fakeLinkStore
	runs  *fakeRunStore
	fail  error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		nodes: &fakeNodeStore{},
		links: &fakeLinkStore{},
		runs:  &fakeRunStore{},
	}
}

func (d *fakeDB) stores() *store.Stores {
	return &store.Stores{Nodes: d.nodes, Links: d.links, Runs: d.runs}
}

func (d *fakeDB) WithTransaction(fn func(*store.Stores) error) error {
	if d.fail != nil {
		return d.fail
	}
	return fn(d.stores())
}
