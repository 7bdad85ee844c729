package olsr

import (
	"io"
	"strings"
	"sync"
	"testing"
)

func streamFrom(t *testing.T, lines ...string) *Data {
	t.Helper()
	return newData(io.NopCloser(strings.NewReader(strings.Join(lines, "\n"))))
}

func drainNodes(f *NodeFeed) []string {
	var out []string
	for {
		addr, ok := f.Next()
		if !ok {
			return out
		}
		out = append(out, addr)
	}
}

func drainLinks(f *LinkFeed) []Link {
	var out []Link
	for {
		link, ok := f.Next()
		if !ok {
			return out
		}
		out = append(out, link)
	}
}

func TestNodeFeedDeduplicates(t *testing.T) {
	d := streamFrom(t,
		`"10.1.1.1" -> "12345";`,
		`"10.1.1.2" -> "67890";`,
		`"10.1.1.1" -> "12345";`,
		`digraph topology {`,
	)

	nodes := drainNodes(d.Nodes)
	want := []string{"10.1.1.1", "10.1.1.2"}
	if len(nodes) != len(want) {
		t.Fatalf("got %d nodes %v, want %d", len(nodes), nodes, len(want))
	}
	for i := range want {
		if nodes[i] != want[i] {
			t.Errorf("nodes[%d] = %q, want %q", i, nodes[i], want[i])
		}
	}

	stats := d.Stats()
	if stats["duplicate node"] != 1 {
		t.Errorf("duplicate node count = %d, want 1", stats["duplicate node"])
	}
	if stats["nodes returned"] != 2 {
		t.Errorf("nodes returned = %d, want 2", stats["nodes returned"])
	}
	if stats["lines processed"] != 4 {
		t.Errorf("lines processed = %d, want 4", stats["lines processed"])
	}
}

func TestLinkFeed(t *testing.T) {
	d := streamFrom(t,
		`"10.1.1.1" -> "10.1.1.2"[label="2.500"];`,
		`"10.1.1.2" -> "10.1.1.1"[label="INFINITE"];`,
		`"10.1.1.1" -> "10.1.1.2"[label="3.000"];`,
		// HNA summary: CIDR destination must not match the link rule
		`"10.1.1.1" -> "10.40.0.0/16"[label="HNA"];`,
	)

	links := drainLinks(d.Links)
	if len(links) != 2 {
		t.Fatalf("got %d links %v, want 2", len(links), links)
	}
	if links[0].Source != "10.1.1.1" || links[0].Destination != "10.1.1.2" || links[0].Cost != 2.5 {
		t.Errorf("links[0] = %v, want 10.1.1.1 -> 10.1.1.2 (2.5)", links[0])
	}
	if links[1].Cost != InfiniteCost {
		t.Errorf("INFINITE label cost = %v, want %v", links[1].Cost, InfiniteCost)
	}

	stats := d.Stats()
	if stats["duplicate link"] != 1 {
		t.Errorf("duplicate link count = %d, want 1", stats["duplicate link"])
	}
	if stats["links returned"] != 2 {
		t.Errorf("links returned = %d, want 2", stats["links returned"])
	}
}

func TestLineMatchingBothRules(t *testing.T) {
	// A 10.x link line also satisfies the node rule, so one line can
	// produce both a node and a link.
	d := streamFrom(t, `"10.1.1.1" -> "10.1.1.2"[label="1.000"];`)

	links := drainLinks(d.Links)
	nodes := drainNodes(d.Nodes)
	if len(links) != 1 {
		t.Errorf("got %d links, want 1", len(links))
	}
	if len(nodes) != 1 || nodes[0] != "10.1.1.1" {
		t.Errorf("got nodes %v, want [10.1.1.1]", nodes)
	}
}

func TestFeedsEndAfterStream(t *testing.T) {
	d := streamFrom(t, `"10.1.1.1" -> "12345";`)

	drainNodes(d.Nodes)

	// Reading past the terminal state stays a no-op.
	for i := 0; i < 3; i++ {
		if _, ok := d.Nodes.Next(); ok {
			t.Fatal("Next() returned a value after end of stream")
		}
		if _, ok := d.Links.Next(); ok {
			t.Fatal("link Next() returned a value after end of stream")
		}
	}
}

func TestQueuedItemsSurviveFinish(t *testing.T) {
	// Draining nodes first reads the whole stream; links routed to the
	// other feed's queue must still be delivered afterwards.
	d := streamFrom(t,
		`"10.1.1.1" -> "10.1.1.2"[label="1.000"];`,
		`"10.1.1.2" -> "10.1.1.1"[label="2.000"];`,
	)

	if got := len(drainNodes(d.Nodes)); got != 2 {
		t.Fatalf("got %d nodes, want 2", got)
	}
	if got := len(drainLinks(d.Links)); got != 2 {
		t.Errorf("got %d links after node drain, want 2", got)
	}
}

func TestConcurrentConsumers(t *testing.T) {
	lines := []string{
		`"10.1.1.1" -> "10.1.1.2"[label="1.000"];`,
		`"10.1.1.2" -> "10.1.1.3"[label="2.000"];`,
		`"10.1.1.3" -> "10.1.1.1"[label="INFINITE"];`,
		`"11.2.3.4" -> "55555";`,
	}
	d := streamFrom(t, lines...)

	var wg sync.WaitGroup
	var nodes []string
	var links []Link
	wg.Add(2)
	go func() {
		defer wg.Done()
		nodes = drainNodes(d.Nodes)
	}()
	go func() {
		defer wg.Done()
		links = drainLinks(d.Links)
	}()
	wg.Wait()

	if len(nodes) != 4 {
		t.Errorf("got %d nodes %v, want 4", len(nodes), nodes)
	}
	if len(links) != 3 {
		t.Errorf("got %d links %v, want 3", len(links), links)
	}
}

// faultyReader delivers some data and then fails, like a TCP reset
// partway through the export.
type faultyReader struct {
	data string
	err  error
	pos  int
}

func (r *faultyReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, r.err
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func (r *faultyReader) Close() error { return nil }

func TestReadErrorEndsFeedsAndIsCounted(t *testing.T) {
	d := newData(&faultyReader{
		data: `"10.1.1.1" -> "10.1.1.2"[label="1.000"];` + "\n",
		err:  io.ErrUnexpectedEOF,
	})

	// The complete line before the fault is still delivered.
	if got := len(drainLinks(d.Links)); got != 1 {
		t.Fatalf("got %d links, want 1", got)
	}
	if got := len(drainNodes(d.Nodes)); got != 1 {
		t.Fatalf("got %d nodes, want 1", got)
	}
	if _, ok := d.Nodes.Next(); ok {
		t.Error("node feed still open after a read fault")
	}

	if got := d.Stats()["read errors"]; got != 1 {
		t.Errorf("read errors = %d, want 1", got)
	}
}

func TestNodeRuleIgnoresShortFirstOctet(t *testing.T) {
	// The node rule requires a two-digit first octet.
	d := streamFrom(t, `"1.2.3.4" -> "12345";`)
	if got := drainNodes(d.Nodes); len(got) != 0 {
		t.Errorf("got nodes %v, want none", got)
	}
}
