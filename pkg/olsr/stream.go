// Package olsr reads the link-state export of the OLSR daemon running on a
// mesh node. The daemon serves a dot-graph text dump over TCP; this package
// classifies each line into node addresses and links and exposes both as
// lazy feeds over a single shared connection.
package olsr

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"sync"
	"time"
)

var (
	nodeRegex = regexp.MustCompile(`^"(\d{2}\.\d{1,3}\.\d{1,3}\.\d{1,3})" -> "\d+`)
	// Records where the destination is in CIDR notation (HNA summaries) are
	// excluded by requiring a plain dotted-quad on both sides.
	linkRegex = regexp.MustCompile(
		`^"(10\.\d{1,3}\.\d{1,3}\.\d{1,3})" -> "(10\.\d{1,3}\.\d{1,3}\.\d{1,3})"\[label="(.+?)"\];`)
)

// InfiniteCost is the cost recorded for links the daemon labels INFINITE.
// A large finite value keeps cost comparisons total-ordered downstream.
const InfiniteCost = 99.99

// Link is a single edge from the OLSR export, identified by the IP
// addresses of its endpoints.
type Link struct {
	Source      string
	Destination string
	Cost        float64
}

func (l Link) String() string {
	return fmt.Sprintf("%s -> %s (%v)", l.Source, l.Destination, l.Cost)
}

// parseLinkLabel converts the label text of a link line into a cost.
func parseLinkLabel(label string) (float64, error) {
	if label == "INFINITE" {
		return InfiniteCost, nil
	}
	return strconv.ParseFloat(label, 64)
}

// ConnectError reports a failure to reach the OLSR daemon. The service loop
// decides the retry policy; this package never retries.
type ConnectError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to OLSR daemon %s:%d: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Data wraps one OLSR export session. The Nodes and Links feeds share the
// underlying connection: a single mutex guards the read loop so only one
// consumer advances the stream at a time, and each read routes its line to
// the matching feed's local queue.
type Data struct {
	mu       sync.Mutex
	conn     io.ReadCloser
	scanner  *bufio.Scanner
	finished bool

	Nodes *NodeFeed
	Links *LinkFeed

	nodesSeen map[string]struct{}
	linksSeen map[[2]string]struct{}
	stats     map[string]int
}

// Connect dials the OLSR daemon and returns a Data session ready to be
// consumed. A dial exceeding timeout or any other dial fault is returned as
// a *ConnectError.
func Connect(host string, port int, timeout time.Duration) (*Data, error) {
	slog.Debug("connecting to OLSR daemon", "host", host, "port", port)
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		slog.Error("failed to connect to OLSR daemon", "host", host, "port", port, "error", err)
		return nil, &ConnectError{Host: host, Port: port, Err: err}
	}
	return newData(conn), nil
}

// NewFromReader wraps an already-open export stream. The returned Data owns
// rc and closes it at end of stream.
func NewFromReader(rc io.ReadCloser) *Data {
	return newData(rc)
}

func newData(conn io.ReadCloser) *Data {
	d := &Data{
		conn:      conn,
		scanner:   bufio.NewScanner(conn),
		nodesSeen: make(map[string]struct{}),
		linksSeen: make(map[[2]string]struct{}),
		stats:     make(map[string]int),
	}
	d.Nodes = &NodeFeed{data: d}
	d.Links = &LinkFeed{data: d}
	return d
}

// Stats returns a copy of the session's diagnostic counters.
func (d *Data) Stats() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.stats))
	for k, v := range d.stats {
		out[k] = v
	}
	return out
}

// readLine pulls the next line from the connection and routes any node or
// link record to the matching feed queue. Callers must hold d.mu. Returns
// false once the stream has ended.
func (d *Data) readLine() bool {
	if d.finished {
		return false
	}

	if !d.scanner.Scan() {
		d.finished = true
		d.conn.Close()

		// A nil scanner error is a clean end of stream; anything else means
		// the export was cut short and downstream sees a partial topology.
		if err := d.scanner.Err(); err != nil {
			d.stats["read errors"]++
			slog.Error("OLSR stream ended with a read error, data may be truncated",
				"lines", d.stats["lines processed"], "error", err)
		}

		slog.Info("OLSR data statistics", "stats", d.stats)
		if d.stats["nodes returned"] == 0 {
			slog.Warn("failed to find any nodes in OLSR data", "lines", d.stats["lines processed"])
		}
		if d.stats["links returned"] == 0 {
			slog.Warn("failed to find any links in OLSR data", "lines", d.stats["lines processed"])
		}
		return false
	}

	line := d.scanner.Text()
	d.stats["lines processed"]++

	// A line may match the node rule, the link rule, both, or neither.
	if addr := d.matchNode(line); addr != "" {
		d.Nodes.queue = append(d.Nodes.queue, addr)
	}
	if link, ok := d.matchLink(line); ok {
		d.Links.queue = append(d.Links.queue, link)
	}
	return true
}

// matchNode extracts a node address from a line, dropping duplicates seen
// earlier in the session.
func (d *Data) matchNode(line string) string {
	m := nodeRegex.FindStringSubmatch(line)
	if m == nil {
		return ""
	}

	addr := m[1]
	if _, seen := d.nodesSeen[addr]; seen {
		d.stats["duplicate node"]++
		return ""
	}
	d.nodesSeen[addr] = struct{}{}
	d.stats["nodes returned"]++
	return addr
}

// matchLink extracts a link from a line, dropping duplicate
// (source, destination) pairs seen earlier in the session.
func (d *Data) matchLink(line string) (Link, bool) {
	m := linkRegex.FindStringSubmatch(line)
	if m == nil {
		return Link{}, false
	}

	key := [2]string{m[1], m[2]}
	if _, seen := d.linksSeen[key]; seen {
		d.stats["duplicate link"]++
		return Link{}, false
	}

	cost, err := parseLinkLabel(m[3])
	if err != nil {
		slog.Warn("unparseable link label in OLSR data", "line", line, "error", err)
		return Link{}, false
	}

	d.linksSeen[key] = struct{}{}
	d.stats["links returned"]++
	return Link{Source: m[1], Destination: m[2], Cost: cost}, true
}

// NodeFeed yields the unique node addresses found in the export.
type NodeFeed struct {
	data  *Data
	queue []string
}

// Next returns the next node address, reading more of the stream as needed.
// It returns false once the stream has ended and the queue is drained.
func (f *NodeFeed) Next() (string, bool) {
	f.data.mu.Lock()
	defer f.data.mu.Unlock()

	for len(f.queue) == 0 {
		if !f.data.readLine() {
			return "", false
		}
	}
	addr := f.queue[0]
	f.queue = f.queue[1:]
	return addr, true
}

// LinkFeed yields the unique links found in the export.
type LinkFeed struct {
	data  *Data
	queue []Link
}

// Next returns the next link, reading more of the stream as needed. It
// returns false once the stream has ended and the queue is drained.
func (f *LinkFeed) Next() (Link, bool) {
	f.data.mu.Lock()
	defer f.data.mu.Unlock()

	for len(f.queue) == 0 {
		if !f.data.readLine() {
			return Link{}, false
		}
	}
	link := f.queue[0]
	f.queue = f.queue[1:]
	return link, true
}
