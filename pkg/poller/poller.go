// Package poller queries the status endpoint of every discovered mesh node
// and assembles the combined node/link view of the network.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kabili207/mesh-map-server/pkg/aredn"
)

// PollingError classifies why polling a node failed.
type PollingError int

const (
	ErrorConnection PollingError = iota + 1
	ErrorTimeout
	ErrorHTTP
	ErrorInvalidResponse
	ErrorParse
)

func (e PollingError) String() string {
	switch e {
	case ErrorConnection:
		return "Connection Error"
	case ErrorTimeout:
		return "Timeout Error"
	case ErrorHTTP:
		return "HTTP Error"
	case ErrorInvalidResponse:
		return "Invalid Response"
	case ErrorParse:
		return "Parse Error"
	default:
		return fmt.Sprintf("PollingError(%d)", int(e))
	}
}

// NodeError is the typed failure attached to a NodeResult.
type NodeError struct {
	Kind     PollingError
	Response string
}

func (e *NodeError) Error() string {
	resp := e.Response
	if len(resp) > 120 {
		resp = resp[:120] + "..."
	}
	return fmt.Sprintf("%s (%q)", e.Kind, resp)
}

// NodeResult is the outcome of polling one node. Exactly one of SystemInfo
// or Error is set.
type NodeResult struct {
	IPAddress  string
	Name       string
	SystemInfo *aredn.SystemInfo
	Error      *NodeError
}

// Label identifies the node in logs and error reports.
func (r *NodeResult) Label() string {
	name := r.Name
	if name == "" {
		name = "name unknown"
	}
	return fmt.Sprintf("%s (%s)", name, r.IPAddress)
}

// AddressSource is a lazy sequence of node addresses, typically still being
// filled by the OLSR stream while polling is underway.
type AddressSource interface {
	Next() (string, bool)
}

// LookupName resolves an address to a display name for error reports. It
// must be total: failures return an empty name, never an error.
type LookupName func(ctx context.Context, address string) string

// Poller fetches sysinfo.json from mesh nodes with bounded concurrency.
type Poller struct {
	MaxConnections int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	LookupName     LookupName
}

// New returns a Poller with the given name resolver and limits.
func New(lookupName LookupName, maxConnections int, connectTimeout, readTimeout time.Duration) *Poller {
	return &Poller{
		MaxConnections: maxConnections,
		ConnectTimeout: connectTimeout,
		ReadTimeout:    readTimeout,
		LookupName:     lookupName,
	}
}

// Poll fetches the status of every address drawn from the source. At most
// MaxConnections fetches are in flight at once; excess tasks wait rather
// than being dropped. One result is returned per address, failures included.
func (p *Poller) Poll(ctx context.Context, addresses AddressSource) []NodeResult {
	start := time.Now()

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: p.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: p.ReadTimeout,
		MaxIdleConnsPerHost:   1,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   p.ConnectTimeout + p.ReadTimeout,
	}

	var (
		mu      sync.Mutex
		results []NodeResult
	)
	var group errgroup.Group
	group.SetLimit(p.MaxConnections)

	for {
		address, ok := addresses.Next()
		if !ok {
			break
		}
		slog.Debug("polling node", "address", address)
		group.Go(func() error {
			result := p.pollNode(ctx, client, address)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			// Individual failures are recorded per node and must never
			// abort sibling fetches.
			return nil
		})
	}
	group.Wait()

	slog.Info("querying nodes finished", "count", len(results), "elapsed", time.Since(start))
	return results
}

// pollNode fetches and decodes one node's status document.
func (p *Poller) pollNode(ctx context.Context, client *http.Client, address string) NodeResult {
	hostPort := address
	if !strings.Contains(address, ":") {
		hostPort = net.JoinHostPort(address, "8080")
	}
	url := fmt.Sprintf("http://%s/cgi-bin/sysinfo.json?services_local=1&link_info=1", hostPort)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return p.errorResult(ctx, address, ErrorConnection, err.Error())
	}

	resp, err := client.Do(req)
	if err != nil {
		return p.transportError(ctx, address, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.transportError(ctx, address, err)
	}
	// Invalid byte sequences (seen with pasted Unicode in descriptions)
	// are replaced rather than failing the decode.
	text := strings.ToValidUTF8(string(body), "�")

	if resp.StatusCode != http.StatusOK {
		return p.errorResult(ctx, address, ErrorHTTP, fmt.Sprintf("%d: %s", resp.StatusCode, text))
	}

	if !json.Valid([]byte(text)) {
		return p.errorResult(ctx, address, ErrorInvalidResponse, text)
	}

	info, err := aredn.ParseSystemInfo([]byte(text))
	if err != nil {
		slog.Error("parsing node information failed", "address", address, "error", err)
		return p.errorResult(ctx, address, ErrorParse, text)
	}

	slog.Debug("finished polling node", "node", info.NodeName, "address", address)
	return NodeResult{
		IPAddress:  hostOnly(address),
		Name:       info.NodeName,
		SystemInfo: info,
	}
}

// transportError classifies a transport-level fault. Timeouts are detected
// first because several error types also satisfy the timeout interface.
func (p *Poller) transportError(ctx context.Context, address string, err error) NodeResult {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return p.errorResult(ctx, address, ErrorTimeout, "timeout error")
	}
	return p.errorResult(ctx, address, ErrorConnection, err.Error())
}

func (p *Poller) errorResult(ctx context.Context, address string, kind PollingError, response string) NodeResult {
	result := NodeResult{
		IPAddress: hostOnly(address),
		Name:      p.LookupName(ctx, hostOnly(address)),
		Error:     &NodeError{Kind: kind, Response: response},
	}
	slog.Error("polling node failed", "node", result.Label(), "kind", kind.String(), "error", result.Error)
	return result
}

// hostOnly strips an explicit port from an address.
func hostOnly(address string) string {
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return address
}
