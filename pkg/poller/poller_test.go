package poller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// sliceSource feeds addresses from a fixed slice.
type sliceSource struct {
	addrs []string
	pos   int
}

func (s *sliceSource) Next() (string, bool) {
	if s.pos >= len(s.addrs) {
		return "", false
	}
	addr := s.addrs[s.pos]
	s.pos++
	return addr, true
}

func noLookup(ctx context.Context, address string) string { return "" }

func testPoller() *Poller {
	return New(noLookup, 10, 2*time.Second, 2*time.Second)
}

func sysinfoDoc(name, ip string) string {
	return fmt.Sprintf(`{
		"node": %q,
		"api_version": "1.11",
		"interfaces": [{"name": "wlan0", "mac": "00:11:22:33:44:55", "ip": %q}]
	}`, name, ip)
}

func serveSysinfo(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().String()
}

func TestPollSuccess(t *testing.T) {
	addr := serveSysinfo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cgi-bin/sysinfo.json" {
			t.Errorf("path = %q, want /cgi-bin/sysinfo.json", r.URL.Path)
		}
		if r.URL.Query().Get("services_local") != "1" || r.URL.Query().Get("link_info") != "1" {
			t.Errorf("query = %q, want services_local=1 and link_info=1", r.URL.RawQuery)
		}
		fmt.Fprint(w, sysinfoDoc("test-node", "10.1.1.1"))
	})

	results := testPoller().Poll(context.Background(), &sliceSource{addrs: []string{addr}})
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Error != nil {
		t.Fatalf("unexpected error: %v", r.Error)
	}
	if r.Name != "test-node" || r.SystemInfo == nil {
		t.Errorf("result = %+v, want populated system info", r)
	}
}

func TestPollErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    PollingError
	}{
		{
			"http_error",
			func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "node is rebooting", http.StatusServiceUnavailable)
			},
			ErrorHTTP,
		},
		{
			"invalid_response",
			func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "<html>not json</html>")
			},
			ErrorInvalidResponse,
		},
		{
			"parse_error",
			func(w http.ResponseWriter, r *http.Request) {
				// Valid JSON, but not a usable node document.
				fmt.Fprint(w, `{"unexpected": true}`)
			},
			ErrorParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := serveSysinfo(t, tt.handler)
			results := testPoller().Poll(context.Background(), &sliceSource{addrs: []string{addr}})
			if len(results) != 1 {
				t.Fatalf("got %d results, want 1", len(results))
			}
			if results[0].Error == nil {
				t.Fatal("expected an error result")
			}
			if results[0].Error.Kind != tt.want {
				t.Errorf("error kind = %v, want %v", results[0].Error.Kind, tt.want)
			}
		})
	}
}

func TestPollConnectionRefused(t *testing.T) {
	// Grab a free port and close the listener so the connection is refused.
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	results := testPoller().Poll(context.Background(), &sliceSource{addrs: []string{addr}})
	if len(results) != 1 || results[0].Error == nil {
		t.Fatalf("results = %+v, want one error result", results)
	}
	if results[0].Error.Kind != ErrorConnection {
		t.Errorf("error kind = %v, want %v", results[0].Error.Kind, ErrorConnection)
	}
}

func TestPollTimeout(t *testing.T) {
	addr := serveSysinfo(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	})

	p := New(noLookup, 10, 200*time.Millisecond, 200*time.Millisecond)
	results := p.Poll(context.Background(), &sliceSource{addrs: []string{addr}})
	if len(results) != 1 || results[0].Error == nil {
		t.Fatalf("results = %+v, want one error result", results)
	}
	if results[0].Error.Kind != ErrorTimeout {
		t.Errorf("error kind = %v, want %v", results[0].Error.Kind, ErrorTimeout)
	}
}

func TestPollFailureUsesNameResolver(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	lookup := func(ctx context.Context, address string) string { return "resolved-name" }
	p := New(lookup, 10, time.Second, time.Second)
	results := p.Poll(context.Background(), &sliceSource{addrs: []string{addr}})
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Name != "resolved-name" {
		t.Errorf("Name = %q, want name from resolver", results[0].Name)
	}
}

func TestPollIsolatesFailures(t *testing.T) {
	good := serveSysinfo(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sysinfoDoc("good-node", "10.1.1.1"))
	})
	bad := serveSysinfo(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	})

	results := testPoller().Poll(context.Background(), &sliceSource{addrs: []string{good, bad}})
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	var successes, failures int
	for _, r := range results {
		if r.Error != nil {
			failures++
		} else {
			successes++
		}
	}
	if successes != 1 || failures != 1 {
		t.Errorf("successes = %d, failures = %d, want 1 and 1", successes, failures)
	}
}

func TestPollBoundsConcurrency(t *testing.T) {
	const limit = 2
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	addrs := make([]string, 6)
	for i := range addrs {
		addrs[i] = serveSysinfo(t, func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			time.Sleep(30 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			fmt.Fprint(w, sysinfoDoc("n", "10.1.1.1"))
		})
	}

	p := New(noLookup, limit, time.Second, time.Second)
	results := p.Poll(context.Background(), &sliceSource{addrs: addrs})
	if len(results) != len(addrs) {
		t.Fatalf("got %d results, want %d", len(results), len(addrs))
	}

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight > limit {
		t.Errorf("max in-flight requests = %d, want <= %d", maxInFlight, limit)
	}
}
