package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kabili207/mesh-map-server/pkg/poller"
)

// One-shot poll of a single node, for checking what a node reports without
// running the full collector.

type singleAddress struct {
	address string
	done    bool
}

func (s *singleAddress) Next() (string, bool) {
	if s.done {
		return "", false
	}
	s.done = true
	return s.address, true
}

func main() {
	timeout := flag.Duration("timeout", 15*time.Second, "Connect and read timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <address>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	address := flag.Arg(0)

	noLookup := func(ctx context.Context, address string) string { return "" }
	p := poller.New(noLookup, 1, *timeout, *timeout)

	results := p.Poll(context.Background(), &singleAddress{address: address})
	result := results[0]

	if result.Error != nil {
		fmt.Printf("%s: %s\n", result.Label(), result.Error)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result.SystemInfo, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting response: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
