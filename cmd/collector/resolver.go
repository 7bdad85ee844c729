package main

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/kabili207/mesh-map-server/pkg/aredn"
)

// nameResolver maps node IP addresses back to mesh hostnames for labelling
// poll failures. Lookups go through the mesh DNS and are cached, since the
// same unreachable addresses tend to show up cycle after cycle.
type nameResolver struct {
	cache    *ttlcache.Cache[string, string]
	resolver *net.Resolver
}

func newNameResolver() *nameResolver {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](30 * time.Minute),
	)
	go cache.Start()
	return &nameResolver{
		cache:    cache,
		resolver: &net.Resolver{},
	}
}

// Lookup returns the hostname for an address, or "" when reverse DNS has
// nothing for it.
func (nr *nameResolver) Lookup(ctx context.Context, address string) string {
	if item := nr.cache.Get(address); item != nil {
		return item.Value()
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	names, err := nr.resolver.LookupAddr(ctx, address)
	name := ""
	if err == nil && len(names) > 0 {
		name = aredn.StripMeshDomain(strings.TrimSuffix(names[0], "."))
	}
	nr.cache.Set(address, name, ttlcache.DefaultTTL)
	return name
}

func (nr *nameResolver) Stop() {
	nr.cache.Stop()
}
