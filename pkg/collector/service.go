// Package collector runs the perpetual poll/reconcile cycle that keeps the
// stored mesh topology in sync with the live network.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kabili207/mesh-map-server/pkg/models"
	"github.com/kabili207/mesh-map-server/pkg/olsr"
	"github.com/kabili207/mesh-map-server/pkg/poller"
	"github.com/kabili207/mesh-map-server/pkg/store"
)

// TxRunner provides the transactional scope for one cycle's database work.
type TxRunner interface {
	WithTransaction(fn func(*store.Stores) error) error
}

// AbortError is the loop's single fatal outcome, raised after the
// connection retry budget is exhausted.
type AbortError struct {
	Target   string
	Attempts int
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborting: %d failed attempt(s) to connect to OLSR daemon at %s", e.Attempts, e.Target)
}

// Service drives the connect, poll, reconcile, sleep cycle.
type Service struct {
	Poller *poller.Poller
	DB     TxRunner

	Host           string
	Port           int
	ConnectTimeout time.Duration
	Period         time.Duration
	NodesExpire    time.Duration
	LinksExpire    time.Duration
	MaxRetries     int
	RunOnce        bool

	// Dial overrides how the OLSR session is opened. Nil dials Host:Port.
	Dial func() (*olsr.Data, error)
}

func (s *Service) target() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *Service) dial() (*olsr.Data, error) {
	if s.Dial != nil {
		return s.Dial()
	}
	return olsr.Connect(s.Host, s.Port, s.ConnectTimeout)
}

// Run executes cycles until the context is canceled, a cycle's database
// work fails, or the connection retry budget is exhausted. With RunOnce it
// returns nil after the first completed cycle.
func (s *Service) Run(ctx context.Context) error {
	failures := 0
	for {
		start := time.Now()

		data, err := s.dial()
		if err != nil {
			failures++
			slog.Warn("connection to OLSR daemon failed",
				"target", s.target(), "attempt", failures, "max", s.MaxRetries, "error", err)
			if s.RunOnce || failures >= s.MaxRetries {
				return &AbortError{Target: s.target(), Attempts: failures}
			}
			// Wait out a full period before trying again.
			if err := sleep(ctx, s.Period); err != nil {
				return err
			}
			continue
		}
		failures = 0

		network := s.Poller.NetworkInfo(ctx, data.Nodes, data.Links)
		pollElapsed := time.Since(start)
		slog.Info("network polling finished",
			"nodes", len(network.Nodes), "links", len(network.Links),
			"errors", len(network.Errors), "elapsed", pollElapsed)

		now := time.Now()
		err = s.DB.WithTransaction(func(stores *store.Stores) error {
			if err := reconcile(stores, network, now, s.NodesExpire, s.LinksExpire); err != nil {
				return err
			}
			counters, err := json.Marshal(network.Counters)
			if err != nil {
				return err
			}
			return stores.Runs.Append(&models.CollectorRun{
				StartedAt:    start,
				NodeCount:    len(network.Nodes),
				LinkCount:    len(network.Links),
				ErrorCount:   len(network.Errors),
				PollSeconds:  pollElapsed.Seconds(),
				TotalSeconds: time.Since(start).Seconds(),
				Counters:     counters,
			})
		})
		if err != nil {
			return fmt.Errorf("reconciling cycle: %w", err)
		}

		totalElapsed := time.Since(start)
		slog.Info("cycle finished", "elapsed", totalElapsed)

		if s.RunOnce {
			return nil
		}

		// Sleep to the next cadence boundary so drift does not accumulate
		// across cycles.
		remaining := s.Period - totalElapsed%s.Period
		slog.Debug("sleeping until next cycle", "duration", remaining)
		if err := sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
