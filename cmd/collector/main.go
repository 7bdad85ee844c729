package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MatusOllah/slogcolor"
	"github.com/kabili207/mesh-map-server/pkg/collector"
	"github.com/kabili207/mesh-map-server/pkg/config"
	"github.com/kabili207/mesh-map-server/pkg/poller"
	"github.com/kabili207/mesh-map-server/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "Path to the configuration file")
	runOnce := flag.Bool("once", false, "Run a single polling cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("error loading configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	db, err := store.Connect(cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.DB)
	if err != nil {
		slog.Error("error connecting to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		slog.Error("error applying migrations", "error", err)
		os.Exit(1)
	}

	resolver := newNameResolver()
	defer resolver.Stop()

	svc := &collector.Service{
		Poller: poller.New(
			resolver.Lookup,
			cfg.Poller.MaxConnections,
			time.Duration(cfg.Poller.ConnectTimeoutSeconds)*time.Second,
			time.Duration(cfg.Poller.ReadTimeoutSeconds)*time.Second,
		),
		DB:             db,
		Host:           cfg.Poller.LocalNode,
		Port:           cfg.Poller.Port,
		ConnectTimeout: time.Duration(cfg.Poller.ConnectTimeoutSeconds) * time.Second,
		Period:         time.Duration(cfg.Collector.PeriodMinutes) * time.Minute,
		NodesExpire:    time.Duration(cfg.Collector.NodeExpireDays) * 24 * time.Hour,
		LinksExpire:    time.Duration(cfg.Collector.LinkExpireDays) * 24 * time.Hour,
		MaxRetries:     cfg.Collector.MaxRetries,
		RunOnce:        *runOnce,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("collector starting",
		"olsr_node", cfg.Poller.LocalNode, "period_minutes", cfg.Collector.PeriodMinutes, "once", *runOnce)

	if err := svc.Run(ctx); err != nil {
		var abort *collector.AbortError
		switch {
		case errors.As(err, &abort):
			slog.Error("collector aborted", "error", abort)
			os.Exit(1)
		case errors.Is(err, ctx.Err()):
			slog.Info("collector stopped", "reason", err)
		default:
			slog.Error("collector failed", "error", err)
			os.Exit(1)
		}
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := slogcolor.DefaultOptions
	opts.Level = lvl
	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, opts)))
}
