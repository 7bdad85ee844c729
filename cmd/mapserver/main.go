package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/MatusOllah/slogcolor"
	"github.com/kabili207/mesh-map-server/pkg/config"
	"github.com/kabili207/mesh-map-server/pkg/routes"
	"github.com/kabili207/mesh-map-server/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "Path to the configuration file")
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

	wr := routes.NewWebRouter(db.Stores)

	slog.Info("map server starting", "listen_addr", cfg.Web.ListenAddr)
	if err := wr.Initialize(cfg.Web.ListenAddr); err != nil {
		slog.Error("map server failed", "error", err)
		os.Exit(1)
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
