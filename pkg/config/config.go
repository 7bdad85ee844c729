package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Configuration holds every tunable for the collector and map server.
type Configuration struct {
	LogLevel string
	Database struct {
		User     string
		Password string
		Host     string
		DB       string
	}
	Poller struct {
		// LocalNode is the mesh node whose OLSR daemon is queried for
		// the link-state export.
		LocalNode             string
		Port                  int
		MaxConnections        int
		ConnectTimeoutSeconds int
		ReadTimeoutSeconds    int
	}
	Collector struct {
		PeriodMinutes  int
		NodeExpireDays int
		LinkExpireDays int
		MaxRetries     int
	}
	Web struct {
		ListenAddr string
	}
}

// Load reads the configuration file and MESHMAP_-prefixed environment
// variables. An empty path searches the usual locations; a missing file is
// only an error when a path was given explicitly.
func Load(path string) (*Configuration, error) {
	v := viper.New()
	v.SetDefault("loglevel", "info")
	v.SetDefault("database.user", "meshmap")
	// An empty default so AutomaticEnv can see the key; the password itself
	// arrives via the file or MESHMAP_DATABASE_PASSWORD.
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.db", "meshmap")
	v.SetDefault("poller.localnode", "localnode.local.mesh")
	v.SetDefault("poller.port", 2004)
	v.SetDefault("poller.maxconnections", 50)
	v.SetDefault("poller.connecttimeoutseconds", 5)
	v.SetDefault("poller.readtimeoutseconds", 15)
	v.SetDefault("collector.periodminutes", 5)
	v.SetDefault("collector.nodeexpiredays", 30)
	v.SetDefault("collector.linkexpiredays", 1)
	v.SetDefault("collector.maxretries", 5)
	v.SetDefault("web.listenaddr", ":8000")

	v.SetEnvPrefix("MESHMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("mesh-map")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/mesh-map")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
