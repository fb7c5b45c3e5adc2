// Package config parses this node's command-line configuration using
// go-flags, in the style of daglabs-btcd's various cmd/*/config.go
// entrypoints.
package config

import (
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/sabledatanetworks/pandanite-node/version"
)

const (
	logFilename    = "pandanite-node.log"
	errLogFilename = "pandanite-node_err.log"
)

var defaultDataDir = filepath.Join(".", "data")

// Config holds every CLI-configurable setting this node accepts.
type Config struct {
	DataDir        string   `long:"data-dir" description:"Directory holding the ledger, block, and tx stores" default:"data"`
	GenesisFile    string   `long:"genesis-file" description:"Path to the JSON genesis bundle" required:"true"`
	Port           int      `long:"port" description:"TCP port the inbound HTTP peer surface listens on" default:"8080"`
	Network        string   `long:"network" description:"Network name exchanged with peers" default:"mainnet"`
	Seeds          []string `long:"seed" description:"Host-list source URL RefreshHostList polls (repeatable)"`
	BlacklistFile  string   `long:"blacklist-file" description:"Path to a one-host-per-line blacklist file"`
	WhitelistFile  string   `long:"whitelist-file" description:"Path to a one-host-per-line whitelist file"`
	InvalidTxFile  string   `long:"invalid-tx-file" description:"Path to the historical invalid.json replay-suppression table"`
	MinHostVersion string   `long:"min-host-version" description:"Minimum peer version this node will admit" default:"1.0.0"`
	Firewall       bool     `long:"firewall" description:"Skip host-list polling and the host manager's ping and stats loops; inbound peer announcements are still accepted and probed"`
	LogLevel       string   `long:"log-level" description:"Logging level for all subsystems" default:"info"`
}

// Parse parses os.Args into a Config, applying defaults and the same
// mutually-exclusive-flag validation style daglabs-btcd's cmd tools use.
func Parse() (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if cfg.Network == "" {
		cfg.Network = version.DefaultNetwork
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.Firewall && len(cfg.Seeds) > 0 {
		return nil, errors.New("--firewall and --seed are mutually exclusive")
	}

	return cfg, nil
}

// LogFileNames returns the data-dir-relative log and error-log file
// names this node's logger.InitLogRotators should be pointed at.
func (c *Config) LogFileNames() (string, string) {
	return filepath.Join(c.DataDir, "logs", logFilename),
		filepath.Join(c.DataDir, "logs", errLogFilename)
}
