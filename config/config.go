// Package config loads the process entrypoint's TOML configuration: the
// Init payload collaborator principals and borrow fee, the event log data
// directory, the HTTP listen address, and the oracle poll interval. Follows
// a BurntSushi/toml Load/createDefault shape: a missing config file is
// written out with defaults on first run rather than rejected.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk shape of talvaultd's configuration file.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`

	XrcPrincipal         string `toml:"XrcPrincipal"`
	TalerLedgerPrincipal string `toml:"TalerLedgerPrincipal"`
	CkbtcLedgerPrincipal string `toml:"CkbtcLedgerPrincipal"`
	DeveloperPrincipal   string `toml:"DeveloperPrincipal"`
	FeeE8S               uint64 `toml:"FeeE8S"`

	// Endpoints the collaborator HTTP clients dial; distinct from the
	// *Principal fields above, which identify the collaborator canisters
	// themselves rather than where to reach them over the network.
	XrcEndpoint         string `toml:"XrcEndpoint"`
	TalerLedgerEndpoint string `toml:"TalerLedgerEndpoint"`
	CkbtcLedgerEndpoint string `toml:"CkbtcLedgerEndpoint"`

	OracleIntervalSeconds   uint64 `toml:"OracleIntervalSeconds"`
	OracleStalenessSeconds  uint64 `toml:"OracleStalenessSeconds"`
	MaxVaultsPerRedemption  int    `toml:"MaxVaultsPerRedemption"`
	MaxConcurrentGuards     int    `toml:"MaxConcurrentGuards"`
	PendingTransferInterval uint64 `toml:"PendingTransferIntervalSeconds"`

	LogLevel    string `toml:"LogLevel"`
	LogFilePath string `toml:"LogFilePath"`
	Env         string `toml:"Env"`

	// SelfTestInvariants mirrors spec.md §4.10's "instrumented builds":
	// when set, every mutating Store.Mutate call runs
	// protocolstate.State.CheckInvariants afterward. Off by default since
	// it re-walks the full vault/owner index on every call.
	SelfTestInvariants bool `toml:"SelfTestInvariants"`

	OtelEndpoint string `toml:"OtelEndpoint"`
	OtelInsecure bool   `toml:"OtelInsecure"`
}

// Defaults for the protocol's tunable constants (oracle interval and
// staleness, redemption walk cap, guard cap, pending-transfer interval).
const (
	DefaultOracleIntervalSeconds   = 60
	DefaultOracleStalenessSeconds  = 600
	DefaultMaxVaultsPerRedemption  = 500
	DefaultMaxConcurrentGuards     = 100
	DefaultPendingTransferInterval = 1
)

// Load reads the configuration file at path, creating a default one if it
// does not yet exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OracleIntervalSeconds == 0 {
		c.OracleIntervalSeconds = DefaultOracleIntervalSeconds
	}
	if c.OracleStalenessSeconds == 0 {
		c.OracleStalenessSeconds = DefaultOracleStalenessSeconds
	}
	if c.MaxVaultsPerRedemption == 0 {
		c.MaxVaultsPerRedemption = DefaultMaxVaultsPerRedemption
	}
	if c.MaxConcurrentGuards == 0 {
		c.MaxConcurrentGuards = DefaultMaxConcurrentGuards
	}
	if c.PendingTransferInterval == 0 {
		c.PendingTransferInterval = DefaultPendingTransferInterval
	}
	if c.DataDir == "" {
		c.DataDir = "./protocol-data"
	}
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFilePath == "" {
		c.LogFilePath = "./protocold.log"
	}
	if c.XrcEndpoint == "" {
		c.XrcEndpoint = "http://127.0.0.1:8081"
	}
	if c.TalerLedgerEndpoint == "" {
		c.TalerLedgerEndpoint = "http://127.0.0.1:8082"
	}
	if c.CkbtcLedgerEndpoint == "" {
		c.CkbtcLedgerEndpoint = "http://127.0.0.1:8083"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:          ":8080",
		DataDir:                "./protocol-data",
		FeeE8S:                 500_000,
		OracleIntervalSeconds:  DefaultOracleIntervalSeconds,
		OracleStalenessSeconds: DefaultOracleStalenessSeconds,
		MaxVaultsPerRedemption: DefaultMaxVaultsPerRedemption,
		MaxConcurrentGuards:    DefaultMaxConcurrentGuards,
		PendingTransferInterval: DefaultPendingTransferInterval,
		LogLevel:               "info",
		LogFilePath:            "./protocold.log",
		XrcEndpoint:            "http://127.0.0.1:8081",
		TalerLedgerEndpoint:    "http://127.0.0.1:8082",
		CkbtcLedgerEndpoint:    "http://127.0.0.1:8083",
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create default %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	return cfg, nil
}
