package config

import "fmt"

// Validate checks the loaded configuration's invariants before the process
// wires up the event store, oracle driver and HTTP server.
func Validate(c *Config) error {
	if c.DataDir == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.ListenAddress == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if c.OracleIntervalSeconds == 0 {
		return fmt.Errorf("config: OracleIntervalSeconds must be positive")
	}
	if c.OracleStalenessSeconds < c.OracleIntervalSeconds {
		return fmt.Errorf("config: OracleStalenessSeconds must be >= OracleIntervalSeconds")
	}
	if c.MaxVaultsPerRedemption <= 0 {
		return fmt.Errorf("config: MaxVaultsPerRedemption must be positive")
	}
	if c.MaxConcurrentGuards <= 0 {
		return fmt.Errorf("config: MaxConcurrentGuards must be positive")
	}
	if c.DeveloperPrincipal == "" {
		return fmt.Errorf("config: DeveloperPrincipal must be set")
	}
	return nil
}
