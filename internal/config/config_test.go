package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_PORT", "DB_DRIVER", "CHAIN_ID", "MAX_RATE_BPS", "REDIS_ADDR", "GENESIS_ALLOC", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	c := Load()
	if c.AppPort != "8545" || c.DBDriver != DriverSQLite || c.ChainID != 1337 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.RedisAddr != "" {
		t.Fatalf("redis must be opt-in, got %q", c.RedisAddr)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	p := c.LedgerParams()
	if p.MinDurationSeconds != 86400 || p.MaxRateBPS != 5000 {
		t.Fatalf("params = %+v", p)
	}
	if c.BlockInterval() != time.Second || c.GuardTTL() != 5*time.Minute {
		t.Fatalf("durations: %s %s", c.BlockInterval(), c.GuardTTL())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "MySQL")
	t.Setenv("MYSQL_HOST", "db")
	t.Setenv("MYSQL_PORT", "3307")
	t.Setenv("CHAIN_ID", "31337")
	t.Setenv("MAX_RATE_BPS", "2500")
	t.Setenv("REDIS_DB", "not-a-number")

	c := Load()
	if c.DBDriver != DriverMySQL || c.ChainID != 31337 || c.MaxRateBPS != 2500 {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if c.RedisDB != 0 {
		t.Fatalf("invalid REDIS_DB should fall back to 0, got %d", c.RedisDB)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if dsn := c.MySQLDSN(); !strings.Contains(dsn, "@tcp(db:3307)/microloan?") {
		t.Fatalf("dsn = %s", dsn)
	}
}

func TestValidate_Rejects(t *testing.T) {
	base := func() *Config {
		return &Config{
			AppPort: "8545", DBDriver: DriverSQLite, SQLitePath: "x.db",
			ChainID: 1, MinDurationDays: 1, MaxRateBPS: 5000, BlockIntervalMS: 10,
			GuardTTLSecs: 1, ConfirmTimeoutS: 1, LogLevel: "info", DisplayDecimals: 18,
		}
	}
	tests := []struct {
		name string
		mut  func(c *Config)
	}{
		{"port", func(c *Config) { c.AppPort = "" }},
		{"driver", func(c *Config) { c.DBDriver = "postgres" }},
		{"mysql host", func(c *Config) { c.DBDriver = DriverMySQL }},
		{"chain", func(c *Config) { c.ChainID = 0 }},
		{"duration", func(c *Config) { c.MinDurationDays = 0 }},
		{"rate", func(c *Config) { c.MaxRateBPS = 0 }},
		{"interval", func(c *Config) { c.BlockIntervalMS = 0 }},
		{"decimals", func(c *Config) { c.DisplayDecimals = 78 }},
		{"level", func(c *Config) { c.LogLevel = "verbose" }},
		{"genesis", func(c *Config) { c.GenesisAlloc = "nope=1" }},
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mut(c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestGenesis(t *testing.T) {
	c := &Config{GenesisAlloc: "0x00000000000000000000000000000000000a11ce=1000, 0x0000000000000000000000000000000000000b0b=5"}
	allocs, err := c.Genesis()
	if err != nil {
		t.Fatalf("Genesis: %v", err)
	}
	if len(allocs) != 2 || allocs[0].Amount.String() != "1000" || allocs[1].Amount.String() != "5" {
		t.Fatalf("allocs = %+v", allocs)
	}

	c.GenesisAlloc = "0x00000000000000000000000000000000000a11ce=1,0x00000000000000000000000000000000000a11ce=2"
	if _, err := c.Genesis(); err == nil {
		t.Fatalf("expected duplicate error")
	}
	c.GenesisAlloc = "0x00000000000000000000000000000000000a11ce=-1"
	if _, err := c.Genesis(); err == nil {
		t.Fatalf("expected amount error")
	}
}
