package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/domain/loan"
	"microloan/internal/usecase/ledger"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type Config struct {
	Env     string
	AppPort string

	DBDriver   string
	SQLitePath string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	// Empty RedisAddr selects the in-memory guard and view cache.
	RedisAddr string
	RedisDB   int

	ChainID         uint64
	MinDurationDays uint64
	MaxRateBPS      uint32
	BlockIntervalMS int
	GuardTTLSecs    int
	ConfirmTimeoutS int

	LogLevel string
	LogFile  string

	// GenesisAlloc is "0xaddr=amount,0xaddr=amount", credited at startup.
	GenesisAlloc    string
	DisplayDecimals int

	// RPCURL is where clients reach ledgerd.
	RPCURL string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvUint(k string, d uint64) uint64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return d
}

func Load() *Config {
	c := &Config{
		Env:        getenv("ENV", "dev"),
		AppPort:    getenv("APP_PORT", "8545"),
		DBDriver:   strings.ToLower(getenv("DB_DRIVER", DriverSQLite)),
		SQLitePath: getenv("SQLITE_PATH", "microloan.db"),

		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "microloan"),
		MySQLUser: getenv("MYSQL_USER", "microloan"),
		MySQLPass: getenv("MYSQL_PASS", "microloan"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisDB:   getenvInt("REDIS_DB", 0),

		ChainID:         getenvUint("CHAIN_ID", 1337),
		MinDurationDays: getenvUint("MIN_DURATION_DAYS", 1),
		BlockIntervalMS: getenvInt("BLOCK_INTERVAL_MS", 1000),
		GuardTTLSecs:    getenvInt("GUARD_TTL_SECONDS", 300),
		ConfirmTimeoutS: getenvInt("CONFIRM_TIMEOUT_SECONDS", 120),

		LogLevel: strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFile:  os.Getenv("LOG_FILE"),

		GenesisAlloc:    os.Getenv("GENESIS_ALLOC"),
		DisplayDecimals: getenvInt("DISPLAY_DECIMALS", 18),

		RPCURL: getenv("LEDGER_RPC_URL", "http://localhost:8545/rpc"),
	}
	c.MaxRateBPS = uint32(getenvUint("MAX_RATE_BPS", 5000))
	return c
}

func (c *Config) Validate() error {
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if _, err := net.LookupPort("tcp", c.AppPort); err != nil {
		return fmt.Errorf("invalid APP_PORT %q: %w", c.AppPort, err)
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	case DriverMySQL:
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		// ensure port is valid
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (want sqlite or mysql)", c.DBDriver)
	}
	if c.ChainID == 0 {
		return errors.New("CHAIN_ID must be positive")
	}
	if c.MinDurationDays == 0 {
		return errors.New("MIN_DURATION_DAYS must be positive")
	}
	if c.MaxRateBPS == 0 {
		return errors.New("MAX_RATE_BPS must be positive")
	}
	if c.BlockIntervalMS <= 0 {
		return errors.New("BLOCK_INTERVAL_MS must be positive")
	}
	if c.GuardTTLSecs <= 0 || c.ConfirmTimeoutS <= 0 {
		return errors.New("GUARD_TTL_SECONDS and CONFIRM_TIMEOUT_SECONDS must be positive")
	}
	if c.DisplayDecimals < 0 || c.DisplayDecimals > 77 {
		return fmt.Errorf("DISPLAY_DECIMALS %d out of range", c.DisplayDecimals)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	if _, err := c.Genesis(); err != nil {
		return err
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

func (c *Config) BlockInterval() time.Duration {
	return time.Duration(c.BlockIntervalMS) * time.Millisecond
}

func (c *Config) GuardTTL() time.Duration { return time.Duration(c.GuardTTLSecs) * time.Second }

func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutS) * time.Second
}

// LedgerParams overrides the deployment constants that are configurable.
func (c *Config) LedgerParams() ledger.Params {
	p := ledger.DefaultParams()
	p.MinDurationSeconds = c.MinDurationDays * ledger.SecondsPerDay
	p.MaxRateBPS = c.MaxRateBPS
	return p
}

// Allocation is one genesis credit.
type Allocation struct {
	Address common.Address
	Amount  loan.Amount
}

// Genesis parses GenesisAlloc. Repeated addresses are rejected.
func (c *Config) Genesis() ([]Allocation, error) {
	if strings.TrimSpace(c.GenesisAlloc) == "" {
		return nil, nil
	}
	var out []Allocation
	seen := make(map[common.Address]struct{})
	for _, part := range strings.Split(c.GenesisAlloc, ",") {
		addr, amount, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid GENESIS_ALLOC entry %q", part)
		}
		a := common.HexToAddress(addr)
		if _, dup := seen[a]; dup {
			return nil, fmt.Errorf("GENESIS_ALLOC lists %s twice", a.Hex())
		}
		seen[a] = struct{}{}
		v, err := loan.ParseAmount(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("GENESIS_ALLOC amount for %s: %w", a.Hex(), err)
		}
		out = append(out, Allocation{Address: a, Amount: v})
	}
	return out, nil
}
