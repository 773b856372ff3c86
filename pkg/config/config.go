// Package config loads service settings once at startup. Components receive
// the resulting Config (or the part they need) through their constructors.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cesa-network/cesavote/pkg/utils"
)

// LedgerMode selects how votes reach the ledger.
type LedgerMode string

const (
	// LedgerRequired refuses to start without a complete ledger configuration.
	LedgerRequired LedgerMode = "required"
	// LedgerOptional uses the ledger when configured, otherwise simulates.
	LedgerOptional LedgerMode = "optional"
	// LedgerSimulated never talks to a ledger. Not allowed in production.
	LedgerSimulated LedgerMode = "simulated"
)

const DefaultSessionSecret = "dev-session-secret-change-me"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Ledger struct {
	Mode            LedgerMode
	AlgodAddress    string
	AlgodToken      string
	AlgodAPIHeader  string
	AlgodAPIKey     string
	IndexerAddress  string
	IndexerToken    string
	AppID           uint64
	SenderMnemonic  string
	CreatorMnemonic string
	ConfirmTimeout  time.Duration
	ConfirmPoll     time.Duration
	RequestTimeout  time.Duration
	ScanLimit       int
	CacheTTL        time.Duration
}

// Complete reports whether the real backend can be built.
func (l Ledger) Complete() bool {
	return l.AlgodAddress != "" && l.AppID != 0 && l.SenderMnemonic != ""
}

type Eligibility struct {
	RequireLedgerRegistration bool
	// RegisteredAddresses is the development allow-list. Empty means every
	// address passes when the allow-list checker is in use.
	RegisteredAddresses []string
	UseAllowList        bool
}

type Database struct {
	Type        string // postgres or sqlite
	PostgresURL string
	SQLitePath  string
}

type Redis struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	StreamMaxLen int64
}

type Retrier struct {
	Schedule string
	Workers  int
	MaxAge   time.Duration
}

type Config struct {
	Environment   string
	Addr          string
	LogLevel      string
	LogEncoding   string
	SessionSecret string
	AdminToken    string
	Database      Database
	Ledger        Ledger
	Eligibility   Eligibility
	Redis         Redis
	Retrier       Retrier
}

// Production reports whether ENVIRONMENT is production.
func (c Config) Production() bool { return c.Environment == "production" }

// Load reads every setting through lookup, which is os.Getenv in the
// services and viper in the operator CLI. The result is validated.
func Load(lookup func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			return v
		}
		return def
	}
	getInt := func(key string, def int) int {
		if n, err := strconv.Atoi(get(key, "")); err == nil && n > 0 {
			return n
		}
		return def
	}

	c := Config{
		Environment:   strings.ToLower(get("ENVIRONMENT", "development")),
		Addr:          get("ADDR", ":3001"),
		LogLevel:      get("LOG_LEVEL", "info"),
		LogEncoding:   get("LOG_ENCODING", "json"),
		SessionSecret: get("SESSION_SECRET", DefaultSessionSecret),
		AdminToken:    get("ADMIN_TOKEN", ""),
		Database: Database{
			Type:        strings.ToLower(get("DATABASE_TYPE", "postgres")),
			PostgresURL: get("POSTGRES_URL", ""),
			SQLitePath:  get("SQLITE_PATH", "cesavote.db"),
		},
		Ledger: Ledger{
			Mode:            LedgerMode(strings.ToLower(get("LEDGER_MODE", string(LedgerOptional)))),
			AlgodAddress:    get("ALGOD_ADDRESS", ""),
			AlgodToken:      get("ALGOD_TOKEN", ""),
			AlgodAPIHeader:  get("ALGOD_API_HEADER", ""),
			AlgodAPIKey:     get("ALGOD_API_KEY", ""),
			IndexerAddress:  get("INDEXER_ADDRESS", ""),
			IndexerToken:    get("INDEXER_TOKEN", ""),
			SenderMnemonic:  get("ALGORAND_SENDER_MNEMONIC", ""),
			CreatorMnemonic: get("ALGORAND_CREATOR_MNEMONIC", ""),
			ConfirmTimeout:  utils.ParseDuration(get("CONFIRM_TIMEOUT", ""), 10*time.Second),
			ConfirmPoll:     utils.ParseDuration(get("CONFIRM_POLL_INTERVAL", ""), time.Second),
			RequestTimeout:  utils.ParseDuration(get("LEDGER_REQUEST_TIMEOUT", ""), 15*time.Second),
			ScanLimit:       getInt("INDEXER_SCAN_LIMIT", 1000),
			CacheTTL:        utils.ParseDuration(get("INDEXER_CACHE_TTL", ""), 15*time.Second),
		},
		Eligibility: Eligibility{
			RequireLedgerRegistration: utils.ParseBool(get("REQUIRE_LEDGER_REGISTRATION", "false")),
			RegisteredAddresses:       utils.SplitList(get("REGISTERED_ADDRESSES", "")),
			UseAllowList:              utils.ParseBool(get("REGISTRATION_ALLOW_LIST", "false")),
		},
		Redis: Redis{
			Enabled:      utils.ParseBool(get("REDIS_ENABLED", "false")),
			Addr:         get("REDIS_HOST", "localhost") + ":" + get("REDIS_PORT", "6379"),
			Password:     get("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			StreamMaxLen: int64(getInt("REDIS_STREAM_MAXLEN", 10000)),
		},
		Retrier: Retrier{
			Schedule: get("RETRY_CRON", "0 */1 * * * *"),
			Workers:  getInt("RETRY_WORKERS", 4),
			MaxAge:   utils.ParseDuration(get("RETRY_MAX_AGE", ""), 24*time.Hour),
		},
	}

	if raw := get("ALGORAND_APP_ID", ""); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c, fmt.Errorf("%w: ALGORAND_APP_ID %q is not a number", ErrInvalid, raw)
		}
		c.Ledger.AppID = id
	}

	return c, c.Validate()
}

// Validate rejects combinations that must never reach a running service.
func (c Config) Validate() error {
	var problems []string

	switch c.Ledger.Mode {
	case LedgerRequired:
		if !c.Ledger.Complete() {
			problems = append(problems, "LEDGER_MODE=required needs ALGOD_ADDRESS, ALGORAND_APP_ID and ALGORAND_SENDER_MNEMONIC")
		}
	case LedgerOptional:
	case LedgerSimulated:
		if c.Production() {
			problems = append(problems, "LEDGER_MODE=simulated is not allowed in production")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown LEDGER_MODE %q", c.Ledger.Mode))
	}

	if c.Eligibility.UseAllowList && c.Production() {
		problems = append(problems, "REGISTRATION_ALLOW_LIST is a development bypass and is not allowed in production")
	}
	if c.Eligibility.RequireLedgerRegistration && !c.Eligibility.UseAllowList {
		if c.Ledger.AlgodAddress == "" || c.Ledger.AppID == 0 {
			problems = append(problems, "REQUIRE_LEDGER_REGISTRATION needs ALGOD_ADDRESS and ALGORAND_APP_ID")
		}
	}
	if c.Production() && c.SessionSecret == DefaultSessionSecret {
		problems = append(problems, "SESSION_SECRET must be set in production")
	}
	switch c.Database.Type {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unknown DATABASE_TYPE %q", c.Database.Type))
	}
	if c.Ledger.ConfirmPoll > c.Ledger.ConfirmTimeout {
		problems = append(problems, "CONFIRM_POLL_INTERVAL exceeds CONFIRM_TIMEOUT")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
