// Package config loads client and sponsord settings from a YAML file, an
// optional .env file and MR_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/majorityrules/go/internal/dbconfig"
)

// EnvPrefix prefixes every environment variable read by this package.
const EnvPrefix = "MR_"

type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

type Sponsorship struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	URL       string        `yaml:"url" env:"URL"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxBudget uint64        `yaml:"max_budget" env:"MAX_BUDGET"`
}

type Poll struct {
	Waiting    time.Duration `yaml:"waiting" env:"WAITING"`
	Active     time.Duration `yaml:"active" env:"ACTIVE"`
	Finalizing time.Duration `yaml:"finalizing" env:"FINALIZING"`
	// Finished <= 0 stops polling once a game ends.
	Finished time.Duration `yaml:"finished" env:"FINISHED"`
}

type Game struct {
	PackageID       string           `yaml:"package_id" env:"PACKAGE_ID"`
	Module          string           `yaml:"module" env:"MODULE"`
	ClockID         string           `yaml:"clock_id" env:"CLOCK_ID"`
	BadgeRegistryID string           `yaml:"badge_registry_id" env:"BADGE_REGISTRY_ID"`
	TreasuryID      string           `yaml:"treasury_id" env:"TREASURY_ID"`
	Lobbies         map[uint8]string `yaml:"lobbies" env:"LOBBIES"`
	MinPlayers      int              `yaml:"min_players" env:"MIN_PLAYERS"`
}

// Client configures the player-facing CLI and gateway.
type Client struct {
	Log         Log         `yaml:"log" envPrefix:"LOG_"`
	LedgerURL   string      `yaml:"ledger_url" env:"LEDGER_URL"`
	Game        Game        `yaml:"game"`
	Sponsorship Sponsorship `yaml:"sponsorship" envPrefix:"SPONSOR_"`
	GasBudget   uint64      `yaml:"gas_budget" env:"GAS_BUDGET"`
	Poll        Poll        `yaml:"poll" envPrefix:"POLL_"`
	SessionPath string      `yaml:"session_path" env:"SESSION_PATH"`
	// SignerKey is only read from the environment.
	SignerKey   string `yaml:"-" env:"SIGNER_KEY"`
	GatewayAddr string `yaml:"gateway_addr" env:"GATEWAY_ADDR"`
	// NATSURL enables transition publishing when set.
	NATSURL string `yaml:"nats_url" env:"NATS_URL"`
}

type RateLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute" env:"RPM"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

// Sponsor configures sponsord.
type Sponsor struct {
	Log        Log    `yaml:"log" envPrefix:"LOG_"`
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	LedgerURL  string `yaml:"ledger_url" env:"LEDGER_URL"`
	PackageID  string `yaml:"package_id" env:"PACKAGE_ID"`
	// SponsorKey is only read from the environment.
	SponsorKey     string          `yaml:"-" env:"SPONSOR_KEY"`
	GasBudget      uint64          `yaml:"gas_budget" env:"GAS_BUDGET"`
	GrantTTL       time.Duration   `yaml:"grant_ttl" env:"GRANT_TTL"`
	Quota          int             `yaml:"quota" env:"QUOTA"`
	QuotaWindow    time.Duration   `yaml:"quota_window" env:"QUOTA_WINDOW"`
	RateLimit      RateLimit       `yaml:"rate_limit" envPrefix:"RATE_"`
	AllowedOrigins []string        `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	Database       dbconfig.Config `yaml:"database" envPrefix:"DB_"`
}

func DefaultClient() Client {
	return Client{
		Log:         Log{Level: "info", Pretty: true},
		LedgerURL:   "http://127.0.0.1:9000",
		Game:        Game{Module: "battle_royale", MinPlayers: 4},
		Sponsorship: Sponsorship{Timeout: 10 * time.Second, MaxBudget: 100_000_000},
		GasBudget:   50_000_000,
		Poll: Poll{
			Waiting:    2 * time.Second,
			Active:     1500 * time.Millisecond,
			Finalizing: 1500 * time.Millisecond,
		},
		SessionPath: ".majority-rules/session",
		GatewayAddr: "127.0.0.1:8787",
	}
}

func DefaultSponsor() Sponsor {
	return Sponsor{
		Log:         Log{Level: "info"},
		ListenAddr:  ":8080",
		LedgerURL:   "http://127.0.0.1:9000",
		GasBudget:   50_000_000,
		GrantTTL:    2 * time.Minute,
		Quota:       200,
		QuotaWindow: time.Hour,
		RateLimit:   RateLimit{RequestsPerMinute: 60, Burst: 10},
	}
}

// LoadClient reads path (optional) over the defaults, then the environment.
func LoadClient(path string) (*Client, error) {
	cfg := DefaultClient()
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadSponsor(path string) (*Sponsor, error) {
	cfg := DefaultSponsor()
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(path string, out any) error {
	// Existing environment variables take precedence over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(out, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

func (c *Client) Validate() error {
	var errs []error
	if c.LedgerURL == "" {
		errs = append(errs, errors.New("ledger_url is required"))
	}
	if c.Game.PackageID == "" {
		errs = append(errs, errors.New("game.package_id is required"))
	}
	if c.GasBudget == 0 {
		errs = append(errs, errors.New("gas_budget must be positive"))
	}
	if c.Game.MinPlayers < 1 {
		errs = append(errs, errors.New("game.min_players must be positive"))
	}
	if c.Poll.Waiting <= 0 || c.Poll.Active <= 0 || c.Poll.Finalizing <= 0 {
		errs = append(errs, errors.New("poll intervals must be positive"))
	}
	if c.Sponsorship.Enabled && c.Sponsorship.URL == "" {
		errs = append(errs, errors.New("sponsorship.url is required when sponsorship is enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Sponsor) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.LedgerURL == "" {
		errs = append(errs, errors.New("ledger_url is required"))
	}
	if c.PackageID == "" {
		errs = append(errs, errors.New("package_id is required"))
	}
	if c.SponsorKey == "" {
		errs = append(errs, errors.New("MR_SPONSOR_KEY is required"))
	}
	if c.GasBudget == 0 {
		errs = append(errs, errors.New("gas_budget must be positive"))
	}
	if c.GrantTTL <= 0 || c.QuotaWindow <= 0 {
		errs = append(errs, errors.New("grant_ttl and quota_window must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
