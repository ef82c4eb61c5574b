package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSheet    = "Лист1"
	DefaultCron     = "0 0 */1 * * *"
	DefaultBaseURL  = "https://docs.google.com/spreadsheets/d"
	DefaultHTTPAddr = ":8080"
	DefaultAuthFile = "auth.secret"
)

// ErrNoSpreadsheet se devuelve en cada sync cuando falta el id de la planilla.
var ErrNoSpreadsheet = errors.New("GOOGLE_SPREADSHEET_ID is not configured")

type Google struct {
	SpreadsheetID string        `yaml:"spreadsheet_id"`
	DefaultSheet  string        `yaml:"default_sheet"`
	Sheets        []string      `yaml:"sheets"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RPS           float64       `yaml:"rps"`
}

type Sync struct {
	Cron         string `yaml:"cron"`
	AllowOverlap bool   `yaml:"allow_overlap"`
	Atomic       bool   `yaml:"atomic"`
}

type Database struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	MaxConns   int    `yaml:"max_conns"`
	ViaBouncer bool   `yaml:"via_bouncer"`
}

type Config struct {
	Google        Google        `yaml:"google"`
	Sync          Sync          `yaml:"sync"`
	Database      Database      `yaml:"database"`
	HTTPAddr      string        `yaml:"http_addr"`
	AuthFile      string        `yaml:"auth_file"`
	TelegramToken string        `yaml:"telegram_token"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

func defaults() Config {
	return Config{
		Google: Google{
			DefaultSheet: DefaultSheet,
			BaseURL:      DefaultBaseURL,
			Timeout:      30 * time.Second,
		},
		Sync: Sync{
			Cron:         DefaultCron,
			AllowOverlap: true,
		},
		Database: Database{
			Driver:   "sqlite3",
			DSN:      "./schedule.db",
			MaxConns: 4,
		},
		HTTPAddr: DefaultHTTPAddr,
		AuthFile: DefaultAuthFile,
		CacheTTL: 10 * time.Minute,
	}
}

// Load reads the optional YAML file at path and then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("GOOGLE_SPREADSHEET_ID", &cfg.Google.SpreadsheetID)
	str("GOOGLE_DEFAULT_SHEET", &cfg.Google.DefaultSheet)
	str("SHEETS_BASE_URL", &cfg.Google.BaseURL)
	str("SYNC_CRON", &cfg.Sync.Cron)
	str("DB_DRIVER", &cfg.Database.Driver)
	str("DB_DSN", &cfg.Database.DSN)
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("AUTH_FILE", &cfg.AuthFile)
	str("TELEGRAM_BOT_TOKEN", &cfg.TelegramToken)

	if v, ok := lookup("GOOGLE_SHEETS"); ok && strings.TrimSpace(v) != "" {
		cfg.Google.Sheets = SplitList(v)
	}
	if v, ok := lookup("SHEETS_RPS"); ok && strings.TrimSpace(v) != "" {
		rps, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("SHEETS_RPS: %w", err)
		}
		cfg.Google.RPS = rps
	}
	if err := duration("SHEETS_TIMEOUT", &cfg.Google.Timeout); err != nil {
		return err
	}
	if err := duration("CACHE_TTL", &cfg.CacheTTL); err != nil {
		return err
	}
	if err := boolean("SYNC_ALLOW_OVERLAP", &cfg.Sync.AllowOverlap); err != nil {
		return err
	}
	return boolean("SYNC_ATOMIC", &cfg.Sync.Atomic)
}

// Validate rejects settings the service cannot start with. A missing
// spreadsheet id is allowed: queries still work, syncs fail.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (want sqlite3 or postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("DB_DSN must not be empty")
	}
	if c.Google.Timeout <= 0 {
		return fmt.Errorf("SHEETS_TIMEOUT must be positive, got %s", c.Google.Timeout)
	}
	if c.Google.RPS < 0 {
		return fmt.Errorf("SHEETS_RPS must not be negative, got %v", c.Google.RPS)
	}
	if strings.TrimSpace(c.Google.DefaultSheet) == "" {
		return errors.New("GOOGLE_DEFAULT_SHEET must not be empty")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Sync.Cron); err != nil {
		return fmt.Errorf("invalid SYNC_CRON %q: %w", c.Sync.Cron, err)
	}
	return nil
}

// SheetNames is the list of sheets a scheduled sync walks through.
func (c Config) SheetNames() []string {
	if len(c.Google.Sheets) > 0 {
		return append([]string(nil), c.Google.Sheets...)
	}
	return []string{c.Google.DefaultSheet}
}

func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
