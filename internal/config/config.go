package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/evanschultz/kanflow/internal/app"
	"github.com/evanschultz/kanflow/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Policy   PolicyConfig   `toml:"policy"`
	Blocked  BlockedConfig  `toml:"blocked"`
	Board    BoardConfig    `toml:"board"`
	Discard  DiscardConfig  `toml:"discard"`
	Report   ReportConfig   `toml:"report"`
	Server   ServerConfig   `toml:"server"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"` // debug | info | warn | error
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type PolicyConfig struct {
	Start RuleConfig `toml:"start"`
	Stop  RuleConfig `toml:"stop"`
}

type RuleConfig struct {
	Rule       string   `toml:"rule"`
	Statuses   []string `toml:"statuses"`
	Categories []string `toml:"categories"`
}

type BlockedConfig struct {
	Statuses             []string `toml:"statuses"`
	StalledStatuses      []string `toml:"stalled_statuses"`
	LinkTexts            []string `toml:"link_texts"`
	FlaggedMeansBlocked  bool     `toml:"flagged_means_blocked"`
	StalledThresholdDays int      `toml:"stalled_threshold_days"`
}

type BoardConfig struct {
	ID int `toml:"id"` // 0 selects the only stored board
}

type DiscardConfig struct {
	StatusBecomes []string `toml:"status_becomes"`
}

type ReportConfig struct {
	ExpeditePriority string `toml:"expedite_priority"`
	Timezone         string `toml:"timezone"`
	Workers          int    `toml:"workers"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".kanflow/log",
			},
		},
		Policy: PolicyConfig{
			Start: RuleConfig{Rule: app.RuleFirstTimeInStatusCategory, Categories: []string{"In Progress"}},
			Stop:  RuleConfig{Rule: app.RuleStillInStatusCategory, Categories: []string{"Done"}},
		},
		Blocked: BlockedConfig{
			LinkTexts:            []string{domain.DefaultBlockedLinkText},
			FlaggedMeansBlocked:  true,
			StalledThresholdDays: domain.DefaultStalledThresholdDays,
		},
		Report: ReportConfig{
			ExpeditePriority: "Expedite",
			Timezone:         "UTC",
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if _, err := log.ParseLevel(strings.TrimSpace(strings.ToLower(c.Logging.Level))); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when dev_file is enabled")
	}
	if err := app.ValidatePolicySpec(c.policySpec()); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	if c.Blocked.StalledThresholdDays < 0 {
		return errors.New("blocked.stalled_threshold_days must be >= 0")
	}
	if c.Board.ID < 0 {
		return errors.New("board.id must be >= 0")
	}
	if c.Report.Workers < 0 {
		return errors.New("report.workers must be >= 0")
	}
	if _, err := time.LoadLocation(strings.TrimSpace(c.Report.Timezone)); err != nil {
		return fmt.Errorf("invalid report.timezone: %q", c.Report.Timezone)
	}
	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	for name, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		if !strings.HasPrefix(strings.TrimSpace(endpoint), "/") {
			return fmt.Errorf("%s must start with '/': %q", name, endpoint)
		}
	}
	return nil
}

// Settings converts the metrics sections into service settings.
func (c Config) Settings() (app.Settings, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Report.Timezone))
	if err != nil {
		return app.Settings{}, fmt.Errorf("load report.timezone: %w", err)
	}
	threshold := c.Blocked.StalledThresholdDays
	if threshold == 0 {
		threshold = domain.DefaultStalledThresholdDays
	}
	return app.Settings{
		Policy: c.policySpec(),
		Blocked: domain.BlockedStalledSettings{
			BlockedStatuses:      trimAll(c.Blocked.Statuses),
			StalledStatuses:      trimAll(c.Blocked.StalledStatuses),
			BlockedLinkTexts:     trimAll(c.Blocked.LinkTexts),
			FlaggedMeansBlocked:  c.Blocked.FlaggedMeansBlocked,
			StalledThresholdDays: threshold,
		},
		BoardID:              c.Board.ID,
		DiscardStatusBecomes: trimAll(c.Discard.StatusBecomes),
		Location:             loc,
		Workers:              c.Report.Workers,
		ExpeditePriority:     strings.TrimSpace(c.Report.ExpeditePriority),
	}, nil
}

func (c Config) policySpec() app.PolicySpec {
	return app.PolicySpec{
		Start: app.RuleSpec{Rule: c.Policy.Start.Rule, Statuses: c.Policy.Start.Statuses, Categories: c.Policy.Start.Categories},
		Stop:  app.RuleSpec{Rule: c.Policy.Stop.Rule, Statuses: c.Policy.Stop.Statuses, Categories: c.Policy.Stop.Categories},
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
