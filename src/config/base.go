package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. OOOZ_TOKEN.
const EnvPrefix = "OOOZ"

const hidden = "[hidden]"

// Config holds the whole bot configuration.
type Config struct {
	Token            string   `yaml:"token"`
	Guild            string   `yaml:"guild"`
	Database         string   `yaml:"database"`
	Autosave         Duration `yaml:"autosave"`
	Console          Console  `yaml:"console"`
	StaffRoles       []string `yaml:"staff_roles"       split_words:"true"`
	ServerMaintainer string   `yaml:"server_maintainer" split_words:"true"`
	AlarmCooldown    Duration `yaml:"alarm_cooldown"    split_words:"true"`
	WarnRoles        []string `yaml:"warn_roles"        split_words:"true"`
	WarnExpiry       Duration `yaml:"warn_expiry"       split_words:"true"`
	WarnRecompute    Duration `yaml:"warn_recompute"    split_words:"true"`
	CountingChannel  string   `yaml:"counting_channel"  split_words:"true"`

	XP         XP         `yaml:"xp"`
	Sugestie   Sugestie   `yaml:"sugestie"`
	Codeforces Codeforces `yaml:"codeforces"`
	AtCoder    AtCoder    `yaml:"atcoder"`
	Links      Links      `yaml:"links"`
	Redis      Redis      `yaml:"redis"`
	Events     Events     `yaml:"events"`
	API        API        `yaml:"api"`
	Archive    Archive    `yaml:"archive"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		Database: "database.json",
		Autosave: Duration(time.Minute),
		Console: Console{
			Host:    "localhost",
			Port:    2341,
			Hello:   "OOOZet",
			Timeout: Duration(time.Minute),
		},
		AlarmCooldown: Duration(5 * time.Minute),
		WarnExpiry:    Duration(30 * 24 * time.Hour),
		WarnRecompute: Duration(time.Hour),
		XP: XP{
			Cooldown: Duration(time.Minute),
			MinGain:  15,
			MaxGain:  40,
		},
		Sugestie: Sugestie{
			ReviewLength: Duration(24 * time.Hour),
			VoteLength:   Duration(24 * time.Hour),
			Autoupdate:   Duration(time.Hour),
		},
		Codeforces: Codeforces{
			Advance:  Duration(15 * time.Minute),
			PollRate: Duration(24 * time.Hour),
			Timeout:  Duration(5 * time.Minute),
			Endpoint: "https://codeforces.com/api",
		},
		AtCoder: AtCoder{
			Advance:  Duration(15 * time.Minute),
			PollRate: Duration(24 * time.Hour),
			Timeout:  Duration(time.Minute),
			Endpoint: "https://atcoder.jp",
		},
		Links: Links{
			Timeout: Duration(30 * time.Second),
		},
		Events: Events{
			Backend: "nop",
			Stream:  "oooz.events",
			Subject: "oooz",
		},
	}
}

// Load reads the YAML (or JSON) file at path over the defaults and then
// applies OOOZ_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config not found: %q", path)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	buf, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects settings the bot cannot run with.
func (c *Config) Validate() error {
	if c.Database == "" {
		return errors.New("config: database path is required")
	}
	if c.Autosave.Std() <= 0 {
		return errors.New("config: autosave must be positive")
	}
	if c.XP.MinGain > c.XP.MaxGain {
		return fmt.Errorf("config: xp.min_gain (%d) exceeds xp.max_gain (%d)", c.XP.MinGain, c.XP.MaxGain)
	}
	if c.Sugestie.DecidingLead != nil && *c.Sugestie.DecidingLead <= 0 {
		return errors.New("config: sugestie.deciding_lead must be positive")
	}
	switch strings.ToLower(c.Events.Backend) {
	case "", "nop", "redis", "nats":
	default:
		return fmt.Errorf("config: unknown events backend %q", c.Events.Backend)
	}
	switch strings.ToLower(c.Archive.Driver) {
	case "", "mysql", "sqlite":
	default:
		return fmt.Errorf("config: unknown archive driver %q", c.Archive.Driver)
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.StaffRoles = append([]string(nil), c.StaffRoles...)
	out.WarnRoles = append([]string(nil), c.WarnRoles...)
	out.XP.IgnoredChannels = append([]string(nil), c.XP.IgnoredChannels...)
	out.XP.IgnoredCategories = append([]string(nil), c.XP.IgnoredCategories...)
	out.XP.Roles = append([]XPRole(nil), c.XP.Roles...)
	out.API.AllowOrigins = append([]string(nil), c.API.AllowOrigins...)
	if c.Sugestie.DecidingLead != nil {
		lead := *c.Sugestie.DecidingLead
		out.Sugestie.DecidingLead = &lead
	}
	return &out
}

// Redacted returns a copy that is safe to show to users and the console.
func (c *Config) Redacted() *Config {
	out := c.Clone()
	for _, secret := range []*string{&out.Token, &out.API.JWTSecret, &out.Archive.DSN, &out.Redis.URL, &out.Events.NATSURL} {
		if *secret != "" {
			*secret = hidden
		}
	}
	return out
}
