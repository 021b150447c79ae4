package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Console configures the administrative TCP console.
type Console struct {
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`
	Hello   string   `yaml:"hello"`
	Timeout Duration `yaml:"timeout"`
}

// XPRole grants Role once a member reaches Level.
type XPRole struct {
	Level int
	Role  string
}

// UnmarshalYAML accepts both [level, role] pairs and {level, role} maps.
func (r *XPRole) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: xp role must be [level, role]", node.Line)
		}
		if err := node.Content[0].Decode(&r.Level); err != nil {
			return err
		}
		return node.Content[1].Decode(&r.Role)
	case yaml.MappingNode:
		var raw struct {
			Level int    `yaml:"level"`
			Role  string `yaml:"role"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		r.Level, r.Role = raw.Level, raw.Role
		return nil
	default:
		return fmt.Errorf("line %d: unexpected xp role", node.Line)
	}
}

func (r XPRole) MarshalYAML() (any, error) {
	return []any{r.Level, r.Role}, nil
}

// XP configures experience points and level roles.
type XP struct {
	Cooldown          Duration `yaml:"cooldown"`
	MinGain           int      `yaml:"min_gain"           split_words:"true"`
	MaxGain           int      `yaml:"max_gain"           split_words:"true"`
	IgnoredChannels   []string `yaml:"ignored_channels"   split_words:"true"`
	IgnoredCategories []string `yaml:"ignored_categories" split_words:"true"`
	Roles             []XPRole `yaml:"roles"              ignored:"true"`
	Channel           string   `yaml:"channel"`
}

// Sugestie configures the proposal channel and voting timings.
type Sugestie struct {
	Channel      string   `yaml:"channel"`
	VoteRole     string   `yaml:"vote_role"     split_words:"true"`
	PingRole     string   `yaml:"ping_role"     split_words:"true"`
	ReviewLength Duration `yaml:"review_length" split_words:"true"`
	VoteLength   Duration `yaml:"vote_length"   split_words:"true"`
	DecidingLead *int     `yaml:"deciding_lead" split_words:"true"`
	Autoupdate   Duration `yaml:"autoupdate"`
}

// Codeforces configures contest reminders.
type Codeforces struct {
	Channel  string   `yaml:"channel"`
	Role     string   `yaml:"role"`
	Advance  Duration `yaml:"advance"`
	PollRate Duration `yaml:"poll_rate" split_words:"true"`
	Timeout  Duration `yaml:"timeout"`
	Endpoint string   `yaml:"endpoint"`
}

// AtCoder configures contest reminders scraped from the AtCoder contest page.
type AtCoder struct {
	Channel  string   `yaml:"channel"`
	Role     string   `yaml:"role"`
	Advance  Duration `yaml:"advance"`
	PollRate Duration `yaml:"poll_rate" split_words:"true"`
	Timeout  Duration `yaml:"timeout"`
	Endpoint string   `yaml:"endpoint"`
}

// Links configures the curated problem-link channel.
type Links struct {
	Channel string   `yaml:"channel"`
	Timeout Duration `yaml:"timeout"`
}

// Redis enables the Redis cooldown backend and event stream when URL is set.
type Redis struct {
	URL string `yaml:"url"`
}

// Events selects where lifecycle events are published.
type Events struct {
	Backend string `yaml:"backend"`
	Stream  string `yaml:"stream"`
	NATSURL string `yaml:"nats_url" envconfig:"NATS_URL"`
	Subject string `yaml:"subject"`
}

// API configures the HTTP status server. An empty Listen disables it.
type API struct {
	Listen       string   `yaml:"listen"`
	JWTSecret    string   `yaml:"jwt_secret"    envconfig:"JWT_SECRET"`
	AllowOrigins []string `yaml:"allow_origins" split_words:"true"`
}

// Archive configures the SQL mirror. An empty Driver disables it.
type Archive struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn" envconfig:"DSN"`
}
