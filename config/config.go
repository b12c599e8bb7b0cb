package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable startup snapshot consumed by the interview engine
// and the review workflow. It is loaded once and passed into constructors;
// nothing re-reads it mid-interview.
type Config struct {
	Questions []string `yaml:"questions"`

	CooldownSeconds int `yaml:"cooldown_seconds"`

	// Scales enumerates the accepted score scales (defaults to 5/10/50/100).
	Scales []int `yaml:"scales"`

	Templates struct {
		Approved Template `yaml:"approved"`
		Denied   Template `yaml:"denied"`
	} `yaml:"templates"`

	// StaffConversationID is the shared channel where review cards are posted.
	StaffConversationID string `yaml:"staff_conversation_id"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
}

var defaultScales = []int{5, 10, 50, 100}

// Template is a message template with {id}, {reviewer}, {score}, {scale} and
// {reason} placeholders.
type Template string

// Render interpolates the placeholder values into the template.
func (t Template) Render(v Values) string {
	r := strings.NewReplacer(
		"{id}", v.ID,
		"{reviewer}", v.Reviewer,
		"{score}", strconv.Itoa(v.Score),
		"{scale}", strconv.Itoa(v.Scale),
		"{reason}", v.Reason,
	)
	return r.Replace(string(t))
}

// Values carries the interpolation inputs for a result template.
type Values struct {
	ID       string
	Reviewer string
	Score    int
	Scale    int
	Reason   string
}

// Cooldown returns the fixed window between apply attempts.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// ValidScale reports whether scale belongs to the configured set.
func (c *Config) ValidScale(scale int) bool {
	for _, s := range c.Scales {
		if s == scale {
			return true
		}
	}
	return false
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: invalid yaml: %w", err)
	}
	if len(cfg.Scales) == 0 {
		cfg.Scales = append(cfg.Scales, defaultScales...)
	}
	if cfg.Templates.Approved == "" {
		cfg.Templates.Approved = "Congrats! Your application (ID {id}) has been approved. Reviewer: {reviewer}. Score: {score}/{scale}. Reason: {reason}"
	}
	if cfg.Templates.Denied == "" {
		cfg.Templates.Denied = "Your application (ID {id}) has been denied. Reviewer: {reviewer}. Score: {score}/{scale}. Reason: {reason}"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the snapshot meets the required structure.
func (c *Config) Validate() error {
	if len(c.Questions) == 0 {
		return fmt.Errorf("config: at least one question is required")
	}
	for i, q := range c.Questions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("config: question %d is empty", i+1)
		}
	}
	if c.CooldownSeconds < 0 {
		return fmt.Errorf("config: cooldown_seconds must not be negative")
	}
	for _, s := range c.Scales {
		if s <= 0 {
			return fmt.Errorf("config: scale %d is not positive", s)
		}
	}
	if c.StaffConversationID == "" {
		return fmt.Errorf("config: staff_conversation_id is required")
	}
	return nil
}
