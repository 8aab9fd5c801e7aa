package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models packdesk.yml.
type Config struct {
	Console struct {
		Name string `yaml:"name"`
	} `yaml:"console"`
	Access struct {
		// Groups maps a resource group name to the roles allowed to enter it.
		Groups map[string]AccessGroup `yaml:"groups"`
		// LandingPages maps a role to its fallback path on denial.
		LandingPages map[string]string `yaml:"landing_pages"`
		FallbackPage string            `yaml:"fallback_page"`
	} `yaml:"access"`
	Channels struct {
		Catalog map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"channels"`
	Features struct {
		Defaults map[string]bool `yaml:"defaults"`
	} `yaml:"features"`
	Scheduler struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"scheduler"`
}

type AccessGroup struct {
	Description string   `yaml:"description"`
	Roles       []string `yaml:"roles"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pdk init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Access.Groups) == 0 {
		return fmt.Errorf("config.access.groups is required")
	}
	for name, group := range c.Access.Groups {
		if name == "" {
			return fmt.Errorf("config.access.groups contains empty group name")
		}
		if len(group.Roles) == 0 {
			return fmt.Errorf("access group %s has no roles", name)
		}
		for _, role := range group.Roles {
			if role == "" {
				return fmt.Errorf("access group %s has empty role", name)
			}
		}
	}
	if c.Access.FallbackPage == "" {
		return fmt.Errorf("config.access.fallback_page is required")
	}
	for role, page := range c.Access.LandingPages {
		if role == "" {
			return fmt.Errorf("config.access.landing_pages contains empty role")
		}
		if page == "" {
			return fmt.Errorf("landing page for role %s is empty", role)
		}
	}
	for id := range c.Channels.Catalog {
		if id == "" {
			return fmt.Errorf("config.channels.catalog contains empty channel id")
		}
	}
	if c.Scheduler.IntervalSeconds < 0 {
		return fmt.Errorf("config.scheduler.interval_seconds must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "packdesk.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(consoleName string) string {
	return fmt.Sprintf(defaultTemplate, consoleName)
}

// Default returns the default Config struct for a console.
func Default(consoleName string) *Config {
	var cfg Config
	cfg.Console.Name = consoleName
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, consoleName))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `console:
  name: %s

access:
  groups:
    admin:
      description: "Internal admin surface"
      roles: [agq_admin]
    partner:
      description: "Partner surface"
      roles: [anonymous, partner_admin, agq_admin]
    reports:
      description: "Reporting surface"
      roles: [agq_admin, partner_admin, analyst]
    unrestricted:
      description: "Open surface"
      roles: [anonymous, partner_admin, analyst, agq_admin]

  landing_pages:
    anonymous: /campaigns
    partner_admin: /home
    analyst: /reports
    agq_admin: /admin

  fallback_page: /campaigns

channels:
  catalog:
    email:
      description: "Email blast"
    sms:
      description: "SMS broadcast"
    social:
      description: "Social media post"
    print:
      description: "Printable collateral"

features:
  defaults:
    sequence_campaigns: true
    standalone_campaigns: true
    pack_approvals: false

scheduler:
  interval_seconds: 60
`
