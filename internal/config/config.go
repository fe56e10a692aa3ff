package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"corsair/internal/domain"
)

// Config models corsair.yml.
type Config struct {
	Worker struct {
		BaseURL     string `yaml:"base_url"`
		RealtimeURL string `yaml:"realtime_url"`
	} `yaml:"worker"`
	Dispatch struct {
		// TimeoutSeconds bounds how long a submitted batch may stay
		// pending before the client reconciles without it.
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"dispatch"`
	Reads struct {
		RetryAttempts int `yaml:"retry_attempts"`
		RetryDelayMS  int `yaml:"retry_delay_ms"`
	} `yaml:"reads"`
	World struct {
		Layers []domain.Layer `yaml:"layers"`
	} `yaml:"world"`
}

var knownKinds = map[domain.MissionKind]bool{
	domain.KindPlunders: true,
	domain.KindEvents:   true,
	domain.KindBurners:  true,
	domain.KindSpecials: true,
	domain.KindRaids:    true,
	domain.KindGenesis:  true,
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate with csr config init", path)
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
	if c.Worker.BaseURL == "" {
		return fmt.Errorf("config.worker.base_url is required")
	}
	if c.Dispatch.TimeoutSeconds < 0 {
		return fmt.Errorf("config.dispatch.timeout_seconds must not be negative")
	}
	if c.Reads.RetryAttempts < 0 {
		return fmt.Errorf("config.reads.retry_attempts must not be negative")
	}
	if len(c.World.Layers) == 0 {
		return fmt.Errorf("config.world.layers is required")
	}
	seen := map[int]bool{}
	for _, layer := range c.World.Layers {
		if layer.ID <= 0 {
			return fmt.Errorf("layer %q has invalid id %d", layer.Name, layer.ID)
		}
		if seen[layer.ID] {
			return fmt.Errorf("duplicate layer id %d", layer.ID)
		}
		seen[layer.ID] = true
		if layer.Name == "" {
			return fmt.Errorf("layer %d has empty name", layer.ID)
		}
		for _, m := range layer.Missions {
			if m.Name == "" {
				return fmt.Errorf("layer %d has mission with empty name", layer.ID)
			}
			if m.Path == "" {
				return fmt.Errorf("mission %q has empty path", m.Name)
			}
			if !knownKinds[m.Kind] {
				return fmt.Errorf("mission %q has unknown kind %q", m.Name, m.Kind)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "corsair.yml")
}

// Timeout defaults applied when the file omits them.
const (
	DefaultTimeoutSeconds = 20
	DefaultRetryAttempts  = 3
	DefaultRetryDelayMS   = 500
)

// ApplyDefaults fills zero-valued tuning knobs.
func (c *Config) ApplyDefaults() {
	if c.Dispatch.TimeoutSeconds == 0 {
		c.Dispatch.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Reads.RetryAttempts == 0 {
		c.Reads.RetryAttempts = DefaultRetryAttempts
	}
	if c.Reads.RetryDelayMS == 0 {
		c.Reads.RetryDelayMS = DefaultRetryDelayMS
	}
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.ApplyDefaults()
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

const defaultTemplate = `worker:
  base_url: http://127.0.0.1:8080/v0
  realtime_url: ws://127.0.0.1:8080/ws

dispatch:
  timeout_seconds: 20

reads:
  retry_attempts: 3
  retry_delay_ms: 500

world:
  layers:
    - id: 1
      name: Tortuga Shallows
      image: layers/shallows.png
      missions:
        - id: m-gem-emporium
          name: Gem Emporium
          kind: Events
          path: events/gem-emporium
          x: 120
          y: 340
        - id: m-driftwood-derby
          name: Driftwood Derby
          kind: Events
          path: events/driftwood-derby
          x: 410
          y: 180
    - id: 2
      name: Kraken Reach
      image: layers/reach.png
      missions:
        - id: m-moonlit-regatta
          name: Moonlit Regatta
          kind: Events
          path: events/moonlit-regatta
          x: 200
          y: 90
        - id: m-merchant-convoy
          name: Merchant Convoy
          kind: Plunders
          path: plunders/merchant-convoy
          x: 330
          y: 260
        - id: m-galleon-run
          name: Galleon Run
          kind: Plunders
          path: plunders/galleon-run
          x: 520
          y: 420
    - id: 3
      name: Ashen Maelstrom
      image: layers/maelstrom.png
      missions:
        - id: m-powder-keg
          name: Powder Keg
          kind: Burners
          path: burners/powder-keg
          x: 140
          y: 220
        - id: m-ghost-fleet
          name: Ghost Fleet
          kind: Plunders
          path: plunders/ghost-fleet
          x: 380
          y: 160
        - id: m-siren-vault
          name: Siren Vault
          kind: Specials
          path: specials/siren-vault
          x: 470
          y: 330
`
