package models

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Parameter is one tunable strategy setting. Default is the value used by a backtest,
// Min, Max and Step describe the grid explored by the optimizer.
type Parameter struct {
	Name    string      `yaml:"name"`
	Type    string      `yaml:"type"`
	Default interface{} `yaml:"default"`
	Min     interface{} `yaml:"min,omitempty"`
	Max     interface{} `yaml:"max,omitempty"`
	Step    interface{} `yaml:"step,omitempty"`
}

// Tunable reports whether the optimizer should sweep this parameter
func (p Parameter) Tunable() bool {
	if p.Type == "bool" {
		return true
	}
	return p.Min != nil && p.Max != nil && p.Step != nil
}

// DataFeed points a pair to its historical CSV file
type DataFeed struct {
	Pair string `yaml:"pair"`
	File string `yaml:"file"`
}

// BacktestConfig describes the paper account. Zero values fall back to 10000 USD and a
// commission of 0.2%, a nil Fee keeps the default while an explicit 0 disables it.
type BacktestConfig struct {
	Timeframe      string   `yaml:"timeframe"`
	Quote          string   `yaml:"quote,omitempty"`
	InitialBalance float64  `yaml:"initial_balance"`
	Fee            *float64 `yaml:"fee,omitempty"`
	Slippage       float64  `yaml:"slippage"`
}

type Config struct {
	Strategy       string         `yaml:"strategy"`
	Parameters     []Parameter    `yaml:"parameters"`
	BacktestConfig BacktestConfig `yaml:"backtest"`
	Data           []DataFeed     `yaml:"data,flow"`
}

// Load reads a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return config, nil
}

// Save writes the configuration as YAML, creating the parent directory when needed
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Pairs lists the pairs of the data section in order
func (c *Config) Pairs() []string {
	pairs := make([]string, 0, len(c.Data))
	for _, feed := range c.Data {
		pairs = append(pairs, feed.Pair)
	}
	return pairs
}

// Defaults maps every parameter name to its default value
func (c *Config) Defaults() map[string]interface{} {
	values := make(map[string]interface{}, len(c.Parameters))
	for _, param := range c.Parameters {
		if param.Default != nil {
			values[param.Name] = param.Default
		}
	}
	return values
}

// Clone returns a copy whose parameter list can be changed independently
func (c *Config) Clone() *Config {
	clone := *c
	clone.Parameters = append([]Parameter(nil), c.Parameters...)
	clone.Data = append([]DataFeed(nil), c.Data...)
	return &clone
}

// WithDefaults returns a copy with the given default values applied
func (c *Config) WithDefaults(values map[string]interface{}) *Config {
	clone := c.Clone()
	for i := range clone.Parameters {
		if v, ok := values[clone.Parameters[i].Name]; ok {
			clone.Parameters[i].Default = v
		}
	}
	return clone
}

// ToInt converts a parameter value to an int. YAML numbers decode as int or float64, a
// float is accepted only when it has no fractional part.
func ToInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected an integer, got %v", v)
		}
		return int(v), nil
	}
	return 0, fmt.Errorf("expected an integer, got %T", value)
}

// ToFloat converts a numeric parameter value to a float64
func ToFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("expected a number, got %T", value)
}
