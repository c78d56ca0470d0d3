package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig                 `yaml:"app"`
	Gateways     map[string]GatewayConfig  `yaml:"gateways"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Memory       MemoryConfig              `yaml:"memory"`
	Orchestrator OrchestratorConfig        `yaml:"orchestrator"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Workspace string `yaml:"workspace"`
	Prompts   string `yaml:"prompts"`
}

type GatewayConfig struct {
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type MemoryConfig struct {
	Path string `yaml:"path"`
}

type OrchestratorConfig struct {
	MaxIterations      int `yaml:"max_iterations"`
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
}

// CallTimeout returns the per-call deadline, zero meaning none.
func (o OrchestratorConfig) CallTimeout() time.Duration {
	return time.Duration(o.CallTimeoutSeconds) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGateway returns the named gateway config if enabled
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}
