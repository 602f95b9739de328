package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the host-level wiring configuration for a running
// engine instance: where its graph document lives, which API port to
// serve, and whether the MQTT bridge and Postgres sink are enabled. The
// host binaries use MQTT.BrokerURL and Postgres.Host only as on/off
// switches; the connections themselves are addressed from the MQTT_URL
// and PG* environment variables, not from these fields. None of this bears
// on evaluation semantics, which depend only on the loaded graph.Document.
type EngineConfig struct {
	Version int `yaml:"version"`
	Graph   struct {
		Path   string `yaml:"path"`
		Format string `yaml:"format"` // "json" | "yaml"
	} `yaml:"graph"`
	Network struct {
		APIPort int `yaml:"api_port"`
	} `yaml:"network"`
	MQTT struct {
		BrokerURL string `yaml:"broker_url"`
		ClientID  string `yaml:"client_id"`
	} `yaml:"mqtt"`
	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Database string `yaml:"database"`
		RunLabel string `yaml:"run_label"`
	} `yaml:"postgres"`
}

// APIPort returns the configured API port, defaulting to 8080 if not set.
func (c *EngineConfig) APIPort() int {
	if c.Network.APIPort == 0 {
		return 8080
	}
	return c.Network.APIPort
}

// GraphFormat returns the configured graph document format, defaulting to
// "json" if not set.
func (c *EngineConfig) GraphFormat() string {
	if c.Graph.Format == "" {
		return "json"
	}
	return c.Graph.Format
}

const supportedConfigVersion = 1

// LoadEngineConfig reads and validates an EngineConfig from path.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != supportedConfigVersion {
		return nil, fmt.Errorf("unsupported engine config version: %d", cfg.Version)
	}

	return &cfg, nil
}
