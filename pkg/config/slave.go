package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SlaveConfig is the Slave agent's process-wide configuration, following
// the teacher's worker.Config style: a flat struct loaded from YAML with
// environment-variable overrides for per-deployment knobs.
type SlaveConfig struct {
	NodeName             string `yaml:"nodeName"`
	MasterAddress        string `yaml:"masterAddress"`
	AgentVersion         string `yaml:"agentVersion"`
	OSDescription        string `yaml:"osDescription"`
	FrameworkDescription string `yaml:"frameworkDescription"`
	MaxConcurrentTasks   int    `yaml:"maxConcurrentTasks"`
	HeartbeatIntervalSec int    `yaml:"heartbeatIntervalSec"`
}

// DefaultsSlave returns the slave's out-of-the-box configuration.
func DefaultsSlave() SlaveConfig {
	hostname, _ := os.Hostname()
	return SlaveConfig{
		NodeName:             hostname,
		MasterAddress:        "127.0.0.1:7717",
		AgentVersion:         "dev",
		OSDescription:        "unknown",
		FrameworkDescription: "sitekeeper-slave",
		MaxConcurrentTasks:   4,
		HeartbeatIntervalSec: 15,
	}
}

// LoadSlave reads YAML configuration from path, applies it over
// DefaultsSlave(), then applies environment variable overrides.
func LoadSlave(path string) (SlaveConfig, error) {
	cfg := DefaultsSlave()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return SlaveConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return SlaveConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("SITEKEEPER_NODE_NAME"); v != "" {
		cfg.NodeName = v
	}
	if v := os.Getenv("SITEKEEPER_MASTER_ADDRESS"); v != "" {
		cfg.MasterAddress = v
	}

	if cfg.NodeName == "" {
		return SlaveConfig{}, fmt.Errorf("nodeName is required")
	}
	return cfg, nil
}
