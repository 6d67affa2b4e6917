package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadSubscribersConfig loads the subscribers configuration from config/subscribers.yaml.
func LoadSubscribersConfig() (*SubscribersConfig, error) {
	return LoadSubscribersConfigFromPath(filepath.Join("config", "subscribers.yaml"))
}

// LoadSubscribersConfigFromPath loads the subscribers configuration from a specific path.
func LoadSubscribersConfigFromPath(path string) (*SubscribersConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscribers config: %w", err)
	}

	var cfg SubscribersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse subscribers config: %w", err)
	}

	for id, settings := range cfg.Subscribers {
		if settings.Queue == "" {
			return nil, fmt.Errorf("subscriber %s: queue is required", id)
		}
	}

	return &cfg, nil
}

// LoadSubscribersConfigOrDefault loads the subscribers config, or returns the
// built-in default if the file is not present.
func LoadSubscribersConfigOrDefault() *SubscribersConfig {
	cfg, err := LoadSubscribersConfig()
	if err != nil {
		return DefaultSubscribersConfig()
	}
	return cfg
}

// DefaultSubscribersConfig returns the built-in subscription listener set:
// the reactive graph bridge and the audit log mirror, both enabled.
func DefaultSubscribersConfig() *SubscribersConfig {
	return &SubscribersConfig{
		Subscribers: map[string]*SubscriberSettings{
			"reactive-graph": {
				Enabled:     true,
				Queue:       "reactive",
				Description: "Feeds committed events into the in-process reactive graph",
			},
			"audit-mirror": {
				Enabled:     true,
				Queue:       "audit",
				Description: "Mirrors committed events to an external audit sink",
			},
		},
	}
}
