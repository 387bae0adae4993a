package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mcdev12/manhunt/go/internal/gateway"
	"gopkg.in/yaml.v3"
)

// Config is the gateway's yaml configuration. Environment variables
// override the file where both are set.
type Config struct {
	Port string `yaml:"port"`

	NATS struct {
		URL           string `yaml:"url"`
		Stream        string `yaml:"stream"`
		Consumer      string `yaml:"consumer"`
		SubjectFilter string `yaml:"subject_filter"`
	} `yaml:"nats"`

	Websocket struct {
		PingIntervalSec int `yaml:"ping_interval_sec"`
		ReadTimeoutSec  int `yaml:"read_timeout_sec"`
		WriteTimeoutSec int `yaml:"write_timeout_sec"`
	} `yaml:"websocket"`
}

func loadConfig(path string) (*Config, error) {
	config := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if config.Port == "" {
		config.Port = "8081"
	}
	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		config.Port = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		config.NATS.URL = v
	}
	if config.NATS.URL == "" {
		config.NATS.URL = "nats://localhost:4222"
	}
	return config, nil
}

func (c *Config) gatewayConfig() gateway.Config {
	cfg := gateway.DefaultConfig()
	cfg.JetStreamConfig.URL = c.NATS.URL
	if c.NATS.Stream != "" {
		cfg.JetStreamConfig.StreamName = c.NATS.Stream
	}
	if c.NATS.Consumer != "" {
		cfg.JetStreamConfig.ConsumerName = c.NATS.Consumer
	}
	if c.NATS.SubjectFilter != "" {
		cfg.JetStreamConfig.SubjectFilter = c.NATS.SubjectFilter
	}
	if c.Websocket.PingIntervalSec > 0 {
		cfg.ConnectionConfig.PingInterval = time.Duration(c.Websocket.PingIntervalSec) * time.Second
	}
	if c.Websocket.ReadTimeoutSec > 0 {
		cfg.ConnectionConfig.ReadTimeout = time.Duration(c.Websocket.ReadTimeoutSec) * time.Second
	}
	if c.Websocket.WriteTimeoutSec > 0 {
		cfg.ConnectionConfig.WriteTimeout = time.Duration(c.Websocket.WriteTimeoutSec) * time.Second
	}
	return cfg
}
