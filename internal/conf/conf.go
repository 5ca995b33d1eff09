// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Database configuration.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Configuration for the OpenStack keystone authentication.
type KeystoneConfig struct {
	// URL to the keystone identity endpoint.
	URL string `yaml:"url"`
	// Credentials used to authenticate.
	OSUsername          string `yaml:"username"`
	OSPassword          string `yaml:"password"`
	OSProjectName       string `yaml:"projectName"`
	OSUserDomainName    string `yaml:"userDomainName"`
	OSProjectDomainName string `yaml:"projectDomainName"`
	// Which endpoint availability to use (public, internal, admin).
	Availability string `yaml:"availability"`
}

// Configuration for a single resource type handler.
type HandlerConfig struct {
	// The resource type the handler is registered under, e.g. "physical:host".
	ResourceType string `yaml:"resourceType"`
	// Custom options for the handler, as a raw yaml map.
	Options RawOpts `yaml:"options,omitempty"`
}

// Configuration for the manager module.
type ManagerConfig struct {
	// Seconds between two ticks of the event loop.
	TickIntervalSeconds int `yaml:"tickIntervalSeconds"`
	// Resource type handlers to load on startup.
	Handlers []HandlerConfig `yaml:"handlers"`
}

// Configuration for the pool module.
type PoolConfig struct {
	// Name of the special pool where all hosts are candidate
	// for physical host reservation.
	FreepoolName string `yaml:"freepoolName"`
}

// Configuration for the api module.
type APIConfig struct {
	// The port to serve the api on.
	Port int `yaml:"port"`
}

// Configuration for the monitoring module.
type MonitoringConfig struct {
	// The labels to add to all metrics.
	Labels map[string]string `yaml:"labels"`
	// The port to expose the metrics on.
	Port int `yaml:"port"`
}

// Configuration for the lease manager service.
type Config struct {
	DBConfig         `yaml:"db"`
	KeystoneConfig   `yaml:"keystone"`
	ManagerConfig    `yaml:"manager"`
	PoolConfig       `yaml:"pool"`
	APIConfig        `yaml:"api"`
	MonitoringConfig `yaml:"monitoring"`
	LoggingConfig    `yaml:"logging"`
}

// Create a new configuration from the default config yaml file.
func NewConfig() Config {
	return NewConfigFromFile("/etc/config/conf.yaml")
}

// Create a new configuration from the given file.
func NewConfigFromFile(filepath string) Config {
	file, err := os.Open(filepath)
	if err != nil {
		panic(err)
	}
	defer file.Close()
	bytes, err := io.ReadAll(file)
	if err != nil {
		panic(err)
	}
	return NewConfigFromBytes(bytes)
}

// Create a new configuration from the given bytes.
func NewConfigFromBytes(bytes []byte) Config {
	var c Config
	if err := yaml.Unmarshal(bytes, &c); err != nil {
		panic(err)
	}
	return c
}

// Check if the configuration is valid.
func (c *Config) Validate() error {
	if c.ManagerConfig.TickIntervalSeconds < 0 {
		return fmt.Errorf("manager: negative tick interval")
	}
	seen := map[string]bool{}
	for _, h := range c.ManagerConfig.Handlers {
		if h.ResourceType == "" {
			return fmt.Errorf("manager: handler without resource type")
		}
		if seen[h.ResourceType] {
			return fmt.Errorf(
				"manager: several handlers for resource type %q, "+
					"please set one handler per resource type", h.ResourceType,
			)
		}
		seen[h.ResourceType] = true
	}
	return nil
}
