// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"strings"
	"testing"
)

func TestNewConfigFromBytes(t *testing.T) {
	content := `
db:
  host: localhost
  port: "5432"
  database: climate
  user: postgres
  password: secret
manager:
  tickIntervalSeconds: 5
  handlers:
    - resourceType: physical:host
pool:
  freepoolName: freepool
api:
  port: 8080
monitoring:
  port: 2112
  labels:
    github_org: scroiset
logging:
  level: debug
  format: text
`
	config := NewConfigFromBytes([]byte(content))
	if config.DBConfig.Host != "localhost" {
		t.Errorf("expected db host localhost, got %s", config.DBConfig.Host)
	}
	if config.ManagerConfig.TickIntervalSeconds != 5 {
		t.Errorf("expected tick interval 5, got %d", config.ManagerConfig.TickIntervalSeconds)
	}
	if len(config.ManagerConfig.Handlers) != 1 {
		t.Fatalf("expected 1 handler, got %d", len(config.ManagerConfig.Handlers))
	}
	if config.ManagerConfig.Handlers[0].ResourceType != "physical:host" {
		t.Errorf("unexpected handler resource type %q", config.ManagerConfig.Handlers[0].ResourceType)
	}
	if config.PoolConfig.FreepoolName != "freepool" {
		t.Errorf("unexpected freepool name %q", config.PoolConfig.FreepoolName)
	}
	if config.MonitoringConfig.Labels["github_org"] != "scroiset" {
		t.Errorf("unexpected monitoring labels %v", config.MonitoringConfig.Labels)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestNewConfigFromBytes_InvalidYAML(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for invalid yaml")
		}
	}()
	NewConfigFromBytes([]byte("db: [not a map"))
}

func TestValidate_DuplicateHandlers(t *testing.T) {
	config := Config{
		ManagerConfig: ManagerConfig{
			Handlers: []HandlerConfig{
				{ResourceType: "physical:host"},
				{ResourceType: "physical:host"},
			},
		},
	}
	err := config.Validate()
	if err == nil {
		t.Fatal("expected error for duplicate handlers")
	}
	if !strings.Contains(err.Error(), "physical:host") {
		t.Errorf("expected error to name the resource type, got %v", err)
	}
}

func TestValidate_NegativeTickInterval(t *testing.T) {
	config := Config{ManagerConfig: ManagerConfig{TickIntervalSeconds: -1}}
	if err := config.Validate(); err == nil {
		t.Fatal("expected error for negative tick interval")
	}
}

func TestValidate_HandlerWithoutResourceType(t *testing.T) {
	config := Config{
		ManagerConfig: ManagerConfig{Handlers: []HandlerConfig{{}}},
	}
	if err := config.Validate(); err == nil {
		t.Fatal("expected error for handler without resource type")
	}
}
