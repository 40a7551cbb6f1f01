// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the YAML configuration files for the broker and
// worker binaries.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BrokerConfig is the broker binary's on-disk configuration.
type BrokerConfig struct {
	Endpoint            string `yaml:"endpoint"`
	AdminEndpoint       string `yaml:"admin_endpoint"`
	HeartbeatIntervalMS int    `yaml:"heartbeat_interval_ms"`
	HeartbeatLiveness   int    `yaml:"heartbeat_liveness"`
	ServiceTimeoutMS    int    `yaml:"service_timeout_ms"`
	AuditDBPath         string `yaml:"audit_db_path"`
}

// HeartbeatInterval returns the configured interval as a time.Duration.
func (c BrokerConfig) HeartbeatInterval() time.Duration {
	if c.HeartbeatIntervalMS <= 0 {
		return 0
	}
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

// ServiceTimeout returns the configured timeout as a time.Duration.
func (c BrokerConfig) ServiceTimeout() time.Duration {
	if c.ServiceTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.ServiceTimeoutMS) * time.Millisecond
}

// WorkerConfig is the worker binary's on-disk configuration.
type WorkerConfig struct {
	Broker      string `yaml:"broker"`
	Service     string `yaml:"service"`
	Identity    string `yaml:"identity"`
	ReconnectMS int    `yaml:"reconnect_ms"`
}

// ReconnectInitial returns the configured initial backoff.
func (c WorkerConfig) ReconnectInitial() time.Duration {
	if c.ReconnectMS <= 0 {
		return 0
	}
	return time.Duration(c.ReconnectMS) * time.Millisecond
}

// LoadBrokerConfig reads and parses a broker YAML config file.
func LoadBrokerConfig(path string) (BrokerConfig, error) {
	var cfg BrokerConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWorkerConfig reads and parses a worker YAML config file.
func LoadWorkerConfig(path string) (WorkerConfig, error) {
	var cfg WorkerConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
