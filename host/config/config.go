// Package config loads the JSON configuration shared by the host tools.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"inverter/core"
)

// Clock modes for the simulator
const (
	ClockWall    = "wall"
	ClockVirtual = "virtual"
)

// Config is the host tool configuration file
type Config struct {
	Inverter  core.Config     `json:"inverter"`
	Simulator SimulatorConfig `json:"simulator"`
	Server    ServerConfig    `json:"server"`
	Monitor   MonitorConfig   `json:"monitor"`
}

// SimulatorConfig controls the software inverter
type SimulatorConfig struct {
	Clock       string `json:"clock"`        // wall | virtual
	HistorySize int    `json:"history_size"` // Compare writes kept per channel
	Cycles      int    `json:"cycles"`       // Virtual mode: electrical cycles to run, 0 runs until stopped
	ApplyEvery  int    `json:"apply_every"`  // Virtual mode: ticks between applier iterations
}

// ServerConfig is the HTTP listen address
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// MonitorConfig selects the serial port the firmware reports on
type MonitorConfig struct {
	Device      string `json:"device"`
	Baud        int    `json:"baud"`
	ReadTimeout int    `json:"read_timeout_ms"`
}

// LoadConfig parses a JSON configuration and fills in defaults.
// Inverter fields start from core.DefaultConfig, so only fields present in
// the file change and an explicit 0 (dead time, harmonic weight) is kept.
// Other sections treat zero values as unset.
func LoadConfig(jsonData []byte) (*Config, error) {
	config := Config{Inverter: core.DefaultConfig()}

	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	applyDefaults(&config)

	if err := config.Inverter.Validate(); err != nil {
		return nil, errors.Wrap(err, "inverter config")
	}
	if config.Simulator.Clock != ClockWall && config.Simulator.Clock != ClockVirtual {
		return nil, errors.Errorf("unknown simulator clock '%s' (%s|%s)", config.Simulator.Clock, ClockWall, ClockVirtual)
	}
	if config.Simulator.Cycles < 0 || config.Simulator.ApplyEvery < 0 {
		return nil, errors.New("simulator cycles and apply_every must not be negative")
	}
	return &config, nil
}

// LoadFile reads and parses a configuration file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return LoadConfig(data)
}

// Default returns the configuration used when no file is given
func Default() *Config {
	config := &Config{Inverter: core.DefaultConfig()}
	applyDefaults(config)
	return config
}

// applyDefaults fills in missing host tool settings
func applyDefaults(config *Config) {
	inv := &config.Inverter

	if config.Simulator.Clock == "" {
		config.Simulator.Clock = ClockWall
	}
	if config.Simulator.ApplyEvery == 0 {
		config.Simulator.ApplyEvery = 1
	}
	if config.Simulator.HistorySize == 0 {
		config.Simulator.HistorySize = 4 * inv.SampleCount
	}

	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 7130
	}

	if config.Monitor.Device == "" {
		config.Monitor.Device = "/dev/ttyACM0"
	}
	if config.Monitor.Baud == 0 {
		config.Monitor.Baud = 115200
	}
	if config.Monitor.ReadTimeout == 0 {
		config.Monitor.ReadTimeout = 100
	}
}
