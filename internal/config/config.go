package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	ServiceModeSleep = "sleep"
	ServiceModeAdd   = "add"
)

// Config is the on-disk run configuration shared by the publisher and the
// subscriber. Keys mirror the JSON file verbatim.
type Config struct {
	Broker            string `json:"broker"`
	Port              int    `json:"port"`
	StatusUpdateTopic string `json:"status_update_topic"`
	AckTopic          string `json:"ack_topic"`
	ZWPolicy          bool   `json:"ZW_policy"`
	QoS               byte   `json:"qos"`

	ConfigDirpath    string `json:"config_dirpath"`
	EmpiricalDirpath string `json:"empirical_dirpath"`
	FiguresDirpath   string `json:"figures_dirpath"`

	ConfigFilename      string `json:"config_filename"`
	LogFilename         string `json:"log_filename"`
	MatFilename         string `json:"mat_filename"`
	ServiceTimeFilename string `json:"service_time_filename"`

	NumSamples int `json:"numSamples"`
	MinSamples int `json:"minSamples"`

	// Lamb is the interarrival interval in seconds
	Lamb float64 `json:"lamb"`
	// Mu is the service rate used when no sweep is configured
	Mu float64 `json:"mu"`
	// AckTimeout bounds every ack wait, in seconds
	AckTimeout float64 `json:"ack_timeout"`

	ServiceMode string  `json:"service_mode"`
	SimOffset   float64 `json:"sim_offset"`

	Sweep Sweep `json:"sweep"`
}

// keys that must be present in a config file that already exists
var requiredKeys = []string{
	"broker",
	"port",
	"status_update_topic",
	"ack_topic",
	"ZW_policy",
	"numSamples",
	"minSamples",
}

func Default() *Config {
	c := &Config{
		Broker:            "broker.emqx.io",
		Port:              1883,
		StatusUpdateTopic: "artc/status_update",
		AckTopic:          "artc/ack",
		ZWPolicy:          true,
		NumSamples:        100_000,
		MinSamples:        1_000,
	}
	c.applyDefaults(nil)
	return c
}

// Load reads the config file at path. A missing file is created with the
// built-in defaults, which are returned.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.ConfigDirpath = filepath.Dir(path)
		cfg.ConfigFilename = filepath.Base(path)
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	for _, k := range requiredKeys {
		if _, ok := keys[k]; !ok {
			return nil, fmt.Errorf("config %s: missing key %q", path, k)
		}
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults(keys)

	return &cfg, nil
}

// Save writes the config as indented JSON, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	out, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, append(out, '\n'), 0o644)
}

// applyDefaults fills in every optional key missing from present. Keys the
// file does carry are kept as written, zero values included.
func (c *Config) applyDefaults(present map[string]json.RawMessage) {
	absent := func(key string) bool {
		_, ok := present[key]
		return !ok
	}

	if absent("config_dirpath") {
		c.ConfigDirpath = "./config"
	}
	if absent("empirical_dirpath") {
		c.EmpiricalDirpath = "./empirical_results"
	}
	if absent("figures_dirpath") {
		c.FiguresDirpath = "./figures"
	}
	if absent("config_filename") {
		c.ConfigFilename = "config.json"
	}
	if absent("log_filename") {
		c.LogFilename = "PAoI.txt"
	}
	if absent("mat_filename") {
		c.MatFilename = "PAoI.mat"
	}
	if absent("service_time_filename") {
		c.ServiceTimeFilename = "ServiceTime.txt"
	}
	if absent("lamb") {
		c.Lamb = 3
	}
	if absent("mu") {
		c.Mu = 3
	}
	if absent("ack_timeout") {
		c.AckTimeout = 10
	}
	if absent("service_mode") {
		c.ServiceMode = ServiceModeSleep
	}
	if absent("sweep") {
		c.Sweep = Sweep{Start: 1.0, Stop: 5.0, Step: 0.5}
	}
}

func (c *Config) Policy() Policy {
	if c.ZWPolicy {
		return PolicyZW
	}
	return PolicyCU
}

func (c *Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Broker, c.Port)
}

// EnsureDirs creates the config, results and figures directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.ConfigDirpath, c.EmpiricalDirpath, c.FiguresDirpath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
