package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Module describes one named log source: a functional area of the
// application under test with its own log file and test case files.
type Module struct {
	ID         string   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	LogFile    string   `yaml:"log_file" json:"log_file"`
	TestFiles  []string `yaml:"test_files" json:"test_files,omitempty"`
	Collection string   `yaml:"collection" json:"collection,omitempty"`
}

// SupervisorConfig controls the worker liveness loop.
type SupervisorConfig struct {
	WorkerCommand string `yaml:"worker_command"`
	Port          int    `yaml:"port"`
	HealthURL     string `yaml:"health_url"`
	PIDFile       string `yaml:"pid_file"`
	CheckInterval string `yaml:"check_interval"`
	StartGrace    string `yaml:"start_grace"`
	RestartDelay  string `yaml:"restart_delay"`
	MaxRestarts   int    `yaml:"max_restarts"`
	RestartWindow string `yaml:"restart_window"`
}

// Config is the top-level daemon configuration parsed from jnpqa.yaml.
// It is constructed once at startup and treated as immutable afterwards;
// components receive it explicitly instead of reading ambient globals.
type Config struct {
	Listen          string           `yaml:"listen"`
	DataDir         string           `yaml:"data_dir"`
	HistoryDir      string           `yaml:"history_dir"`
	LockDir         string           `yaml:"lock_dir"`
	QueueFile       string           `yaml:"queue_file"`
	LogLevel        string           `yaml:"log_level"`
	TestNamePattern string           `yaml:"test_name_pattern"`
	TestCommand     string           `yaml:"test_command"`
	UpdateSchedule  string           `yaml:"update_schedule"`
	MaxLogTailMB    int64            `yaml:"max_log_tail_mb"`
	MergeTimeout    string           `yaml:"merge_timeout"`
	Modules         []Module         `yaml:"modules"`
	Supervisor      SupervisorConfig `yaml:"supervisor"`
}

func applyDefaults(c *Config) {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:5001"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	c.DataDir = expandPath(c.DataDir)
	if c.HistoryDir == "" {
		c.HistoryDir = filepath.Join(c.DataDir, "history")
	} else {
		c.HistoryDir = expandPath(c.HistoryDir)
	}
	if c.LockDir == "" {
		c.LockDir = c.DataDir
	} else {
		c.LockDir = expandPath(c.LockDir)
	}
	if c.QueueFile == "" {
		c.QueueFile = filepath.Join(c.DataDir, "test_queue.json")
	} else {
		c.QueueFile = expandPath(c.QueueFile)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.TestNamePattern == "" {
		// Test sources of the suite under test are pytest files.
		c.TestNamePattern = `def\s+(test_[A-Za-z0-9_]+)`
	}
	if c.TestCommand == "" {
		c.TestCommand = "python -m pytest -k {test} -s -vv"
	}
	if c.UpdateSchedule == "" {
		c.UpdateSchedule = "@every 5m"
	}
	if c.MaxLogTailMB <= 0 {
		c.MaxLogTailMB = 50
	}
	if c.MergeTimeout == "" {
		c.MergeTimeout = "10s"
	}
	for i := range c.Modules {
		c.Modules[i].LogFile = expandPath(c.Modules[i].LogFile)
		for j := range c.Modules[i].TestFiles {
			c.Modules[i].TestFiles[j] = expandPath(c.Modules[i].TestFiles[j])
		}
		if c.Modules[i].Name == "" {
			c.Modules[i].Name = c.Modules[i].ID
		}
	}

	s := &c.Supervisor
	if s.Port == 0 {
		s.Port = 8766
	}
	if s.HealthURL == "" {
		s.HealthURL = fmt.Sprintf("http://127.0.0.1:%d/api/health", s.Port)
	}
	if s.PIDFile == "" {
		s.PIDFile = filepath.Join(c.DataDir, "worker.pid")
	} else {
		s.PIDFile = expandPath(s.PIDFile)
	}
	if s.CheckInterval == "" {
		s.CheckInterval = "5s"
	}
	if s.StartGrace == "" {
		s.StartGrace = "30s"
	}
	if s.RestartDelay == "" {
		s.RestartDelay = "5s"
	}
	if s.MaxRestarts <= 0 {
		s.MaxRestarts = 5
	}
	if s.RestartWindow == "" {
		s.RestartWindow = "1h"
	}
}

func expandPath(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return value
	}

	v = os.ExpandEnv(v)

	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return v
	}

	if v == "~" {
		return home
	}
	if strings.HasPrefix(v, "~/") {
		return filepath.Join(home, v[2:])
	}
	if strings.HasPrefix(v, "~\\") {
		return filepath.Join(home, v[2:])
	}
	return v
}

func validate(c *Config) error {
	seen := make(map[string]bool, len(c.Modules))
	for _, m := range c.Modules {
		if m.ID == "" {
			return fmt.Errorf("module with log file %q has no id", m.LogFile)
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate module id %q", m.ID)
		}
		seen[m.ID] = true
		if m.LogFile == "" {
			return fmt.Errorf("module %q has no log_file", m.ID)
		}
	}
	return nil
}

// ParseDuration parses one of the config's duration strings, falling
// back to def when the value is empty, malformed, or non-positive.
func ParseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LoadConfig reads a YAML configuration file from path and returns
// a Config with defaults applied for any unset fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
