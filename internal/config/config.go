// Package config loads the relay's YAML configuration.
package config

import "time"

// Config is the top-level relay configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Router   RouterConfig   `yaml:"router"`
	Writer   WriterConfig   `yaml:"writer"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

type ListenConfig struct {
	Addr string `yaml:"addr"`
	// MaxLineBytes bounds a single input line, terminator included.
	MaxLineBytes int `yaml:"max_line_bytes"`
}

type RouterConfig struct {
	EventBuffer int `yaml:"event_buffer"`
}

type WriterConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout"` // 0 disables the deadline
	MailboxCapacity int           `yaml:"mailbox_capacity"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`

	// PeersPath serves the registered peer names next to the metrics.
	PeersPath string `yaml:"peers_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}
