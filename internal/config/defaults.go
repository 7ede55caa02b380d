package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListenAddr      = "127.0.0.1:8000"
	DefaultMaxLineBytes    = 64 * 1024
	DefaultEventBuffer     = 128
	DefaultMailboxCapacity = 16
	DefaultMetricsAddr     = ":9090"
	DefaultMetricsPath     = "/metrics"
	DefaultPeersPath       = "/debug/peers"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultShutdownTimeout = 10 * time.Second
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Addr == "" {
		c.Listen.Addr = DefaultListenAddr
	}
	if c.Listen.MaxLineBytes == 0 {
		c.Listen.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.Router.EventBuffer == 0 {
		c.Router.EventBuffer = DefaultEventBuffer
	}
	if c.Writer.MailboxCapacity == 0 {
		c.Writer.MailboxCapacity = DefaultMailboxCapacity
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.PeersPath == "" {
		c.Metrics.PeersPath = DefaultPeersPath
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultShutdownTimeout
	}
}
