package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Listen.Addr == "" {
		return errors.New("listen.addr is required")
	}
	if c.Listen.MaxLineBytes < 1 {
		return errors.New("listen.max_line_bytes must be >= 1")
	}
	if c.Router.EventBuffer < 0 {
		return errors.New("router.event_buffer must be >= 0")
	}
	if c.Writer.MailboxCapacity < 1 {
		return errors.New("writer.mailbox_capacity must be >= 1")
	}
	if c.Writer.WriteTimeout < 0 {
		return fmt.Errorf("writer.write_timeout must be >= 0, got %s", c.Writer.WriteTimeout)
	}
	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			return errors.New("metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
		}
		if !strings.HasPrefix(c.Metrics.PeersPath, "/") || c.Metrics.PeersPath == c.Metrics.Path {
			return fmt.Errorf("metrics.peers_path must start with / and differ from metrics.path, got %q", c.Metrics.PeersPath)
		}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Shutdown.Timeout <= 0 {
		return errors.New("shutdown.timeout must be > 0")
	}
	return nil
}

// SlogLevel parses Level into a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
