package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Realtime.WSURL == "" {
		return errors.New("realtime.ws_url is required")
	}
	if !strings.HasPrefix(c.Realtime.WSURL, "ws://") && !strings.HasPrefix(c.Realtime.WSURL, "wss://") {
		return fmt.Errorf("realtime.ws_url must be a ws:// or wss:// URL, got %q", c.Realtime.WSURL)
	}
	if c.Realtime.BufferSize < 1 {
		return errors.New("realtime.buffer_size must be >= 1")
	}
	if c.Realtime.ReconnectBaseDelay > c.Realtime.ReconnectMaxDelay {
		return errors.New("realtime.reconnect_base_delay must be <= realtime.reconnect_max_delay")
	}

	if c.Notifications.MaxVisible < 1 {
		return errors.New("notifications.max_visible must be >= 1")
	}
	if c.Notifications.RemoveDelay < 0 {
		return errors.New("notifications.remove_delay must be >= 0")
	}

	if c.Archive.Enabled {
		if len(c.Archive.MessageTypes) == 0 {
			return errors.New("archive.message_types is required when archive is enabled")
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.Port < 1 || db.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535, got %d", prefix, db.Port)
	}
	return nil
}
