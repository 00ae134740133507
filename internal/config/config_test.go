package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-client
realtime:
  ws_url: wss://demo-stream.finsight.app/realtime/v1
  buffer_size: 500
notifications:
  max_visible: 3
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-client" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-client")
	}
	if cfg.Realtime.WSURL != "wss://demo-stream.finsight.app/realtime/v1" {
		t.Errorf("Realtime.WSURL = %q, want %q", cfg.Realtime.WSURL, "wss://demo-stream.finsight.app/realtime/v1")
	}
	if cfg.Realtime.BufferSize != 500 {
		t.Errorf("Realtime.BufferSize = %d, want 500", cfg.Realtime.BufferSize)
	}
	if cfg.Notifications.MaxVisible != 3 {
		t.Errorf("Notifications.MaxVisible = %d, want 3", cfg.Notifications.MaxVisible)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_AUTH_TOKEN", "secret123")

	yaml := `
instance:
  id: test-client
realtime:
  auth_token: ${TEST_AUTH_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Realtime.AuthToken != "secret123" {
		t.Errorf("Realtime.AuthToken = %q, want %q", cfg.Realtime.AuthToken, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-client
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Realtime.WSURL != DefaultWSURL {
		t.Errorf("Realtime.WSURL = %q, want default %q", cfg.Realtime.WSURL, DefaultWSURL)
	}
	if cfg.Realtime.PingInterval != DefaultPingInterval {
		t.Errorf("Realtime.PingInterval = %v, want default %v", cfg.Realtime.PingInterval, DefaultPingInterval)
	}
	if cfg.Realtime.BufferSize != DefaultBufferSize {
		t.Errorf("Realtime.BufferSize = %d, want default %d", cfg.Realtime.BufferSize, DefaultBufferSize)
	}
	if cfg.Stream.MessageType != DefaultStreamMessageType {
		t.Errorf("Stream.MessageType = %q, want default %q", cfg.Stream.MessageType, DefaultStreamMessageType)
	}
	if cfg.Notifications.MaxVisible != DefaultMaxVisible {
		t.Errorf("Notifications.MaxVisible = %d, want default %d", cfg.Notifications.MaxVisible, DefaultMaxVisible)
	}
	if cfg.Notifications.DefaultDuration != DefaultToastDuration {
		t.Errorf("Notifications.DefaultDuration = %v, want default %v", cfg.Notifications.DefaultDuration, DefaultToastDuration)
	}
	if cfg.Notifications.RemoveDelay != DefaultRemoveDelay {
		t.Errorf("Notifications.RemoveDelay = %v, want default %v", cfg.Notifications.RemoveDelay, DefaultRemoveDelay)
	}
	if cfg.Archive.Table != DefaultArchiveTable {
		t.Errorf("Archive.Table = %q, want default %q", cfg.Archive.Table, DefaultArchiveTable)
	}
	if cfg.Database.Timescale.Port != DefaultDBPort {
		t.Errorf("Database.Timescale.Port = %d, want default %d", cfg.Database.Timescale.Port, DefaultDBPort)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		yaml := `
instance:
  id: test-client
`
		path := writeTempFile(t, yaml)
		cfg, err := LoadWithDefaults(path)
		if err != nil {
			t.Fatalf("LoadWithDefaults failed: %v", err)
		}
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		cfg := base()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate failed: %v", err)
		}
	})

	t.Run("missing instance id", func(t *testing.T) {
		cfg := base()
		cfg.Instance.ID = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing instance.id")
		}
	})

	t.Run("bad ws url scheme", func(t *testing.T) {
		cfg := base()
		cfg.Realtime.WSURL = "https://stream.finsight.app"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for non-websocket URL")
		}
	})

	t.Run("reconnect delays inverted", func(t *testing.T) {
		cfg := base()
		cfg.Realtime.ReconnectBaseDelay = 2 * time.Minute
		cfg.Realtime.ReconnectMaxDelay = time.Second
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for inverted reconnect delays")
		}
	})

	t.Run("archive enabled without types", func(t *testing.T) {
		cfg := base()
		cfg.Archive.Enabled = true
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for archive without message_types")
		}
	})

	t.Run("archive enabled without database", func(t *testing.T) {
		cfg := base()
		cfg.Archive.Enabled = true
		cfg.Archive.MessageTypes = []string{"market.tick"}
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for archive without database host")
		}
	})

	t.Run("archive enabled with database", func(t *testing.T) {
		cfg := base()
		cfg.Archive.Enabled = true
		cfg.Archive.MessageTypes = []string{"market.tick"}
		cfg.Database.Timescale.Host = "localhost"
		cfg.Database.Timescale.Name = "test_ts"
		cfg.Database.Timescale.User = "testuser"
		cfg.Database.Timescale.Password = "testpass"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate failed: %v", err)
		}
	})
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
