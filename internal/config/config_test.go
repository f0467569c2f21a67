package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Signaling.Server != def.Signaling.Server {
		t.Fatalf("expected default server, got %q", cfg.Signaling.Server)
	}
	if len(cfg.ICEServers) != 1 {
		t.Fatalf("expected default ice servers, got %+v", cfg.ICEServers)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quickcall.json")
	body := `{"signaling":{"server":"wss://sig.example.org/ws","dial_timeout_seconds":5}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Signaling.Server != "wss://sig.example.org/ws" {
		t.Fatalf("overlay not applied: %q", cfg.Signaling.Server)
	}
	// Untouched sections keep their defaults.
	if !cfg.Media.Audio || cfg.Media.MaxWidth != 640 {
		t.Fatalf("defaults lost: %+v", cfg.Media)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad scheme", func(c *Config) { c.Signaling.Server = "http://x" }},
		{"empty server", func(c *Config) { c.Signaling.Server = " " }},
		{"no ice servers", func(c *Config) { c.ICEServers = nil }},
		{"no media kinds", func(c *Config) { c.Media.Audio = false; c.Media.Video = false }},
		{"zero dims", func(c *Config) { c.Media.MaxWidth = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWatchFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quickcall.json")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	got := make(chan Config, 1)
	stop, err := Watch(path, func(c Config) {
		select {
		case got <- c:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	cfg := Default()
	cfg.Signaling.Server = "ws://10.0.0.1:8787/ws"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.Signaling.Server != "ws://10.0.0.1:8787/ws" {
			t.Fatalf("reloaded wrong config: %q", c.Signaling.Server)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch callback never fired")
	}
}
