// Package config loads and watches the quickcall JSON configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Signaling  Signaling   `json:"signaling"`
	ICEServers []ICEServer `json:"ice_servers"`
	Media      Media       `json:"media"`
}

type Signaling struct {
	// Server is the websocket endpoint of the signaling relay,
	// e.g. "ws://localhost:8787/ws".
	Server string `json:"server"`

	DialTimeoutSec int `json:"dial_timeout_seconds"`
}

type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Media holds the default capture constraints, overridable per call.
type Media struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`

	// Caps for captured video. Higher resolutions increase encode latency.
	MaxWidth  int `json:"max_width"`
	MaxHeight int `json:"max_height"`
}

func Default() Config {
	return Config{
		Signaling: Signaling{
			Server:         "ws://127.0.0.1:8787/ws",
			DialTimeoutSec: 10,
		},
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		Media: Media{
			Audio:     true,
			Video:     true,
			MaxWidth:  640,
			MaxHeight: 480,
		},
	}
}

func (c *Config) Validate() error {
	s := strings.TrimSpace(c.Signaling.Server)
	if s == "" {
		return errors.New("signaling.server is required")
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("signaling.server must be a ws:// or wss:// URL, got %q", s)
	}
	if c.Signaling.DialTimeoutSec <= 0 {
		return errors.New("signaling.dial_timeout_seconds must be > 0")
	}

	if len(c.ICEServers) == 0 {
		return errors.New("ice_servers must list at least one STUN/TURN server")
	}
	for i, srv := range c.ICEServers {
		if len(srv.URLs) == 0 {
			return fmt.Errorf("ice_servers[%d].urls is empty", i)
		}
	}

	if !c.Media.Audio && !c.Media.Video {
		return errors.New("media must enable audio, video or both")
	}
	if c.Media.MaxWidth <= 0 || c.Media.MaxHeight <= 0 {
		return errors.New("media.max_width and media.max_height must be > 0")
	}
	return nil
}

// Load reads the config file at path. A missing file yields the defaults;
// a present file is overlaid on top of them, so partial configs are fine.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON, creating parent directories.
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
