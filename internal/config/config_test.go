package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host.Kind != "stdio" || cfg.Peers.Max != 5 || cfg.Queues.RadioEvents != 6 || cfg.Queues.HostLines != 8 {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Host.LineMax != 1024 || cfg.Host.ReadTimeoutMS != 500 || cfg.Host.PollMS != 200 {
		t.Fatalf("host defaults: %+v", cfg.Host)
	}
	if cfg.Store.Path != filepath.Join("./data", "nowgate.db") {
		t.Fatalf("store path = %q", cfg.Store.Path)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gw.yaml")
	yaml := `
mac: "02:00:00:00:00:01"
host:
  kind: tcp
  listen: 127.0.0.1:9000
radio:
  listen: 127.0.0.1:4800
  air: [127.0.0.1:4801, 127.0.0.1:4802]
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NOWGATE_HOST_KIND", "WebSocket")
	t.Setenv("NOWGATE_PEERS_MAX", "3")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host.Kind != "websocket" {
		t.Fatalf("host.kind = %q", cfg.Host.Kind)
	}
	if cfg.Peers.Max != 3 {
		t.Fatalf("peers.max = %d", cfg.Peers.Max)
	}
	if cfg.MAC != "02:00:00:00:00:01" || cfg.Host.Listen != "127.0.0.1:9000" || cfg.Log.Level != "debug" {
		t.Fatalf("file values: %+v", cfg)
	}
	if len(cfg.Radio.Air) != 2 || cfg.Radio.Air[1] != "127.0.0.1:4802" {
		t.Fatalf("radio.air = %v", cfg.Radio.Air)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"short pmk", func(c *Config) { c.PMK = "short" }},
		{"bad mac", func(c *Config) { c.MAC = "FF:FF:FF:FF:FF:FF" }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad kind", func(c *Config) { c.Host.Kind = "serial" }},
		{"tcp no listen", func(c *Config) { c.Host.Kind = "tcp"; c.Host.Listen = "" }},
	}
	for _, tt := range tests {
		c := Default()
		tt.mod(c)
		if err := c.validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
	if err := Default().validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}
}
