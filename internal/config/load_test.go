package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfig, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Device.FactoryAddress != "192.168.168.1" {
		t.Errorf("FactoryAddress = %q, want 192.168.168.1", cfg.Device.FactoryAddress)
	}
	if cfg.Device.AddressPrefix != "172.20.2" {
		t.Errorf("AddressPrefix = %q, want 172.20.2", cfg.Device.AddressPrefix)
	}
	if cfg.Timing.CommandWait() != 15*time.Second {
		t.Errorf("CommandWait = %v, want 15s", cfg.Timing.CommandWait())
	}
	if cfg.Timing.ProbeTimeout() != 200*time.Millisecond {
		t.Errorf("ProbeTimeout = %v, want 200ms", cfg.Timing.ProbeTimeout())
	}
	if cfg.Device.DistanceMeters != 8047 {
		t.Errorf("DistanceMeters = %d, want 8047", cfg.Device.DistanceMeters)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkctl.yaml")
	yaml := `
device:
  addressPrefix: "10.1.2"
  sshPort: 2222
timing:
  commandWaitSec: 5
  pollIntervalMs: 50
paths:
  identity: /tmp/id.txt
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LINKCTL_COMMAND_WAIT_SEC", "7")
	t.Setenv("LINKCTL_SERIAL_DEVICE", "/dev/ttyACM0")
	t.Setenv("LINKCTL_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Device.AddressPrefix != "10.1.2" {
		t.Errorf("AddressPrefix = %q, want 10.1.2", cfg.Device.AddressPrefix)
	}
	if cfg.Device.SSHPort != 2222 {
		t.Errorf("SSHPort = %d, want 2222", cfg.Device.SSHPort)
	}
	if cfg.Device.FactoryAddress != "192.168.168.1" {
		t.Errorf("FactoryAddress = %q, defaults must survive a partial file", cfg.Device.FactoryAddress)
	}
	if cfg.Timing.CommandWaitSec != 7 {
		t.Errorf("CommandWaitSec = %d, want env override 7", cfg.Timing.CommandWaitSec)
	}
	if cfg.Timing.PollInterval() != 50*time.Millisecond {
		t.Errorf("PollInterval = %v, want 50ms", cfg.Timing.PollInterval())
	}
	if cfg.Paths.Identity != "/tmp/id.txt" {
		t.Errorf("Identity path = %q", cfg.Paths.Identity)
	}
	if cfg.Serial.Device != "/dev/ttyACM0" {
		t.Errorf("Serial.Device = %q", cfg.Serial.Device)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadFromEnvConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(path, []byte("device:\n  probeMethod: icmp\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfig, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Device.ProbeMethod != "icmp" {
		t.Errorf("ProbeMethod = %q, want icmp", cfg.Device.ProbeMethod)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(EnvConfig, "")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("device: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected error for malformed YAML")
	}

	t.Setenv("LINKCTL_COMMAND_WAIT_SEC", "soon")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric LINKCTL_COMMAND_WAIT_SEC")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil-safe default", func(*Config) {}},
		{"bad factory address", func(c *Config) { c.Device.FactoryAddress = "radio.local" }},
		{"prefix with four octets", func(c *Config) { c.Device.AddressPrefix = "172.20.2.1" }},
		{"bad netmask", func(c *Config) { c.Device.Netmask = "16" }},
		{"port zero", func(c *Config) { c.Device.SSHPort = 0 }},
		{"empty user", func(c *Config) { c.Device.User = "" }},
		{"unknown probe", func(c *Config) { c.Device.ProbeMethod = "arp" }},
		{"zero wait", func(c *Config) { c.Timing.CommandWaitSec = 0 }},
		{"poll longer than wait", func(c *Config) { c.Timing.PollIntervalMs = 20000 }},
		{"same files", func(c *Config) { c.Paths.PairStatus = c.Paths.Identity }},
		{"zero reconnect", func(c *Config) { c.Serial.ReconnectSec = 0 }},
		{"bad cidr", func(c *Config) { c.Simulator.AllowedCIDRs = []string{"nope"} }},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if i == 0 {
				if err != nil {
					t.Errorf("Validate(Default()) = %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Validate() accepted %s", tt.name)
			}
		})
	}

	if err := Validate(nil); err == nil {
		t.Error("Validate(nil) should fail")
	}
}
