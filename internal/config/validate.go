package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks cfg for values the controller cannot work with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateDevice(&cfg.Device); err != nil {
		return fmt.Errorf("device validation failed: %w", err)
	}

	if err := validateTiming(&cfg.Timing); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}

	if err := validatePaths(&cfg.Paths); err != nil {
		return fmt.Errorf("paths validation failed: %w", err)
	}

	if cfg.Serial.ReconnectSec <= 0 {
		return fmt.Errorf("serial validation failed: reconnect delay must be positive, got %ds", cfg.Serial.ReconnectSec)
	}

	for _, cidr := range cfg.Simulator.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("simulator validation failed: invalid CIDR %q", cidr)
		}
	}

	return nil
}

func validateDevice(d *DeviceConfig) error {
	if ip := net.ParseIP(d.FactoryAddress); ip == nil || ip.To4() == nil {
		return fmt.Errorf("factory address %q is not an IPv4 address", d.FactoryAddress)
	}

	// The prefix takes the identity as its last octet.
	if ip := net.ParseIP(d.AddressPrefix + ".1"); ip == nil || ip.To4() == nil || strings.Count(d.AddressPrefix, ".") != 2 {
		return fmt.Errorf("address prefix %q must be three IPv4 octets", d.AddressPrefix)
	}

	if ip := net.ParseIP(d.Netmask); ip == nil || ip.To4() == nil {
		return fmt.Errorf("netmask %q is not a dotted IPv4 mask", d.Netmask)
	}

	if d.SSHPort <= 0 || d.SSHPort > 65535 {
		return fmt.Errorf("ssh port must be in 1..65535, got %d", d.SSHPort)
	}

	if d.User == "" {
		return fmt.Errorf("user cannot be empty")
	}

	if d.DistanceMeters <= 0 {
		return fmt.Errorf("distance must be positive, got %d", d.DistanceMeters)
	}

	switch d.ProbeMethod {
	case "tcp", "icmp":
	default:
		return fmt.Errorf("probe method must be tcp or icmp, got %q", d.ProbeMethod)
	}

	return nil
}

func validateTiming(t *TimingConfig) error {
	if t.ProbeTimeoutMs <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %dms", t.ProbeTimeoutMs)
	}
	if t.DialTimeoutSec <= 0 {
		return fmt.Errorf("dial timeout must be positive, got %ds", t.DialTimeoutSec)
	}
	if t.SettleDelayMs < 0 {
		return fmt.Errorf("settle delay must be non-negative, got %dms", t.SettleDelayMs)
	}
	if t.CommandWaitSec <= 0 {
		return fmt.Errorf("command wait must be positive, got %ds", t.CommandWaitSec)
	}
	if t.PollIntervalMs <= 0 {
		return fmt.Errorf("poll interval must be positive, got %dms", t.PollIntervalMs)
	}
	if t.PollIntervalMs >= t.CommandWaitSec*1000 {
		return fmt.Errorf("poll interval %dms must be shorter than command wait %ds", t.PollIntervalMs, t.CommandWaitSec)
	}
	if t.PairStaleSec < 0 {
		return fmt.Errorf("pair stale age must be non-negative, got %ds", t.PairStaleSec)
	}
	return nil
}

func validatePaths(p *PathsConfig) error {
	if p.Identity == "" {
		return fmt.Errorf("identity path cannot be empty")
	}
	if p.PairStatus == "" {
		return fmt.Errorf("pair status path cannot be empty")
	}
	if p.Identity == p.PairStatus {
		return fmt.Errorf("identity and pair status must be different files")
	}
	return nil
}
