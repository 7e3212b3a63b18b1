package config

import "time"

// Config is the complete linkctl configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Timing    TimingConfig    `yaml:"timing"`
	Paths     PathsConfig     `yaml:"paths"`
	Serial    SerialConfig    `yaml:"serial"`
	Log       LogConfig       `yaml:"log"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// DeviceConfig describes how the radio is reached.
type DeviceConfig struct {
	FactoryAddress    string `yaml:"factoryAddress"`
	AddressPrefix     string `yaml:"addressPrefix"`
	Netmask           string `yaml:"netmask"`
	SSHPort           int    `yaml:"sshPort"`
	User              string `yaml:"user"`
	FactoryCredential string `yaml:"factoryCredential"`
	DistanceMeters    int    `yaml:"distanceMeters"`
	ProbeMethod       string `yaml:"probeMethod"` // tcp or icmp
}

// TimingConfig holds probe and session timings.
type TimingConfig struct {
	ProbeTimeoutMs int `yaml:"probeTimeoutMs"`
	DialTimeoutSec int `yaml:"dialTimeoutSec"`
	SettleDelayMs  int `yaml:"settleDelayMs"`  // wait after the shell opens
	CommandWaitSec int `yaml:"commandWaitSec"` // per command
	PollIntervalMs int `yaml:"pollIntervalMs"`
	PairStaleSec   int `yaml:"pairStaleSec"` // 0 keeps InProgress records forever
}

// PathsConfig locates the persisted records.
type PathsConfig struct {
	Identity      string `yaml:"identity"`
	PairStatus    string `yaml:"pairStatus"`
	Credential    string `yaml:"credential"`
	CredentialKey string `yaml:"credentialKey"` // file whose contents seal the credential
	AuditDir      string `yaml:"auditDir"`
}

// SerialConfig is the controller-facing line.
type SerialConfig struct {
	Device       string `yaml:"device"`
	Baud         int    `yaml:"baud"`
	ReconnectSec int    `yaml:"reconnectSec"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty logs to stderr
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// SimulatorConfig configures cmd/radiosim.
type SimulatorConfig struct {
	ListenAddress string   `yaml:"listenAddress"`
	AllowedCIDRs  []string `yaml:"allowedCidrs"`
	Provisioned   bool     `yaml:"provisioned"`
	Identity      int      `yaml:"identity"`
	Credential    string   `yaml:"credential"`
}

// ProbeTimeout returns the factory probe bound.
func (t TimingConfig) ProbeTimeout() time.Duration {
	return time.Duration(t.ProbeTimeoutMs) * time.Millisecond
}

// DialTimeout returns the SSH connect and handshake bound.
func (t TimingConfig) DialTimeout() time.Duration {
	return time.Duration(t.DialTimeoutSec) * time.Second
}

// SettleDelay returns the wait after the shell opens.
func (t TimingConfig) SettleDelay() time.Duration {
	return time.Duration(t.SettleDelayMs) * time.Millisecond
}

// CommandWait returns the per-command wait window.
func (t TimingConfig) CommandWait() time.Duration {
	return time.Duration(t.CommandWaitSec) * time.Second
}

// PollInterval returns the output polling period.
func (t TimingConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

// PairStale returns the age after which an InProgress record is abandoned.
func (t TimingConfig) PairStale() time.Duration {
	return time.Duration(t.PairStaleSec) * time.Second
}

// ReconnectDelay returns the pause between serial open attempts.
func (s SerialConfig) ReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectSec) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			FactoryAddress:    "192.168.168.1",
			AddressPrefix:     "172.20.2",
			Netmask:           "255.255.0.0",
			SSHPort:           22,
			User:              "admin",
			FactoryCredential: "admin",
			DistanceMeters:    8047, // five miles
			ProbeMethod:       "tcp",
		},
		Timing: TimingConfig{
			ProbeTimeoutMs: 200,
			DialTimeoutSec: 10,
			SettleDelayMs:  2000,
			CommandWaitSec: 15,
			PollIntervalMs: 100,
			PairStaleSec:   600,
		},
		Paths: PathsConfig{
			Identity:      "/home/monark/monark_id.txt",
			PairStatus:    "/home/monark/status.txt",
			Credential:    "/home/monark/.checksum",
			CredentialKey: "/etc/machine-id",
			AuditDir:      "/home/monark/logs",
		},
		Serial: SerialConfig{
			Device:       "/dev/ttyUSB0",
			Baud:         115200,
			ReconnectSec: 3,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Simulator: SimulatorConfig{
			ListenAddress: "127.0.0.1:2222",
			AllowedCIDRs:  []string{"127.0.0.0/8", "172.20.0.0/16", "192.168.168.0/24"},
			Identity:      1,
			Credential:    "admin",
		},
	}
}
