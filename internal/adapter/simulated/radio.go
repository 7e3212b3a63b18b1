// Package simulated provides a Microhard-like radio for tests and bench work.
//
// The radio interprets the AT command subset used for provisioning and control.
// Changes are staged and only take effect on AT&W, so the LAN address and the
// login password switch over the same way a real unit does after a save.
package simulated

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Factory defaults of a reset unit.
const (
	FactoryAddress  = "192.168.168.1"
	FactoryPassword = "admin"
	FactoryNetmask  = "255.255.255.0"
)

// Fault selects how the radio misbehaves for a command.
type Fault int

const (
	// FaultNone answers normally.
	FaultNone Fault = iota
	// FaultError answers with an ERROR line.
	FaultError
	// FaultSilent echoes the command and never answers.
	FaultSilent
)

// Settings is the radio configuration.
type Settings struct {
	RadioEnabled   bool
	Mode           int
	TxPowerDbm     int
	FrequencyMhz   int
	NetworkID      string
	DistanceMeters int
	EncryptionType int
	EncryptionKey  string
	Password       string
	LanAddress     string
	Netmask        string
	DHCPEnabled    bool
}

// PowerLimits holds the accepted transmit power range.
type PowerLimits struct {
	MinDBm int
	MaxDBm int
}

// Radio is the thread-safe state of a simulated radio.
type Radio struct {
	mu          sync.RWMutex
	committed   Settings
	pending     Settings
	powerLimits PowerLimits
	faults      map[string]Fault
	received    []string
}

// NewRadio creates a radio in factory state.
func NewRadio() *Radio {
	r := &Radio{
		powerLimits: PowerLimits{MinDBm: 7, MaxDBm: 30},
		faults:      make(map[string]Fault),
	}
	r.committed = factorySettings()
	r.pending = r.committed
	return r
}

// NewProvisionedRadio creates a radio already paired at address with password.
func NewProvisionedRadio(address, password string) *Radio {
	r := NewRadio()
	r.committed.LanAddress = address
	r.committed.Netmask = "255.255.0.0"
	r.committed.Password = password
	r.committed.EncryptionType = 2
	r.committed.EncryptionKey = password
	r.committed.DHCPEnabled = false
	r.committed.Mode = 1
	r.pending = r.committed
	return r
}

func factorySettings() Settings {
	return Settings{
		RadioEnabled:   true,
		Mode:           0,
		TxPowerDbm:     30,
		FrequencyMhz:   2400,
		DistanceMeters: 3000,
		Password:       FactoryPassword,
		LanAddress:     FactoryAddress,
		Netmask:        FactoryNetmask,
		DHCPEnabled:    true,
	}
}

// Address returns the committed LAN address.
func (r *Radio) Address() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.committed.LanAddress
}

// Password returns the committed login password.
func (r *Radio) Password() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.committed.Password
}

// Committed returns a copy of the committed configuration.
func (r *Radio) Committed() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.committed
}

// Received returns every command line the radio has seen, in order.
func (r *Radio) Received() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.received))
	copy(out, r.received)
	return out
}

// InjectFault makes commands whose mnemonic equals mnemonic misbehave.
func (r *Radio) InjectFault(mnemonic string, fault Fault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fault == FaultNone {
		delete(r.faults, strings.ToUpper(mnemonic))
		return
	}
	r.faults[strings.ToUpper(mnemonic)] = fault
}

// FactoryReset discards all configuration.
func (r *Radio) FactoryReset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = factorySettings()
	r.pending = r.committed
}

// Execute runs one command line and returns the terminal output, including
// the echo of the command.
func (r *Radio) Execute(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return "\r\n"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.received = append(r.received, line)
	echo := line + "\r\n"

	mnemonic, value, isSet := strings.Cut(line, "=")
	mnemonic = strings.ToUpper(strings.TrimSpace(mnemonic))

	switch r.faults[mnemonic] {
	case FaultError:
		return echo + "ERROR: injected fault\r\n"
	case FaultSilent:
		return echo
	}

	body, err := r.handle(mnemonic, value, isSet)
	if err != nil {
		return echo + "ERROR: " + err.Error() + "\r\n"
	}
	if body != "" {
		echo += body + "\r\n"
	}
	return echo + "OK\r\n"
}

// handle applies one command. The caller holds the write lock.
func (r *Radio) handle(mnemonic, value string, isSet bool) (string, error) {
	p := &r.pending

	switch mnemonic {
	case "AT":
		return "", nil
	case "AT&W":
		r.committed = r.pending
		return "", nil
	case "AT+MWRADIO":
		if !isSet {
			return fmt.Sprintf("+MWRADIO: %d", boolInt(p.RadioEnabled)), nil
		}
		v, err := intInRange(value, 0, 1)
		if err != nil {
			return "", err
		}
		p.RadioEnabled = v == 1
	case "AT+MWVMODE":
		if !isSet {
			return fmt.Sprintf("+MWVMODE: %d", p.Mode), nil
		}
		v, err := intInRange(value, 0, 2)
		if err != nil {
			return "", err
		}
		p.Mode = v
	case "AT+MWTXPOWER":
		if !isSet {
			return fmt.Sprintf("+MWTXPOWER: %d dBm", r.committed.TxPowerDbm), nil
		}
		v, err := intInRange(value, r.powerLimits.MinDBm, r.powerLimits.MaxDBm)
		if err != nil {
			return "", err
		}
		p.TxPowerDbm = v
	case "AT+MWFREQ":
		if !isSet {
			return fmt.Sprintf("+MWFREQ: %d MHz", r.committed.FrequencyMhz), nil
		}
		v, err := intInRange(value, 100, 6000)
		if err != nil {
			return "", err
		}
		p.FrequencyMhz = v
	case "AT+MWNETWORKID":
		if !isSet {
			return "+MWNETWORKID: " + r.committed.NetworkID, nil
		}
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("invalid parameter")
		}
		p.NetworkID = value
	case "AT+MWDISTANCE":
		if !isSet {
			return fmt.Sprintf("+MWDISTANCE: %d m", p.DistanceMeters), nil
		}
		v, err := intInRange(value, 1, 100000)
		if err != nil {
			return "", err
		}
		p.DistanceMeters = v
	case "AT+MWVENCRYPT":
		return "", r.setEncryption(value, isSet)
	case "AT+MSPWD":
		return "", r.setPassword(value, isSet)
	case "AT+MNLAN":
		return "", r.setLan(value, isSet)
	case "AT+MNLANDHCP":
		return "", r.setDHCP(value, isSet)
	default:
		return "", fmt.Errorf("unknown command")
	}
	return "", nil
}

func (r *Radio) setEncryption(value string, isSet bool) error {
	if !isSet {
		return fmt.Errorf("invalid parameter")
	}
	kind, key, _ := strings.Cut(value, ",")
	t, err := intInRange(kind, 0, 2)
	if err != nil {
		return err
	}
	if t > 0 && len(key) < 8 {
		return fmt.Errorf("invalid key length")
	}
	r.pending.EncryptionType = t
	r.pending.EncryptionKey = key
	return nil
}

func (r *Radio) setPassword(value string, isSet bool) error {
	if !isSet {
		return fmt.Errorf("invalid parameter")
	}
	password, confirm, ok := strings.Cut(value, ",")
	if !ok || password == "" || password != confirm {
		return fmt.Errorf("password mismatch")
	}
	r.pending.Password = password
	return nil
}

func (r *Radio) setLan(value string, isSet bool) error {
	if !isSet {
		return fmt.Errorf("invalid parameter")
	}
	// LAN,EDIT,<mode>,<ip>,<netmask>,<gateway mode>
	fields := strings.Split(value, ",")
	if len(fields) != 6 || strings.ToUpper(fields[0]) != "LAN" || strings.ToUpper(fields[1]) != "EDIT" {
		return fmt.Errorf("invalid parameter")
	}
	ip := net.ParseIP(fields[3])
	mask := net.ParseIP(fields[4])
	if ip == nil || ip.To4() == nil || mask == nil {
		return fmt.Errorf("invalid address")
	}
	r.pending.LanAddress = ip.String()
	r.pending.Netmask = mask.String()
	return nil
}

func (r *Radio) setDHCP(value string, isSet bool) error {
	if !isSet {
		return fmt.Errorf("invalid parameter")
	}
	iface, mode, ok := strings.Cut(value, ",")
	if !ok || strings.ToUpper(iface) != "LAN" {
		return fmt.Errorf("invalid parameter")
	}
	v, err := intInRange(mode, 0, 1)
	if err != nil {
		return err
	}
	r.pending.DHCPEnabled = v == 1
	return nil
}

func intInRange(s string, min, max int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < min || v > max {
		return 0, fmt.Errorf("invalid parameter")
	}
	return v, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
