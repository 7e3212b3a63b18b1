package radio

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/radio-control/linkctl/internal/adapter"
)

// AT mnemonics used by the controller.
const (
	CmdProbe      = "AT"
	CmdSave       = "AT&W"
	CmdRadio      = "AT+MWRADIO"
	CmdMode       = "AT+MWVMODE"
	CmdTxPower    = "AT+MWTXPOWER"
	CmdNetworkID  = "AT+MWNETWORKID"
	CmdFrequency  = "AT+MWFREQ"
	CmdDistance   = "AT+MWDISTANCE"
	CmdEncryption = "AT+MWVENCRYPT"
	CmdPassword   = "AT+MSPWD"
	CmdLAN        = "AT+MNLAN"
	CmdLANDHCP    = "AT+MNLANDHCP"
)

// Fixed settings applied while pairing.
const (
	ModeClient          = 1
	EncryptionAES256    = 2
	DefaultDistance     = 8047
	MinCredentialLength = 8
)

// Link holds the addressing values that go into the LAN entry.
type Link struct {
	Address string
	Netmask string
}

func set(mnemonic string, values ...string) string {
	return mnemonic + "=" + strings.Join(values, ",")
}

// SetTxPower sets the transmit power in dBm.
func SetTxPower(dbm int) string { return set(CmdTxPower, strconv.Itoa(dbm)) }

// SetFrequency sets the operating frequency in MHz.
func SetFrequency(mhz int) string { return set(CmdFrequency, strconv.Itoa(mhz)) }

// SetNetworkID sets the network name shared by both ends of the link.
func SetNetworkID(id string) string { return set(CmdNetworkID, id) }

// SetEncryption enables AES-256 with key.
func SetEncryption(key string) string {
	return set(CmdEncryption, strconv.Itoa(EncryptionAES256), key)
}

// SetPassword changes the login password. The radio wants it twice.
func SetPassword(password string) string { return set(CmdPassword, password, password) }

// SetLAN rewrites the static LAN entry.
func SetLAN(link Link) string {
	return set(CmdLAN, "LAN", "EDIT", "0", link.Address, link.Netmask, "0")
}

// PairingBatch is the provisioning sequence for a factory-reset unit.
func PairingBatch(networkID, credential string, txPower, frequency, distance int, link Link) []string {
	if distance <= 0 {
		distance = DefaultDistance
	}
	return []string{
		set(CmdRadio, "1"),
		set(CmdMode, strconv.Itoa(ModeClient)),
		SetTxPower(txPower),
		SetNetworkID(networkID),
		SetFrequency(frequency),
		set(CmdDistance, strconv.Itoa(distance)),
		SetEncryption(credential),
		SetPassword(credential),
		SetLAN(link),
		set(CmdLANDHCP, "LAN", "0"),
		CmdSave,
	}
}

// Update holds optional link parameter changes. Zero values are skipped.
type Update struct {
	TxPower   int
	Frequency int
	NetworkID string
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return u.TxPower == 0 && u.Frequency == 0 && u.NetworkID == ""
}

// UpdateBatch applies u and saves.
func UpdateBatch(u Update) []string {
	var batch []string
	if u.TxPower != 0 {
		batch = append(batch, SetTxPower(u.TxPower))
	}
	if u.Frequency != 0 {
		batch = append(batch, SetFrequency(u.Frequency))
	}
	if u.NetworkID != "" {
		batch = append(batch, SetNetworkID(u.NetworkID))
	}
	return append(batch, CmdSave)
}

// AddressBatch moves the unit to a new LAN address and saves.
func AddressBatch(link Link) []string {
	return []string{SetLAN(link), CmdSave}
}

// CredentialBatch rotates the login password and the link key together.
func CredentialBatch(credential string) []string {
	return []string{SetPassword(credential), SetEncryption(credential), CmdSave}
}

// InfoBatch queries the current power and frequency.
func InfoBatch() []string {
	return []string{CmdTxPower, CmdFrequency}
}

var (
	txPowerPattern   = regexp.MustCompile(`MWTXPOWER:\s*(-?\d+)\s*dBm`)
	frequencyPattern = regexp.MustCompile(`MWFREQ:\s*(\d+)\s*MHz`)
)

// Info is the reported link configuration.
type Info struct {
	TxPower   int
	Frequency int
}

// ParseInfo extracts power and frequency from the InfoBatch responses.
func ParseInfo(responses []string) (Info, error) {
	text := strings.Join(responses, "\n")

	var info Info
	m := txPowerPattern.FindStringSubmatch(text)
	if m == nil {
		return Info{}, adapter.Errorf(adapter.ErrProtocol, "transmit power missing from response")
	}
	info.TxPower, _ = strconv.Atoi(m[1])

	m = frequencyPattern.FindStringSubmatch(text)
	if m == nil {
		return Info{}, adapter.Errorf(adapter.ErrProtocol, "frequency missing from response")
	}
	info.Frequency, _ = strconv.Atoi(m[1])
	return info, nil
}

// ValidateCredential enforces the minimum length. The factory credential
// is exempt.
func ValidateCredential(credential, factory string) error {
	if credential == factory && factory != "" {
		return nil
	}
	if len(credential) < MinCredentialLength {
		return adapter.Errorf(adapter.ErrValidation, "credential must be at least %d characters long", MinCredentialLength)
	}
	if strings.ContainsAny(credential, ",\r\n") {
		return adapter.Errorf(adapter.ErrValidation, "credential must not contain commas or line breaks")
	}
	return nil
}

// ValidateNetworkID rejects values the AT grammar cannot carry.
func ValidateNetworkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return adapter.Errorf(adapter.ErrValidation, "network id is required")
	}
	if strings.ContainsAny(id, ",=\r\n") {
		return adapter.Errorf(adapter.ErrValidation, "network id %q contains reserved characters", id)
	}
	return nil
}

// Redact replaces every occurrence of secret in s.
func Redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "****")
}

// Mnemonic returns the command name without its values.
func Mnemonic(cmd string) string {
	name, _, _ := strings.Cut(cmd, "=")
	return strings.ToUpper(strings.TrimSpace(name))
}

// FormatInfo renders the INFO reply.
func FormatInfo(info Info, id int) string {
	return fmt.Sprintf("%d,%d,%d", info.TxPower, info.Frequency, id)
}
