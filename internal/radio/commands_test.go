package radio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/linkctl/internal/adapter"
)

func TestPairingBatchOrder(t *testing.T) {
	batch := PairingBatch("MONARK-123", "longpassphrase1", 15, 2311, 0,
		Link{Address: "172.20.2.5", Netmask: "255.255.0.0"})

	assert.Equal(t, []string{
		"AT+MWRADIO=1",
		"AT+MWVMODE=1",
		"AT+MWTXPOWER=15",
		"AT+MWNETWORKID=MONARK-123",
		"AT+MWFREQ=2311",
		"AT+MWDISTANCE=8047",
		"AT+MWVENCRYPT=2,longpassphrase1",
		"AT+MSPWD=longpassphrase1,longpassphrase1",
		"AT+MNLAN=LAN,EDIT,0,172.20.2.5,255.255.0.0,0",
		"AT+MNLANDHCP=LAN,0",
		"AT&W",
	}, batch)
}

func TestUpdateBatchSkipsEmptyFields(t *testing.T) {
	tests := []struct {
		name   string
		update Update
		want   []string
	}{
		{"all", Update{TxPower: 20, Frequency: 2400, NetworkID: "NET"},
			[]string{"AT+MWTXPOWER=20", "AT+MWFREQ=2400", "AT+MWNETWORKID=NET", "AT&W"}},
		{"frequency only", Update{Frequency: 2310}, []string{"AT+MWFREQ=2310", "AT&W"}},
		{"none", Update{}, []string{"AT&W"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UpdateBatch(tt.update))
		})
	}
	assert.True(t, Update{}.Empty())
}

func TestAddressAndCredentialBatches(t *testing.T) {
	assert.Equal(t, []string{"AT+MNLAN=LAN,EDIT,0,172.20.2.9,255.255.0.0,0", "AT&W"},
		AddressBatch(Link{Address: "172.20.2.9", Netmask: "255.255.0.0"}))
	assert.Equal(t, []string{"AT+MSPWD=newpassword,newpassword", "AT+MWVENCRYPT=2,newpassword", "AT&W"},
		CredentialBatch("newpassword"))
}

func TestParseInfo(t *testing.T) {
	info, err := ParseInfo([]string{"+MWTXPOWER: 30 dBm\nOK", "+MWFREQ: 2310 MHz\nOK"})
	require.NoError(t, err)
	assert.Equal(t, Info{TxPower: 30, Frequency: 2310}, info)
	assert.Equal(t, "30,2310,5", FormatInfo(info, 5))

	_, err = ParseInfo([]string{"OK", "+MWFREQ: 2310 MHz"})
	assert.ErrorIs(t, err, adapter.ErrProtocol)

	_, err = ParseInfo([]string{"+MWTXPOWER: 30 dBm"})
	assert.ErrorIs(t, err, adapter.ErrProtocol)
}

func TestValidateCredential(t *testing.T) {
	assert.NoError(t, ValidateCredential("admin", "admin"))
	assert.NoError(t, ValidateCredential("longpassphrase1", "admin"))
	assert.ErrorIs(t, ValidateCredential("short", "admin"), adapter.ErrValidation)
	assert.ErrorIs(t, ValidateCredential("", ""), adapter.ErrValidation)
	assert.ErrorIs(t, ValidateCredential("has,comma,inside", "admin"), adapter.ErrValidation)
}

func TestValidateNetworkID(t *testing.T) {
	assert.NoError(t, ValidateNetworkID("MONARK-123"))
	assert.Error(t, ValidateNetworkID(" "))
	assert.Error(t, ValidateNetworkID("A,B"))
}

func TestRedactAndMnemonic(t *testing.T) {
	assert.Equal(t, "AT+MSPWD=****,****", Redact("AT+MSPWD=secret99,secret99", "secret99"))
	assert.Equal(t, "unchanged", Redact("unchanged", ""))
	assert.Equal(t, "AT+MWFREQ", Mnemonic("at+mwfreq=2310"))
	assert.Equal(t, "INFO", Mnemonic("INFO"))
}
