package simulated

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/linkctl/internal/adapter"
)

func TestDialerRejectsWrongAddressAndCredential(t *testing.T) {
	d := NewDialer(NewRadio())
	ctx := context.Background()

	_, err := d.Dial(ctx, "172.20.2.5", FactoryPassword)
	require.Error(t, err)
	assert.True(t, errors.Is(err, adapter.ErrConnection))

	_, err = d.Dial(ctx, FactoryAddress, "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, adapter.ErrConnection))
	assert.Contains(t, err.Error(), "unable to authenticate")

	assert.Equal(t, 2, d.Dials())
	assert.Equal(t, 0, d.Open())
}

func TestDialerShellRoundTrip(t *testing.T) {
	r := NewRadio()
	d := NewDialer(r)

	sh, err := d.Dial(context.Background(), FactoryAddress, FactoryPassword)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Open())

	_, err = io.WriteString(sh, "AT+MWFREQ\n")
	require.NoError(t, err)

	reader := bufio.NewReader(sh)
	var seen []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		seen = append(seen, line)
		if line == "OK" {
			break
		}
	}
	assert.Contains(t, seen, "+MWFREQ: 2400 MHz")

	require.NoError(t, sh.Close())
	require.NoError(t, sh.Close())
	assert.Equal(t, 0, d.Open())

	_, err = sh.Write([]byte("AT\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestDialerProbe(t *testing.T) {
	r := NewProvisionedRadio("172.20.2.7", "longpassphrase1")
	d := NewDialer(r)

	assert.NoError(t, d.Probe(context.Background(), "172.20.2.7"))
	assert.Error(t, d.Probe(context.Background(), FactoryAddress))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, d.Probe(ctx, "172.20.2.7"))
}
