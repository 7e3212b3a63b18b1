package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/linkctl/internal/adapter/simulated"
)

const passphrase = "longpassphrase1"

type bench struct {
	radio  *simulated.Radio
	config string
	dir    string
}

// newBench serves radio over SSH on loopback and writes a config that
// reaches it. The factory address is given so tests pick which one answers.
func newBench(t *testing.T, radio *simulated.Radio, factoryAddress string) *bench {
	t.Helper()

	srv, err := simulated.NewServer(radio, "admin", []string{"127.0.0.0/8"}, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Close() })

	_, portStr, err := net.SplitHostPort(srv.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	dir := t.TempDir()
	key := filepath.Join(dir, "machine-id")
	require.NoError(t, os.WriteFile(key, []byte("bench-machine\n"), 0o644))

	cfg := fmt.Sprintf(`device:
  factoryAddress: %s
  addressPrefix: "127.0.0"
  sshPort: %d
timing:
  settleDelayMs: 0
  commandWaitSec: 5
  pollIntervalMs: 10
paths:
  identity: %s
  pairStatus: %s
  credential: %s
  credentialKey: %s
  auditDir: %s
`, factoryAddress, port,
		filepath.Join(dir, "monark_id.txt"),
		filepath.Join(dir, "status.txt"),
		filepath.Join(dir, ".checksum"),
		key,
		filepath.Join(dir, "logs"))
	path := filepath.Join(dir, "linkctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	return &bench{radio: radio, config: path, dir: dir}
}

func (b *bench) run(t *testing.T, args ...string) (report, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--config", b.config))

	err := execute(context.Background(), root)
	if err != nil {
		return report{}, err
	}
	var r report
	require.NoError(t, json.Unmarshal(out.Bytes(), &r), out.String())
	return r, nil
}

// provisionedBench is a unit paired as identity 1 at 127.0.0.1.
func provisionedBench(t *testing.T) *bench {
	t.Helper()
	b := newBench(t, simulated.NewProvisionedRadio("127.0.0.1", passphrase), "127.0.0.2")
	require.NoError(t, os.WriteFile(filepath.Join(b.dir, "monark_id.txt"), []byte("1\n"), 0o644))
	return b
}

func TestInfoCommand(t *testing.T) {
	b := provisionedBench(t)

	r, err := b.run(t, "info", "--encryption_key", passphrase)
	require.NoError(t, err)
	assert.Equal(t, report{IsSuccess: true, Message: "30,2400,1"}, r)

	r, err = b.run(t, "info", "--encryption_key", "wrongpassphrase")
	require.NoError(t, err)
	assert.False(t, r.IsSuccess)
	assert.True(t, strings.HasPrefix(r.Message, "CONNECTION: "), r.Message)
	assert.NotContains(t, r.Message, "wrongpassphrase")
}

func TestInfoWithoutStoredCredential(t *testing.T) {
	b := provisionedBench(t)

	_, err := b.run(t, "info")
	assert.ErrorContains(t, err, "--encryption_key is required")
}

func TestUpdateCommand(t *testing.T) {
	b := provisionedBench(t)

	r, err := b.run(t, "update", "--tx_power", "20", "--network_id", "NET-2", "--encryption_key", passphrase)
	require.NoError(t, err)
	assert.Equal(t, report{IsSuccess: true, Message: "20,2400,1"}, r)
	assert.Equal(t, 20, b.radio.Committed().TxPowerDbm)
	assert.Equal(t, "NET-2", b.radio.Committed().NetworkID)

	_, err = b.run(t, "update", "--encryption_key", passphrase)
	assert.ErrorContains(t, err, "nothing to update")

	r, err = b.run(t, "update", "--tx_power", "99", "--encryption_key", passphrase)
	require.NoError(t, err)
	assert.Equal(t, report{IsSuccess: false, Message: "PROTOCOL: ERROR: invalid parameter"}, r)
}

func TestUpdateEncryptionKeyStoresCredential(t *testing.T) {
	b := provisionedBench(t)
	const next = "anotherpassphrase"

	r, err := b.run(t, "update_encryption_key", "--encryption_key", passphrase, "--new_encryption_key", next)
	require.NoError(t, err)
	assert.Equal(t, report{IsSuccess: true, Message: "OK"}, r)
	assert.Equal(t, next, b.radio.Password())
	assert.Equal(t, next, b.radio.Committed().EncryptionKey)

	// The stored key is used when none is given.
	r, err = b.run(t, "info")
	require.NoError(t, err)
	assert.Equal(t, report{IsSuccess: true, Message: "30,2400,1"}, r)

	_, err = b.run(t, "update_encryption_key", "--new_encryption_key", "short")
	assert.Error(t, err)
}

func TestPairCommand(t *testing.T) {
	b := newBench(t, simulated.NewRadio(), "127.0.0.1")

	r, err := b.run(t, "pair_status")
	require.NoError(t, err)
	assert.Equal(t, report{IsSuccess: true, Message: "Pairing is not in progress."}, r)

	r, err = b.run(t, "pair",
		"--network_id", "MONARK-123",
		"--encryption_key", passphrase,
		"--tx_power", "15",
		"--frequency", "2311",
		"--monark_id", "1")
	require.NoError(t, err)
	assert.Equal(t, report{IsSuccess: true, Message: "OK"}, r)

	committed := b.radio.Committed()
	assert.Equal(t, passphrase, committed.Password)
	assert.Equal(t, "MONARK-123", committed.NetworkID)
	assert.Equal(t, 15, committed.TxPowerDbm)
	assert.Equal(t, "127.0.0.1", committed.LanAddress)

	id, err := os.ReadFile(filepath.Join(b.dir, "monark_id.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(string(id)))

	r, err = b.run(t, "pair_status")
	require.NoError(t, err)
	assert.Equal(t, report{IsSuccess: true, Message: "OK"}, r)
}

func TestPairCommandValidation(t *testing.T) {
	b := newBench(t, simulated.NewRadio(), "127.0.0.1")

	_, err := b.run(t, "pair",
		"--network_id", "MONARK-123",
		"--encryption_key", "admin",
		"--tx_power", "15",
		"--frequency", "2311",
		"--monark_id", "1")
	assert.ErrorContains(t, err, "VALIDATION")

	_, err = b.run(t, "pair", "--network_id", "MONARK-123")
	assert.Error(t, err)
	assert.Empty(t, b.radio.Received())
}

func TestIsFactoryCommand(t *testing.T) {
	r, err := newBench(t, simulated.NewRadio(), "127.0.0.1").run(t, "is_factory")
	require.NoError(t, err)
	assert.Equal(t, report{IsSuccess: true, Message: "true"}, r)

	r, err = provisionedBench(t).run(t, "is_factory")
	require.NoError(t, err)
	assert.Equal(t, report{IsSuccess: true, Message: "false"}, r)
}
