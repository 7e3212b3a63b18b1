package serial

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRejectsUnsupportedBaud(t *testing.T) {
	_, err := Open("/dev/null", 12345)
	assert.ErrorContains(t, err, "unsupported baud rate")
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "ttyUSB9"), DefaultBaud)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenRejectsNonTerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := Open(path, 0)
	assert.Error(t, err)
}
