// Package serial opens the controller line as a raw 8N1 terminal.
package serial

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultBaud is the controller line rate.
const DefaultBaud = 115200

// Port is an open serial line. Close unblocks a pending Read.
type Port struct {
	*os.File
}

// Open opens device in raw mode at baud.
func Open(device string, baud int) (*Port, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	speed, ok := speeds[baud]
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", baud)
	}

	// Non-blocking so the runtime poller owns the descriptor.
	f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}

	rc, err := f.SyscallConn()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	var rawErr error
	if err := rc.Control(func(fd uintptr) {
		rawErr = makeRaw(int(fd), speed)
	}); err != nil {
		_ = f.Close()
		return nil, err
	}
	if rawErr != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to configure %s: %w", device, rawErr)
	}
	return &Port{File: f}, nil
}

var speeds = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}
