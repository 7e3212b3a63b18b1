package adapter

import (
	"context"
	"io"
)

// Shell is an interactive command shell on the radio.
// Reads return device output as it arrives; writes send raw input.
type Shell interface {
	io.Reader
	io.Writer
	io.Closer
}

// Dialer opens authenticated shells on the radio.
type Dialer interface {
	// Dial authenticates against address with credential and starts a shell.
	// Authentication and transport failures are returned as ErrConnection.
	Dial(ctx context.Context, address, credential string) (Shell, error)
}
