package simulated

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/radio-control/linkctl/internal/adapter"
)

// Banner is written when a shell opens.
const Banner = "\r\nEntering character mode\r\nUserDevice> "

// Dialer opens in-memory shells on a Radio. It also acts as the reachability
// prober, since only the committed LAN address answers.
type Dialer struct {
	radio *Radio

	mu    sync.Mutex
	dials int
	open  int
}

// NewDialer creates a dialer for radio.
func NewDialer(radio *Radio) *Dialer {
	return &Dialer{radio: radio}
}

// Dial authenticates against the radio at address.
func (d *Dialer) Dial(ctx context.Context, address, credential string) (adapter.Shell, error) {
	select {
	case <-ctx.Done():
		return nil, adapter.Wrap(adapter.ErrConnection, ctx.Err(), address)
	default:
	}

	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	if address != d.radio.Address() {
		return nil, adapter.Wrap(adapter.ErrConnection,
			fmt.Errorf("dial tcp %s:22: connect: no route to host", address), address)
	}
	if credential != d.radio.Password() {
		return nil, adapter.Wrap(adapter.ErrConnection,
			fmt.Errorf("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain"), address)
	}

	d.mu.Lock()
	d.open++
	d.mu.Unlock()

	s := &shell{radio: d.radio, out: newStream(), onClose: d.release}
	s.out.write([]byte(Banner))
	return s, nil
}

// Probe reports whether address is the radio's committed address.
func (d *Dialer) Probe(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if address != d.radio.Address() {
		return fmt.Errorf("%s unreachable", address)
	}
	return nil
}

// Dials returns how many connection attempts were made.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Open returns how many shells are currently open.
func (d *Dialer) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *Dialer) release() {
	d.mu.Lock()
	d.open--
	d.mu.Unlock()
}

// shell feeds complete input lines to the radio.
type shell struct {
	radio   *Radio
	out     *stream
	mu      sync.Mutex
	line    []byte
	closed  bool
	onClose func()
}

func (s *shell) Read(p []byte) (int, error) {
	return s.out.Read(p)
}

func (s *shell) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}

	for _, b := range p {
		if b != '\n' && b != '\r' {
			s.line = append(s.line, b)
			continue
		}
		if len(s.line) == 0 {
			continue
		}
		s.out.write([]byte(s.radio.Execute(string(s.line))))
		s.line = s.line[:0]
	}
	return len(p), nil
}

func (s *shell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.out.close()
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// stream is an unbounded in-memory pipe; writes never block.
type stream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

func newStream() *stream {
	s := &stream{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *stream) write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.buf.Write(p)
	}
	s.cond.Broadcast()
}

func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.buf.Len() == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.buf.Len() == 0 {
		return 0, io.EOF
	}
	return s.buf.Read(p)
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}
