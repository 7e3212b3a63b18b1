package simulated

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// Server exposes a Radio over SSH with an interactive AT shell.
type Server struct {
	radio        *Radio
	config       *ssh.ServerConfig
	allowedCIDRs []*net.IPNet
	logger       *zap.Logger

	mu          sync.Mutex
	listener    net.Listener
	connections map[net.Conn]struct{}
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// NewServer creates an SSH server for radio. Connections from addresses
// outside allowedCIDRs are dropped before the handshake.
func NewServer(radio *Radio, user string, allowedCIDRs []string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	networks := make([]*net.IPNet, 0, len(allowedCIDRs))
	for _, cidr := range allowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		networks = append(networks, network)
	}

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create host key signer: %w", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			expected := []byte(radio.Password())
			if meta.User() == user && subtle.ConstantTimeCompare(password, expected) == 1 {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	config.AddHostKey(signer)

	return &Server{
		radio:        radio,
		config:       config,
		allowedCIDRs: networks,
		logger:       logger,
		connections:  make(map[net.Conn]struct{}),
		stopChan:     make(chan struct{}),
	}, nil
}

// Listen binds the server to addr.
func (s *Server) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Info("simulated radio listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds addr and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until Close.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("server is not listening")
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("failed to accept connection", zap.Error(err))
			continue
		}

		if !s.isAllowedConnection(conn) {
			s.logger.Warn("rejected connection outside allowed CIDRs", zap.Stringer("remote", conn.RemoteAddr()))
			_ = conn.Close()
			continue
		}

		s.track(conn, true)
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.connections[conn] = struct{}{}
	} else {
		delete(s.connections, conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.track(conn, false)
	defer conn.Close()

	serverConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		s.logger.Info("ssh handshake failed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
		return
	}
	defer serverConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			s.logger.Warn("failed to accept channel", zap.Error(err))
			continue
		}
		go acceptShellRequests(requests)
		s.serveShell(channel)
	}
}

func acceptShellRequests(requests <-chan *ssh.Request) {
	for req := range requests {
		switch req.Type {
		case "pty-req", "shell":
			_ = req.Reply(true, nil)
		default:
			_ = req.Reply(false, nil)
		}
	}
}

// serveShell echoes input and answers each completed line.
func (s *Server) serveShell(channel ssh.Channel) {
	defer channel.Close()

	if _, err := channel.Write([]byte(Banner)); err != nil {
		return
	}

	buf := make([]byte, 1024)
	var line []byte
	for {
		n, err := channel.Read(buf)
		for _, b := range buf[:n] {
			if b != '\n' && b != '\r' {
				line = append(line, b)
				continue
			}
			if len(line) == 0 {
				continue
			}
			if _, werr := channel.Write([]byte(s.radio.Execute(string(line)))); werr != nil {
				return
			}
			line = line[:0]
		}
		if err != nil {
			return
		}
	}
}

// isAllowedConnection checks the remote address against the allowed CIDRs.
// An empty allowlist admits everyone.
func (s *Server) isAllowedConnection(conn net.Conn) bool {
	if len(s.allowedCIDRs) == 0 {
		return true
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}
	clientIP := net.ParseIP(host)
	if clientIP == nil {
		return false
	}

	for _, network := range s.allowedCIDRs {
		if network.Contains(clientIP) {
			return true
		}
	}
	return false
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	select {
	case <-s.stopChan:
		s.mu.Unlock()
		return nil
	default:
		close(s.stopChan)
	}

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}
