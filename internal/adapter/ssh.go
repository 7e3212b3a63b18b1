package adapter

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/crypto/ssh"
)

// SSHDialer opens interactive shells on the radio over SSH.
type SSHDialer struct {
	User    string
	Port    int
	Timeout time.Duration

	// HostKeyCallback defaults to accepting any host key. The radio regenerates
	// its host key on factory reset, so pinning would break re-pairing.
	HostKeyCallback ssh.HostKeyCallback
}

// NewSSHDialer creates a dialer for user on port.
func NewSSHDialer(user string, port int, timeout time.Duration) *SSHDialer {
	return &SSHDialer{
		User:    user,
		Port:    port,
		Timeout: timeout,
	}
}

// Dial connects to address, authenticates with credential and requests a shell.
func (d *SSHDialer) Dial(ctx context.Context, address, credential string) (Shell, error) {
	hostKeyCallback := d.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	config := &ssh.ClientConfig{
		User: d.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(credential),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = credential
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.Timeout,
	}

	addr := net.JoinHostPort(address, strconv.Itoa(d.Port))

	dialCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, Wrap(ErrConnection, err, addr)
	}

	if d.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(d.Timeout))
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, Wrap(ErrConnection, err, addr)
	}
	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(clientConn, chans, reqs)
	shell, err := openShell(client)
	if err != nil {
		_ = client.Close()
		return nil, Wrap(ErrConnection, err, addr)
	}
	return shell, nil
}

// sshShell is a PTY-backed shell session.
type sshShell struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func openShell(client *ssh.Client) (*sshShell, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	if err := session.RequestPty("vt100", 80, 200, modes); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to open stdout: %w", err)
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	return &sshShell{
		client:  client,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

func (s *sshShell) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *sshShell) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

// Close tears down the session and the underlying connection.
func (s *sshShell) Close() error {
	err := s.session.Close()
	if err == io.EOF {
		err = nil
	}
	return multierr.Combine(err, s.client.Close())
}
