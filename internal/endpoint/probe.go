package endpoint

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"time"
)

// TCPProber treats an address as reachable when its SSH port accepts a
// connection.
type TCPProber struct {
	Port int
}

// Probe dials address:Port within the context deadline.
func (p TCPProber) Probe(ctx context.Context, address string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(p.Port)))
	if err != nil {
		return err
	}
	return conn.Close()
}

// ICMPProber shells out to the system ping with a single echo request.
type ICMPProber struct {
	Wait time.Duration
}

// Probe runs ping once and waits at most Wait for the reply.
func (p ICMPProber) Probe(ctx context.Context, address string) error {
	wait := p.Wait
	if wait <= 0 {
		wait = DefaultProbeTimeout
	}
	cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", fmt.Sprintf("%.1f", wait.Seconds()), address)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ping %s: %w (%s)", address, err, out)
	}
	return nil
}

// NewProber selects a prober by method name ("tcp" or "icmp").
func NewProber(method string, port int, wait time.Duration) (Prober, error) {
	switch method {
	case "", "tcp":
		return TCPProber{Port: port}, nil
	case "icmp":
		return ICMPProber{Wait: wait}, nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", method)
	}
}
