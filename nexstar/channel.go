package nexstar

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/scopeworks/nexstar_interface/internal/metrics"
)

const terminator = '#'

// DefaultTimeout bounds the wait for a response terminator.
const DefaultTimeout = 2 * time.Second

// serialReadInterval is the per-Read timeout on serial ports; Send loops
// reads until the overall deadline.
const serialReadInterval = 50 * time.Millisecond

// Config selects the transport for a Channel. Addr takes precedence over
// Port when both are set (e.g. a WiFi bridge on host:4030).
type Config struct {
	// Port is a local serial device. The hand controller speaks 9600 8N1.
	Port string
	Baud int
	// Addr is a TCP endpoint carrying the identical command stream.
	Addr    string
	Timeout time.Duration
	Verbose bool
}

// Channel implements the half-duplex "<command>#" / "<response>#" framing
// over a serial port or TCP socket. A single mutex serializes commands:
// interactive callers and the position tracker share one physical link, and
// overlapping writes corrupt framing.
type Channel struct {
	cfg Config

	mu   sync.Mutex
	conn io.ReadWriteCloser
}

func NewChannel(cfg Config) *Channel {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Channel{cfg: cfg}
}

// Open establishes the transport. It is a no-op when already open.
func (c *Channel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	if c.cfg.Addr != "" {
		conn, err := net.DialTimeout("tcp", c.cfg.Addr, c.cfg.Timeout)
		if err != nil {
			return &ConnectionError{Port: c.cfg.Addr, Err: err}
		}
		c.conn = conn
		return nil
	}
	if c.cfg.Port == "" {
		return &ConnectionError{Port: "", Err: errors.New("no serial port or address configured")}
	}
	s, err := serial.OpenPort(&serial.Config{
		Name:        c.cfg.Port,
		Baud:        c.cfg.Baud,
		ReadTimeout: serialReadInterval,
	})
	if err != nil {
		return &ConnectionError{Port: c.cfg.Port, Err: err}
	}
	c.conn = s
	return nil
}

// Close releases the transport. Safe to call repeatedly.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Attach wires an already-open transport, for tests and simulator pipes.
func (c *Channel) Attach(conn io.ReadWriteCloser) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Send writes cmd followed by the terminator, then reads byte-by-byte until
// the response terminator or the deadline. The returned bytes exclude the
// terminator. Responses are binary-safe; some commands carry non-printable
// parameter bytes.
func (c *Channel) Send(cmd []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	frame := make([]byte, 0, len(cmd)+1)
	frame = append(frame, cmd...)
	frame = append(frame, terminator)
	if len(cmd) > 0 {
		metrics.RecordCommand(cmd[0])
	}
	if c.cfg.Verbose {
		log.Printf("nexstar -> %q", frame)
	}
	if _, err := c.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("writing command %q: %w", cmd, err)
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if conn, ok := c.conn.(net.Conn); ok {
		conn.SetReadDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
	}

	var resp []byte
	buf := make([]byte, 1)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			if buf[0] == terminator {
				if c.cfg.Verbose {
					log.Printf("nexstar <- %q", resp)
				}
				return resp, nil
			}
			resp = append(resp, buf[0])
			continue
		}
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() || errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, fmt.Errorf("%w: no terminator within %v", ErrTimeout, c.cfg.Timeout)
			}
			if err != io.EOF {
				return nil, fmt.Errorf("reading response to %q: %w", cmd, err)
			}
			if _, ok := c.conn.(net.Conn); ok {
				// EOF on a socket means the peer went away.
				return nil, &ConnectionError{Port: c.cfg.Addr, Err: err}
			}
			// Serial reads report EOF on their per-read timeout on some
			// platforms; keep polling until the overall deadline.
			time.Sleep(serialReadInterval)
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: no terminator within %v", ErrTimeout, c.cfg.Timeout)
		}
	}
}
