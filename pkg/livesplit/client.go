// Package livesplit drives a LiveSplit Server over its line based TCP
// protocol. The Client implements timer.Host and timer.SplitIndexer.
package livesplit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-autosplit/internal/logging"
	"github.com/goliatone/go-autosplit/pkg/timer"
)

// DefaultAddr is where LiveSplit Server listens unless configured otherwise.
const DefaultAddr = "127.0.0.1:16834"

const defaultTimeout = 2 * time.Second

// ErrBadReply is returned when the server answers with an unexpected line.
var ErrBadReply = errors.New("livesplit: unexpected reply")

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every command round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger routes client diagnostics to log.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = logging.Component(log, "livesplit")
	}
}

// WithDialer replaces the function used to open connections.
func WithDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(c *Client) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// Client is a LiveSplit Server connection. It reconnects lazily after a
// failed command. It is safe for concurrent use.
type Client struct {
	addr    string
	timeout time.Duration
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	log     logrus.FieldLogger

	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

var (
	_ timer.Host         = (*Client)(nil)
	_ timer.SplitIndexer = (*Client)(nil)
)

// New returns a client for addr. No connection is made until the first
// command.
func New(addr string, opts ...Option) *Client {
	if strings.TrimSpace(addr) == "" {
		addr = DefaultAddr
	}
	var d net.Dialer
	c := &Client{
		addr:    addr,
		timeout: defaultTimeout,
		dial:    d.DialContext,
		log:     logging.Component(nil, "livesplit"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Close drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.rd = nil, nil
	return err
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.dial(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("livesplit: dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.rd = bufio.NewReader(conn)
	c.log.WithField("addr", c.addr).Info("connected to livesplit server")
	return nil
}

// roundTrip writes cmd and, when reply is set, reads one response line.
func (c *Client) roundTrip(ctx context.Context, cmd string, reply bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.connectLocked(ctx); err != nil {
		return "", err
	}
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.dropLocked()
		return "", fmt.Errorf("livesplit: set deadline: %w", err)
	}
	if _, err := c.conn.Write([]byte(cmd + "\r\n")); err != nil {
		c.dropLocked()
		return "", fmt.Errorf("livesplit: send %q: %w", cmd, err)
	}
	if !reply {
		return "", nil
	}
	line, err := c.rd.ReadString('\n')
	if err != nil {
		c.dropLocked()
		return "", fmt.Errorf("livesplit: read reply to %q: %w", cmd, err)
	}
	return strings.TrimSpace(line), nil
}

func (c *Client) send(ctx context.Context, cmd string) error {
	_, err := c.roundTrip(ctx, cmd, false)
	return err
}

// State reports the timer phase. Paused counts as running.
func (c *Client) State(ctx context.Context) (timer.State, error) {
	line, err := c.roundTrip(ctx, "getcurrenttimerphase", true)
	if err != nil {
		return timer.NotRunning, err
	}
	switch line {
	case "NotRunning":
		return timer.NotRunning, nil
	case "Running", "Paused":
		return timer.Running, nil
	case "Ended":
		return timer.Ended, nil
	default:
		return timer.NotRunning, fmt.Errorf("%w: phase %q", ErrBadReply, line)
	}
}

// SplitIndex reports the server split index shifted to boundary units, so 0
// before the start and 1 right after it.
func (c *Client) SplitIndex(ctx context.Context) (int, bool, error) {
	line, err := c.roundTrip(ctx, "getsplitindex", true)
	if err != nil {
		return 0, false, err
	}
	idx, err := strconv.Atoi(line)
	if err != nil {
		return 0, false, fmt.Errorf("%w: split index %q", ErrBadReply, line)
	}
	return idx + 1, true, nil
}

func (c *Client) Start(ctx context.Context) error          { return c.send(ctx, "starttimer") }
func (c *Client) Split(ctx context.Context) error          { return c.send(ctx, "split") }
func (c *Client) SkipSplit(ctx context.Context) error      { return c.send(ctx, "skipsplit") }
func (c *Client) Reset(ctx context.Context) error          { return c.send(ctx, "reset") }
func (c *Client) PauseGameTime(ctx context.Context) error  { return c.send(ctx, "pausegametime") }
func (c *Client) ResumeGameTime(ctx context.Context) error { return c.send(ctx, "unpausegametime") }

// SetGameTime sets the game time clock.
func (c *Client) SetGameTime(ctx context.Context, d time.Duration) error {
	return c.send(ctx, "setgametime "+FormatDuration(d))
}

// FormatDuration renders d as h:mm:ss.fff, the form the server parses.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, ms%1000)
}
