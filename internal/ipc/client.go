// Package ipc is the simulator side of the bridge: a unix socket client whose
// receive loop feeds telemetry into a state sink and whose Send path writes
// commands back.
//
// A Client owns exactly one socket at a time. Its lifecycle is
// Disconnected -> Connected -> Closing. Closing is terminal for that socket;
// calling Connect again dials a fresh one. There is no automatic
// reconnection.
package ipc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/san-kum/simbridge/internal/codec"
	"github.com/san-kum/simbridge/internal/metrics"
	"github.com/san-kum/simbridge/internal/state"
)

// DefaultEndpoint is the socket the simulator plugin listens on.
const DefaultEndpoint = "/tmp/eee_AutoViewer"

// StateSink receives every PLANE_STATE document. *cache.Cache satisfies it.
type StateSink interface {
	PutState(doc state.Document)
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(b *metrics.Bridge) Option {
	return func(c *Client) { c.metrics = b }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithWriteTimeout bounds a single Send. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

func WithMaxFrame(n int) Option {
	return func(c *Client) { c.maxFrame = n }
}

// WithOutOfBand registers a callback for every decoded non-state message.
// It runs on the receive loop and must not block.
func WithOutOfBand(fn func(codec.Envelope)) Option {
	return func(c *Client) { c.onMessage = fn }
}

type Client struct {
	sink         StateSink
	log          *slog.Logger
	metrics      *metrics.Bridge
	dialTimeout  time.Duration
	writeTimeout time.Duration
	maxFrame     int
	onMessage    func(codec.Envelope)

	mu       sync.Mutex
	conn     net.Conn
	endpoint string
	status   Status
	started  bool
	done     chan struct{}

	stopping     atomic.Bool
	writeMu      sync.Mutex
	decodeErrors atomic.Uint64
}

func New(sink StateSink, opts ...Option) *Client {
	c := &Client{
		sink:        sink,
		log:         slog.Default(),
		dialTimeout: 5 * time.Second,
		maxFrame:    codec.DefaultMaxFrame,
		done:        closedChan(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (c *Client) Connect(endpoint string) error {
	return c.ConnectContext(context.Background(), endpoint)
}

// ConnectContext dials endpoint. Any existing connection is closed first.
func (c *Client) ConnectContext(ctx context.Context, endpoint string) error {
	c.Close()

	if _, err := os.Stat(endpoint); err != nil {
		return &EndpointError{Endpoint: endpoint, Kind: ErrEndpointNotFound, Err: err}
	}

	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "unix", endpoint)
	if err != nil {
		return &EndpointError{Endpoint: endpoint, Kind: ErrConnectFailed, Err: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.endpoint = endpoint
	c.status = Connected
	c.started = false
	c.done = make(chan struct{})
	c.stopping.Store(false)
	c.mu.Unlock()

	c.metrics.SetConnected(true)
	c.log.Info("connected to simulator", "endpoint", endpoint)
	return nil
}

// Start launches the receive loop on its own goroutine.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.status != Connected {
		return ErrNotConnected
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	go c.receive(c.conn, c.done)
	return nil
}

// Send encodes cmd and writes it. It returns false without blocking when
// there is no live connection, and false on any write failure.
func (c *Client) Send(cmd codec.Command) bool {
	c.mu.Lock()
	conn, status := c.conn, c.status
	c.mu.Unlock()

	if conn == nil || status != Connected {
		c.metrics.ObserveCommand(cmd.Type, "not_connected")
		return false
	}

	frame, err := codec.Encode(cmd)
	if err != nil {
		c.log.Warn("encode failed", "type", cmd.Type, "error", err)
		c.metrics.ObserveCommand(cmd.Type, "failed")
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := conn.Write(frame); err != nil {
		c.log.Warn("send failed", "type", cmd.Type, "request_id", cmd.RequestID, "error", err)
		c.metrics.ObserveCommand(cmd.Type, "failed")
		return false
	}
	c.metrics.ObserveCommand(cmd.Type, "sent")
	return true
}

// Stop asks the receive loop to exit. A blocked read is interrupted through
// the read deadline. If the loop was never started the socket is released
// immediately.
func (c *Client) Stop() {
	c.stopping.Store(true)

	c.mu.Lock()
	conn, started := c.conn, c.started
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if !started {
		c.release(conn)
		return
	}
	_ = conn.SetReadDeadline(time.Now())
}

// Close stops the receive loop and waits for it to finish.
func (c *Client) Close() error {
	c.Stop()
	<-c.Done()
	return nil
}

// Done is closed when the current receive loop has exited. It is already
// closed when no loop is running.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return closedChan()
	}
	return c.done
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Endpoint returns the last endpoint passed to a successful Connect.
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// DecodeErrors counts frames dropped since the client was created.
func (c *Client) DecodeErrors() uint64 {
	return c.decodeErrors.Load()
}

func (c *Client) receive(conn net.Conn, done chan struct{}) {
	defer close(done)
	defer c.release(conn)

	frames := codec.NewFrameReader(conn, c.maxFrame)
	for !c.stopping.Load() {
		frame, err := frames.Next()
		if err != nil {
			switch {
			case errors.Is(err, codec.ErrFrameTooLarge):
				c.recordDecodeError(err)
				continue
			case c.stopping.Load():
				c.log.Info("receive loop stopped")
			case errors.Is(err, io.EOF):
				c.log.Info("simulator closed the connection")
			default:
				c.log.Warn("socket read failed", "error", err)
			}
			return
		}
		c.handle(frame)
	}
	c.log.Info("receive loop stopped")
}

func (c *Client) handle(frame []byte) {
	if len(bytes.TrimSpace(frame)) == 0 {
		return
	}
	env, err := codec.Decode(frame)
	if err != nil {
		c.recordDecodeError(err)
		return
	}
	c.metrics.ObserveFrame(env.Type)

	if env.IsState() {
		c.sink.PutState(env.Data)
		c.metrics.ObserveStateUpdate()
		return
	}
	c.log.Info("out-of-band message", "type", env.Type, "request_id", env.RequestID, "data", env.Data)
	if c.onMessage != nil {
		c.onMessage(env)
	}
}

func (c *Client) recordDecodeError(err error) {
	c.decodeErrors.Add(1)
	c.metrics.ObserveDecodeError()
	c.log.Warn("dropping malformed frame", "error", err)
}

// release closes conn and moves the client to Closing if conn is still the
// active connection.
func (c *Client) release(conn net.Conn) {
	c.mu.Lock()
	active := c.conn == conn
	if active {
		c.status = Closing
		c.conn = nil
	}
	c.mu.Unlock()

	_ = conn.Close()
	if active {
		c.metrics.SetConnected(false)
	}
}
