// Package x11 implements the client side of the X11 wire protocol: connection
// setup, request serialization with sequence number tracking, and asynchronous
// routing of replies, errors and events back to their callers.
//
// The package is transport-agnostic. Connect dials TCP or Unix domain sockets
// from a display string, and ConnectToStream accepts any Stream, which lets
// tests and exotic transports (such as WebSocket proxies) plug in directly.
package x11

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/qlentz/x11/internal/coarsetime"
	"github.com/qlentz/x11/protocol"
	"github.com/qlentz/x11/xproto"
)

// Conn is a connection to an X11 display.
//
// All methods are safe for concurrent use. Requests issued concurrently are
// serialized through an internal write pipeline, and an internal reader
// goroutine routes incoming packets to the callers waiting on them.
type Conn struct {
	cfg    Config
	logger zerolog.Logger
	stream Stream

	setup  *xproto.Setup
	screen int

	stats *statsCollector

	// state guards the protocol core and the reader status. arrived is
	// replaced after every close, so waiters grab the current channel under
	// the lock and block on it outside.
	state struct {
		sync.Mutex
		core    *protocol.Core
		arrived chan struct{}
		readErr error
	}

	wb *writeBuffer

	maxReq       maxRequestTracker
	maxReqFlight singleflight.Group

	extMu sync.Mutex
	exts  map[string]*extensionState

	xidMu sync.Mutex
	xids  idAllocator

	atomsByName *cache.Cache
	atomsByID   *cache.Cache
	atomFlight  singleflight.Group

	// lifeCtx ends when the connection closes. Internal resolver goroutines
	// wait on it instead of any caller's context.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	// lastActivity holds the time.Time of the last read from the server,
	// stamped with the coarse clock to keep the read loop cheap.
	lastActivity atomic.Value

	closeOnce  sync.Once
	closed     chan struct{}
	readerDone chan struct{}
}

// Connect opens a connection to the display named by name, in the usual
// [protocol/]host:display[.screen] syntax. An empty name falls back to the
// DISPLAY environment variable.
func Connect(ctx context.Context, name string) (*Conn, error) {
	return ConnectWithConfig(ctx, name, Config{})
}

// ConnectWithConfig is Connect with an explicit configuration.
func ConnectWithConfig(ctx context.Context, name string, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()

	display, err := ParseDisplay(name)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	stream, err := dialDisplay(dialCtx, display)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	auth := resolveAuth(cfg.AuthFile, display)
	return ConnectToStream(dialCtx, stream, display.Screen, auth, cfg)
}

// ConnectToStream performs the setup handshake over an already established
// stream and returns the connection. On failure the stream is closed.
//
// auth may be nil to connect without authorization data.
func ConnectToStream(ctx context.Context, stream Stream, screen int, auth *AuthInfo, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()

	setup, err := performHandshake(ctx, stream, auth)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}
	if screen < 0 || screen >= len(setup.Roots) {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: display has %d screens, screen %d requested",
			ErrInvalidScreen, len(setup.Roots), screen)
	}
	if setup.ResourceIDMask == 0 {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: zero resource id mask", ErrSetupParse)
	}

	c := &Conn{
		cfg:        cfg,
		logger:     cfg.logger(),
		stream:     stream,
		setup:      setup,
		screen:     screen,
		stats:      newStatsCollector(),
		exts:       make(map[string]*extensionState),
		xids:       newIDAllocator(setup.ResourceIDBase, setup.ResourceIDMask),
		closed:     make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	c.state.core = protocol.New()
	c.state.arrived = make(chan struct{})
	c.wb = newWriteBuffer(stream, cfg.WriteBufferSize, c.stats)
	c.atomsByName = cache.New(cache.NoExpiration, 0)
	c.atomsByID = cache.New(cache.NoExpiration, 0)
	c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())
	c.lastActivity.Store(coarsetime.Now())

	go c.readLoop()

	c.logger.Debug().
		Str("vendor", setup.Vendor).
		Int("screen", screen).
		Int("screens", len(setup.Roots)).
		Msg("x11: connected")
	return c, nil
}

// performHandshake writes the setup request and reads the full setup
// response. The stream is closed if ctx ends while the handshake is blocked.
func performHandshake(ctx context.Context, stream Stream, auth *AuthInfo) (*xproto.Setup, error) {
	stop := watchContext(ctx, stream)
	defer stop()

	var name, data []byte
	if auth != nil {
		name = []byte(auth.Name)
		data = auth.Data
	}

	if err := writeFull(stream, xproto.SetupRequest(name, data)); err != nil {
		return nil, handshakeError(ctx, err)
	}

	var fds []int
	head := make([]byte, xproto.SetupHeaderSize)
	if err := readFull(stream, head, &fds); err != nil {
		return nil, handshakeError(ctx, err)
	}
	total, err := xproto.SetupResponseLength(head)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSetupParse, err)
	}
	buf := make([]byte, xproto.SetupHeaderSize+total)
	copy(buf, head)
	if err := readFull(stream, buf[len(head):], &fds); err != nil {
		return nil, handshakeError(ctx, err)
	}
	closeFDs(fds)

	setup, err := xproto.ParseSetupResponse(buf)
	if err != nil {
		var failed *xproto.SetupFailedError
		var authenticate *xproto.SetupAuthenticateError
		if errors.As(err, &failed) || errors.As(err, &authenticate) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSetupParse, err)
	}
	return setup, nil
}

func handshakeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &ConnectionError{Op: "setup", Err: err}
}

func dialDisplay(ctx context.Context, d Display) (Stream, error) {
	network, addr := d.Addr()
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		return NewUnixStream(uc), nil
	}
	return NewTCPStream(conn), nil
}

// watchContext closes the stream when ctx ends, until the returned stop
// function is called. Streams have no read deadline, so this is what bounds
// a blocking handshake read.
func watchContext(ctx context.Context, stream Stream) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

func writeFull(stream Stream, data []byte) error {
	var fds []int
	for len(data) > 0 {
		n, err := stream.Write(data, &fds)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func readFull(stream Stream, p []byte, fds *[]int) error {
	off := 0
	for off < len(p) {
		n, err := stream.Read(p[off:], fds)
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

func closeFDs(fds []int) {
	for _, fd := range fds {
		_ = os.NewFile(uintptr(fd), "").Close()
	}
}

// readLoop reads from the transport until it fails, reassembles packets and
// hands them to the protocol core. It is the only reader of the stream.
func (c *Conn) readLoop() {
	defer close(c.readerDone)

	buf := make([]byte, c.cfg.ReadBufferSize)
	var reasm protocol.Reassembler
	for {
		var fds []int
		n, err := c.stream.Read(buf, &fds)
		if err != nil {
			c.failReads(err)
			return
		}
		c.stats.addBytesRead(n)
		c.lastActivity.Store(coarsetime.Now())

		packets := reasm.Feed(buf[:n])
		if len(packets) == 0 && len(fds) == 0 {
			continue
		}

		c.state.Lock()
		c.state.core.EnqueueFDs(fds)
		for _, p := range packets {
			c.countPacket(p)
			c.state.core.EnqueuePacket(p)
		}
		c.wakeLocked()
		c.state.Unlock()
	}
}

func (c *Conn) countPacket(p []byte) {
	switch p[0] {
	case xproto.ResponseTypeError:
		c.stats.recordError()
	case xproto.ResponseTypeReply:
		c.stats.recordReply()
	default:
		c.stats.recordEvent()
	}
}

// failReads records the reader's terminal error and wakes every waiter.
// Deliberate closes surface as ErrConnectionClosed.
func (c *Conn) failReads(err error) {
	deliberate := c.isClosed() || errors.Is(err, net.ErrClosed)

	c.state.Lock()
	if c.state.readErr == nil {
		if deliberate {
			c.state.readErr = ErrConnectionClosed
		} else {
			c.state.readErr = &ConnectionError{Op: "read", Err: err}
		}
	}
	c.wakeLocked()
	c.state.Unlock()

	if !deliberate {
		c.logger.Debug().Err(err).Msg("x11: read loop terminated")
	}
}

func (c *Conn) wakeLocked() {
	close(c.state.arrived)
	c.state.arrived = make(chan struct{})
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// pollUntil runs poll under the state lock, then blocks until new packets
// arrive, and repeats until poll reports completion. poll must not block.
//
// Completion is checked before the reader error so that responses received
// before a connection failure remain retrievable after it.
func (c *Conn) pollUntil(ctx context.Context, poll func(*protocol.Core) bool) error {
	for {
		c.state.Lock()
		done := poll(c.state.core)
		readErr := c.state.readErr
		arrived := c.state.arrived
		c.state.Unlock()

		if done {
			return nil
		}
		if readErr != nil {
			return readErr
		}
		select {
		case <-arrived:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Flush writes all buffered requests to the transport.
func (c *Conn) Flush(ctx context.Context) error {
	if err := c.wb.acquire(ctx); err != nil {
		return err
	}
	if err := c.wb.flush(ctx); err != nil {
		c.wb.abandon()
		return err
	}
	c.wb.release()
	return nil
}

// Sync performs a full round trip to the server, guaranteeing that every
// request sent before it has been processed.
func (c *Conn) Sync(ctx context.Context) error {
	cookie, err := c.SendRequestWithReply(ctx, nil, xproto.GetInputFocusRequest())
	if err != nil {
		return err
	}
	_, err = cookie.Reply(ctx)
	return err
}

// Setup returns the parsed setup response for this connection.
func (c *Conn) Setup() *xproto.Setup {
	return c.setup
}

// Screen returns the screen this connection was opened on.
func (c *Conn) Screen() *xproto.Screen {
	return &c.setup.Roots[c.screen]
}

// ScreenNumber returns the index of the screen this connection was opened on.
func (c *Conn) ScreenNumber() int {
	return c.screen
}

// Stats returns a snapshot of the connection counters.
func (c *Conn) Stats() ConnStats {
	return c.stats.snapshot()
}

// LastActivity returns when the connection last received bytes from the
// server. The timestamp comes from a coarse clock with 50ms resolution.
func (c *Conn) LastActivity() time.Time {
	return c.lastActivity.Load().(time.Time)
}

// Broken reports whether the connection has been closed or has failed.
func (c *Conn) Broken() bool {
	if c.isClosed() {
		return true
	}
	c.state.Lock()
	defer c.state.Unlock()
	return c.state.readErr != nil
}

// Close shuts the connection down and waits for the reader to exit. Buffered
// requests that were never flushed are discarded. Callers blocked on replies
// or events are woken with ErrConnectionClosed.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.lifeCancel()
		_ = c.stream.Close()
		<-c.readerDone
		c.logger.Debug().Msg("x11: connection closed")
	})
	return nil
}
