package kt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/kt/binproto"
	"github.com/pior/kt/internal/bufpool"
	"github.com/pior/kt/tsvrpc"
)

var framePool = bufpool.New(512, 64<<10)

// Default configuration values.
const (
	DefaultReadBufferSize = 32 << 10
	DefaultMaxFrameSize   = binproto.DefaultMaxFrameSize
	DefaultDialTimeout    = 5 * time.Second
)

// Config holds the per-connection configuration. It is captured once by New
// and never changes afterwards.
type Config struct {
	// Encoding is the column encoding of TSV-RPC requests.
	// The zero value is tsvrpc.Base64.
	Encoding tsvrpc.ColumnEncoding

	// Database selects the database of TSV-RPC calls (the DB parameter), by
	// name or index. Empty means the server's default database.
	Database string

	// DatabaseIndex selects the database of binary calls. Default 0.
	DatabaseIndex uint16

	// TextOnly makes every call use TSV-RPC, including those the binary
	// protocol could serve.
	TextOnly bool

	// Host is sent in the Host header of TSV-RPC requests.
	// If empty, the connection's remote address is used.
	Host string

	// Timeout bounds calls whose context has no deadline.
	// Zero means no limit.
	Timeout time.Duration

	// WriteTimeout bounds each write to the connection. A write that times
	// out closes the connection. Zero means no limit.
	WriteTimeout time.Duration

	// MaxFrameSize bounds a single inbound binary frame or TSV-RPC body.
	// A larger frame closes the connection. Zero means DefaultMaxFrameSize.
	MaxFrameSize int

	// ReadBufferSize is the size of each read from the connection.
	// Zero means DefaultReadBufferSize.
	ReadBufferSize int

	// Logger receives connection lifecycle and failure events.
	// If nil, nothing is logged.
	Logger *zerolog.Logger

	// OnOrphanError is called with connection failures that happened while
	// no operation was waiting. They are also logged at error level.
	OnOrphanError func(error)

	// CircuitBreaker wraps every call in a breaker built from these settings.
	// If nil, no circuit breaker is used.
	CircuitBreaker *gobreaker.Settings
}

// Client runs Kyoto Tycoon operations over one connection. It is safe for
// concurrent use; calls are pipelined and answered in submission order.
type Client struct {
	conn net.Conn

	encoding     tsvrpc.ColumnEncoding
	database     string
	dbidx        uint16
	textOnly     bool
	host         string
	timeout      time.Duration
	writeTimeout time.Duration
	maxFrameSize int
	readBufSize  int
	onOrphan     func(error)

	logger  zerolog.Logger
	breaker *gobreaker.CircuitBreaker[*Response] // nil if not configured
	stats   *clientStatsCollector

	// submitMu makes push+write atomic relative to other submitters
	submitMu sync.Mutex
	queue    *correlator

	// owned by the reader goroutine
	decoder binproto.Decoder

	closeOnce  sync.Once
	closing    chan struct{}
	readerExit chan struct{}
}

// Dial connects to addr over TCP and returns a client using it.
func Dial(ctx context.Context, addr string, config Config) (*Client, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("kt: dial %s: %w", addr, err)
	}

	if config.Host == "" {
		config.Host = addr
	}
	return New(conn, config), nil
}

// New returns a client running over conn, an established connection.
// The client owns conn from now on and closes it on Close or on the first
// connection-level failure. There is no reconnection: a closed client stays
// closed.
//
// A nil conn yields a client that is already closed: every call fails with
// an error matching both ErrConnectionClosed and ErrInvalidArgument.
func New(conn net.Conn, config Config) *Client {
	c := &Client{
		conn:         conn,
		encoding:     config.Encoding,
		database:     config.Database,
		dbidx:        config.DatabaseIndex,
		textOnly:     config.TextOnly,
		host:         config.Host,
		timeout:      config.Timeout,
		writeTimeout: config.WriteTimeout,
		maxFrameSize: config.MaxFrameSize,
		readBufSize:  config.ReadBufferSize,
		onOrphan:     config.OnOrphanError,
		stats:        newClientStatsCollector(),
		queue:        newCorrelator(),
		closing:      make(chan struct{}),
		readerExit:   make(chan struct{}),
	}

	if c.host == "" && conn != nil && conn.RemoteAddr() != nil {
		c.host = conn.RemoteAddr().String()
	}
	if c.maxFrameSize <= 0 {
		c.maxFrameSize = DefaultMaxFrameSize
	}
	if c.readBufSize <= 0 {
		c.readBufSize = DefaultReadBufferSize
	}
	c.decoder.MaxFrameSize = c.maxFrameSize

	if config.Logger != nil {
		c.logger = config.Logger.With().Str("layer", "kt").Str("remote", c.host).Logger()
	} else {
		c.logger = zerolog.Nop()
	}

	if config.CircuitBreaker != nil {
		c.breaker = newCircuitBreaker(*config.CircuitBreaker)
	}

	if conn == nil {
		c.closeOnce.Do(func() {
			close(c.closing)
			close(c.readerExit)
			c.queue.close(invalidArgument("no connection"))
		})
		return c
	}

	c.logger.Debug().Msg("connection started")
	go c.readLoop()

	return c
}

// Close closes the connection. Operations still waiting fail with an error
// matching ErrConnectionClosed.
func (c *Client) Close() error {
	c.shutdown(ErrClientClosed)
	<-c.readerExit
	return nil
}

// Closed is closed once the client stopped, by Close or a connection failure.
func (c *Client) Closed() <-chan struct{} {
	return c.closing
}

// Submit writes req and returns its pending operation without waiting.
// A ctx that is already done is returned as is, before anything is queued or
// written. Many operations may be in flight at once; they complete in
// submission order.
func (c *Client) Submit(ctx context.Context, req *Request) (*Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame := framePool.Get()
	defer framePool.Put(frame)

	var err error
	if *frame, err = c.encode(*frame, req); err != nil {
		return nil, err
	}

	op := newOperation(req)

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	// the operation must be queued before its first byte can reach the server
	if err := c.queue.push(op); err != nil {
		return nil, err
	}

	// a caller's deadline never bounds a write on the shared stream
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}

	if _, err := c.conn.Write(*frame); err != nil {
		// a partial write leaves the stream unusable; op is failed by shutdown
		c.shutdown(&ConnectionError{Op: "write", Err: err})
	}
	c.stats.recordSubmit(req.IsBinary())
	return op, nil
}

// Do submits req and waits for its response.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, req)
	}
	return c.breaker.Execute(func() (*Response, error) {
		return c.roundTrip(ctx, req)
	})
}

func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	if c.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}

	op, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := op.Wait(ctx)
	if errors.Is(err, ErrOutcomeUnknown) {
		c.stats.recordTimeout()
	}
	return resp, err
}

// encode appends the wire form of req to dst.
func (c *Client) encode(dst []byte, req *Request) ([]byte, error) {
	switch {
	case req == nil:
		return dst, invalidArgument("nil request")
	case req.Binary != nil && req.Text != nil:
		return dst, invalidArgument("request has both a binary and a text payload")
	case req.Binary != nil:
		frame, err := binproto.AppendRequest(dst, req.Binary)
		if err != nil {
			return dst, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		return frame, nil
	case req.Text != nil:
		return tsvrpc.AppendRequest(dst, c.host, req.Text), nil
	default:
		return dst, invalidArgument("request has no payload")
	}
}

// readLoop is the only reader of the connection. Frames are decoded and
// handed to the queue head one at a time, in arrival order.
func (c *Client) readLoop() {
	defer close(c.readerExit)

	buf := make([]byte, c.readBufSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.decoder.Feed(buf[:n])
			if derr := c.drain(); derr != nil {
				c.logger.Warn().Err(derr).Msg("inbound stream out of step, closing connection")
				c.shutdown(&ConnectionError{Op: "read", Err: derr})
				return
			}
		}
		if err != nil {
			c.shutdown(&ConnectionError{Op: "read", Err: err})
			return
		}
	}
}

// drain delivers every complete frame currently buffered. A returned error
// means the stream can no longer be trusted.
func (c *Client) drain() error {
	for {
		pending := c.decoder.Buffered()
		if len(pending) == 0 {
			return nil
		}

		if binproto.IsMagic(pending[0]) {
			resp, err := c.decoder.Next()
			if err != nil || resp == nil {
				return err
			}
			if err := c.deliver(&Response{Binary: resp}); err != nil {
				return err
			}
			continue
		}

		if !tsvrpc.LooksLikeResponse(pending) {
			return &binproto.ParseError{Message: fmt.Sprintf("unexpected byte 0x%02X at frame start", pending[0])}
		}

		resp, n, err := tsvrpc.ParseResponse(pending, c.maxFrameSize)
		if n == 0 {
			return err
		}
		c.decoder.Discard(n)

		if err != nil {
			// the frame was delimited, only its fields failed to decode
			op, ok := c.queue.pop()
			if !ok {
				return ErrUnsolicitedResponse
			}
			op.fail(err)
			continue
		}

		if err := c.deliver(&Response{Text: resp}); err != nil {
			return err
		}
	}
}

// deliver completes the head of the queue with resp.
func (c *Client) deliver(resp *Response) error {
	op, ok := c.queue.pop()
	if !ok {
		return ErrUnsolicitedResponse
	}

	if !matches(op.req, resp) {
		op.fail(ErrProtocolMismatch)
		return ErrProtocolMismatch
	}

	op.complete(resp)
	return nil
}

// matches reports whether resp can be the answer to req.
func matches(req *Request, resp *Response) bool {
	if req.IsBinary() != resp.IsBinary() {
		return false
	}
	if !resp.IsBinary() {
		return true
	}
	return resp.Binary.IsError() || resp.Binary.Magic == req.Binary.Magic
}

// shutdown closes the connection once and fails every queued operation.
// A failure with nothing queued is orphaned and reported.
func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		close(c.closing)
		_ = c.conn.Close()

		failed := c.queue.close(cause)

		if errors.Is(cause, ErrClientClosed) {
			c.logger.Debug().Int("failed", failed).Msg("connection closed")
			return
		}

		c.logger.Debug().Err(cause).Int("failed", failed).Msg("connection lost")
		if failed == 0 {
			c.reportOrphan(cause)
		}
	})
}

func (c *Client) reportOrphan(err error) {
	c.stats.recordOrphan()
	c.logger.Error().Err(err).Msg("connection failure with no pending operation")
	if c.onOrphan != nil {
		c.onOrphan(err)
	}
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() ClientStats {
	s := c.stats.snapshot()
	s.InFlight = uint64(c.queue.len())
	return s
}
