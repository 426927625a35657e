package testutils

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

// ConnectionMock is a scripted net.Conn for testing. Writes are recorded;
// reads return the bytes queued with Feed and block while none are queued,
// until Close or CloseRead.
type ConnectionMock struct {
	mu       sync.Mutex
	cond     *sync.Cond
	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	readEOF  bool
	closed   bool
	writeErr error
}

// NewConnectionMock creates a mock connection with pre-configured response data.
func NewConnectionMock(responseData ...[]byte) *ConnectionMock {
	m := &ConnectionMock{}
	m.cond = sync.NewCond(&m.mu)
	for _, data := range responseData {
		m.readBuf.Write(data)
	}
	return m
}

// Feed queues data for the reader.
func (m *ConnectionMock) Feed(data ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range data {
		m.readBuf.Write(d)
	}
	m.cond.Broadcast()
}

// CloseRead makes reads return io.EOF once the queued data is consumed,
// as if the server hung up.
func (m *ConnectionMock) CloseRead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readEOF = true
	m.cond.Broadcast()
}

// FailWrites makes every following Write fail with err.
func (m *ConnectionMock) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func (m *ConnectionMock) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.readBuf.Len() == 0 {
		if m.closed {
			return 0, net.ErrClosed
		}
		if m.readEOF {
			return 0, io.EOF
		}
		m.cond.Wait()
	}
	return m.readBuf.Read(b)
}

func (m *ConnectionMock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, net.ErrClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.writeBuf.Write(b)
}

func (m *ConnectionMock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}

// IsClosed returns true once Close was called.
func (m *ConnectionMock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1978}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error      { return nil }
func (m *ConnectionMock) SetReadDeadline(t time.Time) error  { return nil }
func (m *ConnectionMock) SetWriteDeadline(t time.Time) error { return nil }

// GetWrittenRequest returns the raw request bytes written to the mock connection.
func (m *ConnectionMock) GetWrittenRequest() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.writeBuf.Bytes())
}
