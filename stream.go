package x11

import (
	"net"
	"time"
)

// Stream is the duplex byte channel a connection runs over, plus the side
// channel for passing file descriptors where the transport supports it.
//
// Read blocks until at least one byte (or an error) is available and never
// returns (0, nil). Descriptors received alongside the bytes are appended to
// *fds. Write and WriteVectored block but may be partial; descriptors are
// consumed from *fds once they are on the wire, and implementations without
// descriptor support fail with ErrFDPassingFailed when *fds is non-empty.
//
// The write pipeline is the only writer and the connection's reader
// goroutine the only reader, so implementations need not support concurrent
// calls on the same direction.
type Stream interface {
	Read(p []byte, fds *[]int) (int, error)
	Write(p []byte, fds *[]int) (int, error)
	WriteVectored(bufs [][]byte, fds *[]int) (int, error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// tcpStream adapts a net.Conn. TCP transports cannot carry descriptors.
type tcpStream struct {
	conn net.Conn
}

// NewTCPStream wraps a connected net.Conn for use as a connection transport.
func NewTCPStream(conn net.Conn) Stream {
	return &tcpStream{conn: conn}
}

func (s *tcpStream) Read(p []byte, fds *[]int) (int, error) {
	return s.conn.Read(p)
}

func (s *tcpStream) Write(p []byte, fds *[]int) (int, error) {
	if fds != nil && len(*fds) > 0 {
		return 0, ErrFDPassingFailed
	}
	return s.conn.Write(p)
}

func (s *tcpStream) WriteVectored(bufs [][]byte, fds *[]int) (int, error) {
	if fds != nil && len(*fds) > 0 {
		return 0, ErrFDPassingFailed
	}
	buffers := make(net.Buffers, len(bufs))
	for i, b := range bufs {
		buffers[i] = b
	}
	n, err := buffers.WriteTo(s.conn)
	return int(n), err
}

func (s *tcpStream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

func (s *tcpStream) Close() error {
	return s.conn.Close()
}
