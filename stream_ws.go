package x11

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qlentz/x11/internal"
)

// wsStream runs the X11 byte stream over binary WebSocket messages, the
// framing used by in-browser display proxies. Message boundaries carry no
// meaning; the reader treats consecutive binary messages as one stream.
type wsStream struct {
	conn *websocket.Conn

	// current is the remainder of the in-flight incoming message.
	current io.Reader

	bufs *internal.ByteBufferPool
}

// NewWebSocketStream wraps an established WebSocket connection for use as a
// connection transport. WebSocket transports cannot carry descriptors.
func NewWebSocketStream(conn *websocket.Conn) Stream {
	return &wsStream{
		conn: conn,
		bufs: internal.NewByteBufferPool(defaultWriteBufferSize),
	}
}

// DialWebSocketStream connects to a WebSocket display proxy at url.
func DialWebSocketStream(ctx context.Context, url string, header http.Header) (Stream, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return NewWebSocketStream(conn), nil
}

func (s *wsStream) Read(p []byte, fds *[]int) (int, error) {
	for {
		if s.current == nil {
			messageType, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			s.current = r
		}
		n, err := s.current.Read(p)
		if err == io.EOF {
			s.current = nil
			if n == 0 {
				continue
			}
			return n, nil
		}
		if n == 0 && err == nil {
			s.current = nil
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte, fds *[]int) (int, error) {
	if fds != nil && len(*fds) > 0 {
		return 0, ErrFDPassingFailed
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteVectored coalesces the slices into a single message so the proxy
// relays each request in one frame.
func (s *wsStream) WriteVectored(bufs [][]byte, fds *[]int) (int, error) {
	if fds != nil && len(*fds) > 0 {
		return 0, ErrFDPassingFailed
	}
	buf := s.bufs.Get()
	defer s.bufs.Put(buf)
	for _, b := range bufs {
		buf.Write(b)
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

func (s *wsStream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
