//go:build unix

package x11

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// unixStream carries bytes over a unix-domain socket and descriptors as
// SCM_RIGHTS control messages attached to the first byte of a write.
type unixStream struct {
	conn *net.UnixConn
	oob  []byte
}

// NewUnixStream wraps a unix-domain socket connection. This is the only
// bundled transport that supports descriptor passing.
func NewUnixStream(conn *net.UnixConn) Stream {
	return &unixStream{
		conn: conn,
		oob:  make([]byte, unix.CmsgSpace(maxIncomingFDs*4)),
	}
}

// maxIncomingFDs bounds the descriptors accepted in one control message.
const maxIncomingFDs = 16

func (s *unixStream) Read(p []byte, fds *[]int) (int, error) {
	n, oobn, _, _, err := s.conn.ReadMsgUnix(p, s.oob)
	if oobn > 0 && fds != nil {
		received, perr := parseRights(s.oob[:oobn])
		if perr != nil {
			return n, perr
		}
		*fds = append(*fds, received...)
	}
	return n, err
}

func parseRights(oob []byte) ([]int, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	var fds []int
	for _, msg := range msgs {
		got, err := unix.ParseUnixRights(&msg)
		if err != nil {
			continue
		}
		fds = append(fds, got...)
	}
	return fds, nil
}

func (s *unixStream) Write(p []byte, fds *[]int) (int, error) {
	var oob []byte
	if fds != nil && len(*fds) > 0 {
		oob = unix.UnixRights(*fds...)
	}
	n, _, err := s.conn.WriteMsgUnix(p, oob, nil)
	if n > 0 && oob != nil {
		// The descriptors travelled with the first byte; the kernel has
		// duplicated them, so our copies close now.
		for _, fd := range *fds {
			unix.Close(fd)
		}
		*fds = (*fds)[:0]
	}
	return n, err
}

func (s *unixStream) WriteVectored(bufs [][]byte, fds *[]int) (int, error) {
	if len(bufs) == 0 {
		return 0, nil
	}
	return s.Write(bufs[0], fds)
}

func (s *unixStream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

func (s *unixStream) Close() error {
	return s.conn.Close()
}
