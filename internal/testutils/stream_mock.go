// Package testutils provides a scriptable transport for connection tests.
package testutils

import (
	"bytes"
	"net"
	"sync"
	"time"
)

// MockStream is a scriptable in-memory transport. It satisfies the root
// package's Stream interface structurally, using only builtin types, so it
// can be shared without an import cycle.
//
// Test code plays the server side with ServerSend and friends; the code
// under test reads and writes as usual. Reads block until data is scripted.
type MockStream struct {
	mu   sync.Mutex
	cond *sync.Cond

	readBuf bytes.Buffer
	readFDs []int
	readErr error

	written    bytes.Buffer
	writtenFDs []int
	writeErr   error
	writeLimit int

	closed bool
}

func NewMockStream() *MockStream {
	m := &MockStream{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// ServerSend queues bytes for the connection to read.
func (m *MockStream) ServerSend(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuf.Write(data)
	m.cond.Broadcast()
}

// ServerSendWithFDs queues bytes along with descriptors that arrive with
// them.
func (m *MockStream) ServerSendWithFDs(data []byte, fds ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuf.Write(data)
	m.readFDs = append(m.readFDs, fds...)
	m.cond.Broadcast()
}

// FailReads makes the next read that runs out of scripted data return err.
func (m *MockStream) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
	m.cond.Broadcast()
}

// FailWrites makes every subsequent write return err.
func (m *MockStream) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetWriteLimit caps how many bytes a single Write or WriteVectored call
// accepts, to exercise partial-write handling. Zero means no cap.
func (m *MockStream) SetWriteLimit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeLimit = n
}

// Written returns a copy of everything written so far.
func (m *MockStream) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written.Bytes()...)
}

// WrittenFDs returns the descriptors consumed by writes so far.
func (m *MockStream) WrittenFDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.writtenFDs...)
}

// Closed reports whether Close has been called.
func (m *MockStream) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockStream) Read(p []byte, fds *[]int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.readBuf.Len() == 0 && m.readErr == nil && !m.closed {
		m.cond.Wait()
	}
	if m.readBuf.Len() == 0 {
		if m.readErr != nil {
			return 0, m.readErr
		}
		return 0, net.ErrClosed
	}
	if len(m.readFDs) > 0 {
		*fds = append(*fds, m.readFDs...)
		m.readFDs = nil
	}
	n, _ := m.readBuf.Read(p)
	return n, nil
}

func (m *MockStream) Write(p []byte, fds *[]int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(p, fds)
}

func (m *MockStream) WriteVectored(bufs [][]byte, fds *[]int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	allowance := m.writeLimit
	total := 0
	for _, b := range bufs {
		chunk := b
		if m.writeLimit > 0 {
			if allowance == 0 {
				break
			}
			if len(chunk) > allowance {
				chunk = chunk[:allowance]
			}
			allowance -= len(chunk)
		}
		m.written.Write(chunk)
		total += len(chunk)
		if len(chunk) < len(b) {
			break
		}
	}
	if total > 0 && fds != nil && len(*fds) > 0 {
		m.writtenFDs = append(m.writtenFDs, *fds...)
		*fds = (*fds)[:0]
	}
	return total, nil
}

// writeLocked consumes descriptors once the first byte is accepted,
// matching how sendmsg attaches ancillary data.
func (m *MockStream) writeLocked(p []byte, fds *[]int) (int, error) {
	if m.closed {
		return 0, net.ErrClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	n := len(p)
	if m.writeLimit > 0 && n > m.writeLimit {
		n = m.writeLimit
	}
	m.written.Write(p[:n])
	if n > 0 && fds != nil && len(*fds) > 0 {
		m.writtenFDs = append(m.writtenFDs, *fds...)
		*fds = (*fds)[:0]
	}
	return n, nil
}

func (m *MockStream) SetWriteDeadline(t time.Time) error { return nil }

func (m *MockStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}
