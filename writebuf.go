package x11

import (
	"context"
	"time"
)

// writeBuffer is the write pipeline: one outgoing byte buffer, the queue of
// descriptors waiting to travel with it, and the corruption flag.
//
// Exactly one logical writer may hold the buffer at a time. acquire marks
// the buffer tentatively corrupted and only a clean release clears the mark,
// so a writer that fails or abandons the critical section mid-write leaves
// the corruption behind: buffer contents that may contain half a request can
// never reach the wire. The poisoning is deliberate and permanent.
type writeBuffer struct {
	sem chan struct{}

	// Guarded by sem.
	buf       []byte
	fds       []int
	corrupted bool

	stream Stream
	stats  *statsCollector
}

func newWriteBuffer(stream Stream, size int, stats *statsCollector) *writeBuffer {
	return &writeBuffer{
		sem:    make(chan struct{}, 1),
		buf:    make([]byte, 0, size),
		stream: stream,
		stats:  stats,
	}
}

// acquire takes exclusive hold of the buffer. It fails permanently with
// ErrWriteBufferCorrupted once any holder has abandoned the buffer.
func (w *writeBuffer) acquire(ctx context.Context) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if w.corrupted {
		<-w.sem
		return ErrWriteBufferCorrupted
	}
	w.corrupted = true
	return nil
}

// release ends a hold whose writes all completed. Error paths must call
// abandon instead.
func (w *writeBuffer) release() {
	w.corrupted = false
	<-w.sem
}

// abandon ends a hold without clearing the corruption mark.
func (w *writeBuffer) abandon() {
	<-w.sem
}

// writeVectored queues a request's slices, flushing first when they would
// overflow the buffer and bypassing the buffer entirely when they cannot fit
// at all. Descriptors either join the pending queue (buffered path) or
// travel with the direct write. Caller must hold the buffer.
func (w *writeBuffer) writeVectored(ctx context.Context, bufs [][]byte, fds []int) error {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}

	if len(w.buf)+total > cap(w.buf) {
		if err := w.flush(ctx); err != nil {
			return err
		}
	}

	if total < cap(w.buf) {
		for _, b := range bufs {
			w.buf = append(w.buf, b...)
		}
		w.fds = append(w.fds, fds...)
		return nil
	}

	return w.writeDirect(ctx, bufs, fds)
}

// writeDirect streams slices to the transport without copying them into the
// buffer, tracking how many whole slices each partial write consumed.
func (w *writeBuffer) writeDirect(ctx context.Context, bufs [][]byte, fds []int) error {
	defer w.applyDeadline(ctx)()

	remaining := make([][]byte, 0, len(bufs))
	for _, b := range bufs {
		if len(b) > 0 {
			remaining = append(remaining, b)
		}
	}
	pending := append([]int(nil), fds...)

	for len(remaining) > 0 {
		n, err := w.stream.WriteVectored(remaining, &pending)
		if err != nil {
			return &ConnectionError{Op: "write", Err: err}
		}
		w.stats.addBytesWritten(n)
		for n > 0 {
			if n >= len(remaining[0]) {
				n -= len(remaining[0])
				remaining = remaining[1:]
			} else {
				remaining[0] = remaining[0][n:]
				n = 0
			}
		}
	}
	if len(pending) > 0 {
		return ErrFDPassingFailed
	}
	return nil
}

// flush drains the buffer to the transport, looping through partial writes.
// The transport must consume every pending descriptor while the bytes drain;
// descriptors left over afterwards are a transport inconsistency. Caller
// must hold the buffer.
func (w *writeBuffer) flush(ctx context.Context) error {
	if len(w.buf) == 0 && len(w.fds) == 0 {
		return nil
	}
	defer w.applyDeadline(ctx)()

	data := w.buf
	for len(data) > 0 {
		n, err := w.stream.Write(data, &w.fds)
		if err != nil {
			return &ConnectionError{Op: "flush", Err: err}
		}
		w.stats.addBytesWritten(n)
		data = data[n:]
	}
	if len(w.fds) > 0 {
		return ErrFDPassingFailed
	}
	w.buf = w.buf[:0]
	w.stats.recordFlush()
	return nil
}

func (w *writeBuffer) applyDeadline(ctx context.Context) func() {
	deadline, ok := ctx.Deadline()
	if !ok {
		return func() {}
	}
	_ = w.stream.SetWriteDeadline(deadline)
	return func() { _ = w.stream.SetWriteDeadline(time.Time{}) }
}
