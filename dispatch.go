package x11

import (
	"context"

	"github.com/qlentz/x11/protocol"
	"github.com/qlentz/x11/xproto"
)

// SendRequestWithReply dispatches a request that the server answers with a
// reply. body holds the request as one or more slices that are concatenated
// on the wire; fds are file descriptors passed along with it.
//
// The request is buffered, not flushed. Cookie.Reply flushes before waiting.
func (c *Conn) SendRequestWithReply(ctx context.Context, fds []int, body ...[]byte) (*Cookie, error) {
	seq, err := c.dispatch(ctx, protocol.ReplyWithoutFDs, fds, body)
	if err != nil {
		return nil, err
	}
	return &Cookie{conn: c, sequence: seq}, nil
}

// SendRequestWithReplyFDs dispatches a request whose reply carries file
// descriptors.
func (c *Conn) SendRequestWithReplyFDs(ctx context.Context, fds []int, body ...[]byte) (*FDCookie, error) {
	seq, err := c.dispatch(ctx, protocol.ReplyWithFDs, fds, body)
	if err != nil {
		return nil, err
	}
	return &FDCookie{Cookie{conn: c, sequence: seq}}, nil
}

// SendRequestNoReply dispatches a request the server does not reply to.
func (c *Conn) SendRequestNoReply(ctx context.Context, fds []int, body ...[]byte) (*VoidCookie, error) {
	seq, err := c.dispatch(ctx, protocol.NoReply, fds, body)
	if err != nil {
		return nil, err
	}
	return &VoidCookie{conn: c, sequence: seq}, nil
}

// dispatch assigns the request a sequence number and hands its bytes to the
// write pipeline. Sequence numbers are assigned while holding the pipeline,
// so their order always matches the byte order on the wire.
//
// When the core refuses a sequence number, exactly one synchronization
// request is injected and the assignment retried.
func (c *Conn) dispatch(ctx context.Context, kind protocol.ReplyKind, fds []int, body [][]byte) (uint64, error) {
	if c.isClosed() {
		return 0, ErrConnectionClosed
	}

	bufs, err := c.prepareRequest(ctx, body)
	if err != nil {
		return 0, err
	}

	if err := c.wb.acquire(ctx); err != nil {
		return 0, err
	}
	for {
		c.state.Lock()
		seq, ok := c.state.core.SendRequest(kind)
		c.state.Unlock()
		if ok {
			if err := c.wb.writeVectored(ctx, bufs, fds); err != nil {
				c.wb.abandon()
				return 0, err
			}
			c.wb.release()
			c.stats.recordRequest()
			return seq, nil
		}
		if err := c.sendSync(ctx); err != nil {
			c.wb.abandon()
			return 0, err
		}
	}
}

// sendSync injects a GetInputFocus request whose reply and error are both
// swallowed. Forcing a reply bounds how far the sent side can run ahead of
// the replies the server has produced. Caller must hold the write pipeline.
func (c *Conn) sendSync(ctx context.Context) error {
	c.state.Lock()
	seq, ok := c.state.core.SendRequest(protocol.ReplyWithoutFDs)
	if !ok {
		c.state.Unlock()
		panic("x11: synchronization request refused a sequence number")
	}
	_ = c.state.core.DiscardReply(seq, protocol.DiscardReplyAndError)
	c.state.Unlock()

	if err := c.wb.writeVectored(ctx, [][]byte{xproto.GetInputFocusRequest()}, nil); err != nil {
		return err
	}
	c.stats.recordSync()
	c.logger.Debug().Uint64("sequence", seq).Msg("x11: sync request injected")
	return nil
}
