package x11

import (
	"context"

	"github.com/qlentz/x11/protocol"
	"github.com/qlentz/x11/xproto"
)

// DiscardMode selects what happens to the response of an abandoned request.
type DiscardMode = protocol.DiscardMode

const (
	// DiscardReply drops the reply but lets an error response surface in
	// the event stream.
	DiscardReply = protocol.DiscardReply
	// DiscardReplyAndError drops the reply and swallows any error response.
	DiscardReplyAndError = protocol.DiscardReplyAndError
)

// Cookie tracks an outstanding request that the server answers with a reply.
// Exactly one of Reply, ReplyUnchecked or Discard should be called.
type Cookie struct {
	conn     *Conn
	sequence uint64
}

// Sequence returns the full-width sequence number assigned to the request.
func (ck *Cookie) Sequence() uint64 { return ck.sequence }

// Reply flushes the connection and blocks until the response arrives. An
// error response is returned as a *xproto.WireError. A nil reply with a nil
// error means no response is coming, which happens only after Discard or a
// second Reply call.
func (ck *Cookie) Reply(ctx context.Context) ([]byte, error) {
	packet, _, err := ck.conn.waitForReplyOrError(ctx, ck.sequence)
	if err != nil {
		return nil, err
	}
	if packet == nil {
		return nil, nil
	}
	if packet[0] == xproto.ResponseTypeError {
		return nil, wireError(packet, ck.sequence)
	}
	return packet, nil
}

// ReplyUnchecked is Reply without error interception: if the server answered
// with an error it is routed to the event stream and (nil, nil) is returned.
func (ck *Cookie) ReplyUnchecked(ctx context.Context) ([]byte, error) {
	packet, _, err := ck.conn.waitForReply(ctx, ck.sequence)
	if err != nil {
		return nil, err
	}
	return packet, nil
}

// Discard abandons interest in the response.
func (ck *Cookie) Discard(mode DiscardMode) {
	ck.conn.discardReply(ck.sequence, mode)
}

// FDCookie is a Cookie for a request whose reply carries file descriptors.
// Returned descriptors are owned by the caller, who must close them.
type FDCookie struct {
	Cookie
}

// Reply is Cookie.Reply and additionally returns the descriptors that
// arrived with the reply.
func (ck *FDCookie) Reply(ctx context.Context) ([]byte, []int, error) {
	packet, fds, err := ck.conn.waitForReplyOrError(ctx, ck.sequence)
	if err != nil {
		return nil, nil, err
	}
	if packet == nil {
		return nil, nil, nil
	}
	if packet[0] == xproto.ResponseTypeError {
		return nil, nil, wireError(packet, ck.sequence)
	}
	return packet, fds, nil
}

// ReplyUnchecked is Cookie.ReplyUnchecked with descriptors.
func (ck *FDCookie) ReplyUnchecked(ctx context.Context) ([]byte, []int, error) {
	return ck.conn.waitForReply(ctx, ck.sequence)
}

// VoidCookie tracks an outstanding request that has no reply. Without a
// Check call, an error response surfaces in the event stream.
type VoidCookie struct {
	conn     *Conn
	sequence uint64
}

// Sequence returns the full-width sequence number assigned to the request.
func (ck *VoidCookie) Sequence() uint64 { return ck.sequence }

// Check performs the round trip needed to learn whether the request
// succeeded. A nil return guarantees the server processed the request
// without an error.
func (ck *VoidCookie) Check(ctx context.Context) error {
	c := ck.conn

	c.state.Lock()
	needSync := c.state.core.PrepareCheck(ck.sequence)
	c.state.Unlock()

	if needSync {
		if err := c.injectSync(ctx); err != nil {
			return err
		}
	}
	if err := c.Flush(ctx); err != nil {
		return err
	}

	var packet []byte
	err := c.pollUntil(ctx, func(core *protocol.Core) bool {
		p, done := core.PollCheck(ck.sequence)
		if done {
			packet = p
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if packet != nil {
		return wireError(packet, ck.sequence)
	}
	return nil
}

// IgnoreError swallows any error response the request may produce, keeping
// it out of the event stream.
func (ck *VoidCookie) IgnoreError() {
	ck.conn.discardReply(ck.sequence, DiscardReplyAndError)
}

// waitForReplyOrError flushes and blocks until the response for seq is
// available. A nil packet with a nil error means no response is coming.
func (c *Conn) waitForReplyOrError(ctx context.Context, seq uint64) ([]byte, []int, error) {
	if err := c.Flush(ctx); err != nil {
		return nil, nil, err
	}
	var packet []byte
	var fds []int
	err := c.pollUntil(ctx, func(core *protocol.Core) bool {
		p, f, status := core.PollForReplyOrError(seq)
		switch status {
		case protocol.StatusReady:
			packet, fds = p, f
			return true
		case protocol.StatusNone:
			return true
		default:
			return false
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return packet, fds, nil
}

// waitForReply is waitForReplyOrError in unchecked mode: error responses go
// to the event stream and resolve to a nil packet.
func (c *Conn) waitForReply(ctx context.Context, seq uint64) ([]byte, []int, error) {
	if err := c.Flush(ctx); err != nil {
		return nil, nil, err
	}
	var packet []byte
	var fds []int
	err := c.pollUntil(ctx, func(core *protocol.Core) bool {
		p, f, status := core.PollForReply(seq)
		switch status {
		case protocol.StatusReady:
			packet, fds = p, f
			return true
		case protocol.StatusNone:
			return true
		default:
			return false
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return packet, fds, nil
}

// injectSync wraps sendSync with its own pipeline hold.
func (c *Conn) injectSync(ctx context.Context) error {
	if err := c.wb.acquire(ctx); err != nil {
		return err
	}
	if err := c.sendSync(ctx); err != nil {
		c.wb.abandon()
		return err
	}
	c.wb.release()
	return nil
}

func (c *Conn) discardReply(seq uint64, mode DiscardMode) {
	c.state.Lock()
	orphans := c.state.core.DiscardReply(seq, mode)
	c.state.Unlock()
	closeFDs(orphans)
}

// wireError decodes a routed 32-byte error packet. Packets handed out by the
// protocol core are already validated, so decoding cannot fail.
func wireError(packet []byte, seq uint64) error {
	werr, err := xproto.ParseWireError(packet, seq)
	if err != nil {
		return err
	}
	return werr
}
