package x11

import (
	"context"

	"github.com/qlentz/x11/protocol"
	"github.com/qlentz/x11/xproto"
)

// Event is one X11 event as received from the server, with its sequence
// number reconstructed to full width.
type Event struct {
	// Raw is the complete event packet. Raw[0] is the event code, with the
	// high bit set for events synthesized through SendEvent.
	Raw      []byte
	Sequence uint64
}

// Code returns the event code with the SendEvent bit cleared.
func (e Event) Code() byte {
	return e.Raw[0] & xproto.SendEventMask
}

// Synthetic reports whether the event came from another client's SendEvent
// request rather than the server itself.
func (e Event) Synthetic() bool {
	return e.Raw[0]&^xproto.SendEventMask != 0
}

// WaitForEvent flushes the connection and blocks until an event arrives.
// Errors caused by unchecked requests travel the event stream too; they are
// returned as a *xproto.WireError with a zero Event.
func (c *Conn) WaitForEvent(ctx context.Context) (Event, error) {
	if err := c.Flush(ctx); err != nil {
		return Event{}, err
	}

	var ev protocol.Event
	err := c.pollUntil(ctx, func(core *protocol.Core) bool {
		e, ok := core.PollForEvent()
		if ok {
			ev = e
			return true
		}
		return false
	})
	if err != nil {
		return Event{}, err
	}
	if ev.Packet[0] == xproto.ResponseTypeError {
		return Event{}, wireError(ev.Packet, ev.Sequence)
	}
	return Event{Raw: ev.Packet, Sequence: ev.Sequence}, nil
}

// PollForEvent returns the next queued event without blocking. ok reports
// whether anything was dequeued; a dequeued unchecked-request error yields
// ok with a *xproto.WireError. With nothing queued on a failed connection,
// the connection error is returned.
func (c *Conn) PollForEvent() (Event, bool, error) {
	c.state.Lock()
	e, ok := c.state.core.PollForEvent()
	readErr := c.state.readErr
	c.state.Unlock()

	if !ok {
		if readErr != nil {
			return Event{}, false, readErr
		}
		return Event{}, false, nil
	}
	if e.Packet[0] == xproto.ResponseTypeError {
		return Event{}, true, wireError(e.Packet, e.Sequence)
	}
	return Event{Raw: e.Packet, Sequence: e.Sequence}, true, nil
}
