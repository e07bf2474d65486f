// Package protocol implements the pure protocol state of an X11 client
// connection: sequence-number issuance, the pending-reply table, and the
// routing of incoming packets to replies, errors, and events.
//
// The package does no I/O and starts no goroutines. A Core is not safe for
// concurrent use; the connection layer serializes access and decides when to
// block. Every method returns immediately.
package protocol

import (
	"encoding/binary"
	"math"

	"github.com/qlentz/x11/xproto"
)

// ReplyKind tells the Core what responses a request can produce.
type ReplyKind int

const (
	// NoReply requests produce no reply; only an error can come back.
	NoReply ReplyKind = iota
	// ReplyWithoutFDs requests produce exactly one reply (or an error).
	ReplyWithoutFDs
	// ReplyWithFDs requests produce a reply with attached descriptors.
	ReplyWithFDs
)

// DiscardMode controls what happens to responses of an abandoned request.
type DiscardMode int

const (
	// DiscardReply drops the reply but routes an error to the event queue.
	DiscardReply DiscardMode = iota
	// DiscardReplyAndError drops both.
	DiscardReplyAndError
)

// PollStatus is the outcome of a non-blocking poll.
type PollStatus int

const (
	// StatusPending means the answer is not in yet; feed more packets.
	StatusPending PollStatus = iota
	// StatusReady means a packet was returned.
	StatusReady
	// StatusNone means the request finished and nothing is coming: the
	// response was routed elsewhere, discarded, or never existed.
	StatusNone
)

// Event is an out-of-band packet (or an error routed to the event stream)
// paired with its reconstructed full-width sequence number.
type Event struct {
	Packet   []byte
	Sequence uint64
}

// Responses carry only the low 16 bits of the sequence number on the wire.
const wireSeqModulus = 1 << 16

type sentRequest struct {
	kind      ReplyKind
	checked   bool
	discarded bool
	discard   DiscardMode
}

// Core tracks every in-flight request and owns the undelivered reply, error,
// and event queues. Sequence numbers are full-width internally; the first
// request after the handshake is number 1.
type Core struct {
	lastWritten       uint64
	nextReplyExpected uint64
	lastRead          uint64

	requests map[uint64]*sentRequest
	order    []uint64

	replies  map[uint64][][]byte
	replyFDs map[uint64][]int
	events   []Event

	pendingFDs []int
}

// New returns an empty Core ready for the first request.
func New() *Core {
	return &Core{
		requests: make(map[uint64]*sentRequest),
		replies:  make(map[uint64][][]byte),
		replyFDs: make(map[uint64][]int),
	}
}

// SendRequest issues the next sequence number for a request of the given
// kind. It refuses (ok false) when the request expects no reply and the gap
// since the last reply-expecting request has reached the wire counter
// modulus: without a response in that span, 16-bit sequence numbers could no
// longer be mapped back to full width. The caller relieves the refusal by
// dispatching a synchronizing request, which always succeeds here because it
// expects a reply.
func (c *Core) SendRequest(kind ReplyKind) (uint64, bool) {
	if kind == NoReply && c.lastWritten-c.nextReplyExpected >= math.MaxUint16 {
		return 0, false
	}
	c.lastWritten++
	seq := c.lastWritten
	if kind != NoReply {
		c.nextReplyExpected = seq
	}
	c.requests[seq] = &sentRequest{kind: kind}
	c.order = append(c.order, seq)
	return seq, true
}

// LastSequenceWritten returns the most recently issued sequence number.
func (c *Core) LastSequenceWritten() uint64 {
	return c.lastWritten
}

// EnqueueFDs appends descriptors received on the stream's side channel. They
// are attached to the next reply whose request declared descriptors.
func (c *Core) EnqueueFDs(fds []int) {
	c.pendingFDs = append(c.pendingFDs, fds...)
}

// EnqueuePacket feeds one complete packet from the server. The packet must
// be whole (the reassembler's job) and at least 32 bytes.
func (c *Core) EnqueuePacket(packet []byte) {
	t := packet[0]

	// One event carries no sequence number at all; it inherits the last
	// one seen.
	if t&xproto.SendEventMask == xproto.KeymapNotifyEvent {
		c.events = append(c.events, Event{Packet: packet, Sequence: c.lastRead})
		return
	}

	seq := c.reconstruct(binary.LittleEndian.Uint16(packet[2:]))
	c.lastRead = seq
	c.retireBefore(seq)

	switch t {
	case xproto.ResponseTypeError:
		c.routeError(seq, packet)
	case xproto.ResponseTypeReply:
		c.routeReply(seq, packet)
	default:
		c.events = append(c.events, Event{Packet: packet, Sequence: seq})
	}
}

// reconstruct extends a 16-bit wire sequence number to full width. Responses
// arrive in nondecreasing sequence order and the dispatcher guarantees at
// least one response per counter modulus, so the nearest candidate at or
// above the last seen value is the right one.
func (c *Core) reconstruct(wire uint16) uint64 {
	seq := (c.lastRead &^ (wireSeqModulus - 1)) | uint64(wire)
	if seq < c.lastRead {
		seq += wireSeqModulus
	}
	return seq
}

// retireBefore drops request records that can no longer receive responses:
// anything strictly older than the newest response's sequence number.
func (c *Core) retireBefore(seq uint64) {
	for len(c.order) > 0 && c.order[0] < seq {
		delete(c.requests, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *Core) routeError(seq uint64, packet []byte) {
	req := c.requests[seq]
	switch {
	case req != nil && req.discarded && req.discard == DiscardReplyAndError:
		// dropped
	case req != nil && !req.discarded && (req.kind != NoReply || req.checked):
		c.replies[seq] = append(c.replies[seq], packet)
	default:
		c.events = append(c.events, Event{Packet: packet, Sequence: seq})
	}
}

func (c *Core) routeReply(seq uint64, packet []byte) {
	req := c.requests[seq]
	if req == nil || req.discarded {
		return
	}
	c.replies[seq] = append(c.replies[seq], packet)
	if req.kind == ReplyWithFDs {
		// The reply's second byte counts the descriptors that belong
		// to it; they arrived on the side channel before the packet.
		n := int(packet[1])
		if n > len(c.pendingFDs) {
			n = len(c.pendingFDs)
		}
		c.replyFDs[seq] = append(c.replyFDs[seq], c.pendingFDs[:n]...)
		c.pendingFDs = c.pendingFDs[n:]
	}
}

// PollForReply looks up the response of a request whose errors should flow
// to the event queue (an unchecked wait). StatusNone with a nil packet means
// the request failed and its error was routed to the events, or that the
// response was already consumed.
func (c *Core) PollForReply(seq uint64) ([]byte, []int, PollStatus) {
	if queue := c.replies[seq]; len(queue) > 0 {
		packet := queue[0]
		c.popReply(seq)
		if packet[0] == xproto.ResponseTypeError {
			c.events = append(c.events, Event{Packet: packet, Sequence: seq})
			return nil, nil, StatusNone
		}
		return packet, c.takeFDs(seq), StatusReady
	}
	if c.lastRead > seq {
		return nil, nil, StatusNone
	}
	return nil, nil, StatusPending
}

// PollForReplyOrError looks up the response of a request the caller checks
// itself: an error packet is handed back like a reply, distinguished by its
// first byte.
func (c *Core) PollForReplyOrError(seq uint64) ([]byte, []int, PollStatus) {
	if queue := c.replies[seq]; len(queue) > 0 {
		packet := queue[0]
		c.popReply(seq)
		return packet, c.takeFDs(seq), StatusReady
	}
	if c.lastRead > seq {
		return nil, nil, StatusNone
	}
	return nil, nil, StatusPending
}

// PrepareCheck readies an existence check for a request that produces no
// reply. It reports whether the caller must dispatch a synchronizing request
// first: without a later response on the wire there is no way to prove the
// server got past the request. After a synchronizing request has been
// issued, PrepareCheck always reports false for the same sequence number.
func (c *Core) PrepareCheck(seq uint64) bool {
	req := c.requests[seq]
	if req != nil {
		req.checked = true
	}
	if len(c.replies[seq]) > 0 || c.lastRead > seq {
		return false
	}
	return c.nextReplyExpected < seq
}

// PollCheck resolves an existence check prepared by PrepareCheck: done
// reports whether the outcome is known, and a non-nil packet is the error
// the request caused.
func (c *Core) PollCheck(seq uint64) ([]byte, bool) {
	if queue := c.replies[seq]; len(queue) > 0 {
		if queue[0][0] == xproto.ResponseTypeError {
			packet := queue[0]
			c.popReply(seq)
			return packet, true
		}
		return nil, true
	}
	if c.lastRead > seq {
		return nil, true
	}
	return nil, false
}

// PollForEvent dequeues the oldest undelivered event.
func (c *Core) PollForEvent() (Event, bool) {
	if len(c.events) == 0 {
		return Event{}, false
	}
	ev := c.events[0]
	c.events = c.events[1:]
	return ev, true
}

// DiscardReply marks a request's responses as unwanted, including any
// already queued. It returns descriptors that were attached to a discarded
// reply so the caller can close them.
func (c *Core) DiscardReply(seq uint64, mode DiscardMode) []int {
	if req := c.requests[seq]; req != nil {
		req.discarded = true
		req.discard = mode
	}
	for _, packet := range c.replies[seq] {
		if packet[0] == xproto.ResponseTypeError && mode == DiscardReply {
			c.events = append(c.events, Event{Packet: packet, Sequence: seq})
		}
	}
	delete(c.replies, seq)
	fds := c.replyFDs[seq]
	delete(c.replyFDs, seq)
	return fds
}

func (c *Core) popReply(seq uint64) {
	queue := c.replies[seq]
	if len(queue) <= 1 {
		delete(c.replies, seq)
		return
	}
	c.replies[seq] = queue[1:]
}

func (c *Core) takeFDs(seq uint64) []int {
	fds := c.replyFDs[seq]
	delete(c.replyFDs, seq)
	return fds
}
