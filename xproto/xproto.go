// Package xproto implements the core-protocol wire encoding the connection
// engine itself depends on: the setup handshake, the small set of requests the
// engine issues on its own behalf (synchronization, extension queries, atom
// interning, resource-id range growth), and the framing rules for responses.
//
// Requests beyond these are expected to arrive at the engine pre-serialized,
// typically from a code-generated binding layer. All multi-byte fields use
// least-significant-byte-first order; the setup request announces this to the
// server.
package xproto

// Server-to-client packets are distinguished by their first byte.
const (
	// ResponseTypeError is the first byte of a 32-byte error packet.
	ResponseTypeError = 0
	// ResponseTypeReply is the first byte of a reply. Replies are 32 bytes
	// plus 4 times the 32-bit length field at offset 4.
	ResponseTypeReply = 1
)

// Event codes the engine must special-case. Everything between 2 and 127 is
// an event; bit 7 marks events generated by SendEvent and is masked off
// before interpreting the code.
const (
	// KeymapNotifyEvent is the one event that carries no sequence number.
	KeymapNotifyEvent = 11
	// GenericEventCode marks variable-length events, framed like replies.
	GenericEventCode = 35

	// SendEventMask is cleared from the response type before comparing
	// against event codes.
	SendEventMask = 0x7f
)

// Core request opcodes used by the engine.
const (
	OpInternAtom     = 16
	OpGetAtomName    = 17
	OpGetInputFocus  = 43
	OpQueryExtension = 98
)

// Extension names the engine negotiates.
const (
	BigRequestsName = "BIG-REQUESTS"
	XCMiscName      = "XC-MISC"
)

// Minor opcodes within the XC-MISC extension.
const (
	XCMiscGetXIDRange = 1
)

// Fixed sizes dictated by the protocol.
const (
	// EventSize is the wire size of errors and non-generic events.
	EventSize = 32
	// ReplyHeaderSize is the fixed prefix of every reply.
	ReplyHeaderSize = 32
	// SetupHeaderSize is the fixed prefix of every setup response.
	SetupHeaderSize = 8
)

// Pad4 returns n rounded up to the next multiple of 4.
func Pad4(n int) int {
	return (n + 3) &^ 3
}
