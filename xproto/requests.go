package xproto

import "encoding/binary"

// The engine issues only a handful of requests on its own behalf. Each
// builder returns a fully framed request with a correct 16-bit length field,
// ready for dispatch.

// GetInputFocusRequest builds the request the engine uses to force the
// server to produce a reply: it takes no arguments, is valid in any
// connection state, and has no side effects.
func GetInputFocusRequest() []byte {
	return []byte{OpGetInputFocus, 0, 1, 0}
}

// QueryExtensionRequest builds a query for the named extension.
func QueryExtensionRequest(name string) []byte {
	buf := make([]byte, 8+Pad4(len(name)))
	buf[0] = OpQueryExtension
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(buf)/4))
	binary.LittleEndian.PutUint16(buf[4:], uint16(len(name)))
	copy(buf[8:], name)
	return buf
}

// InternAtomRequest builds a request resolving a name to an atom. With
// onlyIfExists set, the server returns atom 0 instead of creating one.
func InternAtomRequest(onlyIfExists bool, name string) []byte {
	buf := make([]byte, 8+Pad4(len(name)))
	buf[0] = OpInternAtom
	if onlyIfExists {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(buf)/4))
	binary.LittleEndian.PutUint16(buf[4:], uint16(len(name)))
	copy(buf[8:], name)
	return buf
}

// GetAtomNameRequest builds the reverse lookup for InternAtom.
func GetAtomNameRequest(atom uint32) []byte {
	buf := make([]byte, 8)
	buf[0] = OpGetAtomName
	binary.LittleEndian.PutUint16(buf[2:], 2)
	binary.LittleEndian.PutUint32(buf[4:], atom)
	return buf
}

// BigReqEnableRequest builds the big-requests Enable request. The major
// opcode is dynamic; it comes from querying BigRequestsName.
func BigReqEnableRequest(majorOpcode byte) []byte {
	return []byte{majorOpcode, 0, 1, 0}
}

// GetXIDRangeRequest builds the XC-MISC GetXIDRange request. The major
// opcode comes from querying XCMiscName.
func GetXIDRangeRequest(majorOpcode byte) []byte {
	return []byte{majorOpcode, XCMiscGetXIDRange, 1, 0}
}
