package xproto

import (
	"encoding/binary"
	"fmt"
)

// ExtensionInfo is the useful part of a QueryExtension reply for a present
// extension: the opcode to issue its requests under and the bases its events
// and errors are numbered from.
type ExtensionInfo struct {
	MajorOpcode byte
	FirstEvent  byte
	FirstError  byte
}

// ParseQueryExtensionReply returns the extension information, or nil if the
// server does not have the extension.
func ParseQueryExtensionReply(buf []byte) (*ExtensionInfo, error) {
	if err := checkReply(buf); err != nil {
		return nil, fmt.Errorf("QueryExtension: %w", err)
	}
	if buf[8] == 0 {
		return nil, nil
	}
	return &ExtensionInfo{
		MajorOpcode: buf[9],
		FirstEvent:  buf[10],
		FirstError:  buf[11],
	}, nil
}

// ParseInternAtomReply returns the atom for the interned name. Atom 0 means
// the name was not interned (only-if-exists lookups).
func ParseInternAtomReply(buf []byte) (uint32, error) {
	if err := checkReply(buf); err != nil {
		return 0, fmt.Errorf("InternAtom: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[8:]), nil
}

// ParseGetAtomNameReply returns the name of an atom.
func ParseGetAtomNameReply(buf []byte) (string, error) {
	if err := checkReply(buf); err != nil {
		return "", fmt.Errorf("GetAtomName: %w", err)
	}
	n := int(binary.LittleEndian.Uint16(buf[8:]))
	if len(buf) < ReplyHeaderSize+n {
		return "", fmt.Errorf("GetAtomName: reply truncated: %d of %d bytes",
			len(buf), ReplyHeaderSize+n)
	}
	return string(buf[ReplyHeaderSize : ReplyHeaderSize+n]), nil
}

// ParseBigReqEnableReply returns the server's maximum request length in
// 4-byte units once the extended length encoding is active.
func ParseBigReqEnableReply(buf []byte) (uint32, error) {
	if err := checkReply(buf); err != nil {
		return 0, fmt.Errorf("big-requests Enable: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[8:]), nil
}

// XIDRange is a block of resource ids granted by XC-MISC GetXIDRange.
type XIDRange struct {
	StartID uint32
	Count   uint32
}

// ParseGetXIDRangeReply returns the granted id range. A (0, 1) range means
// the server has none left.
func ParseGetXIDRangeReply(buf []byte) (XIDRange, error) {
	if err := checkReply(buf); err != nil {
		return XIDRange{}, fmt.Errorf("GetXIDRange: %w", err)
	}
	return XIDRange{
		StartID: binary.LittleEndian.Uint32(buf[8:]),
		Count:   binary.LittleEndian.Uint32(buf[12:]),
	}, nil
}

func checkReply(buf []byte) error {
	if len(buf) < ReplyHeaderSize {
		return fmt.Errorf("reply truncated: %d bytes", len(buf))
	}
	if buf[0] != ResponseTypeReply {
		return fmt.Errorf("not a reply: response type %d", buf[0])
	}
	return nil
}
