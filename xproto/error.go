package xproto

import (
	"encoding/binary"
	"fmt"
)

// WireError is an error response from the server: the request named by
// Sequence was rejected. The connection itself is fine; only the one request
// failed.
//
// Sequence is the reconstructed 64-bit sequence number, not the 16-bit wire
// field. Raw holds the full 32-byte packet so extension-aware callers can
// decode fields beyond the generic ones.
type WireError struct {
	Code        byte
	Sequence    uint64
	BadValue    uint32
	MinorOpcode uint16
	MajorOpcode byte
	Raw         []byte
}

// Core protocol error codes.
const (
	BadRequest        = 1
	BadValueError     = 2
	BadWindow         = 3
	BadPixmap         = 4
	BadAtom           = 5
	BadCursor         = 6
	BadFont           = 7
	BadMatch          = 8
	BadDrawable       = 9
	BadAccess         = 10
	BadAlloc          = 11
	BadColormap       = 12
	BadGContext       = 13
	BadIDChoice       = 14
	BadName           = 15
	BadLength         = 16
	BadImplementation = 17
)

var errorNames = map[byte]string{
	BadRequest:        "Request",
	BadValueError:     "Value",
	BadWindow:         "Window",
	BadPixmap:         "Pixmap",
	BadAtom:           "Atom",
	BadCursor:         "Cursor",
	BadFont:           "Font",
	BadMatch:          "Match",
	BadDrawable:       "Drawable",
	BadAccess:         "Access",
	BadAlloc:          "Alloc",
	BadColormap:       "Colormap",
	BadGContext:       "GContext",
	BadIDChoice:       "IDChoice",
	BadName:           "Name",
	BadLength:         "Length",
	BadImplementation: "Implementation",
}

// CodeName returns the core protocol name for an error code, or a numeric
// form for extension errors.
func (e *WireError) CodeName() string {
	if name, ok := errorNames[e.Code]; ok {
		return name
	}
	return fmt.Sprintf("code %d", e.Code)
}

func (e *WireError) Error() string {
	return fmt.Sprintf("x11: %s error for request %d (opcode %d.%d, bad value %#x)",
		e.CodeName(), e.Sequence, e.MajorOpcode, e.MinorOpcode, e.BadValue)
}

// ShouldCloseConnection reports false: a server error response rejects one
// request without damaging protocol state.
func (e *WireError) ShouldCloseConnection() bool {
	return false
}

// ParseWireError decodes a 32-byte error packet. The caller supplies the
// reconstructed full-width sequence number.
func ParseWireError(buf []byte, sequence uint64) (*WireError, error) {
	if len(buf) < EventSize {
		return nil, fmt.Errorf("error packet truncated: %d bytes", len(buf))
	}
	if buf[0] != ResponseTypeError {
		return nil, fmt.Errorf("not an error packet: response type %d", buf[0])
	}
	return &WireError{
		Code:        buf[1],
		Sequence:    sequence,
		BadValue:    binary.LittleEndian.Uint32(buf[4:]),
		MinorOpcode: binary.LittleEndian.Uint16(buf[8:]),
		MajorOpcode: buf[10],
		Raw:         buf[:EventSize],
	}, nil
}
