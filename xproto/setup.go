package xproto

import (
	"encoding/binary"
	"fmt"
)

// Status byte of the setup response.
const (
	SetupStatusFailed       = 0
	SetupStatusSuccess      = 1
	SetupStatusAuthenticate = 2
)

// Setup is the parsed success response of the connection handshake. The
// engine keeps it for the lifetime of the connection; resource-id allocation
// and request-length negotiation both start from fields in here.
type Setup struct {
	ProtocolMajorVersion uint16
	ProtocolMinorVersion uint16

	ReleaseNumber    uint32
	ResourceIDBase   uint32
	ResourceIDMask   uint32
	MotionBufferSize uint32

	// MaximumRequestLength is in 4-byte units. Without the big-requests
	// extension it bounds every request on this connection.
	MaximumRequestLength uint16

	ImageByteOrder           byte
	BitmapFormatBitOrder     byte
	BitmapFormatScanlineUnit byte
	BitmapFormatScanlinePad  byte
	MinKeycode               byte
	MaxKeycode               byte

	Vendor        string
	PixmapFormats []Format
	Roots         []Screen
}

// Format describes one supported pixmap format.
type Format struct {
	Depth        byte
	BitsPerPixel byte
	ScanlinePad  byte
}

// Screen describes one root window advertised by the server.
type Screen struct {
	Root                uint32
	DefaultColormap     uint32
	WhitePixel          uint32
	BlackPixel          uint32
	CurrentInputMasks   uint32
	WidthInPixels       uint16
	HeightInPixels      uint16
	WidthInMillimeters  uint16
	HeightInMillimeters uint16
	MinInstalledMaps    uint16
	MaxInstalledMaps    uint16
	RootVisual          uint32
	BackingStores       byte
	SaveUnders          bool
	RootDepth           byte
	AllowedDepths       []Depth
}

// Depth groups the visuals available at one depth on a screen.
type Depth struct {
	Depth   byte
	Visuals []VisualType
}

// VisualType describes one visual.
type VisualType struct {
	VisualID        uint32
	Class           byte
	BitsPerRGBValue byte
	ColormapEntries uint16
	RedMask         uint32
	GreenMask       uint32
	BlueMask        uint32
}

// SetupFailedError is the server refusing the connection during the
// handshake. The connection is unusable afterwards.
type SetupFailedError struct {
	Reason               string
	ProtocolMajorVersion uint16
	ProtocolMinorVersion uint16
}

func (e *SetupFailedError) Error() string {
	return fmt.Sprintf("x11: setup failed (protocol %d.%d): %s",
		e.ProtocolMajorVersion, e.ProtocolMinorVersion, e.Reason)
}

// SetupAuthenticateError is the server demanding further authentication
// during the handshake. The engine does not implement multi-round auth, so
// this terminates the connection attempt.
type SetupAuthenticateError struct {
	Reason string
}

func (e *SetupAuthenticateError) Error() string {
	return "x11: setup requires additional authentication: " + e.Reason
}

// SetupRequest encodes the first bytes a client sends: byte order, requested
// protocol version 11.0, and the authorization name/data pair (both may be
// empty). The engine always announces least-significant-byte-first order.
func SetupRequest(authName, authData []byte) []byte {
	n := len(authName)
	d := len(authData)
	buf := make([]byte, 12+Pad4(n)+Pad4(d))
	buf[0] = 'l'
	binary.LittleEndian.PutUint16(buf[2:], 11)
	binary.LittleEndian.PutUint16(buf[4:], 0)
	binary.LittleEndian.PutUint16(buf[6:], uint16(n))
	binary.LittleEndian.PutUint16(buf[8:], uint16(d))
	copy(buf[12:], authName)
	copy(buf[12+Pad4(n):], authData)
	return buf
}

// SetupResponseLength returns the number of bytes that follow an 8-byte
// setup response header.
func SetupResponseLength(head []byte) (int, error) {
	if len(head) < SetupHeaderSize {
		return 0, fmt.Errorf("setup header truncated: %d bytes", len(head))
	}
	return 4 * int(binary.LittleEndian.Uint16(head[6:])), nil
}

// ParseSetupResponse decodes a complete setup response (header plus
// additional data). A refused or authenticate response is returned as
// *SetupFailedError or *SetupAuthenticateError respectively.
func ParseSetupResponse(buf []byte) (*Setup, error) {
	if len(buf) < SetupHeaderSize {
		return nil, fmt.Errorf("setup response truncated: %d bytes", len(buf))
	}
	additional, err := SetupResponseLength(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) < SetupHeaderSize+additional {
		return nil, fmt.Errorf("setup response truncated: %d of %d bytes",
			len(buf), SetupHeaderSize+additional)
	}
	body := buf[SetupHeaderSize : SetupHeaderSize+additional]

	switch buf[0] {
	case SetupStatusFailed:
		reasonLen := int(buf[1])
		if reasonLen > len(body) {
			reasonLen = len(body)
		}
		return nil, &SetupFailedError{
			Reason:               string(body[:reasonLen]),
			ProtocolMajorVersion: binary.LittleEndian.Uint16(buf[2:]),
			ProtocolMinorVersion: binary.LittleEndian.Uint16(buf[4:]),
		}
	case SetupStatusAuthenticate:
		return nil, &SetupAuthenticateError{Reason: trimPadding(body)}
	case SetupStatusSuccess:
		return parseSetupBody(buf, body)
	default:
		return nil, fmt.Errorf("setup response has unknown status %d", buf[0])
	}
}

func parseSetupBody(head, body []byte) (*Setup, error) {
	r := wireReader{buf: body}
	setup := &Setup{
		ProtocolMajorVersion: binary.LittleEndian.Uint16(head[2:]),
		ProtocolMinorVersion: binary.LittleEndian.Uint16(head[4:]),
	}

	setup.ReleaseNumber = r.u32()
	setup.ResourceIDBase = r.u32()
	setup.ResourceIDMask = r.u32()
	setup.MotionBufferSize = r.u32()
	vendorLen := int(r.u16())
	setup.MaximumRequestLength = r.u16()
	numScreens := int(r.u8())
	numFormats := int(r.u8())
	setup.ImageByteOrder = r.u8()
	setup.BitmapFormatBitOrder = r.u8()
	setup.BitmapFormatScanlineUnit = r.u8()
	setup.BitmapFormatScanlinePad = r.u8()
	setup.MinKeycode = r.u8()
	setup.MaxKeycode = r.u8()
	r.skip(4)

	setup.Vendor = string(r.bytes(vendorLen))
	r.skip(Pad4(vendorLen) - vendorLen)

	setup.PixmapFormats = make([]Format, 0, numFormats)
	for i := 0; i < numFormats; i++ {
		f := Format{Depth: r.u8(), BitsPerPixel: r.u8(), ScanlinePad: r.u8()}
		r.skip(5)
		setup.PixmapFormats = append(setup.PixmapFormats, f)
	}

	setup.Roots = make([]Screen, 0, numScreens)
	for i := 0; i < numScreens; i++ {
		s, err := parseScreen(&r)
		if err != nil {
			return nil, err
		}
		setup.Roots = append(setup.Roots, s)
	}

	if r.err != nil {
		return nil, fmt.Errorf("setup response malformed: %w", r.err)
	}
	return setup, nil
}

func parseScreen(r *wireReader) (Screen, error) {
	s := Screen{
		Root:                r.u32(),
		DefaultColormap:     r.u32(),
		WhitePixel:          r.u32(),
		BlackPixel:          r.u32(),
		CurrentInputMasks:   r.u32(),
		WidthInPixels:       r.u16(),
		HeightInPixels:      r.u16(),
		WidthInMillimeters:  r.u16(),
		HeightInMillimeters: r.u16(),
		MinInstalledMaps:    r.u16(),
		MaxInstalledMaps:    r.u16(),
		RootVisual:          r.u32(),
		BackingStores:       r.u8(),
		SaveUnders:          r.u8() != 0,
		RootDepth:           r.u8(),
	}
	numDepths := int(r.u8())
	if r.err != nil {
		return s, r.err
	}
	s.AllowedDepths = make([]Depth, 0, numDepths)
	for i := 0; i < numDepths; i++ {
		d := Depth{Depth: r.u8()}
		r.skip(1)
		numVisuals := int(r.u16())
		r.skip(4)
		if r.err != nil {
			return s, r.err
		}
		d.Visuals = make([]VisualType, 0, numVisuals)
		for j := 0; j < numVisuals; j++ {
			v := VisualType{
				VisualID:        r.u32(),
				Class:           r.u8(),
				BitsPerRGBValue: r.u8(),
				ColormapEntries: r.u16(),
				RedMask:         r.u32(),
				GreenMask:       r.u32(),
				BlueMask:        r.u32(),
			}
			r.skip(4)
			d.Visuals = append(d.Visuals, v)
		}
		s.AllowedDepths = append(s.AllowedDepths, d)
	}
	return s, r.err
}

func trimPadding(b []byte) string {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

// wireReader is a bounds-checked cursor over a response body. The first
// overrun latches err and every later read returns zero values, so parse
// code can run straight-line and check err once.
type wireReader struct {
	buf []byte
	off int
	err error
}

func (r *wireReader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("unexpected end of data at offset %d", r.off)
	}
}

func (r *wireReader) u8() byte {
	if r.err != nil || r.off+1 > len(r.buf) {
		r.fail()
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *wireReader) u16() uint16 {
	if r.err != nil || r.off+2 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *wireReader) u32() uint32 {
	if r.err != nil || r.off+4 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *wireReader) bytes(n int) []byte {
	if r.err != nil || n < 0 || r.off+n > len(r.buf) {
		r.fail()
		return nil
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v
}

func (r *wireReader) skip(n int) {
	if r.err != nil || n < 0 || r.off+n > len(r.buf) {
		r.fail()
		return
	}
	r.off += n
}
