package xproto

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPad4(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 0},
		{1, 4},
		{2, 4},
		{3, 4},
		{4, 4},
		{5, 8},
		{12, 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Pad4(tt.in), "Pad4(%d)", tt.in)
	}
}

func TestSetupRequest(t *testing.T) {
	req := SetupRequest([]byte("MIT-MAGIC-COOKIE-1"), []byte("0123456789abcdef"))

	require.Equal(t, 0, len(req)%4)
	assert.Equal(t, byte('l'), req[0])
	assert.Equal(t, uint16(11), binary.LittleEndian.Uint16(req[2:]))
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(req[4:]))
	assert.Equal(t, uint16(18), binary.LittleEndian.Uint16(req[6:]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(req[8:]))

	// Name is padded to 20 bytes, data starts right after.
	assert.Equal(t, "MIT-MAGIC-COOKIE-1", string(req[12:30]))
	assert.Equal(t, []byte{0, 0}, req[30:32])
	assert.Equal(t, "0123456789abcdef", string(req[32:48]))
	assert.Equal(t, 48, len(req))
}

func TestSetupRequestNoAuth(t *testing.T) {
	req := SetupRequest(nil, nil)
	assert.Equal(t, 12, len(req))
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(req[6:]))
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(req[8:]))
}

// buildSetupSuccess encodes a one-screen, one-format setup response.
func buildSetupSuccess(t *testing.T) []byte {
	t.Helper()

	var body []byte
	u8 := func(v byte) { body = append(body, v) }
	u16 := func(v uint16) { body = binary.LittleEndian.AppendUint16(body, v) }
	u32 := func(v uint32) { body = binary.LittleEndian.AppendUint32(body, v) }
	pad := func(n int) { body = append(body, make([]byte, n)...) }

	u32(12101000)   // release number
	u32(0x00400000) // resource id base
	u32(0x003fffff) // resource id mask
	u32(256)        // motion buffer size
	u16(4)          // vendor length
	u16(65535)      // maximum request length
	u8(1)           // screens
	u8(1)           // formats
	u8(0)           // image byte order
	u8(0)           // bitmap bit order
	u8(32)          // scanline unit
	u8(32)          // scanline pad
	u8(8)           // min keycode
	u8(255)         // max keycode
	pad(4)

	body = append(body, "ACME"...)

	// format
	u8(24) // depth
	u8(32) // bits per pixel
	u8(32) // scanline pad
	pad(5)

	// screen
	u32(0x52) // root
	u32(0x20) // default colormap
	u32(0xffffff)
	u32(0x000000)
	u32(0x00ffffff) // input masks
	u16(1920)
	u16(1080)
	u16(508)
	u16(285)
	u16(1)
	u16(1)
	u32(0x21) // root visual
	u8(2)     // backing stores
	u8(1)     // save unders
	u8(24)    // root depth
	u8(1)     // allowed depths

	// depth
	u8(24)
	u8(0)
	u16(1) // visuals
	pad(4)

	// visual
	u32(0x21)
	u8(4) // TrueColor
	u8(8)
	u16(256)
	u32(0xff0000)
	u32(0x00ff00)
	u32(0x0000ff)
	pad(4)

	require.Equal(t, 0, len(body)%4)

	head := make([]byte, SetupHeaderSize)
	head[0] = SetupStatusSuccess
	binary.LittleEndian.PutUint16(head[2:], 11)
	binary.LittleEndian.PutUint16(head[4:], 0)
	binary.LittleEndian.PutUint16(head[6:], uint16(len(body)/4))
	return append(head, body...)
}

func TestParseSetupResponseSuccess(t *testing.T) {
	setup, err := ParseSetupResponse(buildSetupSuccess(t))
	require.NoError(t, err)

	assert.Equal(t, uint16(11), setup.ProtocolMajorVersion)
	assert.Equal(t, uint32(12101000), setup.ReleaseNumber)
	assert.Equal(t, uint32(0x00400000), setup.ResourceIDBase)
	assert.Equal(t, uint32(0x003fffff), setup.ResourceIDMask)
	assert.Equal(t, uint16(65535), setup.MaximumRequestLength)
	assert.Equal(t, "ACME", setup.Vendor)
	assert.Equal(t, byte(8), setup.MinKeycode)
	assert.Equal(t, byte(255), setup.MaxKeycode)

	require.Len(t, setup.PixmapFormats, 1)
	assert.Equal(t, Format{Depth: 24, BitsPerPixel: 32, ScanlinePad: 32}, setup.PixmapFormats[0])

	require.Len(t, setup.Roots, 1)
	screen := setup.Roots[0]
	assert.Equal(t, uint32(0x52), screen.Root)
	assert.Equal(t, uint16(1920), screen.WidthInPixels)
	assert.Equal(t, uint16(1080), screen.HeightInPixels)
	assert.Equal(t, uint32(0x21), screen.RootVisual)
	assert.True(t, screen.SaveUnders)
	assert.Equal(t, byte(24), screen.RootDepth)

	require.Len(t, screen.AllowedDepths, 1)
	depth := screen.AllowedDepths[0]
	assert.Equal(t, byte(24), depth.Depth)
	require.Len(t, depth.Visuals, 1)
	assert.Equal(t, uint32(0x21), depth.Visuals[0].VisualID)
	assert.Equal(t, uint32(0xff0000), depth.Visuals[0].RedMask)
}

func TestParseSetupResponseFailed(t *testing.T) {
	reason := "Authentication rejected"
	body := append([]byte(reason), make([]byte, Pad4(len(reason))-len(reason))...)

	buf := make([]byte, SetupHeaderSize)
	buf[0] = SetupStatusFailed
	buf[1] = byte(len(reason))
	binary.LittleEndian.PutUint16(buf[2:], 11)
	binary.LittleEndian.PutUint16(buf[4:], 0)
	binary.LittleEndian.PutUint16(buf[6:], uint16(len(body)/4))
	buf = append(buf, body...)

	setup, err := ParseSetupResponse(buf)
	require.Error(t, err)
	assert.Nil(t, setup)

	var failed *SetupFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, reason, failed.Reason)
	assert.Equal(t, uint16(11), failed.ProtocolMajorVersion)
	assert.Contains(t, failed.Error(), "Authentication rejected")
}

func TestParseSetupResponseAuthenticate(t *testing.T) {
	reason := "Need more auth"
	body := append([]byte(reason), make([]byte, Pad4(len(reason))-len(reason))...)

	buf := make([]byte, SetupHeaderSize)
	buf[0] = SetupStatusAuthenticate
	binary.LittleEndian.PutUint16(buf[6:], uint16(len(body)/4))
	buf = append(buf, body...)

	setup, err := ParseSetupResponse(buf)
	require.Error(t, err)
	assert.Nil(t, setup)

	var auth *SetupAuthenticateError
	require.ErrorAs(t, err, &auth)
	assert.Equal(t, reason, auth.Reason)
}

func TestParseSetupResponseTruncated(t *testing.T) {
	full := buildSetupSuccess(t)
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"header only", full[:SetupHeaderSize]},
		{"half header", full[:4]},
		{"body cut", full[:len(full)-8]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSetupResponse(tt.buf)
			assert.Error(t, err)
		})
	}
}

func TestParseSetupResponseUnknownStatus(t *testing.T) {
	buf := make([]byte, SetupHeaderSize)
	buf[0] = 7
	_, err := ParseSetupResponse(buf)
	assert.ErrorContains(t, err, "unknown status")
}
