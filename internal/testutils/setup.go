package testutils

import "encoding/binary"

// SetupOptions controls the canned setup response. Zero values pick the
// defaults noted on each field.
type SetupOptions struct {
	ResourceIDBase  uint32 // default 0x00400000
	ResourceIDMask  uint32 // default 0x003fffff
	MaxRequestWords uint16 // default 65535
	Screens         int    // default 1
}

// SetupBytes encodes a successful handshake response with the given
// parameters. Screens carry no depths; tests that care about visuals build
// their own response.
func SetupBytes(opts SetupOptions) []byte {
	if opts.ResourceIDBase == 0 {
		opts.ResourceIDBase = 0x00400000
	}
	if opts.ResourceIDMask == 0 {
		opts.ResourceIDMask = 0x003fffff
	}
	if opts.MaxRequestWords == 0 {
		opts.MaxRequestWords = 65535
	}
	if opts.Screens == 0 {
		opts.Screens = 1
	}

	var body []byte
	u8 := func(v byte) { body = append(body, v) }
	u16 := func(v uint16) { body = binary.LittleEndian.AppendUint16(body, v) }
	u32 := func(v uint32) { body = binary.LittleEndian.AppendUint32(body, v) }
	pad := func(n int) { body = append(body, make([]byte, n)...) }

	u32(12101000) // release number
	u32(opts.ResourceIDBase)
	u32(opts.ResourceIDMask)
	u32(256) // motion buffer size
	u16(4)   // vendor length
	u16(opts.MaxRequestWords)
	u8(byte(opts.Screens))
	u8(1)  // formats
	u8(0)  // image byte order
	u8(0)  // bitmap bit order
	u8(32) // scanline unit
	u8(32) // scanline pad
	u8(8)  // min keycode
	u8(255)
	pad(4)

	body = append(body, "ACME"...)

	// format
	u8(24)
	u8(32)
	u8(32)
	pad(5)

	for i := 0; i < opts.Screens; i++ {
		u32(0x52 + uint32(i)) // root
		u32(0x20)             // default colormap
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
		u8(0)     // allowed depths
	}

	head := make([]byte, 8)
	head[0] = 1 // success
	binary.LittleEndian.PutUint16(head[2:], 11)
	binary.LittleEndian.PutUint16(head[6:], uint16(len(body)/4))
	return append(head, body...)
}
