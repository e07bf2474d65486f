package protocol

import (
	"encoding/binary"

	"github.com/qlentz/x11/xproto"
)

// Reassembler turns an arbitrary byte stream into whole server packets.
// Errors and ordinary events are fixed 32-byte packets; replies and generic
// events carry a 32-bit word count at offset 4 that extends them.
//
// Feed may be called with any split of the stream, including mid-header.
// Returned packets are freshly allocated and safe to retain.
type Reassembler struct {
	buf []byte
}

// headerNeed is how many bytes of a packet determine its total length.
const headerNeed = 8

// Feed appends stream bytes and returns every packet completed by them.
func (r *Reassembler) Feed(data []byte) [][]byte {
	r.buf = append(r.buf, data...)

	var packets [][]byte
	for {
		n, ok := r.nextLength()
		if !ok || len(r.buf) < n {
			break
		}
		packet := make([]byte, n)
		copy(packet, r.buf[:n])
		packets = append(packets, packet)
		r.buf = r.buf[:copy(r.buf, r.buf[n:])]
	}
	return packets
}

// Buffered reports how many bytes of an incomplete packet are pending.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

func (r *Reassembler) nextLength() (int, bool) {
	if len(r.buf) < headerNeed {
		return 0, false
	}
	t := r.buf[0]
	if t == xproto.ResponseTypeReply || t&xproto.SendEventMask == xproto.GenericEventCode {
		words := binary.LittleEndian.Uint32(r.buf[4:])
		return xproto.ReplyHeaderSize + 4*int(words), true
	}
	return xproto.EventSize, true
}
