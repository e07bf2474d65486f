package x11

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Requests whose 32-bit word count fits the classic 16-bit length field go
// out unmodified.
const maxCoreRequestWords = 0xFFFF

// prepareRequest validates the embedded length field of an outgoing request
// and rewrites oversized requests into the extended big-request form: the
// 16-bit length field is zeroed and a 32-bit word count is inserted after it.
//
// Malformed requests (not padded to 4 bytes, or a length field that
// contradicts the actual size) are caller bugs and panic. Requests exceeding
// the server's maximum size return ErrRequestTooLarge.
//
// Must be called before acquiring the write pipeline: resolving the server's
// maximum request size can dispatch requests of its own.
func (c *Conn) prepareRequest(ctx context.Context, bufs [][]byte) ([][]byte, error) {
	if len(bufs) == 0 || len(bufs[0]) < 4 {
		panic("x11: request shorter than its header")
	}
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	if total%4 != 0 {
		panic("x11: request length not a multiple of 4")
	}

	words := total / 4
	if words <= maxCoreRequestWords {
		if got := binary.LittleEndian.Uint16(bufs[0][2:4]); int(got) != words {
			panic(fmt.Sprintf("x11: request length field says %d words, request has %d", got, words))
		}
		return bufs, nil
	}

	max, err := c.MaximumRequestBytes(ctx)
	if err != nil {
		return nil, err
	}
	if total+4 > max {
		return nil, fmt.Errorf("%w: %d bytes, server maximum is %d", ErrRequestTooLarge, total+4, max)
	}

	head := make([]byte, 8)
	head[0] = bufs[0][0]
	head[1] = bufs[0][1]
	binary.LittleEndian.PutUint32(head[4:8], uint32(words+1))

	out := make([][]byte, 0, len(bufs)+1)
	out = append(out, head, bufs[0][4:])
	out = append(out, bufs[1:]...)
	return out, nil
}
