package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReassemblerFixedPackets(t *testing.T) {
	var r Reassembler

	event := mkEvent(6, 1) // MotionNotify
	errPacket := mkError(2)

	packets := r.Feed(append(append([]byte{}, event...), errPacket...))
	require.Len(t, packets, 2)
	assert.Equal(t, event, packets[0])
	assert.Equal(t, errPacket, packets[1])
	assert.Equal(t, 0, r.Buffered())
}

func TestReassemblerSplitDelivery(t *testing.T) {
	var r Reassembler

	reply := mkReply(5, 3)
	require.Len(t, reply, 44)

	assert.Empty(t, r.Feed(reply[:3]), "not even a header yet")
	assert.Empty(t, r.Feed(reply[3:20]), "header known, body incomplete")
	assert.Equal(t, 20, r.Buffered())

	packets := r.Feed(reply[20:])
	require.Len(t, packets, 1)
	assert.Equal(t, reply, packets[0])
	assert.Equal(t, 0, r.Buffered())
}

func TestReassemblerExtendedEvent(t *testing.T) {
	var r Reassembler

	generic := mkReply(9, 2)
	generic[0] = 35 // generic events are framed like replies

	trailing := mkEvent(4, 10)
	packets := r.Feed(append(append([]byte{}, generic...), trailing...))
	require.Len(t, packets, 2)
	assert.Len(t, packets[0], 40)
	assert.Len(t, packets[1], 32)
}

func TestReassemblerByteAtATime(t *testing.T) {
	var r Reassembler

	reply := mkReply(1, 1)
	var got [][]byte
	for _, b := range reply {
		got = append(got, r.Feed([]byte{b})...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, reply, got[0])
}

func TestReassemblerReturnedPacketsAreIndependent(t *testing.T) {
	var r Reassembler

	first := mkEvent(2, 1)
	second := mkEvent(3, 2)
	packets := r.Feed(append(append([]byte{}, first...), second...))
	require.Len(t, packets, 2)

	// Later feeds must not clobber previously returned packets.
	r.Feed(mkEvent(4, 3))
	assert.Equal(t, byte(2), packets[0][0])
	assert.Equal(t, byte(3), packets[1][0])
}
