package xproto

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reply frames a 32-byte reply with the given data byte and fixed fields.
func reply(data1 byte, seq uint16, fixed []byte) []byte {
	buf := make([]byte, ReplyHeaderSize)
	buf[0] = ResponseTypeReply
	buf[1] = data1
	binary.LittleEndian.PutUint16(buf[2:], seq)
	copy(buf[8:], fixed)
	return buf
}

func TestParseQueryExtensionReply(t *testing.T) {
	info, err := ParseQueryExtensionReply(reply(0, 1, []byte{1, 133, 90, 140}))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, byte(133), info.MajorOpcode)
	assert.Equal(t, byte(90), info.FirstEvent)
	assert.Equal(t, byte(140), info.FirstError)
}

func TestParseQueryExtensionReplyAbsent(t *testing.T) {
	info, err := ParseQueryExtensionReply(reply(0, 1, []byte{0, 0, 0, 0}))
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestParseInternAtomReply(t *testing.T) {
	fixed := make([]byte, 4)
	binary.LittleEndian.PutUint32(fixed, 0x1a4)
	atom, err := ParseInternAtomReply(reply(0, 7, fixed))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1a4), atom)
}

func TestParseGetAtomNameReply(t *testing.T) {
	name := "WM_DELETE_WINDOW"
	buf := reply(0, 3, nil)
	binary.LittleEndian.PutUint32(buf[4:], uint32(Pad4(len(name))/4))
	binary.LittleEndian.PutUint16(buf[8:], uint16(len(name)))
	buf = append(buf, name...)
	buf = append(buf, make([]byte, Pad4(len(name))-len(name))...)

	got, err := ParseGetAtomNameReply(buf)
	require.NoError(t, err)
	assert.Equal(t, name, got)

	_, err = ParseGetAtomNameReply(buf[:ReplyHeaderSize+4])
	assert.ErrorContains(t, err, "truncated")
}

func TestParseBigReqEnableReply(t *testing.T) {
	fixed := make([]byte, 4)
	binary.LittleEndian.PutUint32(fixed, 4194303)
	max, err := ParseBigReqEnableReply(reply(0, 2, fixed))
	require.NoError(t, err)
	assert.Equal(t, uint32(4194303), max)
}

func TestParseGetXIDRangeReply(t *testing.T) {
	fixed := make([]byte, 8)
	binary.LittleEndian.PutUint32(fixed, 0x2000)
	binary.LittleEndian.PutUint32(fixed[4:], 512)
	r, err := ParseGetXIDRangeReply(reply(0, 9, fixed))
	require.NoError(t, err)
	assert.Equal(t, XIDRange{StartID: 0x2000, Count: 512}, r)
}

func TestCheckReplyRejects(t *testing.T) {
	_, err := ParseInternAtomReply([]byte{1, 0, 0})
	assert.ErrorContains(t, err, "truncated")

	notReply := make([]byte, ReplyHeaderSize)
	notReply[0] = ResponseTypeError
	_, err = ParseInternAtomReply(notReply)
	assert.ErrorContains(t, err, "not a reply")
}
