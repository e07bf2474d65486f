package x11

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlentz/x11/xproto"
)

func TestCookieReplyInterceptsError(t *testing.T) {
	conn, stream := newTestConn(t)

	cookie, err := conn.SendRequestWithReply(t.Context(), nil, xproto.GetInputFocusRequest())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cookie.Sequence())

	stream.ServerSend(errorPacket(8, 1))

	_, err = cookie.Reply(t.Context())
	var werr *xproto.WireError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, uint8(8), werr.Code)
	assert.Equal(t, uint64(1), werr.Sequence)

	// The error was consumed by the caller, not routed to the events.
	_, ok, err := conn.PollForEvent()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCookieReplyUncheckedRoutesErrorToEvents(t *testing.T) {
	conn, stream := newTestConn(t)

	cookie, err := conn.SendRequestWithReply(t.Context(), nil, xproto.GetInputFocusRequest())
	require.NoError(t, err)

	stream.ServerSend(errorPacket(9, 1))

	packet, err := cookie.ReplyUnchecked(t.Context())
	require.NoError(t, err)
	assert.Nil(t, packet)

	_, _, err = conn.PollForEvent()
	var werr *xproto.WireError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, uint8(9), werr.Code)
}

func TestCookieSecondReplyReturnsNothing(t *testing.T) {
	conn, stream := newTestConn(t)

	first, err := conn.SendRequestWithReply(t.Context(), nil, xproto.GetInputFocusRequest())
	require.NoError(t, err)
	stream.ServerSend(replyPacket(1, 0))

	packet, err := first.Reply(t.Context())
	require.NoError(t, err)
	require.NotNil(t, packet)

	// Move the stream past the request so the second call can resolve.
	go func() {
		waitWritten(t, stream, handshakeLen+8)
		stream.ServerSend(replyPacket(2, 0))
	}()
	require.NoError(t, conn.Sync(t.Context()))

	packet, err = first.Reply(t.Context())
	require.NoError(t, err)
	assert.Nil(t, packet)
}

func TestCookieDiscard(t *testing.T) {
	conn, stream := newTestConn(t)

	cookie, err := conn.SendRequestWithReply(t.Context(), nil, xproto.GetInputFocusRequest())
	require.NoError(t, err)
	cookie.Discard(DiscardReplyAndError)
	require.NoError(t, conn.Flush(t.Context()))

	stream.ServerSend(errorPacket(4, 1))

	// The discarded error never surfaces anywhere.
	go func() {
		waitWritten(t, stream, handshakeLen+8)
		stream.ServerSend(replyPacket(2, 0))
	}()
	require.NoError(t, conn.Sync(t.Context()))

	_, ok, err := conn.PollForEvent()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVoidCookieCheckSuccess(t *testing.T) {
	conn, stream := newTestConn(t)

	cookie, err := conn.SendRequestNoReply(t.Context(), nil, noOpRequest())
	require.NoError(t, err)

	// Check needs a later response on the wire to prove the server got past
	// the request, so a synchronization request follows it.
	go func() {
		waitWritten(t, stream, handshakeLen+8)
		stream.ServerSend(replyPacket(2, 0))
	}()
	require.NoError(t, cookie.Check(t.Context()))

	stats := conn.Stats()
	assert.Equal(t, uint64(1), stats.SyncRequests)
	assert.Equal(t, xproto.GetInputFocusRequest(), stream.Written()[handshakeLen+4:])
}

func TestVoidCookieCheckReturnsError(t *testing.T) {
	conn, stream := newTestConn(t)

	cookie, err := conn.SendRequestNoReply(t.Context(), nil, noOpRequest())
	require.NoError(t, err)

	go func() {
		waitWritten(t, stream, handshakeLen+8)
		stream.ServerSend(errorPacket(16, 1))
		stream.ServerSend(replyPacket(2, 0))
	}()

	err = cookie.Check(t.Context())
	var werr *xproto.WireError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, uint8(16), werr.Code)

	// Checked errors do not reach the event stream.
	_, ok, err := conn.PollForEvent()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVoidCookieCheckAfterResponsePassed(t *testing.T) {
	conn, stream := newTestConn(t)

	cookie, err := conn.SendRequestNoReply(t.Context(), nil, noOpRequest())
	require.NoError(t, err)

	// A full round trip retires the request before Check is called.
	go func() {
		waitWritten(t, stream, handshakeLen+8)
		stream.ServerSend(replyPacket(2, 0))
	}()
	require.NoError(t, conn.Sync(t.Context()))

	// The stream is already past the request: no extra sync needed.
	require.NoError(t, cookie.Check(t.Context()))
	assert.Equal(t, uint64(0), conn.Stats().SyncRequests)
}

func TestVoidCookieIgnoreError(t *testing.T) {
	conn, stream := newTestConn(t)

	cookie, err := conn.SendRequestNoReply(t.Context(), nil, noOpRequest())
	require.NoError(t, err)
	cookie.IgnoreError()
	require.NoError(t, conn.Flush(t.Context()))

	stream.ServerSend(errorPacket(10, 1))
	go func() {
		waitWritten(t, stream, handshakeLen+8)
		stream.ServerSend(replyPacket(2, 0))
	}()
	require.NoError(t, conn.Sync(t.Context()))

	_, ok, err := conn.PollForEvent()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFDCookieReplyDeliversDescriptors(t *testing.T) {
	conn, stream := newTestConn(t)

	cookie, err := conn.SendRequestWithReplyFDs(t.Context(), nil, xproto.GetInputFocusRequest())
	require.NoError(t, err)

	reply := replyPacket(1, 0)
	reply[1] = 2
	stream.ServerSendWithFDs(reply, []int{997001, 997002})

	packet, fds, err := cookie.Reply(t.Context())
	require.NoError(t, err)
	require.NotNil(t, packet)
	assert.Equal(t, []int{997001, 997002}, fds)
}
