package x11

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlentz/x11/internal/testutils"
	"github.com/qlentz/x11/xproto"
)

var bigReqQueryLen = len(xproto.QueryExtensionRequest(xproto.BigRequestsName))

// serveBigRequestsNegotiation answers the extension query and, when words is
// nonzero, the enable request that follows it.
func serveBigRequestsNegotiation(t *testing.T, stream *testutils.MockStream, words uint32) {
	t.Helper()
	go func() {
		waitWritten(t, stream, handshakeLen+bigReqQueryLen)
		if words == 0 {
			stream.ServerSend(extensionAbsentReply(1))
			return
		}
		stream.ServerSend(queryExtensionReply(1, 133, 0, 0))
		waitWritten(t, stream, handshakeLen+bigReqQueryLen+4)
		stream.ServerSend(bigReqEnableReply(2, words))
	}()
}

func TestMaximumRequestBytesViaExtension(t *testing.T) {
	conn, stream := newTestConn(t)
	serveBigRequestsNegotiation(t, stream, 1<<22)

	max, err := conn.MaximumRequestBytes(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 4<<22, max)
}

func TestMaximumRequestBytesExtensionAbsent(t *testing.T) {
	conn, stream := newTestConn(t)
	serveBigRequestsNegotiation(t, stream, 0)

	max, err := conn.MaximumRequestBytes(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int(conn.Setup().MaximumRequestLength)*4, max)

	// Only the query went out; there was nothing to enable.
	assert.Len(t, stream.Written(), handshakeLen+bigReqQueryLen)
}

func TestMaximumRequestBytesEnableErrorFallsBack(t *testing.T) {
	conn, stream := newTestConn(t)
	go func() {
		waitWritten(t, stream, handshakeLen+bigReqQueryLen)
		stream.ServerSend(queryExtensionReply(1, 133, 0, 0))
		waitWritten(t, stream, handshakeLen+bigReqQueryLen+4)
		stream.ServerSend(errorPacket(17, 2))
	}()

	// A server that advertises the extension but refuses to enable it still
	// leaves the connection usable at the core maximum.
	max, err := conn.MaximumRequestBytes(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int(conn.Setup().MaximumRequestLength)*4, max)
}

func TestMaximumRequestBytesResolvedOnce(t *testing.T) {
	conn, stream := newTestConn(t)
	serveBigRequestsNegotiation(t, stream, 1<<20)

	const callers = 4
	results := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			max, err := conn.MaximumRequestBytes(t.Context())
			assert.NoError(t, err)
			results[i] = max
		}(i)
	}
	wg.Wait()

	for _, max := range results {
		assert.Equal(t, 4<<20, max)
	}

	// One query, one enable, no matter how many callers asked.
	want := handshakeLen + bigReqQueryLen + 4
	assert.Len(t, stream.Written(), want)

	// Later calls answer from the recorded value without touching the wire.
	max, err := conn.MaximumRequestBytes(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 4<<20, max)
	assert.Len(t, stream.Written(), want)
}

func TestPrefetchMaximumRequestBytes(t *testing.T) {
	conn, stream := newTestConn(t)
	serveBigRequestsNegotiation(t, stream, 1<<20)

	// Prefetch returns once the enable request is on the wire, before its
	// reply arrives.
	require.NoError(t, conn.PrefetchMaximumRequestBytes(t.Context()))
	require.NoError(t, conn.Flush(t.Context()))

	max, err := conn.MaximumRequestBytes(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 4<<20, max)
	assert.Len(t, stream.Written(), handshakeLen+bigReqQueryLen+4)

	require.NoError(t, conn.PrefetchMaximumRequestBytes(t.Context()))
	assert.Len(t, stream.Written(), handshakeLen+bigReqQueryLen+4)
}
