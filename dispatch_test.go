package x11

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlentz/x11/xproto"
)

// noOpRequest returns a minimal request the server never answers.
func noOpRequest() []byte {
	return []byte{127, 0, 1, 0}
}

// taggedRequest is a no-op sized up to carry an identifying payload.
func taggedRequest(tag uint32) []byte {
	buf := []byte{127, 0, 2, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(buf[4:], tag)
	return buf
}

func TestDispatchAssignsSequentialNumbers(t *testing.T) {
	conn, _ := newTestConn(t)

	for want := uint64(1); want <= 5; want++ {
		cookie, err := conn.SendRequestNoReply(t.Context(), nil, noOpRequest())
		require.NoError(t, err)
		assert.Equal(t, want, cookie.sequence)
	}
}

func TestDispatchOrderMatchesWireOrder(t *testing.T) {
	const workers = 8
	const perWorker = 50

	conn, stream := newTestConn(t)

	var mu sync.Mutex
	seqByTag := make(map[uint32]uint64, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tag := uint32(w*perWorker + i)
				cookie, err := conn.SendRequestNoReply(context.Background(), nil, taggedRequest(tag))
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seqByTag[tag] = cookie.sequence
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, conn.Flush(t.Context()))

	wire := stream.Written()[handshakeLen:]
	require.Len(t, wire, workers*perWorker*8)

	// The request at wire position n must be the one that was issued
	// sequence number n+1.
	for n := 0; n < workers*perWorker; n++ {
		tag := binary.LittleEndian.Uint32(wire[n*8+4:])
		assert.Equal(t, uint64(n+1), seqByTag[tag], "request at wire position %d", n)
	}
}

func TestDispatchSplitBody(t *testing.T) {
	conn, stream := newTestConn(t)

	// A request may arrive as several slices; the wire sees one request.
	_, err := conn.SendRequestNoReply(t.Context(), nil, []byte{127, 0, 2, 0}, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, conn.Flush(t.Context()))

	assert.Equal(t, []byte{127, 0, 2, 0, 1, 2, 3, 4}, stream.Written()[handshakeLen:])
}

func TestDispatchBackpressureInjectsOneSync(t *testing.T) {
	if testing.Short() {
		t.Skip("dispatches 64k requests")
	}

	conn, stream := newTestConn(t)
	ctx := context.Background()

	// 65535 unanswered no-reply requests exhaust the 16-bit window.
	for i := 0; i < 65535; i++ {
		_, err := conn.SendRequestNoReply(ctx, nil, noOpRequest())
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(0), conn.Stats().SyncRequests)

	// The next one cannot be numbered until a response-bearing request is
	// on the wire. The dispatcher injects it and moves on.
	cookie, err := conn.SendRequestNoReply(ctx, nil, noOpRequest())
	require.NoError(t, err)
	assert.Equal(t, uint64(65537), cookie.sequence, "sync takes 65536")

	require.NoError(t, conn.Flush(ctx))

	stats := conn.Stats()
	assert.Equal(t, uint64(1), stats.SyncRequests)
	assert.Equal(t, uint64(65536), stats.RequestsSent)

	wire := stream.Written()[handshakeLen:]
	require.Len(t, wire, 65537*4)
	assert.Equal(t, xproto.GetInputFocusRequest(), wire[65535*4:65536*4], "sync on the wire between the two")
	assert.Equal(t, noOpRequest(), wire[65536*4:])
}

func TestDispatchContextExpired(t *testing.T) {
	conn, _ := newTestConn(t)

	// Hold the write pipeline so the dispatch has to wait for it.
	require.NoError(t, conn.wb.acquire(context.Background()))
	defer conn.wb.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := conn.SendRequestNoReply(ctx, nil, noOpRequest())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatchRejectsMalformedRequests(t *testing.T) {
	conn, _ := newTestConn(t)

	assert.PanicsWithValue(t, "x11: request shorter than its header", func() {
		_, _ = conn.SendRequestNoReply(context.Background(), nil, []byte{127, 0})
	})
	assert.PanicsWithValue(t, "x11: request length not a multiple of 4", func() {
		_, _ = conn.SendRequestNoReply(context.Background(), nil, []byte{127, 0, 2, 0, 1, 2, 3})
	})
	assert.Panics(t, func() {
		// Embedded length says 3 units, actual size is 2.
		_, _ = conn.SendRequestNoReply(context.Background(), nil, []byte{127, 0, 3, 0, 1, 2, 3, 4})
	})

	// Caller bugs do not poison the pipeline.
	_, err := conn.SendRequestNoReply(context.Background(), nil, noOpRequest())
	require.NoError(t, err)
}
