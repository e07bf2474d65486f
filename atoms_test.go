package x11

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlentz/x11/xproto"
)

func TestInternAtomCachesBothDirections(t *testing.T) {
	conn, stream := newTestConn(t)

	reqLen := len(xproto.InternAtomRequest(false, "WM_PROTOCOLS"))
	go func() {
		waitWritten(t, stream, handshakeLen+reqLen)
		stream.ServerSend(internAtomReply(1, 68))
	}()

	atom, err := conn.InternAtom(t.Context(), "WM_PROTOCOLS")
	require.NoError(t, err)
	assert.Equal(t, Atom(68), atom)

	// Both directions are now cached; neither lookup touches the wire.
	again, err := conn.InternAtom(t.Context(), "WM_PROTOCOLS")
	require.NoError(t, err)
	assert.Equal(t, atom, again)

	name, err := conn.AtomName(t.Context(), atom)
	require.NoError(t, err)
	assert.Equal(t, "WM_PROTOCOLS", name)

	assert.Len(t, stream.Written(), handshakeLen+reqLen)
}

func TestAtomNameCachesBothDirections(t *testing.T) {
	conn, stream := newTestConn(t)

	go func() {
		waitWritten(t, stream, handshakeLen+8)
		stream.ServerSend(getAtomNameReply(1, "WM_CLASS"))
	}()

	name, err := conn.AtomName(t.Context(), Atom(67))
	require.NoError(t, err)
	assert.Equal(t, "WM_CLASS", name)

	atom, err := conn.InternAtom(t.Context(), "WM_CLASS")
	require.NoError(t, err)
	assert.Equal(t, Atom(67), atom)

	assert.Len(t, stream.Written(), handshakeLen+8)
}

func TestInternAtomSharesOneRoundTrip(t *testing.T) {
	conn, stream := newTestConn(t)

	reqLen := len(xproto.InternAtomRequest(false, "CLIPBOARD"))
	go func() {
		waitWritten(t, stream, handshakeLen+reqLen)
		stream.ServerSend(internAtomReply(1, 200))
	}()

	const callers = 8
	atoms := make([]Atom, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			atom, err := conn.InternAtom(context.Background(), "CLIPBOARD")
			assert.NoError(t, err)
			atoms[i] = atom
		}(i)
	}
	wg.Wait()

	for _, atom := range atoms {
		assert.Equal(t, Atom(200), atom)
	}
	assert.Len(t, stream.Written(), handshakeLen+reqLen)
}

func TestPrefetchAtomsPipelinesRequests(t *testing.T) {
	conn, stream := newTestConn(t)

	go func() {
		// All three requests hit the wire before any reply exists.
		waitWritten(t, stream, handshakeLen+36)
		stream.ServerSend(internAtomReply(1, 10))
		stream.ServerSend(internAtomReply(2, 11))
		stream.ServerSend(internAtomReply(3, 12))
	}()

	atoms, err := conn.PrefetchAtoms(t.Context(), "A", "B", "C")
	require.NoError(t, err)
	assert.Equal(t, []Atom{10, 11, 12}, atoms)

	// One flush carried the whole batch.
	assert.Equal(t, uint64(1), conn.Stats().Flushes)

	// A repeat is answered from the cache.
	atoms, err = conn.PrefetchAtoms(t.Context(), "A", "B", "C")
	require.NoError(t, err)
	assert.Equal(t, []Atom{10, 11, 12}, atoms)
	assert.Len(t, stream.Written(), handshakeLen+36)
}

func TestPrefetchAtomsMixedCache(t *testing.T) {
	conn, stream := newTestConn(t)

	go func() {
		waitWritten(t, stream, handshakeLen+12)
		stream.ServerSend(internAtomReply(1, 21))
		waitWritten(t, stream, handshakeLen+24)
		stream.ServerSend(internAtomReply(2, 22))
	}()

	_, err := conn.InternAtom(t.Context(), "B")
	require.NoError(t, err)

	// Only the unknown name goes out.
	atoms, err := conn.PrefetchAtoms(t.Context(), "B", "D")
	require.NoError(t, err)
	assert.Equal(t, []Atom{21, 22}, atoms)
	assert.Len(t, stream.Written(), handshakeLen+24)
}

func TestPrefetchAtomsErrorDiscardsRemainder(t *testing.T) {
	conn, stream := newTestConn(t)

	go func() {
		waitWritten(t, stream, handshakeLen+36)
		stream.ServerSend(internAtomReply(1, 10))
		stream.ServerSend(errorPacket(11, 2))
		stream.ServerSend(internAtomReply(3, 30))
		waitWritten(t, stream, handshakeLen+48)
		stream.ServerSend(internAtomReply(4, 30))
	}()

	_, err := conn.PrefetchAtoms(t.Context(), "AA", "BB", "CC")
	var werr *xproto.WireError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, uint8(11), werr.Code)

	// Names collected before the failure are cached.
	atom, err := conn.InternAtom(t.Context(), "AA")
	require.NoError(t, err)
	assert.Equal(t, Atom(10), atom)
	assert.Len(t, stream.Written(), handshakeLen+36)

	// The discarded tail left the stream aligned: a fresh intern works.
	atom, err = conn.InternAtom(t.Context(), "CC")
	require.NoError(t, err)
	assert.Equal(t, Atom(30), atom)
}

func TestAtomNameServerError(t *testing.T) {
	conn, stream := newTestConn(t)

	go func() {
		waitWritten(t, stream, handshakeLen+8)
		stream.ServerSend(errorPacket(5, 1))
		waitWritten(t, stream, handshakeLen+16)
		stream.ServerSend(getAtomNameReply(2, "LATE"))
	}()

	_, err := conn.AtomName(t.Context(), Atom(999))
	var werr *xproto.WireError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, uint8(5), werr.Code)
	assert.Equal(t, uint64(1), werr.Sequence)

	// Failures are not cached; the next lookup asks again.
	name, err := conn.AtomName(t.Context(), Atom(999))
	require.NoError(t, err)
	assert.Equal(t, "LATE", name)
}
