package x11

import (
	"context"
	"sync"

	"github.com/qlentz/x11/xproto"
)

type maxRequestPhase int

const (
	maxRequestUnknown maxRequestPhase = iota
	maxRequestPending
	maxRequestKnown
)

// maxRequestTracker holds the resolution state of the server's maximum
// request size. The phase only moves forward, and once known the value never
// changes, so size checks made at different times can never disagree.
type maxRequestTracker struct {
	mu    sync.Mutex
	phase maxRequestPhase
	bytes int

	// Sequence number of the outstanding big-requests enable request,
	// valid in the pending phase once hasSeq is set.
	seq    uint64
	hasSeq bool

	// inflight is non-nil while a prefetch is between claiming the pending
	// phase and recording its sequence number. Closed when that window ends.
	inflight chan struct{}
}

// setKnown records the resolved value. The first resolution wins.
func (t *maxRequestTracker) setKnown(bytes int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != maxRequestKnown {
		t.phase = maxRequestKnown
		t.bytes = bytes
		t.hasSeq = false
		t.inflight = nil
	}
	return t.bytes
}

func (c *Conn) maxRequestFallback() int {
	return int(c.setup.MaximumRequestLength) * 4
}

// PrefetchMaximumRequestBytes starts resolving the server's maximum request
// size without waiting for the answer. A later MaximumRequestBytes call picks
// up the request already in flight instead of issuing another one.
func (c *Conn) PrefetchMaximumRequestBytes(ctx context.Context) error {
	c.maxReq.mu.Lock()
	if c.maxReq.phase != maxRequestUnknown {
		c.maxReq.mu.Unlock()
		return nil
	}
	c.maxReq.phase = maxRequestPending
	episode := make(chan struct{})
	c.maxReq.inflight = episode
	c.maxReq.mu.Unlock()

	revert := func() {
		c.maxReq.mu.Lock()
		c.maxReq.phase = maxRequestUnknown
		c.maxReq.inflight = nil
		c.maxReq.mu.Unlock()
		close(episode)
	}

	info, err := c.ExtensionInfo(ctx, xproto.BigRequestsName)
	if err != nil {
		revert()
		return err
	}
	if info == nil {
		c.maxReq.setKnown(c.maxRequestFallback())
		close(episode)
		return nil
	}

	cookie, err := c.SendRequestWithReply(ctx, nil, xproto.BigReqEnableRequest(info.MajorOpcode))
	if err != nil {
		revert()
		return err
	}

	c.maxReq.mu.Lock()
	c.maxReq.seq = cookie.sequence
	c.maxReq.hasSeq = true
	c.maxReq.inflight = nil
	c.maxReq.mu.Unlock()
	close(episode)
	return nil
}

// MaximumRequestBytes returns the largest request, in bytes, the server
// accepts. With the big-requests extension enabled this is the extended
// maximum, otherwise the core maximum from the setup response.
func (c *Conn) MaximumRequestBytes(ctx context.Context) (int, error) {
	c.maxReq.mu.Lock()
	if c.maxReq.phase == maxRequestKnown {
		bytes := c.maxReq.bytes
		c.maxReq.mu.Unlock()
		return bytes, nil
	}
	c.maxReq.mu.Unlock()

	// One resolver per connection. Waiting on a shared outstanding reply
	// from several goroutines would race over who gets to consume it.
	ch := c.maxReqFlight.DoChan("max-request-bytes", func() (interface{}, error) {
		return c.resolveMaximumRequestBytes(c.lifeCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *Conn) resolveMaximumRequestBytes(ctx context.Context) (int, error) {
	for {
		c.maxReq.mu.Lock()
		phase := c.maxReq.phase
		bytes := c.maxReq.bytes
		seq, hasSeq := c.maxReq.seq, c.maxReq.hasSeq
		inflight := c.maxReq.inflight
		c.maxReq.mu.Unlock()

		switch {
		case phase == maxRequestKnown:
			return bytes, nil
		case phase == maxRequestPending && hasSeq:
			return c.finishMaximumRequestBytes(ctx, seq)
		case phase == maxRequestPending:
			select {
			case <-inflight:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		default:
			if err := c.PrefetchMaximumRequestBytes(ctx); err != nil {
				return 0, err
			}
		}
	}
}

// finishMaximumRequestBytes waits for the outstanding enable reply and
// records the result. An error reply downgrades to the core maximum.
func (c *Conn) finishMaximumRequestBytes(ctx context.Context, seq uint64) (int, error) {
	packet, _, err := c.waitForReplyOrError(ctx, seq)
	if err != nil {
		return 0, err
	}

	bytes := c.maxRequestFallback()
	if packet != nil && packet[0] == xproto.ResponseTypeReply {
		if words, perr := xproto.ParseBigReqEnableReply(packet); perr == nil {
			bytes = int(words) * 4
		}
	}
	return c.maxReq.setKnown(bytes), nil
}
