package x11

import (
	"context"
	"fmt"

	"github.com/qlentz/x11/xproto"
)

// idAllocator hands out resource identifiers from the range the server
// granted at setup. The increment is the lowest set bit of the resource id
// mask, which keeps every generated id inside the mask.
type idAllocator struct {
	next uint64
	max  uint64
	inc  uint64
}

func newIDAllocator(base, mask uint32) idAllocator {
	inc := uint64(mask & -mask)
	return idAllocator{
		next: uint64(base),
		max:  uint64(base) + uint64(mask),
		inc:  inc,
	}
}

// generate returns the next id, or false when the current range is used up.
func (a *idAllocator) generate() (uint32, bool) {
	if a.next > a.max {
		return 0, false
	}
	id := uint32(a.next)
	a.next += a.inc
	return id, true
}

// updateRange installs a fresh range obtained from the server.
func (a *idAllocator) updateRange(r xproto.XIDRange) {
	a.next = uint64(r.StartID)
	a.max = uint64(r.StartID) + uint64(r.Count-1)*a.inc
}

// GenerateID returns a resource identifier not yet in use on this
// connection. When the setup range runs out, a fresh range is requested
// through the xc-misc extension; without that extension exhaustion is
// permanent and ErrIDsExhausted is returned.
func (c *Conn) GenerateID(ctx context.Context) (uint32, error) {
	c.xidMu.Lock()
	defer c.xidMu.Unlock()

	if id, ok := c.xids.generate(); ok {
		return id, nil
	}
	if err := c.refillIDRange(ctx); err != nil {
		return 0, err
	}
	id, ok := c.xids.generate()
	if !ok {
		return 0, ErrIDsExhausted
	}
	return id, nil
}

// refillIDRange asks the server for another id range. Caller must hold
// xidMu, which serializes refills.
func (c *Conn) refillIDRange(ctx context.Context) error {
	info, err := c.ExtensionInfo(ctx, xproto.XCMiscName)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("%w: server lacks the %s extension", ErrIDsExhausted, xproto.XCMiscName)
	}

	cookie, err := c.SendRequestWithReply(ctx, nil, xproto.GetXIDRangeRequest(info.MajorOpcode))
	if err != nil {
		return err
	}
	packet, err := cookie.Reply(ctx)
	if err != nil {
		return err
	}
	if packet == nil {
		return ErrConnectionClosed
	}
	r, err := xproto.ParseGetXIDRangeReply(packet)
	if err != nil {
		return err
	}

	// A (0, 1) range is how the server says it has nothing left.
	if r.StartID == 0 && r.Count == 1 {
		return ErrIDsExhausted
	}
	c.xids.updateRange(r)
	c.stats.recordXIDRefill()
	c.logger.Debug().
		Uint32("start", r.StartID).
		Uint32("count", r.Count).
		Msg("x11: resource id range refilled")
	return nil
}
