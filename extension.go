package x11

import (
	"context"

	"github.com/qlentz/x11/xproto"
)

// extensionState is one extension's cache slot. done closes once info and
// err are final; every caller interested in the same extension waits on the
// same slot, so the query is sent at most once.
type extensionState struct {
	done chan struct{}
	info *xproto.ExtensionInfo
	err  error
}

// ExtensionInfo returns the server's opcode assignments for the named
// extension, or nil if the server does not support it. The first call per
// name issues a QueryExtension round trip; later calls are served from the
// cache.
func (c *Conn) ExtensionInfo(ctx context.Context, name string) (*xproto.ExtensionInfo, error) {
	st := c.startExtensionQuery(ctx, name)
	select {
	case <-st.done:
		return st.info, st.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PrefetchExtension issues the QueryExtension request for name without
// waiting for the answer. A later ExtensionInfo call joins the in-flight
// resolution.
func (c *Conn) PrefetchExtension(ctx context.Context, name string) error {
	st := c.startExtensionQuery(ctx, name)
	select {
	case <-st.done:
		return st.err
	default:
		return nil
	}
}

// startExtensionQuery returns the cache slot for name, creating it and
// dispatching the query on first use. A dispatch failure resolves the slot
// with the error and evicts it, so later callers retry instead of
// inheriting one caller's canceled context.
func (c *Conn) startExtensionQuery(ctx context.Context, name string) *extensionState {
	c.extMu.Lock()
	if st, ok := c.exts[name]; ok {
		c.extMu.Unlock()
		return st
	}
	st := &extensionState{done: make(chan struct{})}
	c.exts[name] = st
	c.extMu.Unlock()

	cookie, err := c.SendRequestWithReply(ctx, nil, xproto.QueryExtensionRequest(name))
	if err != nil {
		c.extMu.Lock()
		delete(c.exts, name)
		c.extMu.Unlock()
		st.err = err
		close(st.done)
		return st
	}

	go c.resolveExtension(st, name, cookie)
	return st
}

// resolveExtension waits for the QueryExtension reply on the connection's
// own context, so one caller's deadline cannot fail the shared slot.
func (c *Conn) resolveExtension(st *extensionState, name string, cookie *Cookie) {
	packet, err := cookie.Reply(c.lifeCtx)
	switch {
	case err != nil:
		st.err = err
	case packet == nil:
		st.err = ErrConnectionClosed
	default:
		st.info, st.err = xproto.ParseQueryExtensionReply(packet)
	}
	close(st.done)

	if st.err == nil {
		evt := c.logger.Debug().Str("extension", name)
		if st.info != nil {
			evt = evt.Uint8("major_opcode", st.info.MajorOpcode)
		}
		evt.Bool("present", st.info != nil).Msg("x11: extension resolved")
	}
}
