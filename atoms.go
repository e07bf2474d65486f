package x11

import (
	"context"
	"strconv"

	"github.com/patrickmn/go-cache"

	"github.com/qlentz/x11/xproto"
)

// Atom is a server-interned identifier for a string.
type Atom uint32

// InternAtom returns the atom for name, interning it on the server on first
// use. Atoms never change for the lifetime of a server, so results are
// cached forever, and concurrent lookups of the same name share one round
// trip.
func (c *Conn) InternAtom(ctx context.Context, name string) (Atom, error) {
	if v, found := c.atomsByName.Get(name); found {
		return v.(Atom), nil
	}

	v, err, _ := c.atomFlight.Do("name:"+name, func() (interface{}, error) {
		// Double-check after acquiring the flight: another goroutine may
		// have populated the cache while we waited.
		if v, found := c.atomsByName.Get(name); found {
			return v.(Atom), nil
		}

		cookie, err := c.SendRequestWithReply(ctx, nil, xproto.InternAtomRequest(false, name))
		if err != nil {
			return nil, err
		}
		packet, err := cookie.Reply(ctx)
		if err != nil {
			return nil, err
		}
		if packet == nil {
			return nil, ErrConnectionClosed
		}
		id, err := xproto.ParseInternAtomReply(packet)
		if err != nil {
			return nil, err
		}

		atom := Atom(id)
		c.cacheAtom(name, atom)
		return atom, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(Atom), nil
}

// AtomName returns the name behind an atom, querying the server on first
// use.
func (c *Conn) AtomName(ctx context.Context, atom Atom) (string, error) {
	key := atomKey(atom)
	if v, found := c.atomsByID.Get(key); found {
		return v.(string), nil
	}

	v, err, _ := c.atomFlight.Do("id:"+key, func() (interface{}, error) {
		if v, found := c.atomsByID.Get(key); found {
			return v.(string), nil
		}

		cookie, err := c.SendRequestWithReply(ctx, nil, xproto.GetAtomNameRequest(uint32(atom)))
		if err != nil {
			return nil, err
		}
		packet, err := cookie.Reply(ctx)
		if err != nil {
			return nil, err
		}
		if packet == nil {
			return nil, ErrConnectionClosed
		}
		name, err := xproto.ParseGetAtomNameReply(packet)
		if err != nil {
			return nil, err
		}

		c.cacheAtom(name, atom)
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// PrefetchAtoms interns a batch of names in a single round trip by
// dispatching every request before collecting the first reply. Already
// cached names cost nothing.
func (c *Conn) PrefetchAtoms(ctx context.Context, names ...string) ([]Atom, error) {
	atoms := make([]Atom, len(names))
	cookies := make([]*Cookie, len(names))
	for i, name := range names {
		if v, found := c.atomsByName.Get(name); found {
			atoms[i] = v.(Atom)
			continue
		}
		cookie, err := c.SendRequestWithReply(ctx, nil, xproto.InternAtomRequest(false, name))
		if err != nil {
			return nil, err
		}
		cookies[i] = cookie
	}

	for i, cookie := range cookies {
		if cookie == nil {
			continue
		}
		atom, err := c.collectInternAtom(ctx, cookie)
		if err != nil {
			discardCookies(cookies[i+1:])
			return nil, err
		}
		atoms[i] = atom
		c.cacheAtom(names[i], atom)
	}
	return atoms, nil
}

func (c *Conn) collectInternAtom(ctx context.Context, cookie *Cookie) (Atom, error) {
	packet, err := cookie.Reply(ctx)
	if err != nil {
		return 0, err
	}
	if packet == nil {
		return 0, ErrConnectionClosed
	}
	id, err := xproto.ParseInternAtomReply(packet)
	if err != nil {
		return 0, err
	}
	return Atom(id), nil
}

func discardCookies(cookies []*Cookie) {
	for _, cookie := range cookies {
		if cookie != nil {
			cookie.Discard(DiscardReplyAndError)
		}
	}
}

func (c *Conn) cacheAtom(name string, atom Atom) {
	c.atomsByName.Set(name, atom, cache.NoExpiration)
	c.atomsByID.Set(atomKey(atom), name, cache.NoExpiration)
}

func atomKey(atom Atom) string {
	return strconv.FormatUint(uint64(atom), 10)
}
