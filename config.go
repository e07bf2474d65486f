package x11

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultWriteBufferSize = 16 * 1024
	defaultReadBufferSize  = 16 * 1024
	defaultDialTimeout     = 5 * time.Second
)

// Config holds configuration for a single display connection.
type Config struct {
	// WriteBufferSize is the capacity of the outgoing request buffer.
	// Requests larger than this bypass the buffer and go straight to the
	// transport. If zero, 16 KiB.
	WriteBufferSize int

	// ReadBufferSize is the size of the transport read buffer.
	// If zero, 16 KiB.
	ReadBufferSize int

	// DialTimeout bounds transport establishment plus the setup handshake.
	// If zero, 5 seconds.
	DialTimeout time.Duration

	// AuthFile overrides the authority file consulted during the handshake.
	// If empty, $XAUTHORITY is used, then ~/.Xauthority.
	AuthFile string

	// Logger receives connection lifecycle and synchronization events.
	// If nil, logging is disabled.
	Logger *zerolog.Logger
}

// withDefaults returns a copy of the config with zero values replaced.
func (c Config) withDefaults() Config {
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = defaultWriteBufferSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = defaultReadBufferSize
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	return c
}

func (c Config) logger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}
