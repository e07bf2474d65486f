package x11

import "sync/atomic"

// ConnStats contains statistics about a single display connection.
// All fields are safe for concurrent access.
//
// For Prometheus integration, expose these as:
//   - Counters: RequestsSent, RepliesReceived, EventsReceived, ErrorsReceived,
//     SyncRequests, Flushes
//   - Counters: BytesWritten, BytesRead
type ConnStats struct {
	RequestsSent    uint64 // Caller requests dispatched
	RepliesReceived uint64 // Reply packets read from the server
	EventsReceived  uint64 // Event packets read from the server
	ErrorsReceived  uint64 // Error packets read from the server
	SyncRequests    uint64 // Synchronization requests injected by the engine
	Flushes         uint64 // Write buffer flushes
	XIDRangeRefills uint64 // Resource id ranges fetched through xc-misc
	BytesWritten    uint64 // Bytes written to the transport
	BytesRead       uint64 // Bytes read from the transport
}

// statsCollector provides internal methods for updating connection stats.
// Not exported - the connection updates its own stats.
type statsCollector struct {
	stats *ConnStats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{
		stats: &ConnStats{},
	}
}

func (c *statsCollector) recordRequest() {
	atomic.AddUint64(&c.stats.RequestsSent, 1)
}

func (c *statsCollector) recordReply() {
	atomic.AddUint64(&c.stats.RepliesReceived, 1)
}

func (c *statsCollector) recordEvent() {
	atomic.AddUint64(&c.stats.EventsReceived, 1)
}

func (c *statsCollector) recordError() {
	atomic.AddUint64(&c.stats.ErrorsReceived, 1)
}

func (c *statsCollector) recordSync() {
	atomic.AddUint64(&c.stats.SyncRequests, 1)
}

func (c *statsCollector) recordFlush() {
	atomic.AddUint64(&c.stats.Flushes, 1)
}

func (c *statsCollector) recordXIDRefill() {
	atomic.AddUint64(&c.stats.XIDRangeRefills, 1)
}

func (c *statsCollector) addBytesWritten(n int) {
	atomic.AddUint64(&c.stats.BytesWritten, uint64(n))
}

func (c *statsCollector) addBytesRead(n int) {
	atomic.AddUint64(&c.stats.BytesRead, uint64(n))
}

func (c *statsCollector) snapshot() ConnStats {
	return ConnStats{
		RequestsSent:    atomic.LoadUint64(&c.stats.RequestsSent),
		RepliesReceived: atomic.LoadUint64(&c.stats.RepliesReceived),
		EventsReceived:  atomic.LoadUint64(&c.stats.EventsReceived),
		ErrorsReceived:  atomic.LoadUint64(&c.stats.ErrorsReceived),
		SyncRequests:    atomic.LoadUint64(&c.stats.SyncRequests),
		Flushes:         atomic.LoadUint64(&c.stats.Flushes),
		XIDRangeRefills: atomic.LoadUint64(&c.stats.XIDRangeRefills),
		BytesWritten:    atomic.LoadUint64(&c.stats.BytesWritten),
		BytesRead:       atomic.LoadUint64(&c.stats.BytesRead),
	}
}
