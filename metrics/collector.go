// Package metrics exposes connection and pool statistics as Prometheus
// collectors. Collectors read a fresh snapshot on every scrape, so there is
// no background goroutine and no drift between the stats and the metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	x11 "github.com/qlentz/x11"
)

const namespace = "x11"

// ConnCollector exposes one connection's counters.
type ConnCollector struct {
	conn *x11.Conn

	requests   *prometheus.Desc
	replies    *prometheus.Desc
	events     *prometheus.Desc
	errors     *prometheus.Desc
	syncs      *prometheus.Desc
	flushes    *prometheus.Desc
	xidRefills *prometheus.Desc
	written    *prometheus.Desc
	read       *prometheus.Desc
}

var _ prometheus.Collector = (*ConnCollector)(nil)

// NewConnCollector creates a collector for conn. constLabels distinguishes
// connections when several are registered; nil is fine for a single one.
func NewConnCollector(conn *x11.Conn, constLabels prometheus.Labels) *ConnCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "conn", name),
			help, nil, constLabels,
		)
	}
	return &ConnCollector{
		conn:       conn,
		requests:   desc("requests_sent_total", "Requests dispatched to the server."),
		replies:    desc("replies_received_total", "Reply packets received."),
		events:     desc("events_received_total", "Event packets received."),
		errors:     desc("errors_received_total", "Error packets received."),
		syncs:      desc("sync_requests_total", "Synchronization requests injected by the engine."),
		flushes:    desc("flushes_total", "Write buffer flushes."),
		xidRefills: desc("xid_range_refills_total", "Resource id ranges fetched through xc-misc."),
		written:    desc("bytes_written_total", "Bytes written to the transport."),
		read:       desc("bytes_read_total", "Bytes read from the transport."),
	}
}

func (c *ConnCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.replies
	ch <- c.events
	ch <- c.errors
	ch <- c.syncs
	ch <- c.flushes
	ch <- c.xidRefills
	ch <- c.written
	ch <- c.read
}

func (c *ConnCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.conn.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.requests, s.RequestsSent)
	counter(c.replies, s.RepliesReceived)
	counter(c.events, s.EventsReceived)
	counter(c.errors, s.ErrorsReceived)
	counter(c.syncs, s.SyncRequests)
	counter(c.flushes, s.Flushes)
	counter(c.xidRefills, s.XIDRangeRefills)
	counter(c.written, s.BytesWritten)
	counter(c.read, s.BytesRead)
}

// PoolCollector exposes per-display pool statistics.
type PoolCollector struct {
	pool *x11.Pool

	conns       *prometheus.Desc
	acquires    *prometheus.Desc
	emptyWaits  *prometheus.Desc
	created     *prometheus.Desc
	destroyed   *prometheus.Desc
	canceled    *prometheus.Desc
	waitSeconds *prometheus.Desc
}

var _ prometheus.Collector = (*PoolCollector)(nil)

// NewPoolCollector creates a collector for pool. Metrics carry a "display"
// label per configured display.
func NewPoolCollector(pool *x11.Pool) *PoolCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", name),
			help, labels, nil,
		)
	}
	return &PoolCollector{
		pool:        pool,
		conns:       desc("connections", "Pooled connections by state.", "display", "state"),
		acquires:    desc("acquires_total", "Connection acquire attempts.", "display"),
		emptyWaits:  desc("empty_acquires_total", "Acquires that had to wait for a connection.", "display"),
		created:     desc("connections_created_total", "Connections dialed.", "display"),
		destroyed:   desc("connections_destroyed_total", "Connections closed.", "display"),
		canceled:    desc("canceled_acquires_total", "Acquires canceled by their context.", "display"),
		waitSeconds: desc("acquire_wait_seconds_total", "Time spent waiting for a connection.", "display"),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
	ch <- c.acquires
	ch <- c.emptyWaits
	ch <- c.created
	ch <- c.destroyed
	ch <- c.canceled
	ch <- c.waitSeconds
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.pool.Stats() {
		gauge := func(d *prometheus.Desc, v int32, labels ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
		}
		counter := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, s.Display)
		}
		gauge(c.conns, s.TotalConns, s.Display, "total")
		gauge(c.conns, s.ActiveConns, s.Display, "active")
		gauge(c.conns, s.IdleConns, s.Display, "idle")
		counter(c.acquires, float64(s.AcquireCount))
		counter(c.emptyWaits, float64(s.EmptyAcquireCount))
		counter(c.created, float64(s.CreatedConns))
		counter(c.destroyed, float64(s.DestroyedConns))
		counter(c.canceled, float64(s.CanceledAcquires))
		counter(c.waitSeconds, float64(s.AcquireWaitTimeNs)/1e9)
	}
}
