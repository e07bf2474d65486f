package x11

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/sony/gobreaker/v2"
)

const defaultMaxConnsPerDisplay = 4

// How many dead idle connections an acquire discards before giving up.
const maxAcquireAttempts = 3

// PoolConfig configures a connection pool over one or more displays.
type PoolConfig struct {
	// Displays lists the display strings to spread connections over.
	// Required: at least one.
	Displays []string

	// MaxConnsPerDisplay caps the pool size per display. If zero, 4.
	MaxConnsPerDisplay int32

	// ConnConfig is applied to every pooled connection.
	ConnConfig Config

	// MaxConnIdleTime destroys idle connections that have not seen server
	// traffic for this long, re-dialing instead of reusing them.
	// Zero means no limit.
	MaxConnIdleTime time.Duration

	// SelectDisplay picks the display for an affinity key in AcquireFor.
	// If nil, DefaultDisplaySelector is used.
	SelectDisplay DisplaySelector

	// NewCircuitBreaker creates the circuit breaker guarding dials to one
	// display. Called once per display. If nil, a default breaker is used
	// that opens after 3 attempts with a 60% failure ratio.
	NewCircuitBreaker func(display string) *gobreaker.CircuitBreaker[*Conn]
}

// PoolStats contains statistics about one display's connection pool.
// For Prometheus integration, expose these as:
//   - Gauges: TotalConns, IdleConns, ActiveConns
//   - Counters: AcquireCount, EmptyAcquireCount, CreatedConns,
//     DestroyedConns, CanceledAcquires
type PoolStats struct {
	Display           string
	TotalConns        int32
	IdleConns         int32
	ActiveConns       int32
	AcquireCount      uint64
	EmptyAcquireCount uint64
	CreatedConns      uint64
	DestroyedConns    uint64
	CanceledAcquires  uint64
	AcquireWaitTimeNs uint64
}

// Pool maintains connections to a set of displays. Acquire hands out
// connections round-robin; AcquireFor pins an affinity key to a display.
type Pool struct {
	displays []*displayPool
	selector DisplaySelector
	maxIdle  time.Duration
	rr       atomic.Uint64
}

type displayPool struct {
	display   string
	pool      *puddle.Pool[*Conn]
	breaker   *gobreaker.CircuitBreaker[*Conn]
	created   atomic.Int64
	destroyed atomic.Int64
}

// NewPool creates a pool over the configured displays. Connections are
// dialed lazily on first acquire.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if len(cfg.Displays) == 0 {
		return nil, fmt.Errorf("x11: no displays provided")
	}
	maxSize := cfg.MaxConnsPerDisplay
	if maxSize <= 0 {
		maxSize = defaultMaxConnsPerDisplay
	}
	selector := cfg.SelectDisplay
	if selector == nil {
		selector = DefaultDisplaySelector
	}
	newBreaker := cfg.NewCircuitBreaker
	if newBreaker == nil {
		newBreaker = defaultDialBreaker
	}

	p := &Pool{selector: selector, maxIdle: cfg.MaxConnIdleTime}
	for _, display := range cfg.Displays {
		display := display
		dp := &displayPool{
			display: display,
			breaker: newBreaker(display),
		}
		poolConfig := &puddle.Config[*Conn]{
			Constructor: func(ctx context.Context) (*Conn, error) {
				conn, err := dp.breaker.Execute(func() (*Conn, error) {
					return ConnectWithConfig(ctx, display, cfg.ConnConfig)
				})
				if err == nil {
					dp.created.Add(1)
				}
				return conn, err
			},
			Destructor: func(c *Conn) {
				dp.destroyed.Add(1)
				_ = c.Close()
			},
			MaxSize: maxSize,
		}
		pool, err := puddle.NewPool(poolConfig)
		if err != nil {
			p.Close()
			return nil, err
		}
		dp.pool = pool
		p.displays = append(p.displays, dp)
	}
	return p, nil
}

// defaultDialBreaker opens after 3 attempts once 60% of them fail and
// probes again after 30 seconds.
func defaultDialBreaker(display string) *gobreaker.CircuitBreaker[*Conn] {
	settings := gobreaker.Settings{
		Name:    display,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
	return gobreaker.NewCircuitBreaker[*Conn](settings)
}

// Acquire returns a connection from the next display in round-robin order.
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	return p.acquire(ctx, p.nextIndex())
}

// AcquireFor returns a connection from the display the affinity key maps
// to. An empty key behaves like Acquire.
func (p *Pool) AcquireFor(ctx context.Context, key string) (*PooledConn, error) {
	return p.acquire(ctx, p.selectIndex(key))
}

// With runs fn with an acquired connection and releases it afterwards.
func (p *Pool) With(ctx context.Context, fn func(*Conn) error) error {
	pc, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer pc.Release()
	return fn(pc.Conn())
}

func (p *Pool) nextIndex() int {
	if len(p.displays) == 1 {
		return 0
	}
	return int((p.rr.Add(1) - 1) % uint64(len(p.displays)))
}

func (p *Pool) selectIndex(key string) int {
	if len(p.displays) == 1 {
		return 0
	}
	if key == "" {
		return p.nextIndex()
	}
	return p.selector(key, len(p.displays))
}

// acquire discards pooled connections that died or idled past the limit
// instead of handing them out.
func (p *Pool) acquire(ctx context.Context, idx int) (*PooledConn, error) {
	dp := p.displays[idx]
	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		res, err := dp.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		conn := res.Value()
		if conn.Broken() || (p.maxIdle > 0 && time.Since(conn.LastActivity()) > p.maxIdle) {
			res.Destroy()
			continue
		}
		return &PooledConn{res: res}, nil
	}
	return nil, fmt.Errorf("x11: display %s keeps handing out dead connections", dp.display)
}

// Ping round-trips every display and returns the last failure.
func (p *Pool) Ping(ctx context.Context) error {
	var lastErr error
	for i := range p.displays {
		pc, err := p.acquire(ctx, i)
		if err != nil {
			lastErr = err
			continue
		}
		if err := pc.Conn().Sync(ctx); err != nil {
			lastErr = err
		}
		pc.Release()
	}
	return lastErr
}

// Stats returns a snapshot of every display pool's statistics.
func (p *Pool) Stats() []PoolStats {
	stats := make([]PoolStats, 0, len(p.displays))
	for _, dp := range p.displays {
		s := dp.pool.Stat()
		stats = append(stats, PoolStats{
			Display:           dp.display,
			TotalConns:        s.TotalResources(),
			IdleConns:         s.IdleResources(),
			ActiveConns:       s.AcquiredResources(),
			AcquireCount:      uint64(s.AcquireCount()),
			EmptyAcquireCount: uint64(s.EmptyAcquireCount()),
			CreatedConns:      uint64(dp.created.Load()),
			DestroyedConns:    uint64(dp.destroyed.Load()),
			CanceledAcquires:  uint64(s.CanceledAcquireCount()),
			AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
		})
	}
	return stats
}

// Close destroys all pooled connections, waiting for acquired ones to be
// released.
func (p *Pool) Close() {
	for _, dp := range p.displays {
		if dp.pool != nil {
			dp.pool.Close()
		}
	}
}

// PooledConn is a connection checked out of a Pool.
type PooledConn struct {
	res *puddle.Resource[*Conn]
}

// Conn returns the underlying connection. It stays valid until Release or
// Destroy.
func (pc *PooledConn) Conn() *Conn {
	return pc.res.Value()
}

// Release returns the connection to the pool. Connections that failed while
// checked out are destroyed instead of being pooled again.
func (pc *PooledConn) Release() {
	if pc.res.Value().Broken() {
		pc.res.Destroy()
		return
	}
	pc.res.Release()
}

// Destroy closes the connection instead of returning it to the pool.
func (pc *PooledConn) Destroy() {
	pc.res.Destroy()
}
