// Command xbench drives request load at an X server and reports throughput
// and latency. With --metrics it also serves the engine's Prometheus
// collectors while the benchmark runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	x11 "github.com/qlentz/x11"
	"github.com/qlentz/x11/metrics"
)

type OperationType string

const (
	RoundTrip  OperationType = "round-trip"
	Intern     OperationType = "intern"
	AtomCached OperationType = "atom-cached"
	Burst      OperationType = "burst"
	GenID      OperationType = "gen-id"
	All        OperationType = "all"
)

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	ErrorMessage string
}

func main() {
	var (
		operation   = flag.String("operation", "all", "Operation type: round-trip, intern, atom-cached, burst, gen-id, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration to run benchmarks")
		concurrency = flag.Int("concurrency", 1, "Number of concurrent workers")
		displays    = flag.String("displays", ":0", "Comma-separated list of displays")
		metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address while running")
	)
	flag.Parse()

	fmt.Printf("X Request Benchmark\n")
	fmt.Printf("===================\n")
	fmt.Printf("Operation: %s\n", *operation)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Displays: %s\n", *displays)
	fmt.Println()

	pool, err := x11.NewPool(x11.PoolConfig{
		Displays:           strings.Split(*displays, ","),
		MaxConnsPerDisplay: int32(*concurrency),
	})
	if err != nil {
		log.Fatalf("Failed to create pool: %v", err)
	}
	defer pool.Close()

	if *metricsAddr != "" {
		exporter := metrics.NewExporter()
		if err := exporter.RegisterPool(pool); err != nil {
			log.Fatalf("Failed to register metrics: %v", err)
		}
		go func() {
			if err := exporter.ListenAndServe(*metricsAddr); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
		fmt.Printf("Serving metrics on http://%s/metrics\n\n", *metricsAddr)
	}

	fmt.Print("Testing connection...")
	if err := pool.Ping(context.Background()); err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure an X server is reachable on %s\n", *displays)
		return
	}
	fmt.Println(" success!")
	fmt.Println()

	if OperationType(*operation) == All {
		runAllOperations(pool, *duration, *concurrency)
	} else {
		result := runSingleOperation(pool, OperationType(*operation), *duration, *concurrency)
		printResult(result)
	}
}

func runAllOperations(pool *x11.Pool, duration time.Duration, concurrency int) {
	operations := []OperationType{RoundTrip, Intern, AtomCached, Burst, GenID}

	for _, op := range operations {
		fmt.Printf("\n--- Running %s benchmark ---\n", op)
		result := runSingleOperation(pool, op, duration, concurrency)
		printResult(result)

		time.Sleep(500 * time.Millisecond)
	}
}

func runSingleOperation(pool *x11.Pool, operation OperationType, duration time.Duration, concurrency int) *BenchmarkResult {
	switch operation {
	case RoundTrip:
		return runWorkers(pool, RoundTrip, duration, concurrency, opRoundTrip)
	case Intern:
		return runWorkers(pool, Intern, duration, concurrency, opIntern)
	case AtomCached:
		return runWorkers(pool, AtomCached, duration, concurrency, opAtomCached)
	case Burst:
		return runWorkers(pool, Burst, duration, concurrency, opBurst)
	case GenID:
		return runWorkers(pool, GenID, duration, concurrency, opGenID)
	default:
		return &BenchmarkResult{
			Operation:    operation,
			ErrorMessage: fmt.Sprintf("Unknown operation: %s", operation),
		}
	}
}

// runWorkers spreads op over concurrency goroutines until the deadline.
// Each iteration runs on a pooled connection keyed by worker, so a worker
// sticks to one display while the pool spreads workers across them.
func runWorkers(pool *x11.Pool, operation OperationType, duration time.Duration, concurrency int, op func(ctx context.Context, conn *x11.Conn, workerID, iter int) error) *BenchmarkResult {
	ctx := context.Background()
	result := &BenchmarkResult{Operation: operation}
	var totalOps, successes, failures int64
	var totalLatency int64

	startTime := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			key := fmt.Sprintf("worker-%d", workerID)
			iter := 0
			for time.Since(startTime) < duration {
				opStart := time.Now()
				pc, err := pool.AcquireFor(ctx, key)
				if err != nil {
					atomic.AddInt64(&totalOps, 1)
					atomic.AddInt64(&failures, 1)
					continue
				}
				err = op(ctx, pc.Conn(), workerID, iter)
				pc.Release()
				latency := time.Since(opStart)

				atomic.AddInt64(&totalOps, 1)
				atomic.AddInt64(&totalLatency, int64(latency))

				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					atomic.AddInt64(&successes, 1)
				}
				iter++
			}
		}(i)
	}

	wg.Wait()

	result.Duration = time.Since(startTime)
	result.TotalOps = totalOps
	result.Successes = successes
	result.Failures = failures

	if totalOps > 0 {
		result.AvgLatency = time.Duration(totalLatency / totalOps)
		result.OpsPerSecond = float64(totalOps) / result.Duration.Seconds()
	}

	return result
}

// Round-trip: one synchronization request and its reply.
func opRoundTrip(ctx context.Context, conn *x11.Conn, _, _ int) error {
	return conn.Sync(ctx)
}

// Intern: a fresh atom name every iteration, always a server round trip.
func opIntern(ctx context.Context, conn *x11.Conn, workerID, iter int) error {
	name := fmt.Sprintf("XBENCH_%d_%d", workerID, iter)
	_, err := conn.InternAtom(ctx, name)
	return err
}

// Atom-cached: the same name every iteration, served from the client cache
// after the first round trip.
func opAtomCached(ctx context.Context, conn *x11.Conn, workerID, _ int) error {
	name := fmt.Sprintf("XBENCH_CACHED_%d", workerID)
	_, err := conn.InternAtom(ctx, name)
	return err
}

// Burst: 100 pipelined no-reply requests, then one round trip to drain.
func opBurst(ctx context.Context, conn *x11.Conn, _, _ int) error {
	for i := 0; i < 100; i++ {
		if _, err := conn.SendRequestNoReply(ctx, nil, noOpRequest()); err != nil {
			return err
		}
	}
	return conn.Sync(ctx)
}

// Gen-id: resource id allocation, hitting the server only when a range
// runs out.
func opGenID(ctx context.Context, conn *x11.Conn, _, _ int) error {
	_, err := conn.GenerateID(ctx)
	return err
}

// noOpRequest encodes a NoOperation request.
func noOpRequest() []byte {
	return []byte{127, 0, 1, 0}
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Operation: %s\n", result.Operation)
	fmt.Printf("Duration: %v\n", result.Duration)
	fmt.Printf("Total Operations: %d\n", result.TotalOps)
	fmt.Printf("Successes: %d\n", result.Successes)
	fmt.Printf("Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Printf("Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Printf("Ops/sec: %.2f\n", result.OpsPerSecond)
		fmt.Printf("Avg Latency: %v\n", result.AvgLatency)
	}
	if result.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", result.ErrorMessage)
	}
	fmt.Println()
}
