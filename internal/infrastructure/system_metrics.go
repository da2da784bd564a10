package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is a point-in-time view of the process, served by the health endpoint.
type RuntimeStats struct {
	GoRoutines    int64         `json:"goroutines"`
	MemoryAllocMB int64         `json:"memory_alloc_mb"`
	MemorySysMB   int64         `json:"memory_sys_mb"`
	GCCount       uint32        `json:"gc_count"`
	LastGCPause   time.Duration `json:"last_gc_pause_ns"`
	CPUCount      int           `json:"cpu_count"`
	Uptime        time.Duration `json:"uptime_ns"`
	Timestamp     time.Time     `json:"timestamp"`
}

// RuntimeCollector periodically records runtime gauges to the meter
type RuntimeCollector struct {
	goroutines metric.Int64Gauge
	memory     metric.Int64Gauge
	gcPause    metric.Float64Histogram
	uptime     metric.Float64Gauge

	startTime time.Time
	interval  time.Duration
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// NewRuntimeCollector creates the runtime instruments on meter
func NewRuntimeCollector(meter metric.Meter, interval time.Duration) (*RuntimeCollector, error) {
	goroutines, err := meter.Int64Gauge(
		"system_goroutines",
		metric.WithDescription("Number of active goroutines"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create goroutine gauge: %w", err)
	}

	memory, err := meter.Int64Gauge(
		"system_memory_usage_bytes",
		metric.WithDescription("Heap memory in use"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory gauge: %w", err)
	}

	gcPause, err := meter.Float64Histogram(
		"system_gc_pause_seconds",
		metric.WithDescription("Garbage collection pause duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gc histogram: %w", err)
	}

	uptime, err := meter.Float64Gauge(
		"system_process_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create uptime gauge: %w", err)
	}

	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &RuntimeCollector{
		goroutines: goroutines,
		memory:     memory,
		gcPause:    gcPause,
		uptime:     uptime,
		startTime:  time.Now(),
		interval:   interval,
		stopCh:     make(chan struct{}),
	}, nil
}

// Collect reads runtime statistics and records them
func (c *RuntimeCollector) Collect(ctx context.Context) RuntimeStats {
	stats := ReadRuntimeStats(c.startTime)

	c.goroutines.Record(ctx, stats.GoRoutines)
	c.memory.Record(ctx, stats.MemoryAllocMB*1024*1024)
	c.uptime.Record(ctx, stats.Uptime.Seconds())
	if stats.LastGCPause > 0 {
		c.gcPause.Record(ctx, stats.LastGCPause.Seconds())
	}

	return stats
}

// Start blocks, collecting every interval until Stop or ctx is done.
func (c *RuntimeCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends collection. Safe to call more than once.
func (c *RuntimeCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// ReadRuntimeStats samples the Go runtime
func ReadRuntimeStats(startTime time.Time) RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return RuntimeStats{
		GoRoutines:    int64(runtime.NumGoroutine()),
		MemoryAllocMB: int64(mem.Alloc / 1024 / 1024),
		MemorySysMB:   int64(mem.Sys / 1024 / 1024),
		GCCount:       mem.NumGC,
		LastGCPause:   time.Duration(mem.PauseNs[(mem.NumGC+255)%256]),
		CPUCount:      runtime.NumCPU(),
		Uptime:        time.Since(startTime),
		Timestamp:     time.Now(),
	}
}
