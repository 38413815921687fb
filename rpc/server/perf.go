package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

const (
	DefaultPerfFlushInterval = 5 * time.Minute
	MinPerfFlushInterval     = 5 * time.Second
)

// PerfItem is the aggregate of one (grid, host, servant, method) over a flush interval
type PerfItem struct {
	Key      string `json:"key"`
	Grid     string `json:"grid"`
	Host     string `json:"host"`
	Servant  string `json:"servant"`
	Method   string `json:"method"`
	Calls    int64  `json:"calls"`
	Failures int64  `json:"failures"`
	// elapsed time in microseconds
	AvgMicros float64 `json:"avgMicros"`
	MaxMicros int64   `json:"maxMicros"`
	P99Micros float64 `json:"p99Micros"`
}

// IPerfSink receives the aggregates of every flush
type IPerfSink interface {
	Write(flushed time.Time, items []PerfItem) error
	Close() error
}

// perfEntry holds the aggregation of one key
type perfEntry struct {
	item     PerfItem
	calls    gometrics.Counter
	failures gometrics.Counter
	elapsed  gometrics.Histogram

	// exported process metrics
	vmCalls    *vm.Counter
	vmFailures *vm.Counter
	vmElapsed  *vm.Histogram
}

// PerformanceRecorder aggregates call statistics per (grid, host, servant,
// method) in a go-metrics registry and flushes them periodically to its sinks.
// Every record is also exported as VictoriaMetrics counters and histograms.
type PerformanceRecorder struct {
	registry gometrics.Registry
	entries  *xsync.MapOf[string, *perfEntry]
	sinks    []IPerfSink
	interval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewPerformanceRecorder creates a recorder flushing every interval (at least
// MinPerfFlushInterval, DefaultPerfFlushInterval if unset)
func NewPerformanceRecorder(interval time.Duration, sinks ...IPerfSink) *PerformanceRecorder {
	if interval <= 0 {
		interval = DefaultPerfFlushInterval
	}
	if interval < MinPerfFlushInterval {
		interval = MinPerfFlushInterval
	}
	return &PerformanceRecorder{
		registry: gometrics.NewRegistry(),
		entries:  xsync.NewMapOf[string, *perfEntry](),
		sinks:    sinks,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// PerfKey returns the aggregation key "grid-host-servant-method" (lower case)
func PerfKey(grid, host, servant, method string) string {
	return strings.ToLower(fmt.Sprintf("%s-%s-%s-%s", grid, host, servant, method))
}

// Record adds one call
func (r *PerformanceRecorder) Record(grid, host, servant, method string, elapsed time.Duration, failed bool) {
	e := r.entry(grid, host, servant, method)
	micros := elapsed.Microseconds()

	e.calls.Inc(1)
	e.elapsed.Update(micros)
	e.vmCalls.Inc()
	e.vmElapsed.Update(elapsed.Seconds())
	if failed {
		e.failures.Inc(1)
		e.vmFailures.Inc()
	}
}

func (r *PerformanceRecorder) entry(grid, host, servant, method string) *perfEntry {
	key := PerfKey(grid, host, servant, method)
	if e, ok := r.entries.Load(key); ok {
		return e
	}
	e, _ := r.entries.LoadOrCompute(key, func() *perfEntry {
		labels := fmt.Sprintf(`{grid=%q,host=%q,servant=%q,method=%q}`, grid, host, servant, method)
		return &perfEntry{
			item: PerfItem{
				Key:     key,
				Grid:    grid,
				Host:    host,
				Servant: servant,
				Method:  method,
			},
			calls:    r.registry.GetOrRegister(key+".calls", gometrics.NewCounter).(gometrics.Counter),
			failures: r.registry.GetOrRegister(key+".failures", gometrics.NewCounter).(gometrics.Counter),
			elapsed: r.registry.GetOrRegister(key+".elapsed", func() gometrics.Histogram {
				return gometrics.NewHistogram(gometrics.NewExpDecaySample(1028, 0.015))
			}).(gometrics.Histogram),
			vmCalls:    vm.GetOrCreateCounter("grid_server_calls_total" + labels),
			vmFailures: vm.GetOrCreateCounter("grid_server_failures_total" + labels),
			vmElapsed:  vm.GetOrCreateHistogram("grid_server_call_duration_seconds" + labels),
		}
	})
	return e
}

// Start runs the periodic flush
func (r *PerformanceRecorder) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ticker := time.NewTicker(r.interval)
			defer ticker.Stop()
			for {
				select {
				case <-r.stop:
					return
				case now := <-ticker.C:
					r.Flush(now)
				}
			}
		}()
	})
}

// Flush hands the aggregates since the last flush to all sinks and resets them.
// Keys without calls are skipped. It returns the flushed items.
func (r *PerformanceRecorder) Flush(now time.Time) []PerfItem {
	var items []PerfItem
	r.entries.Range(func(_ string, e *perfEntry) bool {
		calls := e.calls.Count()
		if calls == 0 {
			return true
		}
		failures := e.failures.Count()
		snap := e.elapsed.Snapshot()

		item := e.item
		item.Calls = calls
		item.Failures = failures
		item.AvgMicros = snap.Mean()
		item.MaxMicros = snap.Max()
		item.P99Micros = snap.Percentile(0.99)
		items = append(items, item)

		// concurrent records between the read and here stay counted
		e.calls.Dec(calls)
		e.failures.Dec(failures)
		e.elapsed.Clear()
		return true
	})

	if len(items) == 0 {
		return nil
	}
	for _, sink := range r.sinks {
		if err := sink.Write(now, items); err != nil {
			Logger.Errorf("perf sink failed: %v", err)
		}
	}
	return items
}

// Stop flushes the remaining aggregates and closes the sinks
func (r *PerformanceRecorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.wg.Wait()
		r.Flush(time.Now())
		for _, sink := range r.sinks {
			if err := sink.Close(); err != nil {
				Logger.Warningf("failed to close perf sink: %v", err)
			}
		}
	})
}
