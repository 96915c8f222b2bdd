// Package metrics keeps in-process counters for the console and exposes
// them as a JSON snapshot.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// TimerMetric summarizes a timed operation
type TimerMetric struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// ErrorRateMetric is the share of failed calls of an operation, in percent
type ErrorRateMetric struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

// Snapshot is a point in time copy of every metric
type Snapshot struct {
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Counters      map[string]int64           `json:"counters"`
	Gauges        map[string]int64           `json:"gauges"`
	Timers        map[string]TimerMetric     `json:"timers"`
	ErrorRates    map[string]ErrorRateMetric `json:"error_rates"`
	HealthChecks  map[string]bool            `json:"health_checks"`
}

type timerStat struct {
	count   int64
	totalMs int64
	minMs   int64
	maxMs   int64
}

type rateStat struct {
	total  int64
	errors int64
}

// Metrics is a concurrency safe metrics collector
type Metrics struct {
	mu        sync.RWMutex
	counters  map[string]*int64
	gauges    map[string]*int64
	timers    map[string]*timerStat
	rates     map[string]*rateStat
	health    map[string]*int64
	startTime time.Time
}

// NewMetrics creates an empty collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:  make(map[string]*int64),
		gauges:    make(map[string]*int64),
		timers:    make(map[string]*timerStat),
		rates:     make(map[string]*rateStat),
		health:    make(map[string]*int64),
		startTime: time.Now(),
	}
}

// lookup returns the entry for name, creating it under the write lock
func lookup[T any](m *Metrics, table map[string]*T, name string, init func() *T) *T {
	m.mu.RLock()
	v, ok := table[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = table[name]; !ok {
		v = init()
		table[name] = v
	}
	return v
}

func newInt() *int64 { return new(int64) }

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	atomic.AddInt64(lookup(m, m.counters, name, newInt), value)
}

// SetGauge sets a gauge
func (m *Metrics) SetGauge(name string, value int64) {
	atomic.StoreInt64(lookup(m, m.gauges, name, newInt), value)
}

// RecordTimer records one duration in milliseconds
func (m *Metrics) RecordTimer(name string, durationMs int64) {
	t := lookup(m, m.timers, name, func() *timerStat {
		return &timerStat{minMs: math.MaxInt64}
	})

	atomic.AddInt64(&t.count, 1)
	atomic.AddInt64(&t.totalMs, durationMs)

	for {
		cur := atomic.LoadInt64(&t.minMs)
		if durationMs >= cur || atomic.CompareAndSwapInt64(&t.minMs, cur, durationMs) {
			break
		}
	}
	for {
		cur := atomic.LoadInt64(&t.maxMs)
		if durationMs <= cur || atomic.CompareAndSwapInt64(&t.maxMs, cur, durationMs) {
			break
		}
	}
}

// Time starts a timer and returns the func that stops it
func (m *Metrics) Time(name string) func() {
	start := time.Now()
	return func() {
		m.RecordTimer(name, time.Since(start).Milliseconds())
	}
}

// RecordSuccess counts a successful call of an operation
func (m *Metrics) RecordSuccess(name string) {
	m.recordRate(name, false)
}

// RecordError counts a failed call of an operation
func (m *Metrics) RecordError(name string) {
	m.recordRate(name, true)
}

// Observe records success or failure depending on err
func (m *Metrics) Observe(name string, err error) {
	m.recordRate(name, err != nil)
}

func (m *Metrics) recordRate(name string, failed bool) {
	r := lookup(m, m.rates, name, func() *rateStat { return &rateStat{} })
	atomic.AddInt64(&r.total, 1)
	if failed {
		atomic.AddInt64(&r.errors, 1)
	}
}

// SetHealth sets the health of a component
func (m *Metrics) SetHealth(component string, healthy bool) {
	var v int64
	if healthy {
		v = 1
	}
	atomic.StoreInt64(lookup(m, m.health, component, newInt), v)
}

// Counter returns the current value of a counter
func (m *Metrics) Counter(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[name]; ok {
		return atomic.LoadInt64(c)
	}
	return 0
}

// Healthy reports whether every registered component is healthy
func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.health {
		if atomic.LoadInt64(h) == 0 {
			return false
		}
	}
	return true
}

// Snapshot copies every metric
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
		Counters:      make(map[string]int64, len(m.counters)),
		Gauges:        make(map[string]int64, len(m.gauges)),
		Timers:        make(map[string]TimerMetric, len(m.timers)),
		ErrorRates:    make(map[string]ErrorRateMetric, len(m.rates)),
		HealthChecks:  make(map[string]bool, len(m.health)),
	}

	for name, c := range m.counters {
		s.Counters[name] = atomic.LoadInt64(c)
	}
	for name, g := range m.gauges {
		s.Gauges[name] = atomic.LoadInt64(g)
	}
	for name, t := range m.timers {
		count := atomic.LoadInt64(&t.count)
		total := atomic.LoadInt64(&t.totalMs)
		tm := TimerMetric{
			Count:       count,
			TotalTimeMs: total,
			MinTimeMs:   atomic.LoadInt64(&t.minMs),
			MaxTimeMs:   atomic.LoadInt64(&t.maxMs),
		}
		if count > 0 {
			tm.AverageTimeMs = float64(total) / float64(count)
		}
		s.Timers[name] = tm
	}
	for name, r := range m.rates {
		total := atomic.LoadInt64(&r.total)
		errs := atomic.LoadInt64(&r.errors)
		er := ErrorRateMetric{Total: total, Errors: errs}
		if total > 0 {
			er.ErrorRate = float64(errs) / float64(total) * 100.0
		}
		s.ErrorRates[name] = er
	}
	for name, h := range m.health {
		s.HealthChecks[name] = atomic.LoadInt64(h) > 0
	}
	return s
}
