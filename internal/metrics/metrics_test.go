package metrics

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreSafeForConcurrentUse(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter("claims.transition")
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 50, m.Counter("claims.transition"))
	assert.EqualValues(t, 0, m.Counter("unknown"))
}

func TestTimerTracksMinMaxAverage(t *testing.T) {
	m := NewMetrics()
	m.RecordTimer("upstream.get", 10)
	m.RecordTimer("upstream.get", 30)
	m.RecordTimer("upstream.get", 20)

	timer := m.Snapshot().Timers["upstream.get"]
	assert.EqualValues(t, 3, timer.Count)
	assert.EqualValues(t, 60, timer.TotalTimeMs)
	assert.EqualValues(t, 10, timer.MinTimeMs)
	assert.EqualValues(t, 30, timer.MaxTimeMs)
	assert.InDelta(t, 20.0, timer.AverageTimeMs, 0.001)
}

func TestErrorRate(t *testing.T) {
	m := NewMetrics()
	m.RecordSuccess("upstream")
	m.RecordSuccess("upstream")
	m.RecordError("upstream")
	m.Observe("upstream", errors.New("boom"))

	rate := m.Snapshot().ErrorRates["upstream"]
	assert.EqualValues(t, 4, rate.Total)
	assert.EqualValues(t, 2, rate.Errors)
	assert.InDelta(t, 50.0, rate.ErrorRate, 0.001)
}

func TestHealth(t *testing.T) {
	m := NewMetrics()
	require.True(t, m.Healthy())

	m.SetHealth("redis", true)
	m.SetHealth("notifications", false)
	assert.False(t, m.Healthy())

	m.SetHealth("notifications", true)
	assert.True(t, m.Healthy())
	assert.Equal(t, map[string]bool{"redis": true, "notifications": true}, m.Snapshot().HealthChecks)
}
