package orchestrator

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// ThrottleLevel indicates memory pressure severity observed by a
// memoryWatcher.
type ThrottleLevel int

const (
	// ThrottleNormal indicates memory usage is within normal bounds.
	ThrottleNormal ThrottleLevel = iota
	// ThrottleWarning indicates memory usage is elevated (75-90% of limit).
	ThrottleWarning
	// ThrottleCritical indicates memory usage is critical (>90% of limit).
	ThrottleCritical
)

// memoryWatcher monitors heap pressure during a run and reports a throttle
// level the batch loop uses to shrink its worker count, rather than letting
// an unbounded fan-out of large page bodies push the process into GC
// thrashing or an OOM kill mid-run.
type memoryWatcher struct {
	mu         sync.RWMutex
	limitBytes int64
}

// newMemoryWatcher creates a watcher against limitMB. limitMB <= 0 disables
// it: Check always reports ThrottleNormal.
func newMemoryWatcher(limitMB int64) *memoryWatcher {
	limitBytes := limitMB * 1024 * 1024
	if limitBytes > 0 {
		debug.SetMemoryLimit(limitBytes)
	}
	return &memoryWatcher{limitBytes: limitBytes}
}

// Check reports current heap usage against the configured limit.
func (m *memoryWatcher) Check() (usedPercent float64, level ThrottleLevel) {
	m.mu.RLock()
	limitBytes := m.limitBytes
	m.mu.RUnlock()

	if limitBytes <= 0 {
		return 0, ThrottleNormal
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	usedPercent = (float64(memStats.HeapAlloc) / float64(limitBytes)) * 100
	switch {
	case usedPercent >= 90:
		return usedPercent, ThrottleCritical
	case usedPercent >= 75:
		return usedPercent, ThrottleWarning
	default:
		return usedPercent, ThrottleNormal
	}
}

// throttledConcurrency derates workers under memory pressure: half under
// warning, a single worker under critical, unchanged otherwise.
func throttledConcurrency(concurrency int, level ThrottleLevel) int {
	switch level {
	case ThrottleCritical:
		return 1
	case ThrottleWarning:
		if half := concurrency / 2; half > 0 {
			return half
		}
		return 1
	default:
		return concurrency
	}
}
