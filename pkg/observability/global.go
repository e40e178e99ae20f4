package observability

import "sync"

var (
	globalMetrics   Metrics = NoopMetrics{}
	globalMetricsMu sync.RWMutex
)

// SetGlobalMetrics installs the process-wide metrics recorder.
func SetGlobalMetrics(m Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	if m == nil {
		m = NoopMetrics{}
	}
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide metrics recorder, never nil.
func GetGlobalMetrics() Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()
	return globalMetrics
}
