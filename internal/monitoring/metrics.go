// Package monitoring records per-operation timings (load, clean, fit,
// evaluate, cross-validate, predict) when metrics collection is enabled.
package monitoring

import (
	"runtime"
	"sort"
	"sync"
	"time"
)

// OperationMetrics represents the cost of one pipeline operation.
type OperationMetrics struct {
	Operation     string        `json:"operation"`
	Model         string        `json:"model,omitempty"`
	Duration      time.Duration `json:"duration"`
	RowsProcessed int64         `json:"rows_processed"`
	MemoryUsed    int64         `json:"memory_used"`
	Failed        bool          `json:"failed"`
}

// MetricsCollector collects and stores operation metrics. A nil collector is
// valid and records nothing.
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics []OperationMetrics
	enabled bool
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(enabled bool) *MetricsCollector {
	return &MetricsCollector{
		metrics: make([]OperationMetrics, 0),
		enabled: enabled,
	}
}

// IsEnabled returns whether metrics collection is enabled.
func (mc *MetricsCollector) IsEnabled() bool {
	if mc == nil {
		return false
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.enabled
}

// SetEnabled enables or disables metrics collection.
func (mc *MetricsCollector) SetEnabled(enabled bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.enabled = enabled
}

// RecordOperation executes fn and records its duration and allocation delta.
func (mc *MetricsCollector) RecordOperation(operation, model string, rows int, fn func() error) error {
	if !mc.IsEnabled() {
		return fn()
	}

	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)
	start := time.Now()

	err := fn()

	duration := time.Since(start)
	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)

	mc.mu.Lock()
	mc.metrics = append(mc.metrics, OperationMetrics{
		Operation:     operation,
		Model:         model,
		Duration:      duration,
		RowsProcessed: int64(rows),
		MemoryUsed:    int64(memAfter.TotalAlloc - memBefore.TotalAlloc), //nolint:gosec // allocation deltas fit in int64
		Failed:        err != nil,
	})
	mc.mu.Unlock()

	return err
}

// GetMetrics returns a copy of all collected metrics.
func (mc *MetricsCollector) GetMetrics() []OperationMetrics {
	if mc == nil {
		return nil
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make([]OperationMetrics, len(mc.metrics))
	copy(result, mc.metrics)
	return result
}

// Clear removes all collected metrics.
func (mc *MetricsCollector) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = mc.metrics[:0]
}

// GetSummary returns a summary of collected metrics.
func (mc *MetricsCollector) GetSummary() MetricsSummary {
	if mc == nil {
		return MetricsSummary{}
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if len(mc.metrics) == 0 {
		return MetricsSummary{}
	}

	summary := MetricsSummary{
		TotalOperations: len(mc.metrics),
		OperationCounts: make(map[string]int),
		SlowestByOp:     make(map[string]time.Duration),
	}
	for _, metric := range mc.metrics {
		summary.TotalDuration += metric.Duration
		summary.TotalMemory += metric.MemoryUsed
		summary.TotalRows += metric.RowsProcessed
		summary.OperationCounts[metric.Operation]++
		if metric.Failed {
			summary.Failures++
		}
		if metric.Duration > summary.SlowestByOp[metric.Operation] {
			summary.SlowestByOp[metric.Operation] = metric.Duration
		}
	}
	summary.AverageDuration = summary.TotalDuration / time.Duration(len(mc.metrics))
	return summary
}

// MetricsSummary provides aggregate statistics for collected metrics.
type MetricsSummary struct {
	TotalOperations int                      `json:"total_operations"`
	TotalDuration   time.Duration            `json:"total_duration"`
	TotalMemory     int64                    `json:"total_memory"`
	TotalRows       int64                    `json:"total_rows"`
	Failures        int                      `json:"failures"`
	OperationCounts map[string]int           `json:"operation_counts"`
	SlowestByOp     map[string]time.Duration `json:"slowest_by_op"`
	AverageDuration time.Duration            `json:"average_duration"`
}

// Operations returns the recorded operation names in sorted order.
func (s MetricsSummary) Operations() []string {
	ops := make([]string, 0, len(s.OperationCounts))
	for op := range s.OperationCounts {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
