package encxorm

import (
	"log/slog"

	"github.com/hengadev/encxorm/internal/monitoring"
)

// ObservabilityHook is notified around field processing and migration
// batches.
type ObservabilityHook = monitoring.ObservabilityHook

// MetricsCollector receives counters and timings.
type MetricsCollector = monitoring.MetricsCollector

// InMemoryMetricsCollector keeps metrics in process.
type InMemoryMetricsCollector = monitoring.InMemoryMetricsCollector

func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return monitoring.NewInMemoryMetricsCollector()
}

// NewLoggingHook returns a hook writing to logger.
func NewLoggingHook(logger *slog.Logger) ObservabilityHook {
	return monitoring.NewLoggingObservabilityHook(logger)
}

// NewMetricsHook returns a hook feeding collector.
func NewMetricsHook(collector MetricsCollector) ObservabilityHook {
	return monitoring.NewMetricsObservabilityHook(collector)
}

// NewCompositeHook fans notifications out to hooks in order.
func NewCompositeHook(hooks ...ObservabilityHook) ObservabilityHook {
	return monitoring.NewCompositeObservabilityHook(hooks...)
}
