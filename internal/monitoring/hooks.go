package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Operation names reported to hooks.
const (
	OperationEncrypt = "encrypt"
	OperationDecrypt = "decrypt"
	OperationMigrate = "migrate"
)

// ObservabilityHook is notified around field processing and migration
// batches. Implementations must not retain metadata after returning.
type ObservabilityHook interface {
	// Called before an object is processed
	OnProcessStart(ctx context.Context, operation string, metadata map[string]any)

	// Called after an object is processed (success or failure)
	OnProcessComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any)

	// Called when a field fails
	OnError(ctx context.Context, operation string, err error, metadata map[string]any)

	// Called after each committed migration batch
	OnBatchCommit(ctx context.Context, entityType string, batch int, rows int, metadata map[string]any)
}

// NoOpObservabilityHook is a no-op implementation of ObservabilityHook
type NoOpObservabilityHook struct{}

func (n *NoOpObservabilityHook) OnProcessStart(ctx context.Context, operation string, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnProcessComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnBatchCommit(ctx context.Context, entityType string, batch int, rows int, metadata map[string]any) {
}

// LoggingObservabilityHook writes every notification to a slog logger.
// Starts and completions are logged at debug, failures at error.
type LoggingObservabilityHook struct {
	logger *slog.Logger
}

func NewLoggingObservabilityHook(logger *slog.Logger) *LoggingObservabilityHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObservabilityHook{logger: logger}
}

func (l *LoggingObservabilityHook) OnProcessStart(ctx context.Context, operation string, metadata map[string]any) {
	l.logger.DebugContext(ctx, "process started", append([]any{"operation", operation}, attrs(metadata)...)...)
}

func (l *LoggingObservabilityHook) OnProcessComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	args := append([]any{"operation", operation, "duration", duration}, attrs(metadata)...)
	if err != nil {
		l.logger.ErrorContext(ctx, "process failed", append(args, "error", err)...)
		return
	}
	l.logger.DebugContext(ctx, "process completed", args...)
}

func (l *LoggingObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	l.logger.ErrorContext(ctx, "field error", append([]any{"operation", operation, "error", err}, attrs(metadata)...)...)
}

func (l *LoggingObservabilityHook) OnBatchCommit(ctx context.Context, entityType string, batch int, rows int, metadata map[string]any) {
	l.logger.InfoContext(ctx, "batch committed", append([]any{"entity_type", entityType, "batch", batch, "rows", rows}, attrs(metadata)...)...)
}

// MetricsObservabilityHook turns notifications into counters and timings.
type MetricsObservabilityHook struct {
	collector MetricsCollector
}

func NewMetricsObservabilityHook(collector MetricsCollector) *MetricsObservabilityHook {
	if collector == nil {
		collector = &NoOpMetricsCollector{}
	}
	return &MetricsObservabilityHook{collector: collector}
}

func (m *MetricsObservabilityHook) OnProcessStart(ctx context.Context, operation string, metadata map[string]any) {
	m.collector.IncrementCounter("encxorm.process.started", processTags(operation, metadata))
}

func (m *MetricsObservabilityHook) OnProcessComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	tags := processTags(operation, metadata)
	if err != nil {
		tags["status"] = "error"
		m.collector.IncrementCounter("encxorm.process.failed", tags)
	} else {
		tags["status"] = "success"
		m.collector.IncrementCounter("encxorm.process.succeeded", tags)
	}
	m.collector.RecordTiming("encxorm.process.duration", duration, tags)
}

func (m *MetricsObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	m.collector.IncrementCounter("encxorm.errors", map[string]string{
		"operation": operation,
		"error":     fmt.Sprintf("%T", err),
	})
}

func (m *MetricsObservabilityHook) OnBatchCommit(ctx context.Context, entityType string, batch int, rows int, metadata map[string]any) {
	tags := map[string]string{"entity_type": entityType}
	m.collector.IncrementCounter("encxorm.migrate.commits", tags)
	m.collector.IncrementCounterBy("encxorm.migrate.rows", int64(rows), tags)
	m.collector.SetGauge("encxorm.migrate.last_batch", float64(batch), tags)
}

func processTags(operation string, metadata map[string]any) map[string]string {
	tags := map[string]string{"operation": operation}
	if typ, ok := metadata["type"].(string); ok {
		tags["type"] = typ
	}
	return tags
}

// CompositeObservabilityHook fans notifications out to several hooks.
type CompositeObservabilityHook struct {
	hooks []ObservabilityHook
}

func NewCompositeObservabilityHook(hooks ...ObservabilityHook) *CompositeObservabilityHook {
	return &CompositeObservabilityHook{hooks: hooks}
}

func (c *CompositeObservabilityHook) OnProcessStart(ctx context.Context, operation string, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnProcessStart(ctx, operation, metadata)
	}
}

func (c *CompositeObservabilityHook) OnProcessComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnProcessComplete(ctx, operation, duration, err, metadata)
	}
}

func (c *CompositeObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnError(ctx, operation, err, metadata)
	}
}

func (c *CompositeObservabilityHook) OnBatchCommit(ctx context.Context, entityType string, batch int, rows int, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnBatchCommit(ctx, entityType, batch, rows, metadata)
	}
}

// attrs flattens metadata into slog key/value pairs in a stable order.
func attrs(metadata map[string]any) []any {
	keys := sortedKeys(metadata)
	out := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, k, metadata[k])
	}
	return out
}
