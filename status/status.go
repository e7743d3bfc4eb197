// Package status defines the status sink boundary. Sinks mirror job
// state transitions to downstream systems; delivery is best-effort and
// never influences the pipeline's own outcome.
package status

import (
	"context"

	"github.com/soundline-io/capstan/log"
	"github.com/soundline-io/capstan/metrics"
	"github.com/soundline-io/capstan/types"
)

// Sink publishes status records to a downstream system.
// Implementations must respect context cancellation and deadlines.
type Sink interface {
	Publish(ctx context.Context, rec *types.StatusRecord) error

	// Close releases sink resources.
	Close() error
}

// Reporter wraps a sink with fire-and-forget semantics: a failed
// publish is logged and counted, never returned. A nil sink reporter
// drops everything, so callers report unconditionally.
type Reporter struct {
	sink    Sink
	logger  *log.Logger
	metrics *metrics.Collector
}

// NewReporter creates a reporter over sink. sink, logger, and collector
// may each be nil.
func NewReporter(sink Sink, logger *log.Logger, collector *metrics.Collector) *Reporter {
	return &Reporter{sink: sink, logger: logger, metrics: collector}
}

// Report publishes one status record, swallowing any failure.
func (r *Reporter) Report(ctx context.Context, rec *types.StatusRecord) {
	if r == nil || r.sink == nil {
		return
	}
	if err := r.sink.Publish(ctx, rec); err != nil {
		r.metrics.SinkFailure()
		if r.logger != nil {
			r.logger.Warn("status publish failed", map[string]any{
				"status": string(rec.Status),
				"error":  err.Error(),
			})
		}
	}
}

// Close releases the underlying sink.
func (r *Reporter) Close() error {
	if r == nil || r.sink == nil {
		return nil
	}
	return r.sink.Close()
}
