// Package metrics provides lightweight in-process counters for the
// pipeline. A nil *Collector is valid and records nothing, so callers
// never need nil checks at call sites.
package metrics

import "sync/atomic"

// Collector accumulates pipeline counters for one process lifetime.
type Collector struct {
	streamingAttempts atomic.Int64
	fallbackAttempts  atomic.Int64
	jobsSucceeded     atomic.Int64
	jobsFailed        atomic.Int64
	chunksTranscribed atomic.Int64
	bytesCaptured     atomic.Int64
	commitRetries     atomic.Int64
	partialCommits    atomic.Int64
	sinkFailures      atomic.Int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	StreamingAttempts int64 `json:"streaming_attempts"`
	FallbackAttempts  int64 `json:"fallback_attempts"`
	JobsSucceeded     int64 `json:"jobs_succeeded"`
	JobsFailed        int64 `json:"jobs_failed"`
	ChunksTranscribed int64 `json:"chunks_transcribed"`
	BytesCaptured     int64 `json:"bytes_captured"`
	CommitRetries     int64 `json:"commit_retries"`
	PartialCommits    int64 `json:"partial_commits"`
	SinkFailures      int64 `json:"sink_failures"`
}

func (c *Collector) StreamingAttempt() {
	if c != nil {
		c.streamingAttempts.Add(1)
	}
}

func (c *Collector) FallbackAttempt() {
	if c != nil {
		c.fallbackAttempts.Add(1)
	}
}

func (c *Collector) JobSucceeded() {
	if c != nil {
		c.jobsSucceeded.Add(1)
	}
}

func (c *Collector) JobFailed() {
	if c != nil {
		c.jobsFailed.Add(1)
	}
}

func (c *Collector) ChunkTranscribed() {
	if c != nil {
		c.chunksTranscribed.Add(1)
	}
}

func (c *Collector) BytesCaptured(n int64) {
	if c != nil {
		c.bytesCaptured.Add(n)
	}
}

func (c *Collector) CommitRetry() {
	if c != nil {
		c.commitRetries.Add(1)
	}
}

func (c *Collector) PartialCommit() {
	if c != nil {
		c.partialCommits.Add(1)
	}
}

func (c *Collector) SinkFailure() {
	if c != nil {
		c.sinkFailures.Add(1)
	}
}

// Snapshot returns a copy of the current counter values.
// Safe on a nil collector.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		StreamingAttempts: c.streamingAttempts.Load(),
		FallbackAttempts:  c.fallbackAttempts.Load(),
		JobsSucceeded:     c.jobsSucceeded.Load(),
		JobsFailed:        c.jobsFailed.Load(),
		ChunksTranscribed: c.chunksTranscribed.Load(),
		BytesCaptured:     c.bytesCaptured.Load(),
		CommitRetries:     c.commitRetries.Load(),
		PartialCommits:    c.partialCommits.Load(),
		SinkFailures:      c.sinkFailures.Load(),
	}
}
