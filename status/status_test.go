package status_test

import (
	"context"
	"errors"
	"testing"

	"github.com/soundline-io/capstan/metrics"
	"github.com/soundline-io/capstan/status"
	"github.com/soundline-io/capstan/types"
)

type flakySink struct {
	published []*types.StatusRecord
	err       error
	closed    bool
}

func (s *flakySink) Publish(_ context.Context, rec *types.StatusRecord) error {
	s.published = append(s.published, rec)
	return s.err
}

func (s *flakySink) Close() error {
	s.closed = true
	return nil
}

func TestReporterDelivers(t *testing.T) {
	sink := &flakySink{}
	r := status.NewReporter(sink, nil, nil)

	r.Report(context.Background(), &types.StatusRecord{JobID: "j1", Status: types.StatusDownloading})
	if len(sink.published) != 1 || sink.published[0].JobID != "j1" {
		t.Fatalf("published = %+v", sink.published)
	}
	if err := r.Close(); err != nil || !sink.closed {
		t.Fatalf("Close: %v, closed=%v", err, sink.closed)
	}
}

func TestReporterSwallowsFailures(t *testing.T) {
	sink := &flakySink{err: errors.New("broker down")}
	collector := metrics.NewCollector()
	r := status.NewReporter(sink, nil, collector)

	// Must not panic or propagate.
	r.Report(context.Background(), &types.StatusRecord{JobID: "j1", Status: types.StatusError})
	if got := collector.Snapshot().SinkFailures; got != 1 {
		t.Fatalf("SinkFailures = %d, want 1", got)
	}
}

func TestReporterNilSink(t *testing.T) {
	r := status.NewReporter(nil, nil, nil)
	r.Report(context.Background(), &types.StatusRecord{JobID: "j1"})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var nilReporter *status.Reporter
	nilReporter.Report(context.Background(), &types.StatusRecord{JobID: "j1"})
}
